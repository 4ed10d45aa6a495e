// Package config loads the YAML settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"uciboard/analyze"
)

type Config struct {
	Engine    Engine   `yaml:"engine"`
	Timeouts  Timeouts `yaml:"timeouts"`
	EvalCache string   `yaml:"eval_cache"`
	LogLevel  string   `yaml:"log_level"`
}

type Engine struct {
	Path    string                 `yaml:"path"`
	Options []analyze.EngineOption `yaml:"options"`
}

type Timeouts struct {
	UCIOK    time.Duration `yaml:"uciok"`
	ReadyOK  time.Duration `yaml:"readyok"`
	Bestmove time.Duration `yaml:"bestmove"`
	Probe    time.Duration `yaml:"probe"`
}

func Default() *Config {
	opts := analyze.DefaultOptions()
	return &Config{
		Engine: Engine{
			Path:    "stockfish",
			Options: opts.EngineOptions,
		},
		Timeouts: Timeouts{
			UCIOK:    opts.UCIOKTimeout,
			ReadyOK:  opts.ReadyTimeout,
			Bestmove: opts.BestmoveTimeout,
			Probe:    opts.ProbeTimeout,
		},
		LogLevel: "info",
	}
}

// Load reads filename over the defaults. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	b, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("'%s': %w", filename, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("'%s': %w", filename, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("'%s': %w", filename, err)
	}

	return cfg, nil
}

func (c *Config) Save(filename string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("'%s': %w", filename, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("'%s': %w", filename, err)
	}

	if err := os.WriteFile(filename, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write file '%s': %w", filename, err)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Engine.Path == "" {
		return errors.New("engine.path is empty")
	}

	for i, o := range c.Engine.Options {
		if o.Name == "" {
			return fmt.Errorf("engine.options[%d]: empty name", i)
		}
	}

	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"uciok", c.Timeouts.UCIOK},
		{"readyok", c.Timeouts.ReadyOK},
		{"bestmove", c.Timeouts.Bestmove},
		{"probe", c.Timeouts.Probe},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			return fmt.Errorf("timeouts.%s must be positive, got %v", t.name, t.value)
		}
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// Level parses log_level. An empty level means info.
func (c *Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func (c *Config) AnalyzerOptions() analyze.Options {
	return analyze.Options{
		UCIOKTimeout:    c.Timeouts.UCIOK,
		ReadyTimeout:    c.Timeouts.ReadyOK,
		BestmoveTimeout: c.Timeouts.Bestmove,
		ProbeTimeout:    c.Timeouts.Probe,
		EngineOptions:   append([]analyze.EngineOption(nil), c.Engine.Options...),
	}
}
