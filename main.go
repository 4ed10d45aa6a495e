package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"

	"uciboard/analyze"
	"uciboard/config"
	"uciboard/evalstore"
)

func main() {
	configFile := flag.String("config", "uciboard.yaml", "settings file")
	enginePath := flag.String("engine", "", "engine executable, overrides engine.path")
	writeConfig := flag.Bool("write-config", false, "write the effective settings to -config and exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *enginePath != "" {
		cfg.Engine.Path = *enginePath
	}

	if *writeConfig {
		if err := cfg.Save(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	level, _ := cfg.Level()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05.000"}).
		Level(level).
		With().Timestamp().Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("uciboard")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var cache analyze.Cache
	if cfg.EvalCache != "" {
		store, err := evalstore.Open(cfg.EvalCache, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		cache = store
	}

	a := analyze.New(logger, cfg.AnalyzerOptions(), cache)
	if err := a.StartEngine(ctx, cfg.Engine.Path); err != nil {
		return err
	}
	defer a.Shutdown()

	r := newREPL(a, os.Stdout)

	events, cancel, err := a.Subscribe(256)
	if err != nil {
		return err
	}
	defer cancel()
	go r.printEvals(events)

	lines := make(chan string)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(os.Stdin)
		for s.Scan() {
			lines <- s.Text()
		}
	}()

	r.show()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := r.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				r.out.printf("%v\n", err)
			}
			if !a.Alive() {
				return errors.New("engine is gone")
			}
		}
	}
}
