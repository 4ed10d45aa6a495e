package analyze

import (
	"fmt"
	"time"
)

// EngineOption is sent as "setoption name <Name> value <Value>".
type EngineOption struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

func (o EngineOption) Command() string {
	if o.Value == "" {
		return fmt.Sprintf("setoption name %s", o.Name)
	}
	return fmt.Sprintf("setoption name %s value %s", o.Name, o.Value)
}

type Options struct {
	UCIOKTimeout    time.Duration
	ReadyTimeout    time.Duration
	BestmoveTimeout time.Duration // stop -> bestmove, only waited for while a search runs
	ProbeTimeout    time.Duration
	EngineOptions   []EngineOption
}

func DefaultOptions() Options {
	return Options{
		UCIOKTimeout:    3 * time.Second,
		ReadyTimeout:    3 * time.Second,
		BestmoveTimeout: 1 * time.Second,
		ProbeTimeout:    1500 * time.Millisecond,
		EngineOptions: []EngineOption{
			{Name: "Threads", Value: "7"},
			{Name: "MultiPV", Value: "3"},
			{Name: "Hash", Value: "1600"},
		},
	}
}
