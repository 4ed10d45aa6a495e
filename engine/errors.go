package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrProcessLaunch   = errors.New("engine: process launch failed")
	ErrProtocolTimeout = errors.New("engine: protocol timeout")
	ErrUnexpectedEOF   = errors.New("engine: unexpected end of output")
	ErrNotStarted      = errors.New("engine: session not started")
	ErrClosed          = errors.New("engine: session closed")
)

// LaunchError is returned by Start when the executable cannot be run.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("engine: launch '%s': %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

func (e *LaunchError) Is(target error) bool { return target == ErrProcessLaunch }

// TimeoutError reports that no line containing Token arrived in time.
type TimeoutError struct {
	Token string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("engine: no '%s' after %v", e.Token, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrProtocolTimeout }
