package analyze

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrNoEngine    = errors.New("engine not started")
)

// IllegalMoveError is returned when the engine does not confirm a move.
type IllegalMoveError struct {
	FEN  string
	Move string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move '%s' in '%s'", e.Move, e.FEN)
}

func (e *IllegalMoveError) Is(target error) bool { return target == ErrIllegalMove }

// ApplyError is returned when the engine accepted a move the position model
// could not apply.
type ApplyError struct {
	FEN  string
	Move string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply '%s' to '%s': %v", e.Move, e.FEN, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }
