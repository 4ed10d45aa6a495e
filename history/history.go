// Package history keeps the moves of the game on the board and the position
// after each of them, so the front end can step back and forth.
package history

import (
	"fmt"

	"github.com/notnil/chess"

	"uciboard/fen"
)

type Ply struct {
	UCI string
	SAN string
	FEN string // position after the move
}

type History struct {
	start string
	plies []Ply
	index int // plies played to reach the current position
}

func New(startFEN string) (*History, error) {
	pos, err := fen.Parse(fen.Normalize(startFEN))
	if err != nil {
		return nil, err
	}
	return &History{start: pos.FEN()}, nil
}

// ImportSAN builds a history from a main line in SAN, as extracted from a
// PGN file.
func ImportSAN(startFEN string, sans []string) (*History, error) {
	h, err := New(startFEN)
	if err != nil {
		return nil, err
	}

	for i, san := range sans {
		pos, err := chessPosition(h.FEN())
		if err != nil {
			return nil, err
		}

		m, err := chess.AlgebraicNotation{}.Decode(pos, san)
		if err != nil {
			return nil, fmt.Errorf("ply %d '%s': %w", i+1, san, err)
		}

		if _, err := h.Push(chess.UCINotation{}.Encode(pos, m)); err != nil {
			return nil, fmt.Errorf("ply %d '%s': %w", i+1, san, err)
		}
	}

	return h, nil
}

func chessPosition(fenStr string) (*chess.Position, error) {
	opt, err := chess.FEN(fenStr)
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt).Position(), nil
}

// Push plays an already validated move from the current position. Plies after
// the current one are discarded.
func (h *History) Push(uci string) (Ply, error) {
	before := h.FEN()

	pos, err := fen.Parse(before)
	if err != nil {
		return Ply{}, err
	}
	if err := pos.ApplyUCIMove(uci); err != nil {
		return Ply{}, err
	}

	ply := Ply{UCI: uci, SAN: san(before, uci), FEN: pos.FEN()}

	h.plies = append(h.plies[:h.index], ply)
	h.index++

	return ply, nil
}

// san renders uci in algebraic notation, or returns it unchanged when the
// move cannot be found among the legal moves.
func san(fenStr, uci string) string {
	pos, err := chessPosition(fenStr)
	if err != nil {
		return uci
	}
	for _, m := range pos.ValidMoves() {
		if m.String() == uci {
			return chess.AlgebraicNotation{}.Encode(pos, m)
		}
	}
	return uci
}

func (h *History) FEN() string {
	if h.index == 0 {
		return h.start
	}
	return h.plies[h.index-1].FEN
}

func (h *History) StartFEN() string { return h.start }

func (h *History) Back() bool {
	if h.index == 0 {
		return false
	}
	h.index--
	return true
}

func (h *History) Forward() bool {
	if h.index == len(h.plies) {
		return false
	}
	h.index++
	return true
}

func (h *History) First() { h.index = 0 }

func (h *History) Last() { h.index = len(h.plies) }

// Index returns the number of plies played to reach the current position.
func (h *History) Index() int { return h.index }

func (h *History) Len() int { return len(h.plies) }

func (h *History) AtStart() bool { return h.index == 0 }

func (h *History) AtEnd() bool { return h.index == len(h.plies) }

// Moves returns every ply in SAN, including those after the current position.
func (h *History) Moves() []string {
	moves := make([]string, len(h.plies))
	for i, p := range h.plies {
		moves[i] = p.SAN
	}
	return moves
}

func (h *History) Plies() []Ply {
	return append([]Ply(nil), h.plies...)
}
