package fen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const StartPos = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

const noSquare = -1

type Color int

const (
	WhitePieces Color = 1
	BlackPieces Color = -1
)

func (c Color) String() string {
	if c == BlackPieces {
		return "b"
	}
	return "w"
}

// Castling is a set of castling rights.
type Castling uint8

const (
	WhiteKingSide Castling = 1 << iota
	WhiteQueenSide
	BlackKingSide
	BlackQueenSide
)

func (c Castling) String() string {
	var sb strings.Builder
	if c&WhiteKingSide != 0 {
		sb.WriteByte('K')
	}
	if c&WhiteQueenSide != 0 {
		sb.WriteByte('Q')
	}
	if c&BlackKingSide != 0 {
		sb.WriteByte('k')
	}
	if c&BlackQueenSide != 0 {
		sb.WriteByte('q')
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}

var (
	ErrInvalidFEN = errors.New("invalid FEN")
	ErrBadMove    = errors.New("malformed UCI move")
	ErrNoPiece    = errors.New("no piece on source square")
	ErrWrongSide  = errors.New("piece does not belong to side to move")
)

type InvalidFENError struct {
	FEN    string
	Reason string
}

func (e *InvalidFENError) Error() string {
	return fmt.Sprintf("invalid FEN '%s': %s", e.FEN, e.Reason)
}

func (e *InvalidFENError) Is(target error) bool {
	return target == ErrInvalidFEN
}

// Position is an 8x8 board plus the FEN state fields. Pos[0] is a8 and Pos[63]
// is h1, empty squares hold ' '.
type Position struct {
	Pos           [64]byte
	ActiveColor   Color
	Castling      Castling
	EnPassant     int // target square index, or -1
	HalfmoveClock int
	FullMove      int
}

// Parse loads fen into a new Position.
func Parse(fen string) (*Position, error) {
	var p Position
	if err := p.Load(fen); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load replaces the position with fen. Missing half-move and full-move fields
// default to 0 and 1. On error the position is left unchanged.
func (p *Position) Load(fen string) error {
	parts := strings.Fields(fen)
	bad := func(format string, args ...any) error {
		return &InvalidFENError{FEN: fen, Reason: fmt.Sprintf(format, args...)}
	}

	if len(parts) < 4 || len(parts) > 6 {
		return bad("want 4 to 6 fields, got %d", len(parts))
	}
	if len(parts) < 6 {
		if len(parts) < 5 {
			parts = append(parts, "0")
		}
		parts = append(parts, "1")
	}

	next := Position{EnPassant: noSquare}

	ranks := strings.Split(parts[0], "/")
	if len(ranks) != 8 {
		return bad("want 8 ranks, got %d", len(ranks))
	}
	for i, rank := range ranks {
		offset := i * 8
		file := 0
		for _, c := range []byte(rank) {
			switch {
			case c >= '1' && c <= '8':
				n := int(c - '0')
				for j := 0; j < n && file+j < 8; j++ {
					next.Pos[offset+file+j] = ' '
				}
				file += n
			case isPiece(c):
				if file < 8 {
					next.Pos[offset+file] = c
				}
				file++
			default:
				return bad("unexpected '%c' in rank %d", c, 8-i)
			}
		}
		if file != 8 {
			return bad("rank %d covers %d files", 8-i, file)
		}
	}

	switch parts[1] {
	case "w":
		next.ActiveColor = WhitePieces
	case "b":
		next.ActiveColor = BlackPieces
	default:
		return bad("side to move '%s'", parts[1])
	}

	if parts[2] != "-" {
		for _, c := range parts[2] {
			switch c {
			case 'K':
				next.Castling |= WhiteKingSide
			case 'Q':
				next.Castling |= WhiteQueenSide
			case 'k':
				next.Castling |= BlackKingSide
			case 'q':
				next.Castling |= BlackQueenSide
			default:
				return bad("castling rights '%s'", parts[2])
			}
		}
	}

	if parts[3] != "-" {
		idx, ok := squareIndex(parts[3])
		if !ok {
			return bad("en passant square '%s'", parts[3])
		}
		next.EnPassant = idx
	}

	var err error
	if next.HalfmoveClock, err = strconv.Atoi(parts[4]); err != nil || next.HalfmoveClock < 0 {
		return bad("half-move clock '%s'", parts[4])
	}
	if next.FullMove, err = strconv.Atoi(parts[5]); err != nil || next.FullMove < 1 {
		return bad("full-move number '%s'", parts[5])
	}

	*p = next
	return nil
}

// FEN serializes the position. The en passant field is only emitted when the
// side to move has a pawn that can capture on it.
func (p *Position) FEN() string {
	var fen strings.Builder
	for i := 0; i < 8; i++ {
		if i != 0 {
			fen.WriteByte('/')
		}

		offset := i * 8
		blanks := 0

		for j := 0; j < 8; j++ {
			c := p.Pos[offset+j]
			if c == ' ' || c == 0 {
				blanks++
				continue
			}

			if blanks != 0 {
				fen.WriteString(strconv.Itoa(blanks))
				blanks = 0
			}

			fen.WriteByte(c)
		}

		if blanks != 0 {
			fen.WriteString(strconv.Itoa(blanks))
		}
	}

	fen.WriteString(fmt.Sprintf(" %s %s %s %d %d", p.ActiveColor, p.Castling, p.TrueEnPassant(), p.HalfmoveClock, p.FullMove))

	return fen.String()
}

// TrueEnPassant returns the en passant target square, or "-" when no pawn of
// the side to move stands next to the double-pushed pawn.
func (p *Position) TrueEnPassant() string {
	if p.EnPassant == noSquare || !p.capturable(p.EnPassant, p.ActiveColor) {
		return "-"
	}
	return indexToSquare(p.EnPassant)
}

// capturable reports whether a pawn of color by could capture en passant on target.
func (p *Position) capturable(target int, by Color) bool {
	var pawn byte
	var from int
	if by == WhitePieces {
		pawn, from = 'P', target+8
	} else {
		pawn, from = 'p', target-8
	}
	if from < 0 || from >= 64 {
		return false
	}

	file := target % 8
	if file > 0 && p.Pos[from-1] == pawn {
		return true
	}
	if file < 7 && p.Pos[from+1] == pawn {
		return true
	}
	return false
}

// ApplyUCIMove plays a move given as from+to[+promotion]. The move must already
// be known to be legal; only ownership of the moving piece is checked. On
// error the position is left unchanged.
func (p *Position) ApplyUCIMove(move string) error {
	if len(move) != 4 && len(move) != 5 {
		return fmt.Errorf("%w: '%s'", ErrBadMove, move)
	}

	fromUCI, toUCI := move[:2], move[2:4]
	from, ok1 := squareIndex(fromUCI)
	to, ok2 := squareIndex(toUCI)
	if !ok1 || !ok2 || from == to {
		return fmt.Errorf("%w: '%s'", ErrBadMove, move)
	}

	var promote byte
	if len(move) == 5 {
		promote = lower(move[4])
		if promote != 'q' && promote != 'r' && promote != 'b' && promote != 'n' {
			return fmt.Errorf("%w: promotion '%c'", ErrBadMove, move[4])
		}
	}

	piece := p.Pos[from]
	if piece == ' ' || piece == 0 {
		return fmt.Errorf("%w: %s", ErrNoPiece, fromUCI)
	}
	if pieceColor(piece) != p.ActiveColor {
		return fmt.Errorf("%w: '%c' on %s", ErrWrongSide, piece, fromUCI)
	}

	white := p.ActiveColor == WhitePieces
	isPawn := piece == 'P' || piece == 'p'
	isCapture := p.Pos[to] != ' ' && p.Pos[to] != 0

	if isPawn && to == p.EnPassant && !isCapture {
		captureOn := to - 8
		if white {
			captureOn = to + 8
		}
		p.Pos[captureOn] = ' '
		isCapture = true
	}

	p.Pos[to] = piece
	p.Pos[from] = ' '

	// castling rook relocation
	switch {
	case piece == 'K' && move[:4] == "e1g1":
		p.Pos[63], p.Pos[61] = ' ', 'R'
	case piece == 'K' && move[:4] == "e1c1":
		p.Pos[56], p.Pos[59] = ' ', 'R'
	case piece == 'k' && move[:4] == "e8g8":
		p.Pos[7], p.Pos[5] = ' ', 'r'
	case piece == 'k' && move[:4] == "e8c8":
		p.Pos[0], p.Pos[3] = ' ', 'r'
	}

	// castling privileges
	switch piece {
	case 'K':
		p.Castling &^= WhiteKingSide | WhiteQueenSide
	case 'k':
		p.Castling &^= BlackKingSide | BlackQueenSide
	}
	for _, sq := range []int{from, to} {
		switch sq {
		case 56: // a1
			p.Castling &^= WhiteQueenSide
		case 63: // h1
			p.Castling &^= WhiteKingSide
		case 0: // a8
			p.Castling &^= BlackQueenSide
		case 7: // h8
			p.Castling &^= BlackKingSide
		}
	}

	// promotion
	if isPawn && (to < 8 || to >= 56) {
		if promote == 0 {
			promote = 'q'
		}
		if white {
			p.Pos[to] = upper(promote)
		} else {
			p.Pos[to] = promote
		}
	}

	// en passant target, only when the opponent can take it
	p.EnPassant = noSquare
	if isPawn && abs(to-from) == 16 {
		target := (from + to) / 2
		if p.capturable(target, -p.ActiveColor) {
			p.EnPassant = target
		}
	}

	if isPawn || isCapture {
		p.HalfmoveClock = 0
	} else {
		p.HalfmoveClock++
	}

	if !white {
		p.FullMove++
	}
	p.ActiveColor = -p.ActiveColor

	return nil
}

// Piece returns the piece code on a square such as "e4", or ' ' when empty.
func (p *Position) Piece(square string) (byte, bool) {
	idx, ok := squareIndex(square)
	if !ok {
		return 0, false
	}
	return p.Pos[idx], true
}

func (p *Position) Clone() *Position {
	c := *p
	return &c
}

// Key returns the first four fields of a FEN: placement, side, castling and en passant.
func Key(fen string) string {
	parts := strings.Fields(fen)
	if len(parts) > 4 {
		parts = parts[:4]
	}
	return strings.Join(parts, " ")
}

// Normalize collapses runs of whitespace and pads a FEN with only 4 or 5
// fields up to the full 6.
func Normalize(fen string) string {
	parts := strings.Fields(fen)
	switch len(parts) {
	case 4:
		parts = append(parts, "0", "1")
	case 5:
		parts = append(parts, "1")
	}
	return strings.Join(parts, " ")
}

func squareIndex(sq string) (int, bool) {
	if len(sq) != 2 || sq[0] < 'a' || sq[0] > 'h' || sq[1] < '1' || sq[1] > '8' {
		return 0, false
	}
	return uciToIndex(sq), true
}

func uciToIndex(uci string) int {
	file := int(uci[0]) - 'a'
	rank := int(uci[1]) - '0' - 1
	return (7-rank)*8 + file
}

func indexToSquare(index int) string {
	file := 'a' + index%8
	rank := 8 - index/8
	return fmt.Sprintf("%c%d", file, rank)
}

func pieceColor(c byte) Color {
	if c >= 'a' && c <= 'z' {
		return BlackPieces
	}
	return WhitePieces
}

func isPiece(c byte) bool {
	return strings.IndexByte("KQRBNPkqrbnp", c) >= 0
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 32
	}
	return b
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
