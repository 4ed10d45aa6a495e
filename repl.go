package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"uciboard/analyze"
	"uciboard/engine"
	"uciboard/fen"
	"uciboard/history"
)

var errQuit = errors.New("quit")

// repl turns text commands into calls on the analyzer and the game history.
type repl struct {
	a         *analyze.Analyzer
	h         *history.History
	out       *lockedWriter
	analyzing bool
}

type lockedWriter struct {
	mtx sync.Mutex
	w   io.Writer
}

func (l *lockedWriter) printf(format string, args ...interface{}) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func newREPL(a *analyze.Analyzer, out io.Writer) *repl {
	h, _ := history.New(fen.StartPos)
	return &repl{a: a, h: h, out: &lockedWriter{w: out}}
}

const help = `commands:
  move <uci>             play a move after the engine confirms it
  fen <FEN>              set up a position
  new                    start a new game
  back | forward         step through the game
  first | last           jump to the start or the end
  analyze | stop         start or stop infinite analysis
  option <name> <value>  change an engine option
  moves | show           print the game or the current position
  quit
`

func (r *repl) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		r.out.printf("%s", help)
	case "move":
		if len(args) != 1 {
			return errors.New("usage: move <uci>")
		}
		return r.move(ctx, args[0])
	case "fen":
		h, err := history.New(strings.Join(args, " "))
		if err != nil {
			return err
		}
		r.h = h
		r.positionChanged()
	case "new":
		if err := r.a.NewGame(ctx); err != nil {
			return err
		}
		r.h, _ = history.New(fen.StartPos)
		r.positionChanged()
	case "back":
		if r.h.Back() {
			r.positionChanged()
		}
	case "forward":
		if r.h.Forward() {
			r.positionChanged()
		}
	case "first":
		r.h.First()
		r.positionChanged()
	case "last":
		r.h.Last()
		r.positionChanged()
	case "analyze":
		r.analyzing = true
		r.a.RequestAnalysis(r.h.FEN())
	case "stop":
		r.analyzing = false
		r.a.StopAnalysis()
	case "option":
		if len(args) < 1 {
			return errors.New("usage: option <name> [value]")
		}
		o := analyze.EngineOption{Name: args[0], Value: strings.Join(args[1:], " ")}
		return r.a.ApplyEngineOptions(ctx, []analyze.EngineOption{o})
	case "moves":
		r.out.printf("%s\n", movetext(r.h))
	case "show":
		r.show()
	default:
		return fmt.Errorf("unknown command '%s', try help", cmd)
	}

	return nil
}

func (r *repl) move(ctx context.Context, uci string) error {
	if _, err := r.a.ApplyMove(ctx, r.h.FEN(), uci); err != nil {
		return err
	}

	ply, err := r.h.Push(strings.ToLower(uci))
	if err != nil {
		return err
	}

	r.out.printf("%s\n", ply.SAN)
	r.positionChanged()
	return nil
}

func (r *repl) positionChanged() {
	r.show()
	if r.analyzing {
		r.a.RequestAnalysis(r.h.FEN())
	}
}

func (r *repl) show() {
	r.out.printf("fen %s  (ply %d/%d)\n", r.h.FEN(), r.h.Index(), r.h.Len())
	if eval, ok := r.a.Cached(r.h.FEN()); ok {
		r.out.printf("cached %s\n", eval.Display())
	}
}

// movetext numbers the SAN moves of the game, e.g. "1. e4 e5 2. Nf3".
func movetext(h *history.History) string {
	pos, err := fen.Parse(h.StartFEN())
	if err != nil {
		return ""
	}

	ply := 0
	if pos.ActiveColor == fen.BlackPieces {
		ply = 1
	}
	number := pos.FullMove

	var sb strings.Builder
	for i, san := range h.Moves() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch {
		case ply%2 == 0:
			sb.WriteString(fmt.Sprintf("%d. ", number))
		case i == 0:
			sb.WriteString(fmt.Sprintf("%d... ", number))
		}
		sb.WriteString(san)
		if ply%2 == 1 {
			number++
		}
		ply++
	}
	return sb.String()
}

// printEvals writes the principal line once per new depth of each search.
func (r *repl) printEvals(events <-chan engine.Event) {
	var search, depth int
	for ev := range events {
		if ev.Kind != engine.KindInfo || len(ev.Eval.PV) == 0 || ev.Eval.MultiPV > 1 {
			continue
		}
		if ev.Search != search {
			search, depth = ev.Search, 0
		}
		if ev.Eval.Depth <= depth {
			continue
		}
		depth = ev.Eval.Depth

		fields := strings.Fields(r.a.CurrentFEN())
		if len(fields) < 2 {
			continue
		}
		whiteToMove := fields[1] == "w"
		r.out.printf("info %s  white=%+.2f\n", ev.Eval.Display(), ev.Eval.WhiteChances(whiteToMove))
	}
}
