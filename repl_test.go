package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"uciboard/analyze"
	"uciboard/engine"
	"uciboard/enginetest"
	"uciboard/fen"
	"uciboard/history"
)

func TestMain(m *testing.M) {
	enginetest.Main()
	os.Exit(m.Run())
}

func startREPL(t *testing.T) (*repl, *bytes.Buffer) {
	t.Helper()

	path, err := enginetest.Path()
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(enginetest.EnvLog, filepath.Join(t.TempDir(), "engine.log"))
	t.Setenv(enginetest.EnvQuirks, "")

	a := analyze.New(zerolog.Nop(), analyze.DefaultOptions(), nil)
	if err := a.StartEngine(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Shutdown)

	var out bytes.Buffer
	return newREPL(a, &out), &out
}

func TestREPL_PlayAndNavigate(t *testing.T) {
	// arrange
	r, out := startREPL(t)
	ctx := context.Background()

	// act
	for _, line := range []string{"move e2e4", "move e7e5", "move g1f3", "back", "back"} {
		if err := r.exec(ctx, line); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}

	// assert
	if r.h.Index() != 1 || r.h.Len() != 3 {
		t.Errorf("index %d of %d", r.h.Index(), r.h.Len())
	}
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	if r.h.FEN() != want {
		t.Errorf("\nwant: %s\ngot:  %s", want, r.h.FEN())
	}
	if !strings.Contains(out.String(), "Nf3\n") {
		t.Errorf("SAN not printed:\n%s", out.String())
	}

	if err := r.exec(ctx, "moves"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out.String(), "1. e4 e5 2. Nf3\n") {
		t.Errorf("movetext, got:\n%s", out.String())
	}
}

func TestREPL_IllegalMove(t *testing.T) {
	// arrange
	r, _ := startREPL(t)

	// act
	err := r.exec(context.Background(), "move e2e5")

	// assert
	if !errors.Is(err, analyze.ErrIllegalMove) {
		t.Errorf("want ErrIllegalMove, got: %v", err)
	}
	if r.h.Len() != 0 {
		t.Error("illegal move was recorded")
	}
}

func TestREPL_AnalyzeFollowsNavigation(t *testing.T) {
	// arrange
	r, _ := startREPL(t)
	ctx := context.Background()
	for _, line := range []string{"move d2d4", "move d7d5", "analyze"} {
		if err := r.exec(ctx, line); err != nil {
			t.Fatal(err)
		}
	}

	// act
	if err := r.exec(ctx, "first"); err != nil {
		t.Fatal(err)
	}

	// assert
	deadline := time.Now().Add(3 * time.Second)
	for r.a.CurrentFEN() != fen.StartPos {
		if time.Now().After(deadline) {
			t.Fatalf("analysis did not follow to the start, at: '%s'", r.a.CurrentFEN())
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := r.exec(ctx, "stop"); err != nil {
		t.Fatal(err)
	}
	if r.a.Analyzing() {
		t.Error("analysis should be stopped")
	}
}

func TestREPL_Commands(t *testing.T) {
	r, _ := startREPL(t)
	ctx := context.Background()

	if err := r.exec(ctx, "fen 8/8/8/8/8/8/8/K6k w - -"); err != nil {
		t.Fatal(err)
	}
	if r.h.FEN() != "8/8/8/8/8/8/8/K6k w - - 0 1" {
		t.Errorf("fen, got: %s", r.h.FEN())
	}
	if err := r.exec(ctx, "fen nonsense"); !errors.Is(err, fen.ErrInvalidFEN) {
		t.Errorf("want ErrInvalidFEN, got: %v", err)
	}
	if err := r.exec(ctx, "new"); err != nil || r.h.FEN() != fen.StartPos {
		t.Errorf("new, got: %v %s", err, r.h.FEN())
	}
	if err := r.exec(ctx, "option MultiPV 2"); err != nil {
		t.Errorf("option: %v", err)
	}
	if err := r.exec(ctx, "bogus"); err == nil {
		t.Error("unknown command should fail")
	}
	if err := r.exec(ctx, "quit"); !errors.Is(err, errQuit) {
		t.Errorf("want errQuit, got: %v", err)
	}
	if err := r.exec(ctx, "   "); err != nil {
		t.Errorf("blank line: %v", err)
	}
}

func TestMovetext_BlackToMove(t *testing.T) {
	h, err := history.New("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []string{"c7c5", "g1f3"} {
		if _, err := h.Push(m); err != nil {
			t.Fatal(err)
		}
	}

	if got := movetext(h); got != "1... c5 2. Nf3" {
		t.Errorf("got: '%s'", got)
	}
}

func TestPrintEvals_NoAnalysis(t *testing.T) {
	// arrange
	a := analyze.New(zerolog.Nop(), analyze.DefaultOptions(), nil)
	var out bytes.Buffer
	r := newREPL(a, &out)
	events := make(chan engine.Event, 1)
	events <- engine.Event{Kind: engine.KindInfo, Search: 1, Eval: engine.Eval{Depth: 3, PV: []string{"e2e4"}}}
	close(events)

	// act
	r.printEvals(events)

	// assert
	if out.Len() != 0 {
		t.Errorf("nothing is analyzed, got:\n%s", out.String())
	}
}
