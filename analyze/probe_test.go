package analyze

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"uciboard/fen"
)

func TestIsLegal(t *testing.T) {
	// arrange
	a, logPath := startAnalyzer(t, "", nil)
	ctx := context.Background()

	cases := []struct {
		fen  string
		move string
		want bool
	}{
		{fen: fen.StartPos, move: "e2e4", want: true},
		{fen: fen.StartPos, move: "e2e5", want: false},
		{fen: fen.StartPos, move: "E2E4", want: true},
		{fen: fen.StartPos, move: "g1f3", want: true},
		{fen: fen.StartPos, move: "e1g1", want: false},
		{fen: fen.StartPos, move: "e2", want: false},
		{fen: fen.StartPos, move: "e2e4 d2d4", want: false},
		{fen: "8/4P3/8/8/8/8/k7/7K w - - 0 1", move: "e7e8q", want: true},
		{fen: "8/4P3/8/8/8/8/k7/7K w - - 0 1", move: "e7e8n", want: true},
		{fen: "8/8/8/8/3pP3/8/8/k6K b - e3 0 1", move: "d4e3", want: true},
		{fen: "8/8/8/8/3pP3/8/8/k6K b - - 0 1", move: "d4e3", want: false},
		// stalemated side has no moves at all
		{fen: "k7/2Q5/1K6/8/8/8/8/8 b - - 0 1", move: "a8b8", want: false},
	}

	// act / assert
	for _, c := range cases {
		if got := a.IsLegal(ctx, c.fen, c.move); got != c.want {
			t.Errorf("'%s' in '%s', want: %v got: %v", c.move, c.fen, c.want, got)
		}
	}

	var probes int
	for _, line := range commands(t, logPath) {
		if strings.HasPrefix(line, "go depth 1 searchmoves ") {
			probes++
		}
	}
	if probes != len(cases)-2 {
		t.Errorf("malformed moves must not reach the engine, probes: %d", probes)
	}
}

func TestIsLegal_NoEngine(t *testing.T) {
	a := New(zerolog.Nop(), DefaultOptions(), nil)
	if a.IsLegal(context.Background(), fen.StartPos, "e2e4") {
		t.Error("probe without an engine must fail safe")
	}
}

func TestIsLegal_Unanswered(t *testing.T) {
	// arrange
	path, _ := fakeEngine(t, "no-readyok")
	opts := DefaultOptions()
	opts.ReadyTimeout = 50 * time.Millisecond
	a := New(zerolog.Nop(), opts, nil)

	// act
	err := a.StartEngine(context.Background(), path)

	// assert
	if err == nil {
		t.Fatal("start should fail without readyok")
	}
	if a.IsLegal(context.Background(), fen.StartPos, "e2e4") {
		t.Error("probe of a failed engine must fail safe")
	}
}

func TestApplyMove(t *testing.T) {
	// arrange
	a, _ := startAnalyzer(t, "", nil)
	ctx := context.Background()

	// act
	got, err := a.ApplyMove(ctx, fen.StartPos, "e2e4")

	// assert
	if err != nil {
		t.Fatal(err)
	}
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	if got != want {
		t.Errorf("\nwant: %s\ngot:  %s", want, got)
	}

	got, err = a.ApplyMove(ctx, "8/8/8/8/3p4/8/4P3/k6K w - - 0 1", "e2e4")
	if err != nil {
		t.Fatal(err)
	}
	want = "8/8/8/8/3pP3/8/8/k6K b - e3 0 1"
	if got != want {
		t.Errorf("\nwant: %s\ngot:  %s", want, got)
	}
}

func TestApplyMove_Rejected(t *testing.T) {
	// arrange
	a, _ := startAnalyzer(t, "", nil)
	ctx := context.Background()

	// act
	_, illegal := a.ApplyMove(ctx, fen.StartPos, "e2e5")
	_, invalid := a.ApplyMove(ctx, "rnbqkbnr/pppppppp/9/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", "e2e4")

	// assert
	if !errors.Is(illegal, ErrIllegalMove) {
		t.Errorf("want ErrIllegalMove, got: %v", illegal)
	}
	var moveErr *IllegalMoveError
	if !errors.As(illegal, &moveErr) || moveErr.Move != "e2e5" || moveErr.FEN != fen.StartPos {
		t.Errorf("want *IllegalMoveError, got: %#v", illegal)
	}
	if !errors.Is(invalid, fen.ErrInvalidFEN) {
		t.Errorf("want ErrInvalidFEN, got: %v", invalid)
	}
}

func TestIsLegal_ResumesAnalysis(t *testing.T) {
	// arrange
	a, _ := startAnalyzer(t, "", nil)
	a.RequestAnalysis(fen.StartPos)
	eventually(t, "analysis", func() bool { return a.CurrentFEN() == fen.StartPos })

	// act
	legal := a.IsLegal(context.Background(), fen.StartPos, "d2d4")

	// assert
	if !legal {
		t.Error("d2d4 should be legal")
	}
	eventually(t, "analysis to resume", func() bool { return a.CurrentFEN() == fen.StartPos })
	if !a.Analyzing() {
		t.Error("analysis session should still be active")
	}
}

func TestIsLegal_LateBestmoveOfLostSearch(t *testing.T) {
	// arrange
	path, logPath := fakeEngine(t, "slow-bestmove")
	opts := DefaultOptions()
	opts.BestmoveTimeout = 50 * time.Millisecond
	a := New(zerolog.Nop(), opts, nil)
	if err := a.StartEngine(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Shutdown)

	a.RequestAnalysis(fen.StartPos)
	eventually(t, "go infinite", func() bool {
		got := commands(t, logPath)
		return len(got) > 0 && got[len(got)-1] == "go infinite"
	})

	// the analysis answers stop with this move, long after it was given up on
	late := chess.NewGame().Position().ValidMoves()[0].String()
	afterE4 := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"

	// act
	stale := a.IsLegal(context.Background(), afterE4, late)
	legal := a.IsLegal(context.Background(), afterE4, "e7e5")

	// assert
	if stale {
		t.Errorf("'%s' is a white move, black is to move", late)
	}
	if !legal {
		t.Error("e7e5 should be legal")
	}
}
