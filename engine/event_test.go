package engine

import (
	"reflect"
	"testing"
)

func TestParseEval(t *testing.T) {
	cases := []struct {
		line   string
		want   Eval
		wantOK bool
	}{
		{
			line: "info depth 20 seldepth 28 multipv 1 score cp 35 nodes 3052829 nps 1234567 hashfull 512 tbhits 0 time 2473 pv e2e4 e7e5 g1f3",
			want: Eval{
				UCIMove:  "e2e4",
				Depth:    20,
				SelDepth: 28,
				MultiPV:  1,
				CP:       35,
				HasScore: true,
				Nodes:    3052829,
				NPS:      1234567,
				Time:     2473,
				PV:       []string{"e2e4", "e7e5", "g1f3"},
			},
			wantOK: true,
		},
		{
			line: "info depth 12 seldepth 14 multipv 2 score mate -3 lowerbound nodes 100 pv h7h8q",
			want: Eval{
				UCIMove:    "h7h8q",
				Depth:      12,
				SelDepth:   14,
				MultiPV:    2,
				Mate:       -3,
				HasScore:   true,
				LowerBound: true,
				Nodes:      100,
				PV:         []string{"h7h8q"},
			},
			wantOK: true,
		},
		{
			line:   "info depth 0 score mate 0",
			want:   Eval{Mated: true, HasScore: true},
			wantOK: true,
		},
		{
			line:   "info depth 21 currmove e2e4 currmovenumber 1",
			want:   Eval{Depth: 21},
			wantOK: true,
		},
		{
			line:   "info string NNUE evaluation using nn-5af11540bbfe.nnue enabled",
			wantOK: false,
		},
		{
			line:   "info nodes 10 nps 100",
			wantOK: false,
		},
		{
			line:   "bestmove e2e4",
			wantOK: false,
		},
		{
			line: "info depth 3 score cp -12 upperbound pv d2d4 refutation d2d4 d7d5",
			want: Eval{
				UCIMove:    "d2d4",
				Depth:      3,
				CP:         -12,
				HasScore:   true,
				UpperBound: true,
				PV:         []string{"d2d4"},
			},
			wantOK: true,
		},
	}

	for _, c := range cases {
		got, ok := ParseEval(c.line)
		if ok != c.wantOK {
			t.Errorf("'%s' ok, want: %v got: %v", c.line, c.wantOK, ok)
			continue
		}
		if !ok {
			continue
		}
		if !reflect.DeepEqual(c.want, got) {
			t.Errorf("'%s'\nwant: %+v\ngot:  %+v", c.line, c.want, got)
		}
	}
}

func TestParseEvent(t *testing.T) {
	cases := []struct {
		line     string
		kind     Kind
		bestMove string
		ponder   string
	}{
		{line: "uciok", kind: KindUCIOK},
		{line: "readyok", kind: KindReadyOK},
		{line: "bestmove e2e4 ponder e7e5", kind: KindBestMove, bestMove: "e2e4", ponder: "e7e5"},
		{line: "bestmove (none)", kind: KindBestMove, bestMove: "(none)"},
		{line: "info depth 1 score cp 20 pv e2e4", kind: KindInfo},
		{line: "info string hello", kind: KindRaw},
		{line: "id name Stockfish 16", kind: KindRaw},
		{line: "", kind: KindRaw},
	}

	for _, c := range cases {
		ev := parseEvent(c.line)
		if ev.Kind != c.kind {
			t.Errorf("'%s' kind, want: %v got: %v", c.line, c.kind, ev.Kind)
		}
		if ev.BestMove != c.bestMove || ev.Ponder != c.ponder {
			t.Errorf("'%s' bestmove/ponder, want: %s/%s got: %s/%s", c.line, c.bestMove, c.ponder, ev.BestMove, ev.Ponder)
		}
		if ev.Line != c.line {
			t.Errorf("line, want: '%s' got: '%s'", c.line, ev.Line)
		}
	}
}

func TestEval_Display(t *testing.T) {
	cases := []struct {
		eval Eval
		want string
	}{
		{
			eval: Eval{Depth: 20, CP: 35, HasScore: true, NPS: 1234567, PV: []string{"e2e4", "e7e5"}},
			want: "d=20  cp=+35  nps=1,234,567  pv e2e4 e7e5",
		},
		{
			eval: Eval{Depth: 9, Mate: -2, HasScore: true, PV: []string{"a1a2"}},
			want: "d=9  mate=-2  pv a1a2",
		},
		{
			eval: Eval{Mated: true, HasScore: true},
			want: "d=-  mated",
		},
	}

	for _, c := range cases {
		if got := c.eval.Display(); got != c.want {
			t.Errorf("want: '%s' got: '%s'", c.want, got)
		}
	}
}

func TestEval_Score(t *testing.T) {
	mateIn2 := Eval{Mate: 2}
	mateIn5 := Eval{Mate: 5}
	matedIn3 := Eval{Mate: -3}
	plus := Eval{CP: 150}

	if !(mateIn2.Score() > mateIn5.Score() && mateIn5.Score() > plus.Score() && plus.Score() > matedIn3.Score()) {
		t.Errorf("ordering, got: %d %d %d %d", mateIn2.Score(), mateIn5.Score(), plus.Score(), matedIn3.Score())
	}
}
