package engine

import (
	"math"
	"testing"
)

func TestEval_WinningChances(t *testing.T) {
	cases := []struct {
		eval Eval
		want float64
	}{
		{eval: Eval{CP: 0}, want: 0},
		{eval: Eval{CP: 5000}, want: 2/(1+math.Exp(-4)) - 1},
		{eval: Eval{CP: -5000}, want: 2/(1+math.Exp(4)) - 1},
		{eval: Eval{Mate: 1}, want: 2/(1+math.Exp(-0.004*2000)) - 1},
		{eval: Eval{Mate: -15}, want: 2/(1+math.Exp(0.004*1100)) - 1},
		{eval: Eval{Mated: true}, want: -1},
	}

	for _, c := range cases {
		got := c.eval.WinningChances()
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("%+v want: %f got: %f", c.eval, c.want, got)
		}
	}

	e := Eval{CP: 120}
	if e.WhiteChances(false) != -e.WhiteChances(true) {
		t.Error("WhiteChances should flip with the side to move")
	}
}
