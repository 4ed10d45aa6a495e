package engine

import "math"

func rawWinningChances(cp float64) float64 {
	return 2/(1+math.Exp(-0.004*cp)) - 1
}

func cpWinningChances(cp int) float64 {
	return rawWinningChances(math.Min(math.Max(-1000, float64(cp)), 1000))
}

func mateWinningChances(mate int) float64 {
	cp := (21 - math.Min(10, math.Abs(float64(mate)))) * 100
	if mate < 0 {
		cp = -cp
	}
	return rawWinningChances(cp)
}

// WinningChances maps the score onto [-1, 1] from the point of view of the
// side to move.
// 1  infinitely winning
// -1 infinitely losing
func (e Eval) WinningChances() float64 {
	if e.Mated {
		return -1
	}
	if e.Mate != 0 {
		return mateWinningChances(e.Mate)
	}
	return cpWinningChances(e.CP)
}

// WhiteChances is WinningChances seen from White, given whether White is to
// move in the analyzed position.
func (e Eval) WhiteChances(whiteToMove bool) float64 {
	if whiteToMove {
		return e.WinningChances()
	}
	return -e.WinningChances()
}
