package analyze

import (
	"context"
	"strings"

	"uciboard/engine"
	"uciboard/fen"
)

// IsLegal asks the engine whether move can be played from the position by
// restricting a depth 1 search to that single move. A timeout, an empty
// answer or a missing engine all count as illegal. A running analysis is
// resumed afterwards.
func (a *Analyzer) IsLegal(ctx context.Context, fenStr, move string) bool {
	if !wellFormed(move) {
		return false
	}

	a.opMtx.Lock()
	defer a.opMtx.Unlock()

	s := a.currentSession()
	if s == nil || !s.Alive() {
		return false
	}

	opts := a.options()
	resume := a.Analyzing()

	a.stopAndSettle(ctx, s, opts.BestmoveTimeout, opts.ReadyTimeout)
	legal := a.probe(ctx, s, fen.Normalize(fenStr), move, opts)

	if resume {
		a.resume()
	}
	return legal
}

func (a *Analyzer) probe(ctx context.Context, s *engine.Session, fenStr, move string, opts Options) bool {
	// only the bestmove of this search answers the probe
	search := s.Searches() + 1
	w := s.Expect("bestmove", func(ev engine.Event) bool {
		return ev.Kind == engine.KindBestMove && ev.Search == search
	})
	defer w.Cancel()

	if err := s.Send("position fen " + fenStr); err != nil {
		a.log.Warn().Err(err).Msg("probe position")
		return false
	}
	if err := s.Send("go depth 1 searchmoves " + move); err != nil {
		a.log.Warn().Err(err).Msg("probe go")
		return false
	}

	ev, err := w.Wait(ctx, opts.ProbeTimeout)
	if err != nil {
		a.log.Warn().Err(err).Str("move", move).Msg("probe unanswered")
		// leave the engine idle for whoever runs next
		a.stopAndSettle(ctx, s, opts.BestmoveTimeout, opts.ReadyTimeout)
		return false
	}

	legal := ev.BestMove != "" && strings.EqualFold(ev.BestMove, move)
	a.log.Debug().Str("move", move).Str("bestmove", ev.BestMove).Bool("legal", legal).Msg("probe")
	return legal
}

func wellFormed(move string) bool {
	if len(move) != 4 && len(move) != 5 {
		return false
	}
	return !strings.ContainsAny(move, " \t\r\n")
}

// ApplyMove checks move with the engine and applies it to the position,
// returning the resulting FEN.
func (a *Analyzer) ApplyMove(ctx context.Context, fenStr, move string) (string, error) {
	pos, err := fen.Parse(fenStr)
	if err != nil {
		return "", err
	}

	if a.currentSession() == nil {
		return "", ErrNoEngine
	}

	if !a.IsLegal(ctx, fenStr, move) {
		return "", &IllegalMoveError{FEN: fenStr, Move: move}
	}

	if err := pos.ApplyUCIMove(strings.ToLower(move)); err != nil {
		return "", &ApplyError{FEN: fenStr, Move: move, Err: err}
	}
	return pos.FEN(), nil
}
