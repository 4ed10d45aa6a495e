package analyze

import (
	"errors"

	"uciboard/engine"
)

// record follows the session's events. It stores each new depth of the
// principal line of the running analysis in the cache, and disposes the
// session when the engine dies on its own.
func (a *Analyzer) record(s *engine.Session, events <-chan engine.Event) {
	var search, depth int

	for ev := range events {
		if ev.Kind != engine.KindInfo || len(ev.Eval.PV) == 0 || ev.Eval.MultiPV > 1 {
			continue
		}
		if ev.Eval.UpperBound || ev.Eval.LowerBound {
			continue
		}

		a.mtx.Lock()
		fenStr, current := a.analysisFEN, a.analysisSearch
		a.mtx.Unlock()

		if fenStr == "" || ev.Search != current {
			continue
		}
		if ev.Search != search {
			search, depth = ev.Search, 0
		}
		if ev.Eval.Depth <= depth {
			continue
		}
		depth = ev.Eval.Depth

		if a.cache == nil {
			continue
		}
		if _, err := a.cache.Put(fenStr, ev.Eval); err != nil {
			a.log.Warn().Err(err).Msg("record eval")
		}
	}

	if err := s.Err(); errors.Is(err, engine.ErrUnexpectedEOF) {
		a.log.Error().Err(err).Msg("engine exited unexpectedly")

		a.mtx.Lock()
		if a.session == s {
			a.session, a.unsubscribe = nil, nil
			a.analysisFEN, a.analysisSearch = "", 0
		}
		a.mtx.Unlock()

		s.Dispose()
	}
}
