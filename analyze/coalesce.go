package analyze

import (
	"context"

	"uciboard/engine"
	"uciboard/fen"
)

type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// RequestAnalysis points the infinite search at fenStr and returns at once.
// Requests arriving faster than the engine can restart replace each other;
// a request superseded before the worker reaches it is never sent. A FEN that
// does not parse is logged and dropped.
func (a *Analyzer) RequestAnalysis(fenStr string) {
	fenStr = fen.Normalize(fenStr)
	if _, err := fen.Parse(fenStr); err != nil {
		a.log.Warn().Err(err).Msg("analysis request dropped")
		return
	}

	// under mtx so StopAnalysis sees both the request and its worker or neither
	a.mtx.Lock()
	a.reqMtx.Lock()
	a.request = fenStr
	a.reqSeq++
	a.reqMtx.Unlock()
	if a.worker == nil {
		a.worker = a.startWorker()
	}
	a.mtx.Unlock()

	a.signal()
}

// resume has the worker restart the latest request after a sequence that had
// to stop the search. A request made in the meantime is newer and wins.
func (a *Analyzer) resume() {
	a.reqMtx.Lock()
	a.served = 0
	a.reqMtx.Unlock()

	a.signal()
}

func (a *Analyzer) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// take returns the latest request unless the engine is already analyzing it.
func (a *Analyzer) take() (string, bool) {
	a.reqMtx.Lock()
	defer a.reqMtx.Unlock()

	if a.request == "" || a.served == a.reqSeq {
		return "", false
	}
	a.served = a.reqSeq
	return a.request, true
}

func (a *Analyzer) startWorker() *worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.wake:
				if ctx.Err() != nil {
					// hand the wakeup to the worker that replaced this one
					a.signal()
					return
				}
				a.restart(ctx)
			}
		}
	}()

	return w
}

// restart replaces the running search with an infinite search of the latest
// request, including one made while the old search was being stopped.
func (a *Analyzer) restart(ctx context.Context) {
	a.opMtx.Lock()
	defer a.opMtx.Unlock()

	if ctx.Err() != nil {
		return
	}
	fenStr, ok := a.take()
	if !ok {
		return
	}

	s := a.currentSession()
	if s == nil {
		a.log.Warn().Str("fen", fenStr).Msg("analysis requested without an engine")
		return
	}

	opts := a.options()
	a.stopAndSettle(ctx, s, opts.BestmoveTimeout, opts.ReadyTimeout)

	if ctx.Err() != nil {
		return
	}
	if newer, ok := a.take(); ok {
		fenStr = newer
	}

	a.startSearch(s, fenStr)
}

// startSearch sends position and go infinite. The caller holds opMtx.
func (a *Analyzer) startSearch(s *engine.Session, fenStr string) {
	search := s.Searches() + 1

	a.mtx.Lock()
	a.analysisFEN, a.analysisSearch = fenStr, search
	a.mtx.Unlock()

	if err := s.Send("position fen " + fenStr); err != nil {
		a.log.Warn().Err(err).Msg("send position")
		a.clearAnalysis()
		return
	}
	if err := s.Send("go infinite"); err != nil {
		a.log.Warn().Err(err).Msg("send go")
		a.clearAnalysis()
		return
	}

	a.log.Debug().Str("fen", fenStr).Int("search", search).Msg("analysis started")
}

func (a *Analyzer) clearAnalysis() {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.analysisFEN, a.analysisSearch = "", 0
}

// StopAnalysis ends the analysis session: the worker exits, pending requests
// are dropped and the running search is stopped and settled. A request made
// while StopAnalysis runs starts a new session.
func (a *Analyzer) StopAnalysis() {
	a.mtx.Lock()
	w := a.worker
	a.worker = nil
	if w != nil {
		w.cancel()
	}
	a.reqMtx.Lock()
	a.request, a.served = "", a.reqSeq
	a.reqMtx.Unlock()
	a.mtx.Unlock()

	if w != nil {
		<-w.done
	}

	a.opMtx.Lock()
	defer a.opMtx.Unlock()

	if a.Analyzing() {
		return
	}
	if s := a.currentSession(); s != nil && s.Alive() {
		opts := a.options()
		a.stopAndSettle(context.Background(), s, opts.BestmoveTimeout, opts.ReadyTimeout)
	}
}

// Analyzing reports whether an analysis session is active.
func (a *Analyzer) Analyzing() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.worker != nil
}

// CurrentFEN returns the position the engine is analyzing, or "" when no
// infinite search is running.
func (a *Analyzer) CurrentFEN() string {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.analysisFEN
}
