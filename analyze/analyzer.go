// Package analyze drives one engine session on behalf of a board front end.
// It keeps an infinite search pinned to the latest requested position, asks
// the engine whether moves are legal, and makes sure no two command sequences
// ever interleave on the wire.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"uciboard/engine"
	"uciboard/evalstore"
)

const (
	recordBuffer = 1024
	quitWait     = time.Second
)

// Cache stores evaluations recorded during analysis.
type Cache interface {
	Put(fen string, eval engine.Eval) (bool, error)
	Get(fen string) (evalstore.Entry, bool, error)
}

type Analyzer struct {
	log   zerolog.Logger
	cache Cache

	// opMtx is the engine-operation lock. Every command sequence that touches
	// search state runs under it from its first command to its last.
	opMtx sync.Mutex

	mtx            sync.Mutex
	opts           Options
	session        *engine.Session
	unsubscribe    func()
	worker         *worker
	analysisFEN    string // position of the running infinite search
	analysisSearch int

	// request is the latest analysis request, reqSeq counts requests and
	// served is the reqSeq the running search was started for
	reqMtx  sync.Mutex
	request string
	reqSeq  int
	served  int
	wake    chan struct{}
}

// New creates an analyzer without an engine. cache may be nil.
func New(logger zerolog.Logger, opts Options, cache Cache) *Analyzer {
	return &Analyzer{
		log:   logger.With().Str("component", "analyze").Logger(),
		opts:  opts,
		cache: cache,
		wake:  make(chan struct{}, 1),
	}
}

func (a *Analyzer) currentSession() *engine.Session {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.session
}

func (a *Analyzer) options() Options {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.opts
}

// StartEngine launches the engine at path and waits for it to become ready.
// A missing uciok or readyok is fatal and the process is disposed. An engine
// that is already running is shut down first. ctx bounds the life of the
// process.
func (a *Analyzer) StartEngine(ctx context.Context, path string) error {
	a.Shutdown()

	a.opMtx.Lock()
	defer a.opMtx.Unlock()

	opts := a.options()

	s := engine.NewSession(path, a.log)
	if err := s.Start(ctx); err != nil {
		return err
	}

	if _, err := s.SendAndWait(ctx, "uci", "uciok", opts.UCIOKTimeout); err != nil {
		s.Dispose()
		return fmt.Errorf("start engine: %w", err)
	}

	for _, o := range opts.EngineOptions {
		if err := s.Send(o.Command()); err != nil {
			s.Dispose()
			return fmt.Errorf("start engine: %w", err)
		}
	}

	if _, err := s.SendAndWait(ctx, "isready", "readyok", opts.ReadyTimeout); err != nil {
		s.Dispose()
		return fmt.Errorf("start engine: %w", err)
	}

	events, cancel := s.Subscribe(recordBuffer)

	a.mtx.Lock()
	a.session = s
	a.unsubscribe = cancel
	a.mtx.Unlock()

	go a.record(s, events)

	a.log.Info().Str("path", path).Msg("engine ready")
	return nil
}

// stopAndSettle halts any running search and waits until the engine has
// drained its command queue. Timeouts are logged, never returned. The caller
// holds opMtx.
func (a *Analyzer) stopAndSettle(ctx context.Context, s *engine.Session, bestmoveTimeout, readyTimeout time.Duration) {
	a.mtx.Lock()
	a.analysisFEN, a.analysisSearch = "", 0
	a.mtx.Unlock()

	w := s.Expect("bestmove", engine.IsBestMove)
	defer w.Cancel()

	if err := s.Send("stop"); err != nil {
		a.log.Warn().Err(err).Msg("send stop")
		return
	}

	// engines that are not searching never answer stop
	var lost bool
	if bestmoveTimeout > 0 && s.Searching() {
		if _, err := w.Wait(ctx, bestmoveTimeout); err != nil {
			a.log.Warn().Err(err).Msg("stop not acknowledged")
			lost = errors.Is(err, engine.ErrProtocolTimeout)
		}
	}

	if _, err := s.SendAndWait(ctx, "isready", "readyok", readyTimeout); err != nil {
		a.log.Warn().Err(err).Msg("engine not ready after stop")
	}

	if lost {
		s.Resync()
	}
}

// ApplyEngineOptions sends options to the running engine and remembers them
// for the next start. A running analysis continues afterwards.
func (a *Analyzer) ApplyEngineOptions(ctx context.Context, options []EngineOption) error {
	a.opMtx.Lock()
	defer a.opMtx.Unlock()

	s := a.currentSession()
	if s == nil {
		return ErrNoEngine
	}

	a.mtx.Lock()
	a.opts.EngineOptions = mergeOptions(a.opts.EngineOptions, options)
	opts := a.opts
	a.mtx.Unlock()

	resume := a.Analyzing()
	a.stopAndSettle(ctx, s, opts.BestmoveTimeout, opts.ReadyTimeout)

	for _, o := range options {
		if err := s.Send(o.Command()); err != nil {
			return err
		}
	}
	if _, err := s.SendAndWait(ctx, "isready", "readyok", opts.ReadyTimeout); err != nil {
		a.log.Warn().Err(err).Msg("engine not ready after setoption")
	}

	if resume {
		a.resume()
	}
	return nil
}

func mergeOptions(current, changes []EngineOption) []EngineOption {
	merged := append([]EngineOption(nil), current...)
next:
	for _, c := range changes {
		for i := range merged {
			if merged[i].Name == c.Name {
				merged[i].Value = c.Value
				continue next
			}
		}
		merged = append(merged, c)
	}
	return merged
}

// NewGame tells the engine a new game starts from the initial position.
func (a *Analyzer) NewGame(ctx context.Context) error {
	a.opMtx.Lock()
	defer a.opMtx.Unlock()

	s := a.currentSession()
	if s == nil {
		return ErrNoEngine
	}

	opts := a.options()
	a.stopAndSettle(ctx, s, opts.BestmoveTimeout, opts.ReadyTimeout)

	if err := s.Send("ucinewgame"); err != nil {
		return err
	}
	if _, err := s.SendAndWait(ctx, "isready", "readyok", opts.ReadyTimeout); err != nil {
		return err
	}
	return s.Send("position startpos")
}

// Shutdown stops analysis, asks the engine to quit and disposes the process.
// It is safe to call without an engine.
func (a *Analyzer) Shutdown() {
	a.StopAnalysis()

	a.opMtx.Lock()
	defer a.opMtx.Unlock()

	a.mtx.Lock()
	s, unsubscribe := a.session, a.unsubscribe
	a.session, a.unsubscribe = nil, nil
	a.mtx.Unlock()

	if s == nil {
		return
	}
	if unsubscribe != nil {
		unsubscribe()
	}

	if err := s.Send("stop"); err != nil {
		a.log.Debug().Err(err).Msg("stop on shutdown")
	}
	if err := s.Send("quit"); err != nil {
		a.log.Debug().Err(err).Msg("quit on shutdown")
	}

	select {
	case <-s.Done():
	case <-time.After(quitWait):
		a.log.Warn().Msg("engine ignored quit")
	}
	s.Dispose()
}

// Alive reports whether an engine is running.
func (a *Analyzer) Alive() bool {
	s := a.currentSession()
	return s != nil && s.Alive()
}

// Subscribe returns the running engine's event stream. See
// engine.Session.Subscribe.
func (a *Analyzer) Subscribe(buffer int) (<-chan engine.Event, func(), error) {
	s := a.currentSession()
	if s == nil {
		return nil, nil, ErrNoEngine
	}
	events, cancel := s.Subscribe(buffer)
	return events, cancel, nil
}

// Cached returns the deepest evaluation recorded for the position.
func (a *Analyzer) Cached(fenStr string) (engine.Eval, bool) {
	if a.cache == nil {
		return engine.Eval{}, false
	}
	entry, ok, err := a.cache.Get(fenStr)
	if err != nil {
		a.log.Warn().Err(err).Msg("read eval cache")
		return engine.Eval{}, false
	}
	return entry.Eval, ok
}
