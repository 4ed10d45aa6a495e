package engine

import (
	"context"
	"sync"
	"time"
)

type waitResult struct {
	ev  Event
	err error
}

// Waiter is a pending one-shot wait for a matching event.
type Waiter struct {
	s     *Session
	desc  string
	match func(Event) bool
	ch    chan waitResult
	once  sync.Once
}

func (w *Waiter) resolve(ev Event, err error) {
	w.once.Do(func() {
		w.ch <- waitResult{ev: ev, err: err}
	})
}

// Wait blocks until the event arrives, the timeout elapses or ctx is done.
// A zero or negative timeout waits only for ctx.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) (Event, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-w.ch:
		return r.ev, r.err
	case <-expired:
		w.Cancel()
		if r, ok := w.poll(); ok {
			return r.ev, r.err
		}
		return Event{}, &TimeoutError{Token: w.desc, After: timeout}
	case <-ctx.Done():
		w.Cancel()
		if r, ok := w.poll(); ok {
			return r.ev, r.err
		}
		return Event{}, ctx.Err()
	}
}

func (w *Waiter) poll() (waitResult, bool) {
	select {
	case r := <-w.ch:
		return r, true
	default:
		return waitResult{}, false
	}
}

// Cancel removes the waiter so later lines no longer resolve it.
func (w *Waiter) Cancel() {
	s := w.s
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for i, other := range s.waiters {
		if other == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}
