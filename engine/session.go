// Package engine runs a UCI chess engine as a child process and speaks the
// line protocol over its stdin and stdout.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const disposeWait = 2 * time.Second

// Session owns one engine process. Output is read by a single goroutine which
// resolves waiters and fans events out to subscribers; writes are serialized
// so concurrent callers never interleave partial commands.
type Session struct {
	path string
	log  zerolog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMtx sync.Mutex

	mtx      sync.Mutex
	started  bool
	finished bool // stdout reached EOF
	disposed bool
	exitErr  error
	waiters  []*Waiter
	subs     map[int]chan Event
	nextSub  int
	dropped  int

	// every "go" starts a search and every "bestmove" finishes the oldest one
	searchStarted  int
	searchFinished int
	lost           int // bestmoves given up on by Resync, discarded when they arrive

	done        chan struct{}
	disposeOnce sync.Once
}

func NewSession(path string, logger zerolog.Logger) *Session {
	return &Session{
		path: path,
		log:  logger.With().Str("component", "engine").Logger(),
		subs: make(map[int]chan Event),
		done: make(chan struct{}),
	}
}

func (s *Session) Path() string { return s.path }

// Start launches the engine with its working directory set to the directory
// holding the executable.
func (s *Session) Start(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.started {
		return fmt.Errorf("engine: session for '%s' already started", s.path)
	}

	binary, err := exec.LookPath(s.path)
	if err != nil {
		return &LaunchError{Path: s.path, Err: err}
	}
	if abs, err := filepath.Abs(binary); err == nil {
		binary = abs
	}

	cmd := exec.CommandContext(ctx, binary)
	cmd.Dir = filepath.Dir(binary)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &LaunchError{Path: s.path, Err: err}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &LaunchError{Path: s.path, Err: err}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &LaunchError{Path: s.path, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &LaunchError{Path: s.path, Err: err}
	}

	s.cmd = cmd
	s.stdin = stdin
	s.started = true

	s.log.Info().Str("path", binary).Int("pid", cmd.Process.Pid).Msg("engine started")

	var readers sync.WaitGroup
	readers.Add(2)

	// stdout loop
	go func() {
		defer readers.Done()
		s.readLoop(stdout)
	}()

	// stderr loop
	go func() {
		defer readers.Done()
		r := bufio.NewScanner(stderr)
		for r.Scan() {
			s.log.Warn().Str("line", r.Text()).Msg("engine stderr")
		}
	}()

	go func() {
		readers.Wait()
		err := cmd.Wait()

		s.mtx.Lock()
		disposed := s.disposed
		s.mtx.Unlock()

		if err != nil && !disposed {
			s.log.Error().Err(err).Msg("engine exited")
		} else {
			s.log.Info().Msg("engine exited")
		}
		close(s.done)
	}()

	return nil
}

func (s *Session) readLoop(stdout io.Reader) {
	r := bufio.NewScanner(stdout)
	r.Buffer(make([]byte, 64*1024), 1024*1024)
	for r.Scan() {
		line := strings.TrimRight(r.Text(), "\r")
		if showEngineOutput(line) {
			s.log.Debug().Msgf("<- %s", line)
		}
		s.dispatch(parseEvent(line))
	}
	if err := r.Err(); err != nil {
		s.log.Warn().Err(err).Msg("engine stdout")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.finished = true
	s.exitErr = ErrUnexpectedEOF
	if s.disposed {
		s.exitErr = ErrClosed
	}
	for _, w := range s.waiters {
		w.resolve(Event{}, s.exitErr)
	}
	s.waiters = nil
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Session) dispatch(ev Event) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if ev.Kind == KindBestMove && s.lost > 0 {
		s.lost--
		s.log.Warn().Str("line", ev.Line).Msg("late bestmove discarded")
		return
	}

	ev.Search = s.searchFinished + 1
	if ev.Kind == KindBestMove && s.searchFinished < s.searchStarted {
		s.searchFinished++
	}

	kept := s.waiters[:0]
	for _, w := range s.waiters {
		if w.match(ev) {
			w.resolve(ev, nil)
			continue
		}
		kept = append(kept, w)
	}
	for i := len(kept); i < len(s.waiters); i++ {
		s.waiters[i] = nil
	}
	s.waiters = kept

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.dropped++
		}
	}
}

// Send writes one command line. It is a no-op when the session was never
// started.
func (s *Session) Send(command string) error {
	s.mtx.Lock()
	stdin, finished, exitErr := s.stdin, s.finished, s.exitErr
	s.mtx.Unlock()

	if stdin == nil {
		return nil
	}
	if finished {
		return exitErr
	}

	s.writeMtx.Lock()
	defer s.writeMtx.Unlock()

	isGo := command == "go" || strings.HasPrefix(command, "go ")
	if isGo {
		s.mtx.Lock()
		s.searchStarted++
		s.mtx.Unlock()
	}

	s.log.Debug().Msgf("-> %s", command)

	if _, err := io.WriteString(stdin, command+"\n"); err != nil {
		if isGo {
			s.mtx.Lock()
			s.searchStarted--
			s.mtx.Unlock()
		}
		return fmt.Errorf("engine: write '%s': %w", command, err)
	}
	return nil
}

// Expect installs a one-shot waiter for the next event accepted by match.
// Install it before sending the command that provokes the answer.
func (s *Session) Expect(desc string, match func(Event) bool) *Waiter {
	w := &Waiter{
		s:     s,
		desc:  desc,
		match: match,
		ch:    make(chan waitResult, 1),
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	switch {
	case !s.started:
		w.resolve(Event{}, ErrNotStarted)
	case s.finished:
		w.resolve(Event{}, s.exitErr)
	default:
		s.waiters = append(s.waiters, w)
	}
	return w
}

// WaitFor blocks until a line containing token arrives or timeout elapses.
func (s *Session) WaitFor(ctx context.Context, token string, timeout time.Duration) (string, error) {
	ev, err := s.Expect(token, Contains(token)).Wait(ctx, timeout)
	return ev.Line, err
}

// SendAndWait sends command and waits for a line containing token.
func (s *Session) SendAndWait(ctx context.Context, command, token string, timeout time.Duration) (string, error) {
	w := s.Expect(token, Contains(token))
	if err := s.Send(command); err != nil {
		w.Cancel()
		return "", err
	}
	ev, err := w.Wait(ctx, timeout)
	return ev.Line, err
}

// Subscribe returns a channel receiving every event read after the call. A
// subscriber that falls behind by more than buffer events misses events. The
// channel is closed when the engine output ends or cancel is called.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.finished {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.mtx.Lock()
		defer s.mtx.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

// Searching reports whether a "go" has been sent whose "bestmove" has not
// been read yet.
func (s *Session) Searching() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.searchStarted > s.searchFinished
}

// Searches returns the number of the most recently started search.
func (s *Session) Searches() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.searchStarted
}

// Resync gives up on searches whose bestmove has not arrived. Their bestmoves
// are dropped if they show up later, so they are never taken for the answer
// of a newer search.
func (s *Session) Resync() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if n := s.searchStarted - s.searchFinished; n > 0 {
		s.log.Warn().Int("lost", n).Msg("bestmove never arrived")
		s.lost += n
		s.searchFinished = s.searchStarted
	}
}

// Alive reports whether the process is running and its output is open.
func (s *Session) Alive() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.started && !s.finished && !s.disposed
}

// Err returns why the output ended, or nil while it is open.
func (s *Session) Err() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.exitErr
}

// Done is closed once the process has exited and been reaped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Dispose kills the process if it is still running and releases the pipes.
// It is safe to call more than once.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		s.mtx.Lock()
		s.disposed = true
		cmd, stdin, started, dropped := s.cmd, s.stdin, s.started, s.dropped
		s.mtx.Unlock()

		if !started {
			close(s.done)
			return
		}

		if dropped > 0 {
			s.log.Debug().Int("dropped", dropped).Msg("events dropped by slow subscribers")
		}

		_ = stdin.Close()
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				s.log.Warn().Err(err).Msg("kill engine")
			}
		}

		select {
		case <-s.done:
		case <-time.After(disposeWait):
			s.log.Warn().Msg("engine did not exit after kill")
		}
	})
}

func showEngineOutput(line string) bool {
	parts := strings.Fields(line)
	if len(parts) > 3 && parts[0] == "info" && parts[1] == "depth" && parts[3] == "currmove" {
		return false
	}
	return true
}
