// Package enginetest provides a scripted UCI engine for tests. The engine runs
// inside the test binary itself: TestMain calls Main, which takes over the
// process when the binary is re-executed as an engine.
package enginetest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/notnil/chess"
)

const (
	EnvEnable = "UCIBOARD_FAKE_ENGINE"
	EnvLog    = "UCIBOARD_FAKE_ENGINE_LOG"
	EnvQuirks = "UCIBOARD_FAKE_ENGINE_QUIRKS"
)

// Quirks make the fake misbehave in the ways real engines do.
type Quirks struct {
	NoUCIOK      bool // never answer "uci"
	NoReadyOK    bool // never answer "isready"
	NoBestMove   bool // never answer "stop"
	LateBestMove bool // answer "stop" only after a short delay, so readyok can overtake it
	SlowBestMove bool // answer "stop" only after a long delay, past any sane stop timeout
	ExitOnGo     bool // exit without a word when a search starts
	Stderr       bool // write a diagnostic to stderr at startup
}

var quirkNames = map[string]func(*Quirks){
	"no-uciok":      func(q *Quirks) { q.NoUCIOK = true },
	"no-readyok":    func(q *Quirks) { q.NoReadyOK = true },
	"no-bestmove":   func(q *Quirks) { q.NoBestMove = true },
	"late-bestmove": func(q *Quirks) { q.LateBestMove = true },
	"slow-bestmove": func(q *Quirks) { q.SlowBestMove = true },
	"exit-on-go":    func(q *Quirks) { q.ExitOnGo = true },
	"stderr":        func(q *Quirks) { q.Stderr = true },
}

// ParseQuirks reads a comma separated quirk list such as "no-readyok,stderr".
func ParseQuirks(s string) Quirks {
	var q Quirks
	for _, name := range strings.Split(s, ",") {
		if set, ok := quirkNames[strings.TrimSpace(name)]; ok {
			set(&q)
		}
	}
	return q
}

// Main runs the fake engine and exits if the process was started as one.
// Otherwise it returns immediately.
func Main() {
	if os.Getenv(EnvEnable) != "1" {
		return
	}

	var log io.Writer = io.Discard
	if path := os.Getenv(EnvLog); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fake engine: %v\n", err)
			os.Exit(2)
		}
		defer f.Close()
		log = f
	}

	code := Run(os.Stdin, os.Stdout, os.Stderr, log, ParseQuirks(os.Getenv(EnvQuirks)))
	os.Exit(code)
}

// Path marks the environment so that child processes started from the test
// binary become engines, and returns the path of the test binary.
func Path() (string, error) {
	if err := os.Setenv(EnvEnable, "1"); err != nil {
		return "", err
	}
	return os.Executable()
}

// OutputPrefix marks lines the fake engine wrote, as opposed to commands it
// received, in the transcript.
const OutputPrefix = "< "

// ReadLog returns the commands the fake engine received, in order.
func ReadLog(path string) ([]string, error) {
	lines, err := ReadTranscript(path)
	if err != nil {
		return nil, err
	}
	var commands []string
	for _, line := range lines {
		if !strings.HasPrefix(line, OutputPrefix) {
			commands = append(commands, line)
		}
	}
	return commands, nil
}

// ReadTranscript returns received commands interleaved with the bestmove and
// readyok lines the fake engine wrote, prefixed by OutputPrefix.
func ReadTranscript(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(b), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

const (
	infoInterval = 2 * time.Millisecond
	lateBestMove = 30 * time.Millisecond
	slowBestMove = 300 * time.Millisecond
)

type fake struct {
	quirks Quirks

	outMtx sync.Mutex
	out    io.Writer
	log    io.Writer

	game    *chess.Game
	multiPV int

	search     chan struct{} // closed to stop the running search
	searchDone chan struct{}
	bestLine   string
	late       sync.WaitGroup
}

// Run speaks UCI on in/out until "quit" or end of input and returns the exit
// code.
func Run(in io.Reader, out, stderr io.Writer, log io.Writer, quirks Quirks) int {
	f := &fake{
		quirks:  quirks,
		out:     out,
		log:     log,
		game:    chess.NewGame(),
		multiPV: 1,
	}

	if quirks.Stderr {
		fmt.Fprintln(stderr, "fake engine: warming up")
	}

	r := bufio.NewScanner(in)
	for r.Scan() {
		line := strings.TrimSpace(r.Text())
		if line == "" {
			continue
		}
		f.record(line)

		fields := strings.Fields(line)
		switch fields[0] {
		case "uci":
			if quirks.NoUCIOK {
				continue
			}
			f.println("id name Fake 1.0")
			f.println("id author uciboard")
			f.println("option name Threads type spin default 1 min 1 max 512")
			f.println("option name Hash type spin default 16 min 1 max 33554432")
			f.println("option name MultiPV type spin default 1 min 1 max 500")
			f.println("uciok")
		case "isready":
			if quirks.NoReadyOK {
				continue
			}
			f.println("readyok")
		case "setoption":
			f.setOption(fields[1:])
		case "ucinewgame":
			f.game = chess.NewGame()
		case "position":
			f.position(fields[1:])
		case "go":
			if quirks.ExitOnGo {
				return 3
			}
			f.stopSearch(true)
			// answers to earlier searches go out before anything of this one
			f.late.Wait()
			f.goCommand(fields[1:])
		case "stop":
			f.stopSearch(true)
		case "quit":
			f.stopSearch(false)
			f.late.Wait()
			return 0
		default:
			f.println("info string unknown command " + fields[0])
		}
	}

	f.stopSearch(false)
	f.late.Wait()
	return 0
}

func (f *fake) record(line string) {
	f.outMtx.Lock()
	defer f.outMtx.Unlock()
	fmt.Fprintln(f.log, line)
}

func (f *fake) println(line string) {
	f.outMtx.Lock()
	defer f.outMtx.Unlock()
	if strings.HasPrefix(line, "bestmove") || line == "readyok" || line == "uciok" {
		fmt.Fprintln(f.log, OutputPrefix+line)
	}
	fmt.Fprintln(f.out, line)
}

func (f *fake) setOption(fields []string) {
	// name <id> value <x>
	if len(fields) >= 4 && fields[0] == "name" && fields[1] == "MultiPV" && fields[2] == "value" {
		if n, err := strconv.Atoi(fields[3]); err == nil && n > 0 {
			f.multiPV = n
		}
	}
}

func (f *fake) position(fields []string) {
	if len(fields) == 0 {
		return
	}

	var game *chess.Game
	rest := fields[1:]
	switch fields[0] {
	case "startpos":
		game = chess.NewGame()
	case "fen":
		n := len(rest)
		for i, field := range rest {
			if field == "moves" {
				n = i
				break
			}
		}
		opt, err := chess.FEN(strings.Join(rest[:n], " "))
		if err != nil {
			f.println("info string invalid fen")
			return
		}
		game = chess.NewGame(opt)
		rest = rest[n:]
	default:
		return
	}

	if len(rest) > 0 && rest[0] == "moves" {
		for _, uci := range rest[1:] {
			m := findMove(game.Position(), uci)
			if m == nil {
				f.println("info string illegal move " + uci)
				break
			}
			if err := game.Move(m); err != nil {
				break
			}
		}
	}

	f.game = game
}

func findMove(pos *chess.Position, uci string) *chess.Move {
	uci = strings.ToLower(uci)
	for _, m := range pos.ValidMoves() {
		if m.String() == uci {
			return m
		}
	}
	return nil
}

func (f *fake) goCommand(fields []string) {
	pos := f.game.Position()
	moves := pos.ValidMoves()

	var searchMoves []*chess.Move
	depthLimited := false
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			depthLimited = true
			i++
		case "searchmoves":
			for _, uci := range fields[i+1:] {
				if m := findMove(pos, uci); m != nil {
					searchMoves = append(searchMoves, m)
				}
			}
			moves = searchMoves
			i = len(fields)
		}
	}

	if len(moves) == 0 {
		f.println("info depth 0 score mate 0")
		f.println("bestmove (none)")
		return
	}

	if depthLimited {
		f.println(fmt.Sprintf("info depth 1 seldepth 1 multipv 1 score cp 20 nodes 20 nps 20000 time 1 pv %s", moves[0]))
		f.println("bestmove " + moves[0].String())
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	f.search, f.searchDone = stop, done

	multiPV := f.multiPV
	if multiPV > len(moves) {
		multiPV = len(moves)
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(infoInterval)
		defer ticker.Stop()
		for depth := 1; ; depth++ {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			if depth > 40 {
				continue
			}
			for k := 0; k < multiPV; k++ {
				nodes := depth * 1000 * (k + 1)
				f.println(fmt.Sprintf("info depth %d seldepth %d multipv %d score cp %d nodes %d nps 1000000 time %d pv %s",
					depth, depth+2, k+1, 30-10*k+depth, nodes, depth, moves[k]))
			}
			f.println(fmt.Sprintf("info depth %d currmove %s currmovenumber 1", depth+1, moves[0]))
		}
	}()

	f.bestLine = "bestmove " + moves[0].String()
}

// stopSearch ends the running search. With answer set the search reports its
// bestmove the way the quirks dictate.
func (f *fake) stopSearch(answer bool) {
	if f.search == nil {
		return
	}
	close(f.search)
	<-f.searchDone

	best := f.bestLine
	f.search, f.searchDone, f.bestLine = nil, nil, ""

	switch {
	case !answer, f.quirks.NoBestMove:
	case f.quirks.LateBestMove, f.quirks.SlowBestMove:
		delay := lateBestMove
		if f.quirks.SlowBestMove {
			delay = slowBestMove
		}
		f.late.Add(1)
		go func() {
			defer f.late.Done()
			time.Sleep(delay)
			f.println(best)
		}()
	default:
		f.println(best)
	}
}
