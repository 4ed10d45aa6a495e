package engine

import (
	"fmt"
	"strconv"
	"strings"

	"uciboard/commas"
)

type Kind int

const (
	KindRaw Kind = iota
	KindInfo
	KindBestMove
	KindReadyOK
	KindUCIOK
)

func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindBestMove:
		return "bestmove"
	case KindReadyOK:
		return "readyok"
	case KindUCIOK:
		return "uciok"
	default:
		return "raw"
	}
}

// Event is one line of engine output.
type Event struct {
	Kind   Kind
	Line   string
	Search int // search the line belongs to, counted from 1

	// KindInfo
	Eval Eval

	// KindBestMove
	BestMove string
	Ponder   string
}

func IsBestMove(ev Event) bool { return ev.Kind == KindBestMove }

// Contains matches any line containing token.
func Contains(token string) func(Event) bool {
	return func(ev Event) bool { return strings.Contains(ev.Line, token) }
}

func parseEvent(line string) Event {
	ev := Event{Kind: KindRaw, Line: line}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ev
	}

	switch fields[0] {
	case "uciok":
		ev.Kind = KindUCIOK
	case "readyok":
		ev.Kind = KindReadyOK
	case "bestmove":
		ev.Kind = KindBestMove
		if len(fields) > 1 {
			ev.BestMove = fields[1]
		}
		if len(fields) > 3 && fields[2] == "ponder" {
			ev.Ponder = fields[3]
		}
	case "info":
		if eval, ok := ParseEval(line); ok {
			ev.Kind = KindInfo
			ev.Eval = eval
		}
	}

	return ev
}

type Eval struct {
	UCIMove    string   `json:"uci"`
	Depth      int      `json:"depth"`
	SelDepth   int      `json:"seldepth"`
	MultiPV    int      `json:"multipv"`
	CP         int      `json:"cp"`
	Mate       int      `json:"mate"`
	HasScore   bool     `json:"has_score"`
	Nodes      int      `json:"nodes"`
	NPS        int      `json:"nps"`
	TBHits     int      `json:"tbhits"`
	Time       int      `json:"time"`
	UpperBound bool     `json:"ub,omitempty"`
	LowerBound bool     `json:"lb,omitempty"`
	PV         []string `json:"pv"`
	Mated      bool     `json:"mated,omitempty"`
}

// ParseEval reads the fields of an "info" line. Lines without depth, score
// or pv (currmove updates, info string) are reported as not ok.
func ParseEval(line string) (Eval, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 || parts[0] != "info" {
		return Eval{}, false
	}

	var eval Eval
	var sawDepth bool

	num := func(i int) int {
		if i >= len(parts) {
			return 0
		}
		n, _ := strconv.Atoi(parts[i])
		return n
	}

scoreLoop:
	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "string":
			return Eval{}, false
		case "refutation", "currline":
			break scoreLoop
		case "currmove", "currmovenumber", "hashfull", "cpuload", "sbhits":
			// ignore
			i++
		case "depth":
			eval.Depth = num(i + 1)
			sawDepth = true
			i++
		case "seldepth":
			eval.SelDepth = num(i + 1)
			i++
		case "multipv":
			eval.MultiPV = num(i + 1)
			i++
		case "score":
			if i+2 >= len(parts) {
				break scoreLoop
			}
			switch parts[i+1] {
			case "cp":
				eval.CP = num(i + 2)
				eval.HasScore = true
			case "mate":
				eval.Mate = num(i + 2)
				eval.Mated = eval.Mate == 0
				eval.HasScore = true
			}
			i += 2
		case "upperbound":
			eval.UpperBound = true
		case "lowerbound":
			eval.LowerBound = true
		case "nodes":
			eval.Nodes = num(i + 1)
			i++
		case "nps":
			eval.NPS = num(i + 1)
			i++
		case "tbhits":
			eval.TBHits = num(i + 1)
			i++
		case "time":
			eval.Time = num(i + 1)
			i++
		case "pv":
			for _, move := range parts[i+1:] {
				if move == "refutation" || move == "currline" {
					break
				}
				eval.PV = append(eval.PV, move)
			}
			if len(eval.PV) > 0 {
				eval.UCIMove = eval.PV[0]
			}
			break scoreLoop
		}
	}

	if !sawDepth && !eval.HasScore && len(eval.PV) == 0 {
		return Eval{}, false
	}
	return eval, true
}

// Display formats the eval for the analysis pane, e.g.
// "d=20  cp=+35  nps=1,234,567  pv e2e4 e7e5".
func (e Eval) Display() string {
	var sb strings.Builder
	if e.Depth > 0 {
		sb.WriteString(fmt.Sprintf("d=%d", e.Depth))
	} else {
		sb.WriteString("d=-")
	}

	switch {
	case e.Mated:
		sb.WriteString("  mated")
	case e.Mate != 0:
		sb.WriteString(fmt.Sprintf("  mate=%d", e.Mate))
	case e.HasScore:
		sb.WriteString(fmt.Sprintf("  cp=%+d", e.CP))
	}

	if e.NPS > 0 {
		sb.WriteString("  nps=" + commas.Int(e.NPS))
	}

	if len(e.PV) > 0 {
		sb.WriteString("  pv " + strings.Join(e.PV, " "))
	}
	return sb.String()
}

// Score orders evals, closer mates rank higher.
func (e Eval) Score() int {
	if e.Mate > 0 {
		return 400_00 - e.Mate*100
	} else if e.Mate < 0 {
		return -300_00 + e.Mate*100
	}
	return e.CP
}
