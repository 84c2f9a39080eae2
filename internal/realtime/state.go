package realtime

import (
	"errors"

	"github.com/bonosa/MarsLife/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrNotIdentified    = errors.New("realtime: user not identified")
	ErrGenerationFailed = errors.New("realtime: design generation failed")
)

// State is the lifecycle of one design request.
type State int

const (
	Idle State = iota
	Validating
	Generating
	Settling
	Rejected
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Generating:
		return "generating"
	case Settling:
		return "settling"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	Idle:       {Validating},
	Validating: {Rejected, Generating, Failed},
	Generating: {Failed, Settling},
	Settling:   {Idle, Rejected, Failed},
	Rejected:   {Idle},
	Failed:     {Idle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// generation tracks one request through its states.
type generation struct {
	state   State
	outcome State
	logger  *zap.Logger
}

func newGeneration(logger *zap.Logger) *generation {
	return &generation{state: Idle, outcome: Idle, logger: logger}
}

func (g *generation) to(next State) {
	if !canTransition(g.state, next) {
		g.logger.Error("Invalid state transition", zap.Stringer("from", g.state), zap.Stringer("to", next))
		return
	}
	g.logger.Debug("State transition", zap.Stringer("from", g.state), zap.Stringer("to", next))
	g.state = next
}

// finish records the terminal state and returns to Idle.
func (g *generation) finish() {
	g.outcome = g.state
	label := g.outcome.String()
	if g.outcome == Settling {
		label = "succeeded"
	}
	metrics.GenerationsTotal.WithLabelValues(label).Inc()
	if g.state != Idle {
		g.to(Idle)
	}
}
