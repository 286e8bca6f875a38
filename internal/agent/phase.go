package agent

import "fmt"

// Phase is a step of the planning workflow.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseSearching    Phase = "searching"
	PhaseReviewing    Phase = "reviewing"
	PhaseResearching  Phase = "researching"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseComplete     Phase = "complete"
	PhaseFailed       Phase = "failed"
)

var phaseOrder = map[Phase]int{
	PhaseInitializing: 0,
	PhaseSearching:    1,
	PhaseReviewing:    2,
	PhaseResearching:  3,
	PhaseSynthesizing: 4,
	PhaseComplete:     5,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	if p == PhaseFailed {
		return true
	}
	_, ok := phaseOrder[p]
	return ok
}

// Terminal reports whether no further phase can follow p.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// CanAdvance checks a transition from p to next. Phases never move
// backwards. Staying put is allowed so a handler can retry its own phase.
// COMPLETE and FAILED are reachable from every non-terminal phase.
func (p Phase) CanAdvance(next Phase) error {
	if !next.Valid() {
		return fmt.Errorf("unknown phase %q", next)
	}
	if p.Terminal() {
		return fmt.Errorf("phase %s is terminal", p)
	}
	if next == PhaseFailed || next == PhaseComplete {
		return nil
	}
	if phaseOrder[next] < phaseOrder[p] {
		return fmt.Errorf("phase cannot regress from %s to %s", p, next)
	}
	return nil
}

func (p Phase) String() string {
	return string(p)
}
