package planner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/research"
	"github.com/TobiSchelling/eventscout/internal/synthesize"
)

// lowConfidence marks a reviewed event the digest should treat with care.
const lowConfidence = 0.7

// State is the aggregate root of one workflow run. Only the planner's
// sequential phase handlers mutate it.
type State struct {
	RunID           string
	Phase           agent.Phase
	ResearchEnabled bool

	EventsFound      []event.Event
	EventsReviewed   []agent.EnrichedEvent
	Research         []research.EventResearch
	SourcesCompleted []string
	Questions        []agent.Question

	Output           string
	IncludedTitles   []string
	OutputConfidence float64

	StartedAt   time.Time
	CompletedAt time.Time
	Err         string
	Iterations  int

	scratchpad []agent.Observation
	now        func() time.Time
}

// NewState starts a run in the initializing phase.
func NewState(researchEnabled bool) *State {
	s := &State{
		RunID:           uuid.NewString(),
		Phase:           agent.PhaseInitializing,
		ResearchEnabled: researchEnabled,
		now:             time.Now,
	}
	s.StartedAt = s.now()
	return s
}

func (s *State) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Observe appends o to the scratchpad. The timestamp is assigned here and
// never goes backwards, even if the wall clock does.
func (s *State) Observe(o agent.Observation) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("recording observation: %w", err)
	}
	ts := s.clock()
	if n := len(s.scratchpad); n > 0 && ts.Before(s.scratchpad[n-1].Timestamp) {
		ts = s.scratchpad[n-1].Timestamp
	}
	o.Timestamp = ts
	s.scratchpad = append(s.scratchpad, o)
	return nil
}

// Observations returns a copy of the scratchpad in recording order.
func (s *State) Observations() []agent.Observation {
	out := make([]agent.Observation, len(s.scratchpad))
	copy(out, s.scratchpad)
	return out
}

// Latest returns up to n of the most recent observations, oldest first.
func (s *State) Latest(n int) []agent.Observation {
	if n <= 0 {
		return nil
	}
	if n > len(s.scratchpad) {
		n = len(s.scratchpad)
	}
	out := make([]agent.Observation, n)
	copy(out, s.scratchpad[len(s.scratchpad)-n:])
	return out
}

// Advance moves the run to next.
func (s *State) Advance(next agent.Phase) error {
	if err := s.Phase.CanAdvance(next); err != nil {
		return err
	}
	s.Phase = next
	if next.Terminal() {
		s.CompletedAt = s.clock()
	}
	return nil
}

// MarkComplete ends the run successfully. No-op once terminal.
func (s *State) MarkComplete() {
	if s.Phase.Terminal() {
		return
	}
	s.Phase = agent.PhaseComplete
	s.CompletedAt = s.clock()
}

// MarkFailed ends the run with err. No-op once terminal.
func (s *State) MarkFailed(err error) {
	if s.Phase.Terminal() {
		return
	}
	s.Phase = agent.PhaseFailed
	if err != nil {
		s.Err = err.Error()
	}
	s.CompletedAt = s.clock()
}

// OpenQuestions returns the questions still unanswered.
func (s *State) OpenQuestions() []agent.Question {
	var out []agent.Question
	for _, q := range s.Questions {
		if !q.Answered {
			out = append(out, q)
		}
	}
	return out
}

// Duration is the wall time of the run so far.
func (s *State) Duration() time.Duration {
	end := s.CompletedAt
	if end.IsZero() {
		end = s.clock()
	}
	return end.Sub(s.StartedAt)
}

// PlanningContext summarizes the run for the synthesis step.
func (s *State) PlanningContext() synthesize.PlanningContext {
	low := 0
	for _, e := range s.EventsReviewed {
		if e.Confidence < lowConfidence {
			low++
		}
	}
	return synthesize.PlanningContext{
		OpenQuestions:       len(s.OpenQuestions()),
		SourcesCompleted:    len(s.SourcesCompleted),
		MeanConfidence:      agent.MeanConfidence(s.EventsReviewed),
		LowConfidenceEvents: low,
	}
}
