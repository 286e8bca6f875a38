// Package planner drives a workflow run through its phases: search, review,
// optional research and synthesis. Every step it takes is recorded on the
// run's scratchpad.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/metrics"
	"github.com/TobiSchelling/eventscout/internal/research"
	"github.com/TobiSchelling/eventscout/internal/review"
	"github.com/TobiSchelling/eventscout/internal/synthesize"
	"github.com/TobiSchelling/eventscout/internal/tracing"
)

// DefaultMaxIterations caps the phase loop of one run.
const DefaultMaxIterations = 10

const plannerAgent = "Planner"

// Synthesizer turns the reviewed events into digest text. It must not fail;
// problems are reported through a degraded result.
type Synthesizer interface {
	Synthesize(ctx context.Context, events []agent.EnrichedEvent, pc synthesize.PlanningContext, res []research.EventResearch) synthesize.Result
}

// Researcher researches a batch of events, one outcome per event.
type Researcher interface {
	Run(ctx context.Context, events []agent.EnrichedEvent) []research.Outcome
}

// Handler runs one phase and returns the phase to move to.
type Handler func(ctx context.Context, st *State) (agent.Phase, error)

// Planner sequences the agents of a workflow run.
type Planner struct {
	search            []agent.SearchAgent
	review            []agent.ReviewAgent
	synth             Synthesizer
	research          Researcher
	reviewConcurrency int
	maxIterations     int
	handlers          map[agent.Phase]Handler
	metrics           *metrics.Metrics
	tracer            trace.Tracer
}

// Option configures a Planner.
type Option func(*Planner)

// WithResearch enables the research phase for runs that ask for it.
func WithResearch(r Researcher) Option {
	return func(p *Planner) { p.research = r }
}

// WithReviewConcurrency bounds how many events are reviewed at once.
func WithReviewConcurrency(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.reviewConcurrency = n
		}
	}
}

// WithMaxIterations overrides the phase loop cap.
func WithMaxIterations(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.maxIterations = n
		}
	}
}

// WithHandler replaces the handler for phase.
func WithHandler(phase agent.Phase, h Handler) Option {
	return func(p *Planner) { p.handlers[phase] = h }
}

// WithMetrics records run and phase metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

// WithTracer overrides the tracer used for phase spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Planner) { p.tracer = t }
}

// New creates a planner over the given agents.
func New(searchAgents []agent.SearchAgent, reviewAgents []agent.ReviewAgent, synth Synthesizer, opts ...Option) *Planner {
	p := &Planner{
		search:            searchAgents,
		review:            reviewAgents,
		synth:             synth,
		reviewConcurrency: review.DefaultMaxConcurrent,
		maxIterations:     DefaultMaxIterations,
		tracer:            otel.Tracer(tracing.TracerName),
	}
	p.handlers = map[agent.Phase]Handler{
		agent.PhaseInitializing: p.initialize,
		agent.PhaseSearching:    p.searchPhase,
		agent.PhaseReviewing:    p.reviewPhase,
		agent.PhaseResearching:  p.researchPhase,
		agent.PhaseSynthesizing: p.synthesizePhase,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drives st until it reaches a terminal phase or the iteration cap,
// and returns it. Run never panics: a failing phase ends the run in FAILED
// and reaching the cap ends it in COMPLETE.
func (p *Planner) Run(ctx context.Context, st *State) *State {
	if st == nil {
		st = NewState(false)
	}
	ctx, span := p.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(attribute.String("run.id", st.RunID)))
	defer span.End()

	log.Printf("Workflow %s starting in phase %s", st.RunID, st.Phase)

	for i := 0; i < p.maxIterations && !st.Phase.Terminal(); i++ {
		st.Iterations++
		phase := st.Phase

		start := time.Now()
		next, err := p.step(ctx, st, phase)
		p.metrics.ObservePhase(phase.String(), time.Since(start).Seconds())

		if err == nil && next == agent.PhaseFailed {
			err = fmt.Errorf("phase %s reported failure", phase)
		}
		if err == nil {
			err = st.Advance(next)
		}
		if err != nil {
			log.Printf("Workflow %s failed in phase %s: %v", st.RunID, phase, err)
			p.note(st, agent.Observation{
				Agent:      plannerAgent,
				Thought:    fmt.Sprintf("Phase %s failed", phase),
				Action:     "fail",
				Result:     err.Error(),
				Confidence: 0,
			})
			st.MarkFailed(err)
			span.SetStatus(codes.Error, err.Error())
			break
		}
	}

	if !st.Phase.Terminal() {
		log.Printf("Workflow %s hit the iteration cap (%d) in phase %s", st.RunID, p.maxIterations, st.Phase)
		p.note(st, agent.Observation{
			Agent:      plannerAgent,
			Thought:    fmt.Sprintf("Reached the maximum of %d iterations in phase %s", p.maxIterations, st.Phase),
			Action:     "force_complete",
			Result:     "Workflow completed at the iteration cap",
			Confidence: 0.5,
		})
		st.MarkComplete()
	}

	span.SetAttributes(
		attribute.String("run.phase", st.Phase.String()),
		attribute.Int("run.iterations", st.Iterations),
		attribute.Int("run.events", len(st.EventsFound)),
	)
	p.metrics.RunFinished(st.Phase.String())
	log.Printf("Workflow %s finished: %s after %d iterations (%s)",
		st.RunID, st.Phase, st.Iterations, st.Duration().Round(time.Millisecond))
	return st
}

// step runs the handler for phase inside its own span, turning a panic into
// an error.
func (p *Planner) step(ctx context.Context, st *State, phase agent.Phase) (next agent.Phase, err error) {
	ctx, span := p.tracer.Start(ctx, "phase."+phase.String(),
		trace.WithAttributes(attribute.Int("iteration", st.Iterations)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", phase, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	h, ok := p.handlers[phase]
	if !ok || h == nil {
		return phase, fmt.Errorf("no handler for phase %s", phase)
	}
	return h(ctx, st)
}

// note records o, logging instead of failing on a malformed entry.
func (p *Planner) note(st *State, o agent.Observation) {
	if err := st.Observe(o); err != nil {
		log.Printf("Dropping observation from %s: %v", o.Agent, err)
	}
}

var errNoSynthesizer = errors.New("no synthesizer configured")
