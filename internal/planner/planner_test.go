package planner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/metrics"
	"github.com/TobiSchelling/eventscout/internal/research"
	"github.com/TobiSchelling/eventscout/internal/synthesize"
)

type mockSearch struct {
	name   string
	events []event.Event
	err    error
}

func (m *mockSearch) Name() string { return m.name }

func (m *mockSearch) Search(_ context.Context) (agent.SearchResult, error) {
	if m.err != nil {
		return agent.SearchResult{}, m.err
	}
	return agent.NewSearchResult(m.name, m.events, 0.9, time.Millisecond)
}

type mockReview struct {
	name       string
	verified   bool
	confidence float64
	calls      atomic.Int32
}

func (m *mockReview) Name() string { return m.name }

func (m *mockReview) Review(_ context.Context, _ event.Event) (agent.ReviewResult, error) {
	m.calls.Add(1)
	return agent.ReviewResult{
		AgentName:  m.name,
		Verified:   m.verified,
		Confidence: m.confidence,
		Notes:      []string{m.name + " checked"},
	}, nil
}

type mockSynth struct {
	mu       sync.Mutex
	calls    int
	events   []agent.EnrichedEvent
	pc       synthesize.PlanningContext
	research []research.EventResearch
}

func (m *mockSynth) Synthesize(_ context.Context, events []agent.EnrichedEvent, pc synthesize.PlanningContext, res []research.EventResearch) synthesize.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.events = events
	m.pc = pc
	m.research = res
	titles := make([]string, len(events))
	for i, e := range events {
		titles[i] = e.Event.Title
	}
	return synthesize.Result{Text: "This week: " + strings.Join(titles, ", "), IncludedTitles: titles, Confidence: 0.95}
}

type fakeResearcher struct {
	calls int
}

func (f *fakeResearcher) Run(_ context.Context, events []agent.EnrichedEvent) []research.Outcome {
	f.calls++
	out := make([]research.Outcome, len(events))
	for i, e := range events {
		if e.Event.Title == "Broken" {
			out[i] = research.Outcome{
				Research: research.Stub(e.Event),
				Steps:    []agent.Observation{{Agent: "ResearchPipeline", Action: "research_stub", Confidence: 0.5}},
				Err:      errors.New("extractor down"),
			}
			continue
		}
		out[i] = research.Outcome{
			Research: research.EventResearch{EventTitle: e.Event.Title, Narrative: "Deep dive", Confidence: 0.9},
			Steps:    []agent.Observation{{Agent: "KnowledgeSynthesizer", Action: "synthesize_knowledge", Confidence: 0.9}},
		}
	}
	return out
}

func source(name string, titles ...string) *mockSearch {
	m := &mockSearch{name: name}
	for _, t := range titles {
		m.events = append(m.events, event.Event{Title: t})
	}
	return m
}

func TestRunJazzNight(t *testing.T) {
	reviewers := []*mockReview{
		{name: "a", verified: true, confidence: 0.9},
		{name: "b", verified: true, confidence: 0.8},
		{name: "c", verified: false, confidence: 0.4},
	}
	synth := &mockSynth{}
	p := New(
		[]agent.SearchAgent{source("one", "Jazz Night"), source("two", "jazz night")},
		[]agent.ReviewAgent{reviewers[0], reviewers[1], reviewers[2]},
		synth,
	)

	st := p.Run(context.Background(), NewState(false))

	assert.Equal(t, agent.PhaseComplete, st.Phase)
	assert.Empty(t, st.Err)
	require.Len(t, st.EventsFound, 1)
	assert.Equal(t, "Jazz Night", st.EventsFound[0].Title)

	require.Len(t, st.EventsReviewed, 1)
	assert.True(t, st.EventsReviewed[0].Verified)
	assert.InDelta(t, 0.7, st.EventsReviewed[0].Confidence, 1e-9)
	assert.Equal(t, 3, st.EventsReviewed[0].Reviewers)

	assert.Equal(t, 1, synth.calls)
	require.Len(t, synth.events, 1)
	assert.NotEmpty(t, st.Output)
	assert.Equal(t, []string{"Jazz Night"}, st.IncludedTitles)
	assert.Equal(t, []string{"one", "two"}, st.SourcesCompleted)
	assert.False(t, st.CompletedAt.IsZero())
}

func TestRunZeroEventsSkipsReview(t *testing.T) {
	reviewer := &mockReview{name: "r", verified: true, confidence: 1}
	synth := &mockSynth{}
	p := New(
		[]agent.SearchAgent{source("empty"), &mockSearch{name: "down", err: errors.New("503")}},
		[]agent.ReviewAgent{reviewer},
		synth,
	)

	st := p.Run(context.Background(), NewState(true))

	assert.Equal(t, agent.PhaseComplete, st.Phase)
	assert.Empty(t, st.EventsFound)
	assert.Nil(t, st.EventsReviewed)
	assert.Zero(t, reviewer.calls.Load())
	assert.Zero(t, synth.calls)
	assert.Equal(t, 2, st.Iterations)

	var failures []string
	for _, o := range st.Observations() {
		if strings.HasPrefix(o.Result, "Failed:") {
			failures = append(failures, o.Agent)
		}
	}
	assert.Equal(t, []string{"down"}, failures)
}

func TestRunFailingHandlerEndsFailed(t *testing.T) {
	p := New(nil, nil, &mockSynth{},
		WithHandler(agent.PhaseSearching, func(context.Context, *State) (agent.Phase, error) {
			return agent.PhaseSearching, errors.New("source registry unavailable")
		}),
	)

	var st *State
	require.NotPanics(t, func() { st = p.Run(context.Background(), NewState(false)) })

	assert.Equal(t, agent.PhaseFailed, st.Phase)
	assert.Contains(t, st.Err, "source registry unavailable")
	last := st.Latest(1)
	require.Len(t, last, 1)
	assert.Equal(t, plannerAgent, last[0].Agent)
	assert.Zero(t, last[0].Confidence)
	assert.Contains(t, last[0].Result, "source registry unavailable")
}

func TestRunHandlerReportingFailureIsRecorded(t *testing.T) {
	p := New(nil, nil, &mockSynth{},
		WithHandler(agent.PhaseSearching, func(context.Context, *State) (agent.Phase, error) {
			return agent.PhaseFailed, nil
		}),
	)

	st := p.Run(context.Background(), NewState(false))

	assert.Equal(t, agent.PhaseFailed, st.Phase)
	assert.Contains(t, st.Err, "phase searching reported failure")
	last := st.Latest(1)
	require.Len(t, last, 1)
	assert.Equal(t, plannerAgent, last[0].Agent)
	assert.Equal(t, "fail", last[0].Action)
	assert.Zero(t, last[0].Confidence)
}

func TestRunPanickingHandlerEndsFailed(t *testing.T) {
	p := New(nil, nil, &mockSynth{},
		WithHandler(agent.PhaseInitializing, func(context.Context, *State) (agent.Phase, error) {
			panic("nil map")
		}),
	)

	var st *State
	require.NotPanics(t, func() { st = p.Run(context.Background(), NewState(false)) })
	assert.Equal(t, agent.PhaseFailed, st.Phase)
	assert.Contains(t, st.Err, "nil map")
}

func TestRunRejectsRegression(t *testing.T) {
	p := New(nil, nil, &mockSynth{},
		WithHandler(agent.PhaseSearching, func(context.Context, *State) (agent.Phase, error) {
			return agent.PhaseInitializing, nil
		}),
	)

	st := p.Run(context.Background(), NewState(false))
	assert.Equal(t, agent.PhaseFailed, st.Phase)
	assert.Contains(t, st.Err, "regress")
}

func TestRunIterationCap(t *testing.T) {
	p := New(nil, nil, &mockSynth{},
		WithMaxIterations(10),
		WithHandler(agent.PhaseSearching, func(_ context.Context, st *State) (agent.Phase, error) {
			return agent.PhaseSearching, st.Observe(agent.Observation{Agent: "Stuck", Thought: "again", Confidence: 0.1})
		}),
	)

	st := p.Run(context.Background(), NewState(false))

	assert.Equal(t, agent.PhaseComplete, st.Phase)
	assert.Equal(t, 10, st.Iterations)
	last := st.Latest(1)
	require.Len(t, last, 1)
	assert.Equal(t, "force_complete", last[0].Action)
	assert.Contains(t, last[0].Thought, "10 iterations")
}

func TestRunMissingSynthesizerFails(t *testing.T) {
	p := New([]agent.SearchAgent{source("one", "Farmers market")}, nil, nil)
	st := p.Run(context.Background(), NewState(false))
	assert.Equal(t, agent.PhaseFailed, st.Phase)
	assert.Contains(t, st.Err, "no synthesizer")
}

func TestRunWithResearch(t *testing.T) {
	r := &fakeResearcher{}
	synth := &mockSynth{}
	p := New(
		[]agent.SearchAgent{source("one", "Jazz Night", "Broken", "Poetry slam")},
		[]agent.ReviewAgent{&mockReview{name: "r", verified: true, confidence: 0.9}},
		synth,
		WithResearch(r),
	)

	st := p.Run(context.Background(), NewState(true))

	require.Equal(t, agent.PhaseComplete, st.Phase)
	assert.Equal(t, 1, r.calls)
	require.Len(t, st.Research, 3)
	assert.Equal(t, "Deep dive", st.Research[0].Narrative)
	assert.Equal(t, "Broken", st.Research[1].Narrative)
	assert.Equal(t, 0.5, st.Research[1].Confidence)
	assert.Equal(t, "Deep dive", st.Research[2].Narrative)
	assert.Len(t, synth.research, 3)

	var stubs int
	for _, o := range st.Observations() {
		if o.Action == "research_stub" {
			stubs++
		}
	}
	assert.Equal(t, 1, stubs)
}

func TestRunResearchDisabledForRun(t *testing.T) {
	r := &fakeResearcher{}
	synth := &mockSynth{}
	p := New(
		[]agent.SearchAgent{source("one", "Jazz Night")},
		[]agent.ReviewAgent{&mockReview{name: "r", verified: true, confidence: 0.9}},
		synth,
		WithResearch(r),
	)

	st := p.Run(context.Background(), NewState(false))

	assert.Equal(t, agent.PhaseComplete, st.Phase)
	assert.Zero(t, r.calls)
	assert.Empty(t, st.Research)
	assert.Nil(t, synth.research)
}

func TestResearchPhaseWithoutPipeline(t *testing.T) {
	p := New(nil, nil, &mockSynth{})
	st := NewState(true)

	next, err := p.researchPhase(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, agent.PhaseSynthesizing, next)
	assert.Equal(t, "skip", st.Latest(1)[0].Action)
}

func TestReviewResolvesQuestionsOnHighConfidence(t *testing.T) {
	synth := &mockSynth{}
	p := New(
		[]agent.SearchAgent{source("one", "Jazz Night")},
		[]agent.ReviewAgent{&mockReview{name: "r", verified: true, confidence: 0.9}},
		synth,
	)

	st := p.Run(context.Background(), NewState(false))

	require.Len(t, st.Questions, 3)
	assert.Empty(t, st.OpenQuestions())
	assert.Zero(t, synth.pc.OpenQuestions)
}

func TestReviewKeepsQuestionsOnLowConfidence(t *testing.T) {
	synth := &mockSynth{}
	p := New(
		[]agent.SearchAgent{source("one", "Jazz Night")},
		[]agent.ReviewAgent{&mockReview{name: "r", verified: false, confidence: 0.6}},
		synth,
	)

	st := p.Run(context.Background(), NewState(false))

	assert.Len(t, st.OpenQuestions(), 3)
	assert.Equal(t, 3, synth.pc.OpenQuestions)
	assert.Equal(t, 1, synth.pc.LowConfidenceEvents)
	assert.Equal(t, 1, synth.pc.SourcesCompleted)
}

func TestRunRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(
		[]agent.SearchAgent{source("one", "Jazz Night"), &mockSearch{name: "down", err: errors.New("timeout")}},
		[]agent.ReviewAgent{&mockReview{name: "r", verified: true, confidence: 0.9}},
		&mockSynth{},
		WithMetrics(metrics.New(reg)),
	)

	p.Run(context.Background(), NewState(false))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["eventscout_workflow_runs_total"])
	assert.True(t, names["eventscout_contributor_failures_total"])
	assert.True(t, names["eventscout_phase_duration_seconds"])
}

func TestGapQuestions(t *testing.T) {
	start := time.Date(2026, 10, 20, 19, 0, 0, 0, time.UTC)
	events := []event.Event{
		{Title: "a"},
		{Title: "b", URL: "https://example.com"},
		{Title: "c", Start: &start, Location: "Park"},
	}

	qs := GapQuestions(events)
	require.Len(t, qs, 3)
	assert.Equal(t, 8, qs[0].Priority)
	assert.Contains(t, qs[0].Text, "2 events")
	assert.Equal(t, 5, qs[1].Priority)
	assert.Contains(t, qs[1].Text, "2 events")
	assert.Equal(t, 7, qs[2].Priority)
	assert.Contains(t, qs[2].Text, "2 events")

	assert.Empty(t, GapQuestions([]event.Event{{Title: "x", URL: "u", Location: "l", Start: &start}}))
	assert.Empty(t, GapQuestions(nil))
}
