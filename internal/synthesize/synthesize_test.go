package synthesize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/research"
)

// mockProvider implements llm.Provider and records the last prompt.
type mockProvider struct {
	response string
	err      error
	panics   bool
	prompt   string
	calls    int
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.calls++
	m.prompt = prompt
	if m.panics {
		panic("provider bug")
	}
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

func newTestSynth(p *mockProvider) *Synthesizer {
	s := NewSynthesizer(p)
	s.Now = func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }
	return s
}

func ee(title string, score *int) agent.EnrichedEvent {
	return agent.EnrichedEvent{
		Event:    event.Event{Title: title},
		Metadata: agent.Metadata{RelevanceScore: score},
	}
}

func TestSynthesizeRanksAndIncludesAll(t *testing.T) {
	p := &mockProvider{response: "  Big weekend ahead!  "}
	events := []agent.EnrichedEvent{
		ee("Board meeting", agent.IntPtr(0)),
		ee("Bike ride", agent.IntPtr(10)),
		ee("Wine tasting", agent.IntPtr(9)),
		ee("Library hours", agent.IntPtr(0)),
	}

	res := newTestSynth(p).Synthesize(context.Background(), events, PlanningContext{SourcesCompleted: 4}, nil)
	assert.Equal(t, "Big weekend ahead!", res.Text)
	assert.Equal(t, 0.95, res.Confidence)
	assert.Equal(t, []string{"Bike ride", "Wine tasting", "Board meeting", "Library hours"}, res.IncludedTitles)
	assert.False(t, res.Degraded())
	assert.Contains(t, p.prompt, "Sunday, October 18, 2026")
	assert.NotContains(t, p.prompt, "PLANNING INSIGHTS")
}

func TestSynthesizeFallsBackToKeywordScore(t *testing.T) {
	p := &mockProvider{response: "ok"}
	events := []agent.EnrichedEvent{
		{Event: event.Event{Title: "Quiet afternoon"}},
		{Event: event.Event{Title: "Critical Mass bike ride"}},
	}
	res := newTestSynth(p).Synthesize(context.Background(), events, PlanningContext{SourcesCompleted: 3}, nil)
	assert.Equal(t, []string{"Critical Mass bike ride", "Quiet afternoon"}, res.IncludedTitles)
}

func TestSynthesizeAttachesResearchByTitle(t *testing.T) {
	p := &mockProvider{response: "ok"}
	events := []agent.EnrichedEvent{ee("Jazz Night", nil), ee("Other", nil)}
	res := []research.EventResearch{
		{EventTitle: "Jazz Night", Narrative: "A storied trio returns.", KeyInsights: []string{"Won a Grammy"}},
		{EventTitle: "jazz night", Narrative: "should not match"},
	}

	out := newTestSynth(p).Synthesize(context.Background(), events, PlanningContext{SourcesCompleted: 3}, res)
	assert.Equal(t, 1, out.Stats.ResearchAttached)
	assert.Contains(t, p.prompt, "A storied trio returns.")
	assert.Contains(t, p.prompt, "Won a Grammy")
	assert.NotContains(t, p.prompt, "should not match")
}

func TestSynthesizePlanningInsights(t *testing.T) {
	p := &mockProvider{response: "ok"}
	pc := PlanningContext{OpenQuestions: 2, SourcesCompleted: 1, LowConfidenceEvents: 3}
	res := newTestSynth(p).Synthesize(context.Background(), []agent.EnrichedEvent{ee("x", nil)}, pc, nil)

	assert.Equal(t, 3, res.Stats.Insights)
	assert.Contains(t, p.prompt, "PLANNING INSIGHTS")
	assert.Contains(t, p.prompt, "2 questions remain unanswered")
	assert.Contains(t, p.prompt, "Only 1 source(s) completed")
}

func TestSynthesizeDegradesOnError(t *testing.T) {
	p := &mockProvider{err: errors.New("rate limited")}
	res := newTestSynth(p).Synthesize(context.Background(), []agent.EnrichedEvent{ee("x", nil)}, PlanningContext{}, nil)
	assert.True(t, res.Degraded())
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.IncludedTitles)
	assert.Contains(t, res.Text, "rate limited")
}

func TestSynthesizeDegradesOnPanic(t *testing.T) {
	p := &mockProvider{panics: true}
	res := newTestSynth(p).Synthesize(context.Background(), []agent.EnrichedEvent{ee("x", nil)}, PlanningContext{}, nil)
	assert.True(t, res.Degraded())
	assert.True(t, strings.Contains(res.Text, "panic"))
}

func TestSynthesizeWithoutProvider(t *testing.T) {
	res := NewSynthesizer(nil).Synthesize(context.Background(), nil, PlanningContext{}, nil)
	assert.True(t, res.Degraded())
	assert.Zero(t, res.Confidence)
}

func TestSynthesizeDeterministic(t *testing.T) {
	events := []agent.EnrichedEvent{ee("b", agent.IntPtr(1)), ee("a", agent.IntPtr(1)), ee("c", agent.IntPtr(5))}
	p1 := &mockProvider{response: "x"}
	p2 := &mockProvider{response: "x"}
	r1 := newTestSynth(p1).Synthesize(context.Background(), events, PlanningContext{}, nil)
	r2 := newTestSynth(p2).Synthesize(context.Background(), events, PlanningContext{}, nil)
	require.Equal(t, r1, r2)
	assert.Equal(t, p1.prompt, p2.prompt)
	assert.Equal(t, []string{"c", "b", "a"}, r1.IncludedTitles)
}
