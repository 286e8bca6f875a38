// Package synthesize writes the digest text: it ranks the reviewed events,
// attaches any research, and has the LLM turn them into a readable promo.
package synthesize

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/llm"
	"github.com/TobiSchelling/eventscout/internal/research"
)

const promoPrompt = `You are writing today's local events digest for a couple who love
cycling, live music, dog-friendly outings and good food and drink.

Today is %s.

Write an energetic, punchy digest covering EVERY event below, most relevant
first. Give each event a short paragraph with the when and where. Where
research is provided, weave the most interesting facts in.

Events (ranked by relevance):
%s`

// PlanningContext is the summary of the run the synthesizer takes into
// account. It is computed once by the planner from its state.
type PlanningContext struct {
	OpenQuestions       int
	SourcesCompleted    int
	MeanConfidence      float64
	LowConfidenceEvents int
}

// Insights returns the planning notes appended to the prompt.
func (pc PlanningContext) Insights() []string {
	var notes []string
	if pc.OpenQuestions > 0 {
		notes = append(notes, fmt.Sprintf(
			"Note: %d questions remain unanswered, so focus on well-verified events.", pc.OpenQuestions))
	}
	if pc.LowConfidenceEvents > 0 {
		notes = append(notes, "Some events had lower confidence scores; emphasize the verified ones.")
	}
	if pc.SourcesCompleted < 3 {
		notes = append(notes, fmt.Sprintf(
			"Only %d source(s) completed, so data may be limited.", pc.SourcesCompleted))
	}
	return notes
}

// Stats describes how a result was produced.
type Stats struct {
	EventsProcessed  int
	ResearchAttached int
	Insights         int
	Error            string
}

// Result is the synthesized digest text.
type Result struct {
	Text           string
	IncludedTitles []string
	Confidence     float64
	Stats          Stats
}

// Degraded reports whether synthesis fell back to an error text.
func (r Result) Degraded() bool {
	return r.Stats.Error != ""
}

// ScoreFunc ranks an event; higher is more relevant.
type ScoreFunc func(agent.EnrichedEvent) int

// DefaultScore prefers the score recorded by review and otherwise scores the
// event text directly.
func DefaultScore(e agent.EnrichedEvent) int {
	if e.Metadata.RelevanceScore != nil {
		return *e.Metadata.RelevanceScore
	}
	return event.RelevanceScore(e.Event)
}

// Synthesizer turns ranked events into digest text.
type Synthesizer struct {
	provider  llm.Provider
	Score     ScoreFunc
	MaxTokens int
	Now       func() time.Time
}

// NewSynthesizer creates a synthesizer using provider.
func NewSynthesizer(provider llm.Provider) *Synthesizer {
	return &Synthesizer{
		provider:  provider,
		Score:     DefaultScore,
		MaxTokens: 2000,
		Now:       time.Now,
	}
}

type ranked struct {
	ev       agent.EnrichedEvent
	score    int
	research *research.EventResearch
}

// Synthesize never returns an error. Any failure, including a panic in the
// provider, produces a degraded result with zero confidence and no included
// titles.
func (s *Synthesizer) Synthesize(ctx context.Context, events []agent.EnrichedEvent, pc PlanningContext, res []research.EventResearch) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = degraded(fmt.Errorf("panic: %v", r), len(events))
		}
	}()

	if s.provider == nil {
		return degraded(fmt.Errorf("no LLM provider configured"), len(events))
	}

	items := s.rank(events, res)
	attached := 0
	for _, it := range items {
		if it.research != nil {
			attached++
		}
	}

	prompt := fmt.Sprintf(promoPrompt, s.Now().Format("Monday, January 2, 2006"), renderEvents(items))
	insights := pc.Insights()
	if len(insights) > 0 {
		prompt += "\n\nPLANNING INSIGHTS:\n" + strings.Join(insights, "\n")
	}

	text, err := s.provider.Generate(ctx, prompt, s.MaxTokens)
	if err != nil {
		return degraded(err, len(events))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return degraded(fmt.Errorf("empty response"), len(events))
	}

	titles := make([]string, len(items))
	for i, it := range items {
		titles[i] = it.ev.Event.Title
	}
	log.Printf("Synthesized digest: %d events, %d with research", len(items), attached)

	return Result{
		Text:           text,
		IncludedTitles: titles,
		Confidence:     0.95,
		Stats: Stats{
			EventsProcessed:  len(events),
			ResearchAttached: attached,
			Insights:         len(insights),
		},
	}
}

// rank scores and stable-sorts events, most relevant first, and attaches
// research by exact title.
func (s *Synthesizer) rank(events []agent.EnrichedEvent, res []research.EventResearch) []ranked {
	score := s.Score
	if score == nil {
		score = DefaultScore
	}
	byTitle := make(map[string]*research.EventResearch, len(res))
	for i := range res {
		byTitle[res[i].EventTitle] = &res[i]
	}

	items := make([]ranked, len(events))
	for i, e := range events {
		items[i] = ranked{ev: e, score: score(e), research: byTitle[e.Event.Title]}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})
	return items
}

func renderEvents(items []ranked) string {
	var b strings.Builder
	for i, it := range items {
		e := it.ev.Event
		fmt.Fprintf(&b, "\n%d. %s (score %d)\n", i+1, e.Title, it.score)
		if e.Start != nil {
			fmt.Fprintf(&b, "   When: %s\n", e.Start.Format("Mon Jan 2, 3:04 PM"))
		}
		if e.Location != "" {
			fmt.Fprintf(&b, "   Where: %s\n", e.Location)
		}
		desc := it.ev.EnrichedDescription
		if desc == "" {
			desc = e.Description
		}
		if desc != "" {
			fmt.Fprintf(&b, "   About: %s\n", event.Truncate(desc, 400))
		}
		if e.URL != "" {
			fmt.Fprintf(&b, "   Link: %s\n", e.URL)
		}
		if it.research != nil {
			fmt.Fprintf(&b, "   Research: %s\n", event.Truncate(it.research.Narrative, 800))
			for j, insight := range it.research.KeyInsights {
				if j >= 5 {
					break
				}
				fmt.Fprintf(&b, "   - %s\n", insight)
			}
		}
	}
	return b.String()
}

func degraded(err error, n int) Result {
	log.Printf("Synthesis failed: %v", err)
	return Result{
		Text:           "Could not generate the digest: " + err.Error(),
		IncludedTitles: []string{},
		Confidence:     0,
		Stats:          Stats{EventsProcessed: n, Error: err.Error()},
	}
}
