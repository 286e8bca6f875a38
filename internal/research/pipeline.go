package research

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

// DefaultMaxConcurrent bounds how many events are researched at once.
const DefaultMaxConcurrent = 5

// Outcome is the research for one event plus the reasoning steps taken to
// produce it. Steps carry no timestamp; the caller stamps them when it
// appends them to its log. Err is set when the chain failed and Research is
// the stub.
type Outcome struct {
	Research EventResearch
	Steps    []agent.Observation
	Err      error
}

// Pipeline runs extract, generate, research and synthesize for each event.
type Pipeline struct {
	Extractor     EntityExtractor
	Generator     QueryGenerator
	Researcher    Researcher
	Synthesizer   Synthesizer
	MaxConcurrent int
}

// NewPipeline wires the four stages.
func NewPipeline(x EntityExtractor, g QueryGenerator, r Researcher, s Synthesizer) *Pipeline {
	return &Pipeline{
		Extractor:     x,
		Generator:     g,
		Researcher:    r,
		Synthesizer:   s,
		MaxConcurrent: DefaultMaxConcurrent,
	}
}

// Run researches every event and returns one outcome per event in input
// order. At most MaxConcurrent events are in flight. A failure or panic in
// one event's chain yields that event's stub; the others are unaffected.
func (p *Pipeline) Run(ctx context.Context, events []agent.EnrichedEvent) []Outcome {
	limit := p.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	sem := semaphore.NewWeighted(int64(limit))
	out := make([]Outcome, len(events))

	var wg sync.WaitGroup
	for i, ee := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				out[i] = failed(ee.Event, nil, err)
				return
			}
			defer sem.Release(1)
			out[i] = p.runOne(ctx, ee.Event)
		}()
	}
	wg.Wait()

	return out
}

func (p *Pipeline) runOne(ctx context.Context, e event.Event) (o Outcome) {
	var steps []agent.Observation
	defer func() {
		if r := recover(); r != nil {
			o = failed(e, steps, fmt.Errorf("panic: %v", r))
		}
	}()

	entities, err := p.Extractor.ExtractEntities(ctx, e)
	if err != nil {
		return failed(e, steps, err)
	}
	steps = append(steps, agent.Observation{
		Agent:      "EntityExtractor",
		Thought:    fmt.Sprintf("Analyzing %q", e.Title),
		Action:     "extract_entities",
		Result:     fmt.Sprintf("Found %d entities", len(entities)),
		Confidence: 0.9,
	})

	queries, err := p.Generator.GenerateQueries(ctx, e, entities)
	if err != nil {
		return failed(e, steps, err)
	}
	priorities := make([]int, len(queries))
	for i, q := range queries {
		priorities[i] = q.Priority
	}
	steps = append(steps, agent.Observation{
		Agent:      "QueryGenerator",
		Thought:    fmt.Sprintf("Formulating research strategy for %d entities", len(entities)),
		Action:     "generate_queries",
		Result:     fmt.Sprintf("Generated %d queries (priorities: %v)", len(queries), priorities),
		Confidence: 0.95,
	})

	results := make([]Result, 0, len(queries))
	for _, q := range queries {
		res, err := p.Researcher.Research(ctx, q)
		if err != nil {
			return failed(e, steps, err)
		}
		if err := res.Validate(); err != nil {
			return failed(e, steps, fmt.Errorf("research result for %q: %w", q.Text, err))
		}
		results = append(results, res)
		if res.Confidence > 0 {
			steps = append(steps, agent.Observation{
				Agent:      p.Researcher.Name(),
				Thought:    fmt.Sprintf("Researching %q", q.Text),
				Action:     "research_query",
				Result:     fmt.Sprintf("Found %d facts", len(res.Facts)),
				Confidence: res.Confidence,
			})
		}
	}

	er, err := p.Synthesizer.Synthesize(ctx, e, entities, results)
	if err != nil {
		return failed(e, steps, err)
	}
	if err := agent.CheckConfidence(er.Confidence); err != nil {
		return failed(e, steps, fmt.Errorf("synthesized research: %w", err))
	}
	steps = append(steps, agent.Observation{
		Agent:      "KnowledgeSynthesizer",
		Thought:    fmt.Sprintf("Synthesizing research for %q", e.Title),
		Action:     "synthesize_knowledge",
		Result:     fmt.Sprintf("Created narrative with %d insights", len(er.KeyInsights)),
		Confidence: er.Confidence,
	})

	return Outcome{Research: er, Steps: steps}
}

func failed(e event.Event, steps []agent.Observation, err error) Outcome {
	log.Printf("Research failed for %q: %v", e.Title, err)
	return Outcome{
		Research: Stub(e),
		Steps: append(steps, agent.Observation{
			Agent:      "ResearchPipeline",
			Thought:    fmt.Sprintf("Research for %q failed, using event details only", e.Title),
			Action:     "research_stub",
			Result:     err.Error(),
			Confidence: 0.5,
		}),
		Err: err,
	}
}
