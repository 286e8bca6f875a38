package planner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/review"
	"github.com/TobiSchelling/eventscout/internal/search"
)

// resolveThreshold is the mean review confidence above which open
// questions count as answered.
const resolveThreshold = 0.7

func (p *Planner) initialize(_ context.Context, st *State) (agent.Phase, error) {
	p.note(st, agent.Observation{
		Agent: plannerAgent,
		Thought: fmt.Sprintf("Starting run with %d search agents and %d review agents",
			len(p.search), len(p.review)),
		Action:     "plan",
		Result:     fmt.Sprintf("research enabled: %t", st.ResearchEnabled && p.research != nil),
		Confidence: 1,
	})
	return agent.PhaseSearching, nil
}

func (p *Planner) searchPhase(ctx context.Context, st *State) (agent.Phase, error) {
	results := search.RunParallel(ctx, p.search)

	failed := 0
	for _, r := range results {
		o := agent.Observation{
			Agent:      r.AgentName,
			Thought:    "Searching for events",
			Action:     "search",
			Confidence: r.Confidence,
		}
		if r.Success {
			st.SourcesCompleted = append(st.SourcesCompleted, r.AgentName)
			o.Result = fmt.Sprintf("Found %d events in %s", len(r.Events), r.Duration.Round(time.Millisecond))
		} else {
			failed++
			o.Result = "Failed: " + r.Error
		}
		p.note(st, o)
	}
	p.metrics.Failures("search", failed)

	merged := search.MergeSuccessful(results)
	unique := event.Dedupe(merged)
	st.EventsFound = unique
	p.metrics.Found(len(unique))

	confidence := 0.0
	if len(results) > 0 {
		confidence = float64(len(results)-failed) / float64(len(results))
	}
	p.note(st, agent.Observation{
		Agent:      plannerAgent,
		Thought:    "Merging search results",
		Action:     "dedupe",
		Result:     fmt.Sprintf("%d unique events from %d candidates, %d/%d sources succeeded", len(unique), len(merged), len(results)-failed, len(results)),
		Confidence: confidence,
	})
	log.Printf("Search: %d unique events from %d sources (%d failed)", len(unique), len(results), failed)

	if len(unique) == 0 {
		p.note(st, agent.Observation{
			Agent:      plannerAgent,
			Thought:    "No events found, nothing to review",
			Action:     "complete",
			Confidence: 1,
		})
		return agent.PhaseComplete, nil
	}

	questions := GapQuestions(unique)
	st.Questions = append(st.Questions, questions...)
	if len(questions) > 0 {
		p.note(st, agent.Observation{
			Agent:      plannerAgent,
			Thought:    "Looking for gaps in the event data",
			Action:     "gap_analysis",
			Result:     fmt.Sprintf("Raised %d questions", len(questions)),
			Confidence: 0.8,
		})
	}
	return agent.PhaseReviewing, nil
}

func (p *Planner) reviewPhase(ctx context.Context, st *State) (agent.Phase, error) {
	enriched := review.ReviewAll(ctx, st.EventsFound, p.review, p.reviewConcurrency)
	st.EventsReviewed = enriched

	verified, missing := 0, 0
	for _, e := range enriched {
		if e.Verified {
			verified++
		}
		missing += len(p.review) - e.Reviewers
	}
	p.metrics.Failures("review", missing)

	mean := agent.MeanConfidence(enriched)
	p.note(st, agent.Observation{
		Agent:      "ReviewSwarm",
		Thought:    fmt.Sprintf("Reviewing %d events with %d agents", len(enriched), len(p.review)),
		Action:     "review",
		Result:     fmt.Sprintf("%d verified, mean confidence %.2f", verified, mean),
		Confidence: mean,
	})
	log.Printf("Review: %d/%d verified, mean confidence %.2f", verified, len(enriched), mean)

	if mean > resolveThreshold {
		resolved := 0
		for i := range st.Questions {
			if st.Questions[i].Answered {
				continue
			}
			st.Questions[i].Resolve(fmt.Sprintf("Addressed by review (mean confidence %.2f)", mean))
			resolved++
		}
		if resolved > 0 {
			p.note(st, agent.Observation{
				Agent:      plannerAgent,
				Thought:    "Review confidence is high enough to settle open questions",
				Action:     "resolve_questions",
				Result:     fmt.Sprintf("Resolved %d questions", resolved),
				Confidence: mean,
			})
		}
	} else {
		p.note(st, agent.Observation{
			Agent:      plannerAgent,
			Thought:    "Review confidence is low, proceeding anyway",
			Action:     "continue",
			Result:     fmt.Sprintf("%d questions remain open", len(st.OpenQuestions())),
			Confidence: mean,
		})
	}

	if p.research != nil && st.ResearchEnabled {
		return agent.PhaseResearching, nil
	}
	return agent.PhaseSynthesizing, nil
}

func (p *Planner) researchPhase(ctx context.Context, st *State) (agent.Phase, error) {
	if p.research == nil {
		p.note(st, agent.Observation{
			Agent:      plannerAgent,
			Thought:    "No research pipeline configured",
			Action:     "skip",
			Confidence: 1,
		})
		return agent.PhaseSynthesizing, nil
	}

	outcomes := p.research.Run(ctx, st.EventsReviewed)

	stubs, facts := 0, 0
	var total float64
	for _, o := range outcomes {
		for _, s := range o.Steps {
			p.note(st, s)
		}
		if o.Err != nil {
			stubs++
		}
		st.Research = append(st.Research, o.Research)
		facts += o.Research.FactCount()
		total += o.Research.Confidence
	}
	p.metrics.Failures("research", stubs)

	mean := 0.0
	if len(outcomes) > 0 {
		mean = total / float64(len(outcomes))
	}
	p.note(st, agent.Observation{
		Agent:      "ResearchPipeline",
		Thought:    fmt.Sprintf("Researching %d events", len(st.EventsReviewed)),
		Action:     "research",
		Result:     fmt.Sprintf("%d researched, %d stubs, %d facts", len(outcomes)-stubs, stubs, facts),
		Confidence: mean,
	})
	log.Printf("Research: %d events, %d stubs, %d facts", len(outcomes), stubs, facts)
	return agent.PhaseSynthesizing, nil
}

func (p *Planner) synthesizePhase(ctx context.Context, st *State) (agent.Phase, error) {
	if p.synth == nil {
		return agent.PhaseSynthesizing, errNoSynthesizer
	}

	res := p.synth.Synthesize(ctx, st.EventsReviewed, st.PlanningContext(), st.Research)
	st.Output = res.Text
	st.IncludedTitles = res.IncludedTitles
	st.OutputConfidence = res.Confidence

	result := fmt.Sprintf("Digest covers %d events", len(res.IncludedTitles))
	if res.Degraded() {
		result = "Degraded: " + res.Stats.Error
	}
	p.note(st, agent.Observation{
		Agent:      "PromoSynthesizer",
		Thought:    fmt.Sprintf("Writing the digest for %d events", len(st.EventsReviewed)),
		Action:     "synthesize",
		Result:     result,
		Confidence: res.Confidence,
	})
	return agent.PhaseComplete, nil
}
