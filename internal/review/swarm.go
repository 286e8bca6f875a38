// Package review runs the review swarm: every review agent checks every
// event, and the verdicts are folded into one EnrichedEvent by majority vote.
package review

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

// DefaultMaxConcurrent bounds how many events are under review at once.
const DefaultMaxConcurrent = 5

// ReviewAll reviews every event with every agent and returns one enriched
// event per input, in input order. At most maxConcurrent events are under
// review at any moment; the agents for one event run together. An agent that
// errors, panics or returns an out-of-range result is left out of the vote.
func ReviewAll(ctx context.Context, events []event.Event, agents []agent.ReviewAgent, maxConcurrent int) []agent.EnrichedEvent {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	out := make([]agent.EnrichedEvent, len(events))
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	var wg sync.WaitGroup
	for i, ev := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				log.Printf("Review of %q not started: %v", ev.Title, err)
				out[i] = Aggregate(ev, nil)
				return
			}
			defer sem.Release(1)
			out[i] = reviewEvent(ctx, ev, agents)
		}()
	}
	wg.Wait()

	return out
}

// reviewEvent runs all agents on ev and aggregates their verdicts in the
// order they finish.
func reviewEvent(ctx context.Context, ev event.Event, agents []agent.ReviewAgent) agent.EnrichedEvent {
	ch := make(chan *agent.ReviewResult, len(agents))
	for _, a := range agents {
		go func() {
			ch <- runAgent(ctx, a, ev)
		}()
	}

	results := make([]agent.ReviewResult, 0, len(agents))
	for range agents {
		if r := <-ch; r != nil {
			results = append(results, *r)
		}
	}

	enriched := Aggregate(ev, results)
	log.Printf("Reviewed %-50s votes %s", event.Truncate(ev.Title, 50), voteSummary(results))
	return enriched
}

func runAgent(ctx context.Context, a agent.ReviewAgent, ev event.Event) (res *agent.ReviewResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Review agent %s panicked on %q: %v", a.Name(), ev.Title, r)
			res = nil
		}
	}()

	r, err := a.Review(ctx, ev)
	if err != nil {
		log.Printf("Review agent %s failed on %q: %v", a.Name(), ev.Title, err)
		return nil
	}
	if err := r.Validate(); err != nil {
		log.Printf("Review agent %s returned an invalid result for %q: %v", a.Name(), ev.Title, err)
		return nil
	}
	if r.AgentName == "" {
		r.AgentName = a.Name()
	}
	return &r
}

// Aggregate folds the successful results for ev into one verdict. results
// are taken in the order given, which for ReviewAll is completion order:
// notes concatenate in that order, metadata merges with later results
// winning, and the last non-empty enriched description is kept.
//
// Verified needs a strict majority; an even split is unverified. With no
// results the event is unverified at confidence 0.5.
func Aggregate(ev event.Event, results []agent.ReviewResult) agent.EnrichedEvent {
	enriched := agent.EnrichedEvent{
		Event:      ev,
		Confidence: 0.5,
		Reviewers:  len(results),
	}
	if len(results) == 0 {
		return enriched
	}

	var verified int
	var total float64
	for _, r := range results {
		if r.Verified {
			verified++
		}
		total += r.Confidence
		enriched.Notes = append(enriched.Notes, r.Notes...)
		enriched.Metadata = enriched.Metadata.Merge(r.Metadata)
		if r.URLWorking {
			enriched.URLWorking = true
		}
		if r.VenueVerified {
			enriched.VenueVerified = true
		}
		if r.EnrichedDescription != "" {
			enriched.EnrichedDescription = r.EnrichedDescription
		}
	}

	enriched.Verified = verified*2 > len(results)
	enriched.Confidence = total / float64(len(results))
	return enriched
}

func voteSummary(results []agent.ReviewResult) string {
	var verified int
	votes := make([]string, 0, len(results))
	for _, r := range results {
		mark := "no"
		if r.Verified {
			verified++
			mark = "yes"
		}
		votes = append(votes, r.AgentName+":"+mark)
	}
	return fmt.Sprintf("%d/%d [%s]", verified, len(results), strings.Join(votes, " "))
}
