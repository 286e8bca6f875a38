// Package search runs the search agents and provides one agent per
// supported event source.
package search

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

// RunParallel invokes every agent concurrently and returns one result per
// agent in input order. A source that errors, panics or returns a malformed
// result becomes a failed result; it never affects the others.
func RunParallel(ctx context.Context, agents []agent.SearchAgent) []agent.SearchResult {
	results := make([]agent.SearchResult, len(agents))

	var g errgroup.Group
	for i, a := range agents {
		g.Go(func() error {
			results[i] = runOne(ctx, a)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func runOne(ctx context.Context, a agent.SearchAgent) (res agent.SearchResult) {
	start := time.Now()
	name := a.Name()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Search agent %s panicked: %v", name, r)
			res = agent.FailedSearch(name, fmt.Sprintf("panic: %v", r), time.Since(start))
		}
	}()

	res, err := a.Search(ctx)
	if err != nil {
		log.Printf("Search agent %s failed: %v", name, err)
		return agent.FailedSearch(name, err.Error(), time.Since(start))
	}
	if res.AgentName == "" {
		res.AgentName = name
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	if err := res.Validate(); err != nil {
		log.Printf("Search agent %s returned an invalid result: %v", name, err)
		return agent.FailedSearch(name, "invalid result: "+err.Error(), res.Duration)
	}
	if res.Success {
		res.Events = validEvents(name, res.Events)
	}
	return res
}

func validEvents(source string, events []event.Event) []event.Event {
	valid := events[:0:0]
	for _, e := range events {
		if err := e.Validate(); err != nil {
			log.Printf("Dropping event from %s: %v", source, err)
			continue
		}
		if e.Source == "" {
			e.Source = source
		}
		valid = append(valid, e)
	}
	return valid
}

// MergeSuccessful concatenates the events of successful results in result
// order.
func MergeSuccessful(results []agent.SearchResult) []event.Event {
	var all []event.Event
	for _, r := range results {
		if r.Success {
			all = append(all, r.Events...)
		}
	}
	return all
}
