// Package agent defines the contracts between the planner and the agents it
// drives, along with the values those agents produce.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/eventscout/internal/event"
)

// SearchAgent fetches candidate events from one source.
type SearchAgent interface {
	Name() string
	Search(ctx context.Context) (SearchResult, error)
}

// ReviewAgent independently checks and enriches one event.
type ReviewAgent interface {
	Name() string
	Review(ctx context.Context, e event.Event) (ReviewResult, error)
}

// SearchResult is the outcome of one search invocation.
type SearchResult struct {
	AgentName  string
	Events     []event.Event
	Success    bool
	Error      string
	Confidence float64
	Duration   time.Duration
}

// NewSearchResult builds a successful result.
func NewSearchResult(agentName string, events []event.Event, confidence float64, d time.Duration) (SearchResult, error) {
	if err := CheckConfidence(confidence); err != nil {
		return SearchResult{}, fmt.Errorf("search result from %s: %w", agentName, err)
	}
	return SearchResult{
		AgentName:  agentName,
		Events:     events,
		Success:    true,
		Confidence: confidence,
		Duration:   d,
	}, nil
}

// FailedSearch builds the result for a source that could not deliver.
func FailedSearch(agentName string, reason string, d time.Duration) SearchResult {
	if strings.TrimSpace(reason) == "" {
		reason = "unknown error"
	}
	return SearchResult{
		AgentName: agentName,
		Success:   false,
		Error:     reason,
		Duration:  d,
	}
}

// Validate checks the result shape: confidence in range and an error
// message present exactly when the search failed.
func (r SearchResult) Validate() error {
	if err := CheckConfidence(r.Confidence); err != nil {
		return err
	}
	if r.Success && r.Error != "" {
		return fmt.Errorf("successful search result carries error %q", r.Error)
	}
	if !r.Success && r.Error == "" {
		return fmt.Errorf("failed search result has no error message")
	}
	return nil
}

// Metadata carries the named facts review agents may attach to an event.
// Unset fields are nil.
type Metadata struct {
	RelevanceScore *int
	SearchHits     *int
}

// Merge overlays o onto m: any field set in o wins.
func (m Metadata) Merge(o Metadata) Metadata {
	if o.RelevanceScore != nil {
		v := *o.RelevanceScore
		m.RelevanceScore = &v
	}
	if o.SearchHits != nil {
		v := *o.SearchHits
		m.SearchHits = &v
	}
	return m
}

// IntPtr is a helper for populating Metadata.
func IntPtr(v int) *int { return &v }

// ReviewResult is one agent's verdict on one event.
type ReviewResult struct {
	AgentName           string
	Verified            bool
	Confidence          float64
	Notes               []string
	Metadata            Metadata
	EnrichedDescription string
	URLWorking          bool
	VenueVerified       bool
}

// Validate range-checks the verdict.
func (r ReviewResult) Validate() error {
	return CheckConfidence(r.Confidence)
}

// EnrichedEvent is an event with the aggregated verdict of the review swarm.
type EnrichedEvent struct {
	Event               event.Event
	Verified            bool
	Confidence          float64
	Notes               []string
	Metadata            Metadata
	EnrichedDescription string
	URLWorking          bool
	VenueVerified       bool
	Reviewers           int
}

// Events unwraps enriched events.
func Events(enriched []EnrichedEvent) []event.Event {
	out := make([]event.Event, len(enriched))
	for i, e := range enriched {
		out[i] = e.Event
	}
	return out
}

// MeanConfidence averages review confidence. Zero when there is nothing
// to average.
func MeanConfidence(enriched []EnrichedEvent) float64 {
	if len(enriched) == 0 {
		return 0
	}
	var total float64
	for _, e := range enriched {
		total += e.Confidence
	}
	return total / float64(len(enriched))
}
