// Package research gathers background knowledge about reviewed events:
// it extracts the entities an event involves, turns them into research
// queries, runs those against research backends and synthesizes the facts
// into a short narrative.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

// EntityType is the closed set of entity kinds.
type EntityType string

const (
	EntityArtist    EntityType = "artist"
	EntityVenue     EntityType = "venue"
	EntityOrganizer EntityType = "organizer"
	EntityTopic     EntityType = "topic"
	EntityGenre     EntityType = "genre"
)

// ParseEntityType maps free text onto an EntityType. Unknown kinds become
// EntityTopic.
func ParseEntityType(s string) EntityType {
	switch t := EntityType(strings.ToLower(strings.TrimSpace(s))); t {
	case EntityArtist, EntityVenue, EntityOrganizer, EntityTopic, EntityGenre:
		return t
	}
	return EntityTopic
}

// Entity is a person, place or theme an event involves.
type Entity struct {
	Name       string
	Type       EntityType
	Confidence float64
	Context    string
}

// NewEntity builds a range-checked entity.
func NewEntity(name string, typ EntityType, confidence float64, context string) (Entity, error) {
	if strings.TrimSpace(name) == "" {
		return Entity{}, fmt.Errorf("entity name is required")
	}
	if err := agent.CheckConfidence(confidence); err != nil {
		return Entity{}, fmt.Errorf("entity %s: %w", name, err)
	}
	return Entity{Name: name, Type: typ, Confidence: confidence, Context: context}, nil
}

// QueryType is the closed set of research angles.
type QueryType string

const (
	QueryBiographical   QueryType = "biographical"
	QueryContextual     QueryType = "contextual"
	QueryCurrent        QueryType = "current"
	QueryRelational     QueryType = "relational"
	QueryCulturalImpact QueryType = "cultural_impact"
	QueryVenueHistory   QueryType = "venue_history"
	QueryGenreOverview  QueryType = "genre_overview"
	QueryCollaboration  QueryType = "collaboration"
	QueryHistorical     QueryType = "historical"
	QueryAwards         QueryType = "awards"
)

var queryTypes = map[QueryType]bool{
	QueryBiographical: true, QueryContextual: true, QueryCurrent: true,
	QueryRelational: true, QueryCulturalImpact: true, QueryVenueHistory: true,
	QueryGenreOverview: true, QueryCollaboration: true, QueryHistorical: true,
	QueryAwards: true,
}

// ParseQueryType maps free text onto a QueryType. Unknown angles become
// QueryContextual.
func ParseQueryType(s string) QueryType {
	t := QueryType(strings.ToLower(strings.TrimSpace(s)))
	if queryTypes[t] {
		return t
	}
	return QueryContextual
}

// Query is one research question.
type Query struct {
	Text     string
	Priority int
	Entity   string
	Type     QueryType
}

// NewQuery builds a query with priority in [1, 10].
func NewQuery(text string, priority int, entity string, typ QueryType) (Query, error) {
	if strings.TrimSpace(text) == "" {
		return Query{}, fmt.Errorf("query text is required")
	}
	if priority < 1 || priority > 10 {
		return Query{}, fmt.Errorf("query priority %d out of range [1,10]", priority)
	}
	return Query{Text: text, Priority: priority, Entity: entity, Type: typ}, nil
}

// Result is what one backend found for one query.
type Result struct {
	Backend    string
	Query      Query
	Sources    []string
	Facts      []string
	Snippets   []string
	Confidence float64
	Duration   time.Duration
}

// Validate range-checks the result.
func (r Result) Validate() error {
	return agent.CheckConfidence(r.Confidence)
}

// EventResearch is everything learned about one event.
type EventResearch struct {
	EventTitle   string
	Entities     []Entity
	Queries      []Query
	Results      []Result
	Narrative    string
	KeyInsights  []string
	Confidence   float64
	ResearchedAt time.Time
}

// FactCount totals the facts across all results.
func (r EventResearch) FactCount() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Facts)
	}
	return n
}

// Stub is the minimal research recorded for an event whose pipeline failed.
func Stub(e event.Event) EventResearch {
	narrative := strings.TrimSpace(e.Description)
	if narrative == "" {
		narrative = e.Title
	}
	return EventResearch{
		EventTitle:   e.Title,
		Narrative:    narrative,
		Confidence:   0.5,
		ResearchedAt: time.Now(),
	}
}

// EntityExtractor finds the entities an event involves.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, e event.Event) ([]Entity, error)
}

// QueryGenerator turns entities into prioritized research queries.
type QueryGenerator interface {
	GenerateQueries(ctx context.Context, e event.Event, entities []Entity) ([]Query, error)
}

// Researcher answers one query from one backend.
type Researcher interface {
	Name() string
	Research(ctx context.Context, q Query) (Result, error)
}

// Synthesizer condenses research results into a narrative.
type Synthesizer interface {
	Synthesize(ctx context.Context, e event.Event, entities []Entity, results []Result) (EventResearch, error)
}
