package research

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/llm"
)

const entityPrompt = `Identify the entities involved in this event.

Entity types:
- artist: musicians, performers, speakers
- venue: specific locations, halls, parks, buildings
- organizer: companies or groups hosting the event
- topic: main themes or causes
- genre: music genres, art styles, activity types

Event title: %s
Description: %s
Location: %s
Categories: %s

Return 2-6 entities, one per line, in exactly this format:
ENTITY: <name> | TYPE: <type> | CONTEXT: <why it matters>`

const queryPrompt = `Generate 2-3 specific research queries that would make this event
more compelling to someone deciding whether to go.

Event: %s
Description: %s
Location: %s
Categories: %s
%s
Entities:
%s

Query types: biographical, contextual, current, relational, cultural_impact,
venue_history, genre_overview, collaboration, historical, awards.
Priority is 1-10, 10 being critical to understanding the event.

Respond with JSON only:
{"queries": [{"query": "...", "priority": 10, "entity_name": "...", "query_type": "biographical"}]}`

const musicHint = `This is a music event: at least one query should cover the artist's
hits, albums, current tour or awards.
`

const narrativePrompt = `Write a lively 150-250 word narrative about this event using only the
facts below. Explain what makes it special and why someone should attend.

Event: %s
Location: %s
Description: %s

Key entities:
%s

Facts:
%s`

// DefaultMaxEntities caps how many entities are kept per event.
const DefaultMaxEntities = 6

// DefaultMaxQueries caps how many queries are researched per event.
const DefaultMaxQueries = 3

// LLMEntityExtractor asks the LLM for entities in a line-oriented format.
type LLMEntityExtractor struct {
	provider llm.Provider
	Max      int
}

// NewLLMEntityExtractor creates an extractor keeping at most max entities.
func NewLLMEntityExtractor(provider llm.Provider, max int) *LLMEntityExtractor {
	if max <= 0 {
		max = DefaultMaxEntities
	}
	return &LLMEntityExtractor{provider: provider, Max: max}
}

func (x *LLMEntityExtractor) ExtractEntities(ctx context.Context, e event.Event) ([]Entity, error) {
	prompt := fmt.Sprintf(entityPrompt,
		e.Title,
		orDefault(e.Description, "No description provided"),
		orDefault(e.Location, "Location not specified"),
		orDefault(strings.Join(e.Categories, ", "), "None"),
	)
	text, err := x.provider.Generate(ctx, prompt, 500)
	if err != nil {
		return nil, fmt.Errorf("extracting entities: %w", err)
	}
	entities := ParseEntities(text)
	if len(entities) > x.Max {
		entities = entities[:x.Max]
	}
	return entities, nil
}

// ParseEntities reads "ENTITY: name | TYPE: type | CONTEXT: text" lines.
// Lines in any other shape are ignored.
func ParseEntities(text string) []Entity {
	var entities []Entity
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "ENTITY:") {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(parts[0], "ENTITY:"))
		typ := ParseEntityType(strings.TrimPrefix(strings.TrimSpace(parts[1]), "TYPE:"))
		var why string
		if len(parts) > 2 {
			why = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[2]), "CONTEXT:"))
		}
		ent, err := NewEntity(name, typ, 0.9, why)
		if err != nil {
			continue
		}
		entities = append(entities, ent)
	}
	return entities
}

// LLMQueryGenerator asks the LLM for research queries as JSON. When the
// reply is unusable it falls back to one plain query per leading entity.
type LLMQueryGenerator struct {
	provider llm.Provider
	Max      int
}

// NewLLMQueryGenerator creates a generator keeping at most max queries.
func NewLLMQueryGenerator(provider llm.Provider, max int) *LLMQueryGenerator {
	if max <= 0 {
		max = DefaultMaxQueries
	}
	return &LLMQueryGenerator{provider: provider, Max: max}
}

func (g *LLMQueryGenerator) GenerateQueries(ctx context.Context, e event.Event, entities []Entity) ([]Query, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	lines := make([]string, len(entities))
	for i, ent := range entities {
		lines[i] = fmt.Sprintf("- %s (%s, confidence: %.2f)", ent.Name, ent.Type, ent.Confidence)
	}
	hint := ""
	if isMusicEvent(e) {
		hint = musicHint
	}
	prompt := fmt.Sprintf(queryPrompt,
		e.Title,
		orDefault(e.Description, "N/A"),
		orDefault(e.Location, "N/A"),
		orDefault(strings.Join(e.Categories, ", "), "N/A"),
		hint,
		strings.Join(lines, "\n"),
	)

	text, err := g.provider.Generate(ctx, prompt, 600)
	if err != nil {
		log.Printf("Query generation failed for %q, using fallback queries: %v", e.Title, err)
		return g.limit(FallbackQueries(entities)), nil
	}
	queries, ok := parseQueries(text)
	if !ok {
		log.Printf("Could not parse queries for %q, using fallback queries", e.Title)
		return g.limit(FallbackQueries(entities)), nil
	}
	return g.limit(queries), nil
}

func (g *LLMQueryGenerator) limit(queries []Query) []Query {
	if len(queries) > g.Max {
		return queries[:g.Max]
	}
	return queries
}

// parseQueries reads the JSON reply, drops malformed entries and sorts by
// priority, highest first.
func parseQueries(text string) ([]Query, bool) {
	data := llm.ParseJSONResponse(text)
	if data == nil {
		return nil, false
	}
	raw, ok := data["queries"].([]any)
	if !ok {
		return nil, false
	}

	var queries []Query
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		q, err := NewQuery(
			llm.GetString(m, "query", ""),
			llm.GetInt(m, "priority", 5),
			llm.GetString(m, "entity_name", ""),
			ParseQueryType(llm.GetString(m, "query_type", "contextual")),
		)
		if err != nil {
			log.Printf("Skipping invalid query: %v", err)
			continue
		}
		queries = append(queries, q)
	}
	sort.SliceStable(queries, func(i, j int) bool {
		return queries[i].Priority > queries[j].Priority
	})
	return queries, true
}

// FallbackQueries builds "<name> information" queries for the first three
// entities, in descending priority.
func FallbackQueries(entities []Entity) []Query {
	var queries []Query
	for i, ent := range entities {
		if i >= 3 {
			break
		}
		queries = append(queries, Query{
			Text:     ent.Name + " information",
			Priority: 10 - i,
			Entity:   ent.Name,
			Type:     QueryBiographical,
		})
	}
	return queries
}

func isMusicEvent(e event.Event) bool {
	if e.HasCategory("music") {
		return true
	}
	title := strings.ToLower(e.Title)
	for _, k := range []string{"concert", "tour", "show", "live music", "orchestra", "band", "singer", "rapper", "dj"} {
		if strings.Contains(title, k) {
			return true
		}
	}
	return false
}

// MaxFacts is how many unique facts feed a narrative.
const MaxFacts = 15

var insightKeywords = []string{
	"grammy", "award", "legendary", "iconic", "historic", "first",
	"founded", "pioneered", "revolution", "collaborated", "million",
	"famous", "renowned", "celebrated",
}

// KnowledgeSynthesizer turns research results into a narrative and a few
// key insights. It never fails: without facts or without the LLM it falls
// back to plainer text at lower confidence.
type KnowledgeSynthesizer struct {
	provider llm.Provider
	Now      func() time.Time
}

// NewKnowledgeSynthesizer creates a synthesizer.
func NewKnowledgeSynthesizer(provider llm.Provider) *KnowledgeSynthesizer {
	return &KnowledgeSynthesizer{provider: provider, Now: time.Now}
}

func (s *KnowledgeSynthesizer) Synthesize(ctx context.Context, e event.Event, entities []Entity, results []Result) (EventResearch, error) {
	var facts []string
	queries := make([]Query, 0, len(results))
	for _, r := range results {
		facts = append(facts, r.Facts...)
		queries = append(queries, r.Query)
	}
	facts = DedupeFacts(facts)

	out := EventResearch{
		EventTitle:   e.Title,
		Entities:     entities,
		Queries:      queries,
		Results:      results,
		ResearchedAt: s.Now(),
	}

	if len(facts) == 0 {
		out.Narrative = fmt.Sprintf("%s at %s. %s", e.Title,
			orDefault(e.Location, "a local venue"),
			orDefault(e.Description, "A must-attend event!"))
		out.KeyInsights = []string{"Check event details for more information"}
		out.Confidence = 0.5
		return out, nil
	}

	out.KeyInsights = KeyInsights(facts, entities)

	narrative, err := s.narrative(ctx, e, entities, facts)
	if err != nil {
		log.Printf("Knowledge synthesis failed for %q: %v", e.Title, err)
		n := min(3, len(facts))
		out.Narrative = event.Truncate(e.Title+". "+strings.Join(facts[:n], " "), 500)
		out.Confidence = 0.6
		return out, nil
	}

	avg := 0.5
	if len(results) > 0 {
		var total float64
		for _, r := range results {
			total += r.Confidence
		}
		avg = total / float64(len(results))
	}
	out.Narrative = narrative
	out.Confidence = min(0.95, avg+0.1)
	return out, nil
}

func (s *KnowledgeSynthesizer) narrative(ctx context.Context, e event.Event, entities []Entity, facts []string) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("no LLM provider")
	}
	var ents []string
	for i, ent := range entities {
		if i >= 5 {
			break
		}
		ents = append(ents, fmt.Sprintf("- %s (%s): %s", ent.Name, ent.Type, ent.Context))
	}
	numbered := make([]string, len(facts))
	for i, f := range facts {
		numbered[i] = fmt.Sprintf("%d. %s", i+1, event.Truncate(f, 200))
	}
	prompt := fmt.Sprintf(narrativePrompt,
		e.Title,
		orDefault(e.Location, "N/A"),
		orDefault(e.Description, "No description provided"),
		strings.Join(ents, "\n"),
		strings.Join(numbered, "\n"),
	)
	text, err := s.provider.Generate(ctx, prompt, 800)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty narrative")
	}
	return text, nil
}

// DedupeFacts drops exact repeats and keeps the first MaxFacts.
func DedupeFacts(facts []string) []string {
	seen := make(map[string]struct{}, len(facts))
	var unique []string
	for _, f := range facts {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		unique = append(unique, f)
		if len(unique) == MaxFacts {
			break
		}
	}
	return unique
}

// KeyInsights picks up to five facts mentioning achievements or notability.
// Fewer than three are topped up with entity context lines.
func KeyInsights(facts []string, entities []Entity) []string {
	var insights []string
	for _, f := range facts {
		lower := strings.ToLower(f)
		for _, k := range insightKeywords {
			if strings.Contains(lower, k) {
				insights = append(insights, event.Truncate(f, 150))
				break
			}
		}
		if len(insights) >= 5 {
			break
		}
	}
	if len(insights) < 3 {
		for _, ent := range entities {
			if ent.Context == "" {
				continue
			}
			insights = append(insights, ent.Name+": "+ent.Context)
			if len(insights) >= 3 {
				break
			}
		}
	}
	if len(insights) > 5 {
		insights = insights[:5]
	}
	return insights
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
