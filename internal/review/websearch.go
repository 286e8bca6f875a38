package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/llm"
	"github.com/TobiSchelling/eventscout/internal/serp"
)

const webSearchPrompt = `Event: %s
Current description: %s

Search results:
%s

Based on these search results, briefly state:
1. Whether this looks like a real event in %s
2. Any additional details found (venue, time, price)

Keep it to 2-3 sentences.`

// WebSearchEnricher looks the event up on the web and has the LLM summarise
// what it finds. Finding the event at all raises confidence; lookup problems
// leave a neutral verdict rather than a failure.
type WebSearchEnricher struct {
	search    *serp.Client
	provider  llm.Provider
	city      string
	maxTokens int
}

// NewWebSearchEnricher creates the agent. provider may be nil, in which case
// the raw snippets are used as the enriched description.
func NewWebSearchEnricher(search *serp.Client, provider llm.Provider, city string) *WebSearchEnricher {
	return &WebSearchEnricher{search: search, provider: provider, city: city, maxTokens: 300}
}

func (w *WebSearchEnricher) Name() string { return "web_search_enricher" }

func (w *WebSearchEnricher) Review(ctx context.Context, e event.Event) (agent.ReviewResult, error) {
	neutral := func(note string) agent.ReviewResult {
		return agent.ReviewResult{
			AgentName:  w.Name(),
			Verified:   true,
			Confidence: 0.7,
			Notes:      []string{note},
		}
	}

	query := strings.TrimSpace(e.Title + " " + w.city)
	if e.Location != "" {
		query += " " + e.Location
	}

	hits, err := w.search.Search(ctx, query, 3)
	if errors.Is(err, serp.ErrNoKey) {
		return neutral("SerpAPI key not configured"), nil
	}
	if err != nil {
		return neutral("Web search error: " + event.Truncate(err.Error(), 100)), nil
	}

	var snippets []string
	for _, h := range hits {
		if h.Snippet != "" {
			snippets = append(snippets, h.Snippet)
		}
	}
	if len(snippets) == 0 {
		return agent.ReviewResult{
			AgentName:  w.Name(),
			Verified:   true,
			Confidence: 0.6,
			Notes:      []string{"No search results found"},
		}, nil
	}

	synthesis := strings.Join(snippets, " ")
	if w.provider != nil {
		desc := e.Description
		if desc == "" {
			desc = "None"
		}
		prompt := fmt.Sprintf(webSearchPrompt, e.Title, desc, strings.Join(snippets, "\n\n"), w.city)
		if text, err := w.provider.Generate(ctx, prompt, w.maxTokens); err == nil && strings.TrimSpace(text) != "" {
			synthesis = strings.TrimSpace(text)
		}
	}

	return agent.ReviewResult{
		AgentName:  w.Name(),
		Verified:   true,
		Confidence: 0.85,
		Notes: []string{
			fmt.Sprintf("Web search found %d results", len(snippets)),
			"Synthesis: " + event.Truncate(synthesis, 200),
		},
		Metadata:            agent.Metadata{SearchHits: agent.IntPtr(len(snippets))},
		EnrichedDescription: event.Truncate(synthesis, 500),
		URLWorking:          true,
	}, nil
}
