package review

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/llm"
)

const contentPrompt = `Event title: %s
Current description: %s

Webpage content:
%s

Extract:
1. A better 2-sentence description if available
2. Any missing venue/location details
3. Price information if present

Keep it concise and factual.`

// ContentEnricher fetches the event page, extracts its readable text and
// asks the LLM for a better description.
type ContentEnricher struct {
	provider  llm.Provider
	client    *http.Client
	maxTokens int
}

// NewContentEnricher creates the agent. timeout <= 0 uses 10s.
func NewContentEnricher(provider llm.Provider, timeout time.Duration) *ContentEnricher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ContentEnricher{
		provider:  provider,
		maxTokens: 300,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

func (c *ContentEnricher) Name() string { return "content_enricher" }

func (c *ContentEnricher) Review(ctx context.Context, e event.Event) (agent.ReviewResult, error) {
	unverified := func(note string) agent.ReviewResult {
		return agent.ReviewResult{
			AgentName:  c.Name(),
			Verified:   false,
			Confidence: 0.6,
			Notes:      []string{note},
		}
	}

	if e.URL == "" {
		return unverified("No URL to scrape"), nil
	}

	text, status, err := c.fetchText(ctx, e.URL)
	if err != nil {
		return unverified("Enrichment failed: " + event.Truncate(err.Error(), 100)), nil
	}
	if status != http.StatusOK {
		return unverified(fmt.Sprintf("Could not fetch page: %d", status)), nil
	}

	desc := event.Truncate(text, 500)
	if c.provider != nil && text != "" {
		current := e.Description
		if current == "" {
			current = "None"
		}
		prompt := fmt.Sprintf(contentPrompt, e.Title, current, event.Truncate(text, 2000))
		generated, err := c.provider.Generate(ctx, prompt, c.maxTokens)
		if err != nil {
			return unverified("Enrichment failed: " + event.Truncate(err.Error(), 100)), nil
		}
		desc = event.Truncate(strings.TrimSpace(generated), 500)
	}

	return agent.ReviewResult{
		AgentName:           c.Name(),
		Verified:            true,
		Confidence:          0.9,
		Notes:               []string{"Content enriched via webpage"},
		EnrichedDescription: desc,
		URLWorking:          true,
	}, nil
}

// fetchText returns the readable text of pageURL and the HTTP status.
func (c *ContentEnricher) fetchText(ctx context.Context, pageURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", "eventscout/1.0 (local events digest)")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, nil
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("extracting content: %w", err)
	}
	return strings.Join(strings.Fields(article.TextContent), " "), resp.StatusCode, nil
}
