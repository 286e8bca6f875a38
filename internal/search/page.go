package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

const maxPerPage = 30

// Selectors locate event fields on a listing page. Item selects one node per
// event; the remaining selectors are evaluated inside it. Empty field
// selectors are skipped, except Title which defaults to the item text.
type Selectors struct {
	Item     string
	Title    string
	Link     string
	When     string
	Location string
	Summary  string
}

// PageAgent scrapes a venue or city calendar page.
type PageAgent struct {
	SourceName string
	URL        string
	Selectors  Selectors
	Location   *time.Location
	Now        func() time.Time
	client     *http.Client
}

// NewPageAgent creates a scraper for pageURL.
func NewPageAgent(name, pageURL string, sel Selectors, loc *time.Location) *PageAgent {
	if name == "" {
		name = extractSourceName(pageURL)
	}
	return &PageAgent{
		SourceName: name,
		URL:        pageURL,
		Selectors:  sel,
		Location:   loc,
		Now:        time.Now,
		client:     newClient(),
	}
}

func (p *PageAgent) Name() string { return p.SourceName }

// Search fetches the page and extracts one event per item node.
func (p *PageAgent) Search(ctx context.Context) (agent.SearchResult, error) {
	start := time.Now()
	if p.Selectors.Item == "" {
		return agent.FailedSearch(p.Name(), "no item selector configured", time.Since(start)), nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", p.URL, nil)
	if err != nil {
		return agent.SearchResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return agent.SearchResult{}, fmt.Errorf("fetching %s: %w", p.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return agent.SearchResult{}, fmt.Errorf("fetching %s: status %d", p.URL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return agent.SearchResult{}, fmt.Errorf("parsing %s: %w", p.URL, err)
	}

	base, _ := url.Parse(p.URL)
	now := p.Now()
	var events []event.Event
	doc.Find(p.Selectors.Item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if e, ok := p.extract(s, base, now); ok {
			events = append(events, e)
		}
		return len(events) < maxPerPage
	})

	return agent.NewSearchResult(p.Name(), events, 0.75, time.Since(start))
}

func (p *PageAgent) extract(s *goquery.Selection, base *url.URL, now time.Time) (event.Event, bool) {
	title := fieldText(s, p.Selectors.Title)
	if p.Selectors.Title == "" {
		title = strings.Join(strings.Fields(s.Text()), " ")
	}
	if title == "" {
		return event.Event{}, false
	}
	summary := fieldText(s, p.Selectors.Summary)

	e := event.Event{
		Title:       event.Truncate(title, 200),
		Description: event.Truncate(summary, 500),
		Location:    fieldText(s, p.Selectors.Location),
		Categories:  event.Categorize(title, summary),
		Source:      p.SourceName,
	}

	if p.Selectors.Link != "" {
		if href, ok := s.Find(p.Selectors.Link).First().Attr("href"); ok {
			e.URL = resolveLink(base, href)
		}
	}

	if p.Selectors.When != "" {
		w := s.Find(p.Selectors.When).First()
		when, ok := w.Attr("datetime")
		if !ok {
			when = strings.Join(strings.Fields(w.Text()), " ")
		}
		if when != "" {
			if t, err := event.ParseWhen(when, p.Location, now); err == nil {
				e.Start = &t
			}
		}
	}

	return e, true
}

func fieldText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
