package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/serp"
)

// WebResearcher answers queries with web search snippets.
type WebResearcher struct {
	search *serp.Client
}

// NewWebResearcher creates a web search backend.
func NewWebResearcher(search *serp.Client) *WebResearcher {
	return &WebResearcher{search: search}
}

func (w *WebResearcher) Name() string { return "web_search" }

func (w *WebResearcher) Research(ctx context.Context, q Query) (Result, error) {
	start := time.Now()
	hits, err := w.search.Search(ctx, q.Text, 5)
	if err != nil {
		return Result{}, fmt.Errorf("web research %q: %w", q.Text, err)
	}

	res := Result{Backend: w.Name(), Query: q, Confidence: 0.5}
	for _, h := range hits {
		if h.Link != "" {
			res.Sources = append(res.Sources, h.Link)
		}
		if h.Snippet != "" {
			res.Facts = append(res.Facts, h.Snippet)
			res.Snippets = append(res.Snippets, h.Snippet)
		}
	}
	if len(res.Facts) > 0 {
		res.Confidence = 0.85
	}
	res.Duration = time.Since(start)
	return res, nil
}

var wikiSkipWords = map[string]bool{
	"about": true, "the": true, "a": true, "an": true, "what": true, "who": true,
	"where": true, "when": true, "why": true, "how": true, "is": true, "are": true,
	"biography": true, "information": true,
}

// WikipediaResearcher answers queries from Wikipedia page summaries.
type WikipediaResearcher struct {
	BaseURL string
	client  *http.Client
}

// NewWikipediaResearcher creates a Wikipedia backend.
func NewWikipediaResearcher() *WikipediaResearcher {
	return &WikipediaResearcher{
		BaseURL: "https://en.wikipedia.org/api/rest_v1/page/summary",
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *WikipediaResearcher) Name() string { return "wikipedia" }

// Research looks up the query's entity, or its leading key words, trying the
// full term and then its first word. A miss is an empty result, not an error.
func (w *WikipediaResearcher) Research(ctx context.Context, q Query) (Result, error) {
	start := time.Now()
	term := wikiTerm(q)

	attempts := []string{term}
	if first := strings.Fields(term); len(first) > 1 {
		attempts = append(attempts, first[0])
	}

	for _, attempt := range attempts {
		summary, err := w.summary(ctx, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			continue
		}
		facts := sentences(summary.Extract, 5)
		if len(facts) == 0 {
			continue
		}
		res := Result{
			Backend:    w.Name(),
			Query:      q,
			Facts:      facts,
			Snippets:   []string{event.Truncate(summary.Extract, 500)},
			Confidence: 0.95,
			Duration:   time.Since(start),
		}
		if summary.ContentURLs.Desktop.Page != "" {
			res.Sources = []string{summary.ContentURLs.Desktop.Page}
		}
		return res, nil
	}

	log.Printf("Wikipedia found nothing for %q", term)
	return Result{Backend: w.Name(), Query: q, Duration: time.Since(start)}, nil
}

type wikiSummary struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (w *WikipediaResearcher) summary(ctx context.Context, term string) (*wikiSummary, error) {
	u := w.BaseURL + "/" + url.PathEscape(strings.ReplaceAll(term, " ", "_"))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "eventscout/1.0 (local events digest)")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia returned %d", resp.StatusCode)
	}

	var s wikiSummary
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding wikipedia summary: %w", err)
	}
	return &s, nil
}

func wikiTerm(q Query) string {
	if q.Entity != "" {
		return q.Entity
	}
	words := strings.Fields(strings.Trim(q.Text, "?"))
	var key []string
	for _, w := range words {
		if !wikiSkipWords[strings.ToLower(w)] {
			key = append(key, w)
		}
	}
	if len(key) == 0 {
		key = words
	}
	if len(key) > 3 {
		key = key[:3]
	}
	return strings.Join(key, " ")
}

// sentences splits text on periods and keeps up to n sentences longer than
// 20 characters.
func sentences(text string, n int) []string {
	var out []string
	for _, s := range strings.Split(text, ".") {
		s = strings.TrimSpace(s)
		if len(s) <= 20 {
			continue
		}
		out = append(out, s+".")
		if len(out) == n {
			break
		}
	}
	return out
}

// ChainResearcher tries backends in order and returns the first result that
// carries facts. Backend errors are logged and skipped; only when every
// backend errors does the chain fail.
type ChainResearcher struct {
	backends []Researcher
}

// NewChainResearcher chains backends.
func NewChainResearcher(backends ...Researcher) *ChainResearcher {
	return &ChainResearcher{backends: backends}
}

func (c *ChainResearcher) Name() string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return strings.Join(names, "+")
}

func (c *ChainResearcher) Research(ctx context.Context, q Query) (Result, error) {
	var errs []error
	var empty *Result
	for _, b := range c.backends {
		res, err := b.Research(ctx, q)
		if err != nil {
			log.Printf("Research backend %s failed: %v", b.Name(), err)
			errs = append(errs, err)
			continue
		}
		if len(res.Facts) > 0 {
			return res, nil
		}
		if empty == nil {
			empty = &res
		}
	}
	if empty != nil {
		return *empty, nil
	}
	if len(errs) == 0 {
		return Result{}, fmt.Errorf("no research backends configured")
	}
	return Result{}, errors.Join(errs...)
}

// CachedResearcher memoizes successful results per query text. Results are
// kept for the TTL so repeated daily runs do not re-query the same artists.
type CachedResearcher struct {
	next   Researcher
	cache  *expirable.LRU[string, Result]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedResearcher wraps next with an LRU of size entries.
func NewCachedResearcher(next Researcher, size int, ttl time.Duration) *CachedResearcher {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedResearcher{
		next:  next,
		cache: expirable.NewLRU[string, Result](size, nil, ttl),
	}
}

func (c *CachedResearcher) Name() string { return c.next.Name() }

func (c *CachedResearcher) Research(ctx context.Context, q Query) (Result, error) {
	key := strings.ToLower(strings.TrimSpace(q.Text))
	if res, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		res.Query = q
		return res, nil
	}
	c.misses.Add(1)

	res, err := c.next.Research(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if len(res.Facts) > 0 {
		c.cache.Add(key, res)
	}
	return res, nil
}

// Stats returns cache hits and misses.
func (c *CachedResearcher) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
