package search

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

const serpAPIMax = 30

// SerpAPIAgent searches Google Events through SerpAPI.
type SerpAPIAgent struct {
	APIKey   string
	Query    string
	Location *time.Location
	BaseURL  string
	Now      func() time.Time
	client   *http.Client
}

// NewSerpAPIAgent creates an agent for query. Listing dates are read in loc.
func NewSerpAPIAgent(apiKey, query string, loc *time.Location) *SerpAPIAgent {
	return &SerpAPIAgent{
		APIKey:   apiKey,
		Query:    query,
		Location: loc,
		BaseURL:  "https://serpapi.com/search",
		Now:      time.Now,
		client:   newClient(),
	}
}

func (s *SerpAPIAgent) Name() string { return "Google Events" }

type serpEventsResponse struct {
	Error         string `json:"error"`
	EventsResults []struct {
		Title string `json:"title"`
		Date  struct {
			StartDate string `json:"start_date"`
			When      string `json:"when"`
		} `json:"date"`
		Address     []string `json:"address"`
		Link        string   `json:"link"`
		Description string   `json:"description"`
		Venue       struct {
			Name string `json:"name"`
		} `json:"venue"`
	} `json:"events_results"`
}

// Search queries the google_events engine.
func (s *SerpAPIAgent) Search(ctx context.Context) (agent.SearchResult, error) {
	start := time.Now()
	if s.APIKey == "" {
		return agent.FailedSearch(s.Name(), "SerpAPI key not configured", time.Since(start)), nil
	}

	params := url.Values{}
	params.Set("engine", "google_events")
	params.Set("q", s.Query)
	params.Set("hl", "en")
	params.Set("gl", "us")
	params.Set("api_key", s.APIKey)

	var data serpEventsResponse
	if err := getJSON(ctx, s.client, s.BaseURL+"?"+params.Encode(), nil, &data); err != nil {
		return agent.SearchResult{}, fmt.Errorf("serpapi: %w", err)
	}
	if data.Error != "" {
		return agent.FailedSearch(s.Name(), data.Error, time.Since(start)), nil
	}

	now := s.Now()
	var events []event.Event
	for _, item := range data.EventsResults {
		if len(events) >= serpAPIMax {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		e := event.Event{
			Title:       title,
			Description: event.Truncate(item.Description, 500),
			URL:         item.Link,
			Categories:  event.Categorize(item.Title, item.Description),
			Source:      s.Name(),
		}
		switch {
		case len(item.Address) > 0:
			e.Location = strings.Join(item.Address, ", ")
		case item.Venue.Name != "":
			e.Location = item.Venue.Name
		}
		when := item.Date.When
		if when == "" {
			when = item.Date.StartDate
		}
		if when != "" {
			if t, err := event.ParseWhen(when, s.Location, now); err == nil {
				e.Start = &t
			} else {
				log.Printf("Could not parse date %q for %q", when, title)
			}
		}
		events = append(events, e)
	}

	return agent.NewSearchResult(s.Name(), events, 0.95, time.Since(start))
}
