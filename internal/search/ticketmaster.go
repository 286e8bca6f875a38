package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

const ticketmasterMax = 20

// TicketmasterAgent searches the Ticketmaster Discovery API.
type TicketmasterAgent struct {
	APIKey    string
	City      string
	StateCode string
	DaysAhead int
	BaseURL   string
	Now       func() time.Time
	client    *http.Client
}

// NewTicketmasterAgent creates an agent for city/stateCode.
func NewTicketmasterAgent(apiKey, city, stateCode string, daysAhead int) *TicketmasterAgent {
	if daysAhead <= 0 {
		daysAhead = 3
	}
	return &TicketmasterAgent{
		APIKey:    apiKey,
		City:      city,
		StateCode: stateCode,
		DaysAhead: daysAhead,
		BaseURL:   "https://app.ticketmaster.com/discovery/v2/events.json",
		Now:       time.Now,
		client:    newClient(),
	}
}

func (t *TicketmasterAgent) Name() string { return "Ticketmaster" }

type ticketmasterResponse struct {
	Embedded struct {
		Events []struct {
			Name            string `json:"name"`
			Info            string `json:"info"`
			URL             string `json:"url"`
			Classifications []struct {
				Segment struct {
					Name string `json:"name"`
				} `json:"segment"`
				Genre struct {
					Name string `json:"name"`
				} `json:"genre"`
			} `json:"classifications"`
			Dates struct {
				Start struct {
					DateTime  string `json:"dateTime"`
					LocalDate string `json:"localDate"`
				} `json:"start"`
			} `json:"dates"`
			Embedded struct {
				Venues []struct {
					Name string `json:"name"`
					City struct {
						Name string `json:"name"`
					} `json:"city"`
				} `json:"venues"`
			} `json:"_embedded"`
		} `json:"events"`
	} `json:"_embedded"`
}

// Search fetches events starting within the next DaysAhead days.
func (t *TicketmasterAgent) Search(ctx context.Context) (agent.SearchResult, error) {
	start := time.Now()
	if t.APIKey == "" {
		return agent.FailedSearch(t.Name(), "Ticketmaster API key not configured", time.Since(start)), nil
	}

	now := t.Now().UTC()
	params := url.Values{}
	params.Set("apikey", t.APIKey)
	params.Set("city", t.City)
	params.Set("stateCode", t.StateCode)
	params.Set("startDateTime", now.Format("2006-01-02T15:04:05Z"))
	params.Set("endDateTime", now.AddDate(0, 0, t.DaysAhead).Format("2006-01-02T15:04:05Z"))
	params.Set("size", "50")
	params.Set("sort", "date,asc")

	var data ticketmasterResponse
	if err := getJSON(ctx, t.client, t.BaseURL+"?"+params.Encode(), nil, &data); err != nil {
		return agent.SearchResult{}, fmt.Errorf("ticketmaster: %w", err)
	}

	var events []event.Event
	for _, item := range data.Embedded.Events {
		if len(events) >= ticketmasterMax {
			break
		}
		e := event.Event{
			Title:       event.Truncate(strings.TrimSpace(item.Name), 200),
			Description: event.Truncate(item.Info, 500),
			URL:         item.URL,
			Source:      t.Name(),
		}
		e.Categories = event.Categorize(item.Name, item.Info)
		if len(item.Classifications) > 0 {
			c := item.Classifications[0]
			switch {
			case strings.EqualFold(c.Segment.Name, "music"):
				e.AddCategory("music")
			case strings.EqualFold(c.Segment.Name, "sports"):
				e.AddCategory("sports")
			case strings.EqualFold(c.Segment.Name, "arts & theatre"):
				e.AddCategory("arts")
			}
			if strings.Contains(strings.ToLower(c.Genre.Name), "outdoor") {
				e.AddCategory("outdoor")
			}
		}
		if ts := item.Dates.Start.DateTime; ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				e.Start = &parsed
			}
		}
		if len(item.Embedded.Venues) > 0 {
			v := item.Embedded.Venues[0]
			e.Location = strings.Trim(v.Name+", "+v.City.Name, ", ")
		}
		events = append(events, e)
	}

	return agent.NewSearchResult(t.Name(), events, 0.9, time.Since(start))
}
