package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

const meetupQuery = `query($q: String!, $first: Int!) {
  keywordSearch(input: {query: $q, first: $first}) {
    edges {
      node {
        ... on Event {
          title
          description
          eventUrl
          dateTime
          venue { name city }
        }
      }
    }
  }
}`

// MeetupAgent searches Meetup's GraphQL API.
type MeetupAgent struct {
	APIKey  string
	Query   string
	BaseURL string
	client  *http.Client
}

// NewMeetupAgent creates an agent searching for query.
func NewMeetupAgent(apiKey, query string) *MeetupAgent {
	return &MeetupAgent{
		APIKey:  apiKey,
		Query:   query,
		BaseURL: "https://api.meetup.com/gql",
		client:  newClient(),
	}
}

func (m *MeetupAgent) Name() string { return "Meetup" }

type meetupResponse struct {
	Data struct {
		KeywordSearch struct {
			Edges []struct {
				Node struct {
					Title       string `json:"title"`
					Description string `json:"description"`
					EventURL    string `json:"eventUrl"`
					DateTime    string `json:"dateTime"`
					Venue       *struct {
						Name string `json:"name"`
						City string `json:"city"`
					} `json:"venue"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"keywordSearch"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Search runs the keyword search.
func (m *MeetupAgent) Search(ctx context.Context) (agent.SearchResult, error) {
	start := time.Now()
	if m.APIKey == "" {
		return agent.FailedSearch(m.Name(), "Meetup API key not configured", time.Since(start)), nil
	}

	body := map[string]any{
		"query":     meetupQuery,
		"variables": map[string]any{"q": m.Query, "first": 20},
	}
	headers := map[string]string{"Authorization": "Bearer " + m.APIKey}

	var data meetupResponse
	if err := postJSON(ctx, m.client, m.BaseURL, headers, body, &data); err != nil {
		return agent.SearchResult{}, fmt.Errorf("meetup: %w", err)
	}
	if len(data.Errors) > 0 {
		return agent.SearchResult{}, fmt.Errorf("meetup: %s", data.Errors[0].Message)
	}

	var events []event.Event
	for _, edge := range data.Data.KeywordSearch.Edges {
		n := edge.Node
		title := strings.TrimSpace(n.Title)
		if title == "" {
			continue
		}
		e := event.Event{
			Title:       title,
			Description: event.Truncate(n.Description, 500),
			URL:         n.EventURL,
			Categories:  event.Categorize(n.Title, n.Description),
			Source:      m.Name(),
		}
		if n.DateTime != "" {
			if t, err := time.Parse(time.RFC3339, n.DateTime); err == nil {
				e.Start = &t
			}
		}
		if n.Venue != nil {
			e.Location = strings.Trim(n.Venue.Name+", "+n.Venue.City, ", ")
		}
		events = append(events, e)
	}

	return agent.NewSearchResult(m.Name(), events, 0.8, time.Since(start))
}
