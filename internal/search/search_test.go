package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

// mockAgent implements agent.SearchAgent for testing.
type mockAgent struct {
	name   string
	events []event.Event
	err    error
	panics bool
	delay  time.Duration
	conf   float64
}

func (m *mockAgent) Name() string { return m.name }

func (m *mockAgent) Search(ctx context.Context) (agent.SearchResult, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.panics {
		panic("boom")
	}
	if m.err != nil {
		return agent.SearchResult{}, m.err
	}
	conf := m.conf
	if conf == 0 {
		conf = 0.9
	}
	return agent.NewSearchResult(m.name, m.events, conf, time.Millisecond)
}

type badResultAgent struct{}

func (badResultAgent) Name() string { return "bad" }

func (badResultAgent) Search(context.Context) (agent.SearchResult, error) {
	return agent.SearchResult{AgentName: "bad", Success: true, Confidence: 1.7}, nil
}

func TestRunParallelKeepsInputOrder(t *testing.T) {
	agents := []agent.SearchAgent{
		&mockAgent{name: "slow", delay: 30 * time.Millisecond, events: []event.Event{{Title: "A"}}},
		&mockAgent{name: "fast", events: []event.Event{{Title: "B"}}},
	}

	results := RunParallel(context.Background(), agents)
	require.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].AgentName)
	assert.Equal(t, "fast", results[1].AgentName)
	assert.True(t, results[0].Success)
	assert.Equal(t, []string{"A", "B"}, event.Titles(MergeSuccessful(results)))
}

func TestRunParallelConvertsFailures(t *testing.T) {
	agents := []agent.SearchAgent{
		&mockAgent{name: "ok", events: []event.Event{{Title: "Jazz Night"}}},
		&mockAgent{name: "down", err: errors.New("connection refused")},
		&mockAgent{name: "crash", panics: true},
		badResultAgent{},
	}

	results := RunParallel(context.Background(), agents)
	require.Len(t, results, 4)

	assert.True(t, results[0].Success)

	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "connection refused")

	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, "panic")

	assert.False(t, results[3].Success)
	assert.Contains(t, results[3].Error, "invalid result")

	merged := MergeSuccessful(results)
	assert.Equal(t, []string{"Jazz Night"}, event.Titles(merged))
}

func TestRunParallelDropsInvalidEvents(t *testing.T) {
	agents := []agent.SearchAgent{
		&mockAgent{name: "src", events: []event.Event{{Title: ""}, {Title: "Valid"}}},
	}
	results := RunParallel(context.Background(), agents)
	require.True(t, results[0].Success)
	require.Len(t, results[0].Events, 1)
	assert.Equal(t, "Valid", results[0].Events[0].Title)
	assert.Equal(t, "src", results[0].Events[0].Source)
}

func TestRunParallelNoAgents(t *testing.T) {
	assert.Empty(t, RunParallel(context.Background(), nil))
}

func TestTicketmasterWithoutKey(t *testing.T) {
	res, err := NewTicketmasterAgent("", "Houston", "TX", 3).Search(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not configured")
}

func TestTicketmasterSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		assert.Equal(t, "Houston", r.URL.Query().Get("city"))
		fmt.Fprint(w, `{"_embedded":{"events":[{
			"name":"Bayou Jazz Concert","info":"Live music by the water","url":"https://tm.example/1",
			"classifications":[{"segment":{"name":"Music"},"genre":{"name":"Jazz"}}],
			"dates":{"start":{"dateTime":"2026-10-18T23:00:00Z"}},
			"_embedded":{"venues":[{"name":"Discovery Green","city":{"name":"Houston"}}]}
		}]}}`)
	}))
	defer srv.Close()

	a := NewTicketmasterAgent("secret", "Houston", "TX", 3)
	a.BaseURL = srv.URL

	res, err := a.Search(context.Background())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Events, 1)

	e := res.Events[0]
	assert.Equal(t, "Bayou Jazz Concert", e.Title)
	assert.Equal(t, "Discovery Green, Houston", e.Location)
	assert.True(t, e.HasCategory("music"))
	require.NotNil(t, e.Start)
	assert.Equal(t, 2026, e.Start.Year())
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
}

func TestTicketmasterHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewTicketmasterAgent("secret", "Houston", "TX", 3)
	a.BaseURL = srv.URL
	_, err := a.Search(context.Background())
	assert.ErrorContains(t, err, "429")
}

func TestMeetupSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":{"keywordSearch":{"edges":[
			{"node":{"title":"Group Bike Ride","description":"Easy pace","eventUrl":"https://meetup.example/1",
			 "dateTime":"2026-10-19T08:00:00-05:00","venue":{"name":"Memorial Park","city":"Houston"}}},
			{"node":{"title":"  "}}
		]}}}`)
	}))
	defer srv.Close()

	a := NewMeetupAgent("tok", "bike")
	a.BaseURL = srv.URL

	res, err := a.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Memorial Park, Houston", res.Events[0].Location)
	assert.True(t, res.Events[0].HasCategory("cycling"))
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
}

func TestMeetupGraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"unauthorized"}]}`)
	}))
	defer srv.Close()

	a := NewMeetupAgent("tok", "bike")
	a.BaseURL = srv.URL
	_, err := a.Search(context.Background())
	assert.ErrorContains(t, err, "unauthorized")
}

func TestSerpAPISearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "google_events", r.URL.Query().Get("engine"))
		fmt.Fprint(w, `{"events_results":[
			{"title":"Art Walk","date":{"when":"2026-10-18T19:00:00-05:00"},"address":["Heights","Houston, TX"],
			 "link":"https://ex.example/art","description":"Galleries open late"},
			{"title":"Trivia Night","venue":{"name":"Pub"}}
		]}`)
	}))
	defer srv.Close()

	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	a := NewSerpAPIAgent("k", "events in Houston", loc)
	a.BaseURL = srv.URL

	res, err := a.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "Heights, Houston, TX", res.Events[0].Location)
	require.NotNil(t, res.Events[0].Start)
	assert.Equal(t, 18, res.Events[0].Start.Day())
	assert.Equal(t, "Pub", res.Events[1].Location)
	assert.Nil(t, res.Events[1].Start)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
}

func TestSerpAPIErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"Invalid API key"}`)
	}))
	defer srv.Close()

	a := NewSerpAPIAgent("k", "q", time.UTC)
	a.BaseURL = srv.URL
	res, err := a.Search(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid API key", res.Error)
}

func TestFeedAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Calendar</title>
<item><title>Dog Day at the Park</title><link>https://cal.example/dog</link>
<description>&lt;p&gt;Bring your &lt;b&gt;pup&lt;/b&gt;&lt;/p&gt;</description>
<pubDate>Sun, 19 Oct 2026 10:00:00 -0500</pubDate></item>
<item><title>Old Event</title><link>https://cal.example/old</link>
<pubDate>Mon, 01 Jan 2024 10:00:00 -0500</pubDate></item>
</channel></rss>`)
	}))
	defer srv.Close()

	a := NewFeedAgent(srv.URL, "City Calendar", time.UTC)
	a.Now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }

	res, err := a.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	e := res.Events[0]
	assert.Equal(t, "Dog Day at the Park", e.Title)
	assert.Equal(t, "Bring your pup", e.Description)
	assert.Equal(t, "City Calendar", e.Source)
	assert.True(t, e.HasCategory("outdoor"))
}

func TestFeedAgentUnreachable(t *testing.T) {
	a := NewFeedAgent("http://127.0.0.1:1/feed.xml", "", time.UTC)
	_, err := a.Search(context.Background())
	assert.Error(t, err)
}

func TestPageAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
<div class="event"><h3>Comedy Open Mic</h3><a href="/e/1">details</a>
  <time datetime="2026-10-18T20:00:00-05:00">Tonight</time><span class="where">Rudyard's</span>
  <p>Bring friends</p></div>
<div class="event"><h3></h3></div>
</body></html>`)
	}))
	defer srv.Close()

	a := NewPageAgent("Venue", srv.URL, Selectors{
		Item: ".event", Title: "h3", Link: "a", When: "time", Location: ".where", Summary: "p",
	}, time.UTC)

	res, err := a.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	e := res.Events[0]
	assert.Equal(t, "Comedy Open Mic", e.Title)
	assert.Equal(t, srv.URL+"/e/1", e.URL)
	assert.Equal(t, "Rudyard's", e.Location)
	require.NotNil(t, e.Start)
	assert.Equal(t, 20, e.Start.Hour())
}

func TestPageAgentWithoutItemSelector(t *testing.T) {
	res, err := NewPageAgent("x", "http://example.invalid", Selectors{}, nil).Search(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestExtractSourceName(t *testing.T) {
	tests := map[string]string{
		"https://www.houstonpress.com/events.rss": "Houstonpress",
		"https://events.rice.edu/feed":            "Rice",
		"not a url":                               "not a url",
	}
	for in, want := range tests {
		assert.Equal(t, want, extractSourceName(in), in)
	}
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hello world & friends", stripHTML("<p>Hello <em>world</em> &amp; friends</p>"))
	assert.Equal(t, "plain", strings.TrimSpace(stripHTML("plain")))
}
