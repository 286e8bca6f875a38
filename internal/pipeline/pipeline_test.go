package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/compose"
	"github.com/TobiSchelling/eventscout/internal/config"
	"github.com/TobiSchelling/eventscout/internal/database"
	"github.com/TobiSchelling/eventscout/internal/event"
	"github.com/TobiSchelling/eventscout/internal/planner"
	"github.com/TobiSchelling/eventscout/internal/serp"
)

type fakeRunner struct {
	fail     bool
	research bool
}

func (f *fakeRunner) Run(_ context.Context, st *planner.State) *planner.State {
	f.research = st.ResearchEnabled
	st.Iterations = 5
	if f.fail {
		st.MarkFailed(errors.New("search exploded"))
		return st
	}
	jazz := event.Event{Title: "Jazz Night", URL: "https://example.com/jazz", Location: "Blue Room"}
	ride := event.Event{Title: "Bike ride"}
	st.EventsFound = []event.Event{jazz, ride}
	st.EventsReviewed = []agent.EnrichedEvent{
		{Event: jazz, Verified: true, Confidence: 0.9},
		{Event: ride, Verified: true, Confidence: 0.8},
	}
	st.Output = "Two great nights out this week."
	st.IncludedTitles = []string{"Jazz Night"}
	st.MarkComplete()
	return st
}

type fakeNotifier struct {
	sent []compose.Digest
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, d compose.Digest) error {
	f.sent = append(f.sent, d)
	return f.err
}

type stubProvider struct{}

func (stubProvider) Generate(context.Context, string, int) (string, error) { return "{}", nil }
func (stubProvider) IsConfigured() bool                                    { return true }

func testConfig() *config.Config {
	return &config.Config{
		Location: config.Location{City: "Houston", StateCode: "TX", Timezone: "UTC"},
		Delivery: config.Delivery{Method: "email", Recipient: "me@example.com"},
	}
}

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func stepNames(r *Result) []string {
	var names []string
	for _, s := range r.Steps {
		names = append(names, s.Name)
	}
	return names
}

func TestRunPersistsAndDelivers(t *testing.T) {
	db := testDB(t)
	notifier := &fakeNotifier{}
	p := New(testConfig(), db, &fakeRunner{}, notifier, nil)

	r := p.Run(context.Background(), Options{PeriodID: "2026-10-18"})

	assert.Equal(t, []string{"Plan", "Compose", "Save", "Deliver", "Report"}, stepNames(r))
	assert.False(t, r.Failed())
	assert.Equal(t, agent.PhaseComplete, r.Phase)
	assert.Equal(t, 2, r.Digest.EventCount)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Jazz Night", notifier.sent[0].Events[0].Title)

	stored, err := db.GetEventsForPeriod("2026-10-18")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	d, err := db.GetDigest(r.RunID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.True(t, d.Delivered)
	assert.Equal(t, "complete", d.Phase)

	reports, err := db.GetRecentReports(1)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 5, reports[0].Iterations)
	assert.Equal(t, 2, reports[0].EventsReviewed)
	assert.Nil(t, reports[0].Error)
}

func TestRunDryRunSkipsSideEffects(t *testing.T) {
	db := testDB(t)
	notifier := &fakeNotifier{}
	p := New(testConfig(), db, &fakeRunner{}, notifier, nil)

	r := p.Run(context.Background(), Options{PeriodID: "2026-10-18", DryRun: true})

	assert.False(t, r.Failed())
	assert.Empty(t, notifier.sent)
	assert.NotEmpty(t, r.Digest.Text)
	latest, _ := db.LatestEvents(10)
	assert.Empty(t, latest)
	d, _ := db.GetLatestDigest()
	assert.Nil(t, d)
}

func TestRunNoDBStillDelivers(t *testing.T) {
	notifier := &fakeNotifier{}
	p := New(testConfig(), nil, &fakeRunner{}, notifier, nil)

	r := p.Run(context.Background(), Options{NoDB: true})

	assert.False(t, r.Failed())
	assert.Len(t, notifier.sent, 1)
	assert.Len(t, r.PeriodID, len("2006-01-02"))
}

func TestRunFailedWorkflow(t *testing.T) {
	db := testDB(t)
	notifier := &fakeNotifier{}
	p := New(testConfig(), db, &fakeRunner{fail: true}, notifier, nil)

	r := p.Run(context.Background(), Options{PeriodID: "2026-10-18"})

	assert.True(t, r.Failed())
	assert.ErrorContains(t, r.Steps[0].Err, "search exploded")
	assert.True(t, r.Digest.Failed)
	assert.Empty(t, notifier.sent)

	reports, err := db.GetRecentReports(1)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "failed", reports[0].Phase)
	require.NotNil(t, reports[0].Error)
	assert.Contains(t, *reports[0].Error, "search exploded")
}

func TestRunDeliveryError(t *testing.T) {
	db := testDB(t)
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	p := New(testConfig(), db, &fakeRunner{}, notifier, nil)

	r := p.Run(context.Background(), Options{PeriodID: "2026-10-18"})

	assert.True(t, r.Failed())
	assert.ErrorContains(t, r.Steps[3].Err, "smtp down")
	d, err := db.GetDigest(r.RunID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.False(t, d.Delivered)
}

func TestRunResearchOption(t *testing.T) {
	runner := &fakeRunner{}
	p := New(testConfig(), nil, runner, &fakeNotifier{}, nil)

	p.Run(context.Background(), Options{DryRun: true})
	assert.False(t, runner.research)

	p.Run(context.Background(), Options{DryRun: true, Research: true})
	assert.True(t, runner.research)
}

func TestSearchAgents(t *testing.T) {
	cfg := testConfig()
	cfg.Sources = config.Sources{
		Ticketmaster: config.TicketmasterConfig{Enabled: true, DaysAhead: 3},
		SerpAPI:      config.SerpAPIConfig{Enabled: true, Query: "events"},
		Feeds:        []config.Feed{{URL: "https://example.org/rss", Name: "Example"}},
		Pages:        []config.Page{{Name: "Board", URL: "https://example.org/events", Item: ".card"}},
	}

	agents := SearchAgents(cfg, config.Secrets{})
	var names []string
	for _, a := range agents {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"Ticketmaster", "Google Events", "Example", "Board"}, names)
}

func TestReviewAgents(t *testing.T) {
	cfg := testConfig()
	cfg.Review = config.Review{Relevance: true, DateWindowDays: 7}

	agents := ReviewAgents(cfg, serp.New("", 0), nil, nil)
	require.Len(t, agents, 2)
	assert.Equal(t, "relevance_scorer", agents[0].Name())
	assert.Equal(t, "date_verifier", agents[1].Name())
}

func TestReviewAgentsSeeInterestEdits(t *testing.T) {
	db := testDB(t)
	cfg := testConfig()
	cfg.Review = config.Review{Relevance: true}

	agents := ReviewAgents(cfg, serp.New("", 0), nil, db.ActiveEventInterests)
	require.Len(t, agents, 1)
	ev := event.Event{Title: "Sunday cyclocross race"}

	before, err := agents[0].Review(context.Background(), ev)
	require.NoError(t, err)

	_, err = db.InsertInterest("Cyclocross", "", []string{"cyclocross"}, 9)
	require.NoError(t, err)

	after, err := agents[0].Review(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, *before.Metadata.RelevanceScore+9, *after.Metadata.RelevanceScore)
}

func TestResearchPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.Research = config.Research{Backends: []string{"web", "wikipedia"}, CacheSize: 16, MaxConcurrent: 2}

	assert.Nil(t, ResearchPipeline(cfg, serp.New("", 0), nil), "no provider means no research")

	p := ResearchPipeline(cfg, serp.New("", 0), stubProvider{})
	require.NotNil(t, p)
	assert.Equal(t, 2, p.MaxConcurrent)

	cfg.Research.Backends = []string{"web"}
	assert.Nil(t, ResearchPipeline(cfg, serp.New("", 0), stubProvider{}), "web without a key leaves no backend")
}
