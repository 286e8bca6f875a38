package event

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeFirstOccurrenceWins(t *testing.T) {
	events := []Event{
		{Title: "Jazz Night", URL: "https://first.example"},
		{Title: "jazz night", URL: "https://second.example"},
		{Title: "Bayou Ride"},
		{Title: "JAZZ NIGHT"},
	}

	unique := Dedupe(events)

	require.Len(t, unique, 2)
	assert.Equal(t, "Jazz Night", unique[0].Title)
	assert.Equal(t, "https://first.example", unique[0].URL)
	assert.Equal(t, "Bayou Ride", unique[1].Title)
}

func TestDedupeYieldsUniqueKeys(t *testing.T) {
	titles := []string{"A", "a", "B", "b ", "b", "C", "c", "A"}
	var events []Event
	for _, title := range titles {
		events = append(events, Event{Title: title})
	}

	seen := map[string]bool{}
	for _, e := range Dedupe(events) {
		assert.False(t, seen[e.Key()], "duplicate key %q", e.Key())
		seen[e.Key()] = true
	}
	// "b " and "b" differ: only case is folded.
	assert.Len(t, seen, 4)
}

func TestDedupeEmpty(t *testing.T) {
	assert.Empty(t, Dedupe(nil))
}

func TestValidate(t *testing.T) {
	assert.Error(t, Event{Title: "   "}.Validate())
	assert.NoError(t, Event{Title: "Open Mic"}.Validate())

	start := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	assert.Error(t, Event{Title: "Backwards", Start: &start, End: &end}.Validate())
}

func TestAddCategoryKeepsOrderWithoutDuplicates(t *testing.T) {
	e := Event{Title: "x"}
	e.AddCategory("music")
	e.AddCategory("outdoor")
	e.AddCategory("music")
	assert.Equal(t, []string{"music", "outdoor"}, e.Categories)
	assert.True(t, e.HasCategory("outdoor"))
	assert.False(t, e.HasCategory("food"))
}

func TestCategorize(t *testing.T) {
	cats := Categorize("Sunset Bike Ride", "Live music at the park afterwards")
	assert.Equal(t, []string{"cycling", "outdoor", "music"}, cats)

	assert.Empty(t, Categorize("Quarterly board meeting", ""))
}

func TestRelevanceScore(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  int
	}{
		{"cycling", Event{Title: "Critical Mass"}, WeightCycling},
		{"couple", Event{Title: "Wine tasting"}, WeightCouple},
		{"music and dogs", Event{Title: "Dog-friendly concert"}, WeightMusic + WeightDog},
		{"kids", Event{Title: "Toddler story time"}, PenaltyKidOnly},
		{"nothing", Event{Title: "Tax seminar"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelevanceScore(tt.event))
		})
	}
}

func TestInterestBoost(t *testing.T) {
	interests := []Interest{
		{Title: "Salsa", Keywords: []string{"latin dance"}, Weight: 6},
		{Title: "Astronomy", Keywords: []string{"telescope", "stargazing"}, Weight: 4},
	}

	assert.Equal(t, 6, InterestBoost(Event{Title: "Salsa Social"}, interests))
	assert.Equal(t, 4, InterestBoost(Event{Title: "Park night", Description: "Bring a telescope"}, interests))
	assert.Equal(t, 0, InterestBoost(Event{Title: "Book club"}, interests))
	assert.Equal(t, 0, InterestBoost(Event{Title: "Salsa"}, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo wörld", 5))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Empty(t, Truncate("abc", 0))
}

func TestParseWhenRFC3339(t *testing.T) {
	got, err := ParseWhen("2026-10-18T19:30:00-05:00", time.UTC, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 19, got.Hour())
}

func TestParseWhenFreeText(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, loc)

	got, err := ParseWhen("October 18, 2026 7:00 PM", loc, now)
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.October, got.Month())
	assert.Equal(t, 18, got.Day())
}

func TestParseWhenRangeUsesStart(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	got, err := ParseWhen("October 18, 2026 – October 19, 2026", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, 18, got.Day())
}

func TestParseWhenEmpty(t *testing.T) {
	_, err := ParseWhen("  ", time.UTC, time.Now())
	assert.Error(t, err)
}

func TestTitles(t *testing.T) {
	got := Titles([]Event{{Title: "a"}, {Title: "b"}})
	assert.Equal(t, "a,b", strings.Join(got, ","))
}
