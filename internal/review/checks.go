package review

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/TobiSchelling/eventscout/internal/agent"
	"github.com/TobiSchelling/eventscout/internal/event"
)

// RelevanceScorer scores events against the household's preferences and
// records the score in Metadata.RelevanceScore. It always verifies; the more
// rules fire, the more confident it is.
//
// When Load is set it is called on every review so interests edited while
// the process runs take effect; Interests is used if Load fails.
type RelevanceScorer struct {
	Interests []event.Interest
	Load      func() ([]event.Interest, error)
}

func (r *RelevanceScorer) Name() string { return "relevance_scorer" }

func (r *RelevanceScorer) Review(_ context.Context, e event.Event) (agent.ReviewResult, error) {
	matches := event.ScoreMatches(e)
	score := 0
	notes := make([]string, 0, len(matches)+1)
	for _, m := range matches {
		score += m.Weight
		notes = append(notes, m.Reason)
	}
	if boost := event.InterestBoost(e, r.interests()); boost != 0 {
		score += boost
		notes = append(notes, fmt.Sprintf("Matches saved interests (+%d)", boost))
	}

	return agent.ReviewResult{
		AgentName:  r.Name(),
		Verified:   true,
		Confidence: math.Min(1.0, 0.25*float64(len(notes))+0.5),
		Notes:      notes,
		Metadata:   agent.Metadata{RelevanceScore: agent.IntPtr(score)},
	}, nil
}

func (r *RelevanceScorer) interests() []event.Interest {
	if r.Load == nil {
		return r.Interests
	}
	interests, err := r.Load()
	if err != nil {
		log.Printf("Loading interests failed, using the last known set: %v", err)
		return r.Interests
	}
	return interests
}

// DateVerifier checks that an event starts within the next WindowDays days.
type DateVerifier struct {
	WindowDays int
	Location   *time.Location
	Now        func() time.Time
}

// NewDateVerifier creates a verifier for a window of days in loc.
func NewDateVerifier(days int, loc *time.Location) *DateVerifier {
	if days <= 0 {
		days = 7
	}
	if loc == nil {
		loc = time.Local
	}
	return &DateVerifier{WindowDays: days, Location: loc, Now: time.Now}
}

func (d *DateVerifier) Name() string { return "date_verifier" }

func (d *DateVerifier) Review(_ context.Context, e event.Event) (agent.ReviewResult, error) {
	if e.Start == nil {
		return agent.ReviewResult{
			AgentName:  d.Name(),
			Verified:   false,
			Confidence: 0.5,
			Notes:      []string{"No start time available"},
		}, nil
	}

	now := d.Now().In(d.Location)
	end := now.AddDate(0, 0, d.WindowDays)
	start := e.Start.In(d.Location)
	inWindow := !start.Before(now) && !start.After(end)

	where := "outside"
	if inWindow {
		where = "within"
	}
	return agent.ReviewResult{
		AgentName:     d.Name(),
		Verified:      inWindow,
		Confidence:    1.0,
		Notes:         []string{fmt.Sprintf("Event is %s target window (next %d days)", where, d.WindowDays)},
		VenueVerified: true,
	}, nil
}
