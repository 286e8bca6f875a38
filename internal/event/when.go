package event

import (
	"fmt"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

// ParseWhen parses the free-text dates event listings use ("Sat, Oct 18,
// 7 PM", "tomorrow 6pm", "2026-10-18T19:00"). Ranges are cut at the first
// dash and only the start is parsed. Dates without a year resolve into the
// future relative to now.
func ParseWhen(text string, loc *time.Location, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}

	cfg := &dps.Configuration{
		CurrentTime:         now.In(loc),
		DefaultTimezone:     loc,
		PreferredDateSource: dps.Future,
	}

	var lastErr error
	for _, candidate := range whenCandidates(text) {
		parsed, err := (&dps.Parser{}).Parse(cfg, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		if parsed.IsZero() {
			continue
		}
		return parsed.Time, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no date found")
	}
	return time.Time{}, fmt.Errorf("parsing %q: %w", text, lastErr)
}

func whenCandidates(text string) []string {
	var candidates []string
	for _, sep := range []string{"–", "—", " - ", " to "} {
		if i := strings.Index(text, sep); i > 0 {
			candidates = append(candidates, strings.TrimSpace(text[:i]))
		}
	}
	return append(candidates, text)
}
