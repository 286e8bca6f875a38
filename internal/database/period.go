package database

import (
	"time"
)

// GetToday returns today's date in loc as YYYY-MM-DD. A nil loc means
// the local zone.
func GetToday(loc *time.Location) string {
	now := time.Now()
	if loc != nil {
		now = now.In(loc)
	}
	return now.Format("2006-01-02")
}

// FormatPeriodDisplay formats a period_id for human-readable display,
// e.g. "Sun, Oct 18, 2026".
func FormatPeriodDisplay(periodID string) string {
	d, err := time.Parse("2006-01-02", periodID)
	if err != nil {
		return periodID
	}
	return d.Format("Mon, Jan 02, 2006")
}
