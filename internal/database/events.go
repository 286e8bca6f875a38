package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TobiSchelling/eventscout/internal/event"
)

const timeFormat = time.RFC3339

// SaveEvents stores events found by a run. An event already stored with the
// same title and start time is skipped. Returns how many rows were added.
func (db *DB) SaveEvents(runID, periodID string, events []event.Event) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO events
		(title, title_key, description, url, location, start_time, end_time, categories, source, run_id, period_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	added := 0
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("event %q: %w", e.Title, err)
		}
		var cats *string
		if len(e.Categories) > 0 {
			data, err := json.Marshal(e.Categories)
			if err != nil {
				return 0, err
			}
			s := string(data)
			cats = &s
		}
		result, err := stmt.Exec(e.Title, e.Key(), e.Description, e.URL, e.Location,
			formatTime(e.Start), nullTime(e.End), cats, e.Source, runID, periodID)
		if err != nil {
			return 0, fmt.Errorf("saving event %q: %w", e.Title, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// LatestEvents returns up to n of the most recently stored events, newest first.
func (db *DB) LatestEvents(n int) ([]event.Event, error) {
	stored, err := db.queryEvents(`SELECT id, title, description, url, location, start_time, end_time, categories, source, run_id, period_id, collected_at
		FROM events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	out := make([]event.Event, len(stored))
	for i, s := range stored {
		out[i] = s.Event
	}
	return out, nil
}

// GetEventsForPeriod returns the events stored for a period, soonest first.
func (db *DB) GetEventsForPeriod(periodID string) ([]StoredEvent, error) {
	return db.queryEvents(`SELECT id, title, description, url, location, start_time, end_time, categories, source, run_id, period_id, collected_at
		FROM events WHERE period_id = ? ORDER BY start_time, id`, periodID)
}

func (db *DB) queryEvents(query string, args ...any) ([]StoredEvent, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var s StoredEvent
		var desc, url, loc, end, cats, source sql.NullString
		var start string
		if err := rows.Scan(&s.ID, &s.Event.Title, &desc, &url, &loc, &start, &end, &cats, &source,
			&s.RunID, &s.PeriodID, &s.CollectedAt); err != nil {
			return nil, err
		}
		s.Event.Description = desc.String
		s.Event.URL = url.String
		s.Event.Location = loc.String
		s.Event.Source = source.String
		s.Event.Start = parseTime(start)
		s.Event.End = parseTime(end.String)
		if cats.Valid {
			if err := json.Unmarshal([]byte(cats.String), &s.Event.Categories); err != nil {
				s.Event.Categories = nil
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeFormat)
}

func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeFormat)
	return &s
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return nil
	}
	return &t
}
