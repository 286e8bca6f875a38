package database

import (
	"database/sql"
)

// InsertReport inserts or replaces the report of a run.
func (db *DB) InsertReport(r RunReport) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT OR REPLACE INTO run_reports
		(run_id, period_id, phase, events_found, events_reviewed, iterations, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.PeriodID, r.Phase, r.EventsFound, r.EventsReviewed, r.Iterations, r.DurationMS, r.Error,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetRecentReports returns up to n run reports, newest first.
func (db *DB) GetRecentReports(n int) ([]RunReport, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, period_id, phase, events_found, events_reviewed, iterations, duration_ms, error, generated_at
		FROM run_reports ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []RunReport
	for rows.Next() {
		var r RunReport
		if err := rows.Scan(&r.ID, &r.RunID, &r.PeriodID, &r.Phase, &r.EventsFound, &r.EventsReviewed,
			&r.Iterations, &r.DurationMS, &r.Error, &r.GeneratedAt); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// GetLastRunDate returns the period of the most recent completed run.
// Returns empty string if no run has completed.
func (db *DB) GetLastRunDate() (string, error) {
	row := db.conn.QueryRow(
		"SELECT period_id FROM run_reports WHERE phase = 'complete' ORDER BY period_id DESC LIMIT 1",
	)

	var periodID string
	if err := row.Scan(&periodID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return periodID, nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM events", &s.TotalEvents},
		{"SELECT COUNT(DISTINCT period_id) FROM run_reports", &s.PeriodsWithRuns},
		{"SELECT COUNT(*) FROM digests", &s.Digests},
		{"SELECT COUNT(*) FROM digests WHERE delivered = 1", &s.DeliveredDigests},
		{"SELECT COUNT(*) FROM run_reports", &s.Runs},
		{"SELECT COUNT(*) FROM run_reports WHERE phase = 'failed'", &s.FailedRuns},
		{"SELECT COUNT(*) FROM interests", &s.TotalInterests},
		{"SELECT COUNT(*) FROM interests WHERE is_active = 1", &s.ActiveInterests},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
