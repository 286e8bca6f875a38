package database

import (
	"database/sql"
)

const digestColumns = `id, run_id, period_id, subject, promo, body_markdown, event_count, phase, delivered, generated_at`

// InsertDigest inserts or replaces the digest of a run.
func (db *DB) InsertDigest(d Digest) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT OR REPLACE INTO digests
		(run_id, period_id, subject, promo, body_markdown, event_count, phase, delivered)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.PeriodID, d.Subject, d.Promo, d.BodyMarkdown, d.EventCount, d.Phase, d.Delivered,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// MarkDelivered records that the digest of a run was sent.
func (db *DB) MarkDelivered(runID string) error {
	_, err := db.conn.Exec("UPDATE digests SET delivered = 1 WHERE run_id = ?", runID)
	return err
}

// GetDigest returns the digest of a run, or nil if there is none.
func (db *DB) GetDigest(runID string) (*Digest, error) {
	row := db.conn.QueryRow("SELECT "+digestColumns+" FROM digests WHERE run_id = ?", runID)
	return scanDigest(row)
}

// GetLatestDigest returns the most recently generated digest, or nil.
func (db *DB) GetLatestDigest() (*Digest, error) {
	row := db.conn.QueryRow("SELECT " + digestColumns + " FROM digests ORDER BY id DESC LIMIT 1")
	return scanDigest(row)
}

// GetAllDigests returns all digests, newest first.
func (db *DB) GetAllDigests() ([]Digest, error) {
	rows, err := db.conn.Query("SELECT " + digestColumns + " FROM digests ORDER BY period_id DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var digests []Digest
	for rows.Next() {
		var d Digest
		var delivered int
		if err := rows.Scan(&d.ID, &d.RunID, &d.PeriodID, &d.Subject, &d.Promo, &d.BodyMarkdown,
			&d.EventCount, &d.Phase, &delivered, &d.GeneratedAt); err != nil {
			return nil, err
		}
		d.Delivered = delivered != 0
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

func scanDigest(row *sql.Row) (*Digest, error) {
	var d Digest
	var delivered int
	if err := row.Scan(&d.ID, &d.RunID, &d.PeriodID, &d.Subject, &d.Promo, &d.BodyMarkdown,
		&d.EventCount, &d.Phase, &delivered, &d.GeneratedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	d.Delivered = delivered != 0
	return &d, nil
}
