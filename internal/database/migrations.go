package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    title_key TEXT NOT NULL,
    description TEXT,
    url TEXT,
    location TEXT,
    start_time TEXT NOT NULL DEFAULT '',
    end_time TEXT,
    categories TEXT,
    source TEXT,
    run_id TEXT NOT NULL,
    period_id TEXT NOT NULL,
    collected_at TEXT DEFAULT (datetime('now')),
    UNIQUE(title_key, start_time)
);

CREATE TABLE IF NOT EXISTS digests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT UNIQUE NOT NULL,
    period_id TEXT NOT NULL,
    subject TEXT NOT NULL,
    promo TEXT NOT NULL,
    body_markdown TEXT NOT NULL,
    event_count INTEGER DEFAULT 0,
    phase TEXT NOT NULL,
    delivered INTEGER DEFAULT 0,
    generated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS interests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    description TEXT,
    keywords TEXT,
    weight INTEGER DEFAULT 5,
    is_active INTEGER DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT UNIQUE NOT NULL,
    period_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    events_found INTEGER DEFAULT 0,
    events_reviewed INTEGER DEFAULT 0,
    iterations INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    error TEXT,
    generated_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_events_period ON events(period_id);
CREATE INDEX IF NOT EXISTS idx_digests_period ON digests(period_id);
CREATE INDEX IF NOT EXISTS idx_run_reports_period ON run_reports(period_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "index events by start time",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time)`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
