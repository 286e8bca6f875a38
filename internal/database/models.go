package database

import "github.com/TobiSchelling/eventscout/internal/event"

// StoredEvent is an event as persisted by a run.
type StoredEvent struct {
	ID          int64
	Event       event.Event
	RunID       string
	PeriodID    string
	CollectedAt *string
}

// Digest is a composed digest as stored for the web view.
type Digest struct {
	ID           int64
	RunID        string
	PeriodID     string
	Subject      string
	Promo        string
	BodyMarkdown string
	EventCount   int
	Phase        string
	Delivered    bool
	GeneratedAt  *string
}

// Interest is a user-defined topic that boosts matching events.
type Interest struct {
	ID          int64
	Title       string
	Description *string
	Keywords    []string
	Weight      int
	IsActive    bool
	CreatedAt   *string
	UpdatedAt   *string
}

// RunReport holds metadata about one workflow run.
type RunReport struct {
	ID             int64
	RunID          string
	PeriodID       string
	Phase          string
	EventsFound    int
	EventsReviewed int
	Iterations     int
	DurationMS     int64
	Error          *string
	GeneratedAt    *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalEvents      int
	PeriodsWithRuns  int
	Digests          int
	DeliveredDigests int
	Runs             int
	FailedRuns       int
	TotalInterests   int
	ActiveInterests  int
}
