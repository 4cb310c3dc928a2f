package domain

import (
	"context"
	"time"
)

// EventRepository defines persistence operations for syndication events.
type EventRepository interface {
	// InsertEvent persists an event with its precomputed duplicate flag
	// and returns the assigned ID.
	InsertEvent(ctx context.Context, event *SyndicationEvent) (int64, error)

	// IsDuplicate reports whether another event with the same
	// (postID, siteURL) pair exists within DedupWindow before now.
	IsDuplicate(ctx context.Context, postID int64, siteURL string, now time.Time) (bool, error)

	// Metrics returns the all-time aggregate in a single pass.
	Metrics(ctx context.Context) (Metrics, error)

	// MetricsForWindow returns the aggregate restricted to events with
	// timestamp >= now - hours.
	MetricsForWindow(ctx context.Context, hours int) (WindowMetrics, error)

	// DuplicateCountSince counts duplicate-flagged events at or after
	// the given instant.
	DuplicateCountSince(ctx context.Context, since time.Time) (int64, error)

	// RecentEvents returns events ordered by timestamp descending.
	RecentEvents(ctx context.Context, limit, offset int) ([]SyndicationEvent, error)

	// TotalCount returns the number of stored events.
	TotalCount(ctx context.Context) (int64, error)

	// PurgeEvents removes all stored events. Administrative only.
	PurgeEvents(ctx context.Context) error
}

// KeyRepository defines persistence operations for site keys.
type KeyRepository interface {
	// CreateKey inserts a new key and returns its ID. The key value
	// column carries a unique constraint.
	CreateKey(ctx context.Context, key *SiteKey) (int64, error)

	// ActiveKeys returns all keys with status active.
	ActiveKeys(ctx context.Context) ([]SiteKey, error)

	// ListKeys returns all keys ordered by creation time descending.
	ListKeys(ctx context.Context) ([]SiteKey, error)

	// UpdateKeyStatus sets the status of a key. Updating a missing key
	// is not an error.
	UpdateKeyStatus(ctx context.Context, id int64, status KeyStatus) error

	// DeleteKey hard-removes a key. Deleting a missing key is not an error.
	DeleteKey(ctx context.Context, id int64) error

	// TouchLastSeen refreshes the last_seen timestamp of a key.
	TouchLastSeen(ctx context.Context, id int64, t time.Time) error

	// ActiveKeyCount returns the number of active keys.
	ActiveKeyCount(ctx context.Context) (int64, error)
}

// AlertRepository defines persistence operations for the alert audit trail.
type AlertRepository interface {
	// InsertAlert records a dispatched alert and returns its ID.
	InsertAlert(ctx context.Context, record *AlertRecord) (int64, error)

	// RecentAlerts returns alerts ordered by creation time descending,
	// optionally filtered by type (empty string means all types).
	RecentAlerts(ctx context.Context, limit, offset int, alertType AlertType) ([]AlertRecord, error)

	// AlertCount returns the number of stored alerts, optionally
	// filtered by type.
	AlertCount(ctx context.Context, alertType AlertType) (int64, error)

	// ClearAlerts removes all alert records.
	ClearAlerts(ctx context.Context) error
}

// SpikeChecker re-evaluates the spike condition after a duplicate insert.
type SpikeChecker interface {
	CheckAfterDuplicate(ctx context.Context)
}
