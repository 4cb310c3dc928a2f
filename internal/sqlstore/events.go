package sqlstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/syndilab/hub/internal/domain"
)

// InsertEvent persists an event with its precomputed duplicate flag.
func (s *Store) InsertEvent(ctx context.Context, event *domain.SyndicationEvent) (int64, error) {
	id, err := s.insertReturningID(ctx, `
		INSERT INTO events (post_id, site_url, site_name, aggregator, is_duplicate, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.PostID,
		event.SiteURL,
		event.SiteName,
		event.Aggregator,
		boolToInt(event.IsDuplicate),
		event.Timestamp.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

// IsDuplicate counts prior events for the (postID, siteURL) pair within
// the fixed 24h dedup window. Not atomic with the subsequent insert;
// concurrent identical submissions can race past each other.
func (s *Store) IsDuplicate(ctx context.Context, postID int64, siteURL string, now time.Time) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM events
		WHERE post_id = ? AND site_url = ? AND timestamp >= ?`),
		postID, siteURL, now.UTC().Add(-domain.DedupWindow),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count prior events: %w", err)
	}
	return count > 0, nil
}

// Metrics computes the all-time aggregate with a single conditional
// aggregation query.
func (s *Store) Metrics(ctx context.Context) (domain.Metrics, error) {
	var m domain.Metrics
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_duplicate = 1 THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT site_url)
		FROM events`,
	).Scan(&m.Total, &m.Duplicates, &m.UniquePartners)
	if err != nil {
		return domain.Metrics{}, fmt.Errorf("aggregate events: %w", err)
	}
	if m.Total > 0 {
		m.DuplicateRate = math.Round(float64(m.Duplicates)/float64(m.Total)*10000) / 100
	}
	return m, nil
}

// MetricsForWindow computes the aggregate restricted to the trailing
// window of the given number of hours.
func (s *Store) MetricsForWindow(ctx context.Context, hours int) (domain.WindowMetrics, error) {
	var m domain.WindowMetrics
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_duplicate = 1 THEN 1 ELSE 0 END), 0)
		FROM events
		WHERE timestamp >= ?`),
		since,
	).Scan(&m.Total, &m.Duplicates)
	if err != nil {
		return domain.WindowMetrics{}, fmt.Errorf("aggregate windowed events: %w", err)
	}
	return m, nil
}

// DuplicateCountSince counts duplicate-flagged events at or after since.
func (s *Store) DuplicateCountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM events
		WHERE is_duplicate = 1 AND timestamp >= ?`),
		since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count duplicates: %w", err)
	}
	return count, nil
}

// RecentEvents returns events ordered newest first.
func (s *Store) RecentEvents(ctx context.Context, limit, offset int) ([]domain.SyndicationEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, post_id, site_url, site_name, aggregator, is_duplicate, timestamp
		FROM events
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?`),
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query events (limit=%d, offset=%d): %w", limit, offset, err)
	}
	defer rows.Close()

	var events []domain.SyndicationEvent
	for rows.Next() {
		var (
			e   domain.SyndicationEvent
			dup int64
		)
		if err := rows.Scan(&e.ID, &e.PostID, &e.SiteURL, &e.SiteName, &e.Aggregator, &dup, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.IsDuplicate = dup != 0
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// TotalCount returns the number of stored events.
func (s *Store) TotalCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// PurgeEvents removes all stored events.
func (s *Store) PurgeEvents(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return fmt.Errorf("purge events: %w", err)
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
