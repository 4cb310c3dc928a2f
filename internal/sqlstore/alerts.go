package sqlstore

import (
	"context"
	"fmt"

	"github.com/syndilab/hub/internal/domain"
)

// InsertAlert records a dispatched alert in the audit trail.
func (s *Store) InsertAlert(ctx context.Context, record *domain.AlertRecord) (int64, error) {
	id, err := s.insertReturningID(ctx, `
		INSERT INTO alerts (alert_type, message, duplicate_count, threshold, window_hours, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(record.Type),
		record.Message,
		record.DuplicateCount,
		record.Threshold,
		record.WindowHours,
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}
	return id, nil
}

// RecentAlerts returns alerts newest first, optionally filtered by type.
func (s *Store) RecentAlerts(ctx context.Context, limit, offset int, alertType domain.AlertType) ([]domain.AlertRecord, error) {
	query := `
		SELECT id, alert_type, message, duplicate_count, threshold, window_hours, created_at
		FROM alerts`
	args := []any{}
	if alertType != "" {
		query += ` WHERE alert_type = ?`
		args = append(args, string(alertType))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var records []domain.AlertRecord
	for rows.Next() {
		var (
			r   domain.AlertRecord
			typ string
		)
		if err := rows.Scan(&r.ID, &typ, &r.Message, &r.DuplicateCount, &r.Threshold, &r.WindowHours, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		r.Type = domain.AlertType(typ)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return records, nil
}

// AlertCount returns the number of stored alerts, optionally filtered by type.
func (s *Store) AlertCount(ctx context.Context, alertType domain.AlertType) (int64, error) {
	var count int64
	var err error
	if alertType != "" {
		err = s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM alerts WHERE alert_type = ?`),
			string(alertType)).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return count, nil
}

// ClearAlerts removes all alert records.
func (s *Store) ClearAlerts(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts`); err != nil {
		return fmt.Errorf("clear alerts: %w", err)
	}
	return nil
}
