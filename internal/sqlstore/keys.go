package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/syndilab/hub/internal/domain"
)

// CreateKey inserts a new site key. The unique constraint on key_value
// enforces that a secret is never reissued; a collision surfaces as
// domain.ErrKeyValueTaken so the caller can retry with a fresh value.
func (s *Store) CreateKey(ctx context.Context, key *domain.SiteKey) (int64, error) {
	id, err := s.insertReturningID(ctx, `
		INSERT INTO site_keys (key_value, site_name, status, created_at)
		VALUES (?, ?, ?, ?)`,
		key.Value,
		key.SiteName,
		string(key.Status),
		key.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert key: %w", domain.ErrKeyValueTaken)
		}
		return 0, fmt.Errorf("insert key: %w", err)
	}
	return id, nil
}

// ActiveKeys returns all keys with status active.
func (s *Store) ActiveKeys(ctx context.Context) ([]domain.SiteKey, error) {
	return s.queryKeys(ctx, s.rebind(`
		SELECT id, key_value, site_name, status, created_at, last_seen
		FROM site_keys
		WHERE status = ?`),
		string(domain.KeyActive),
	)
}

// ListKeys returns all keys ordered by creation time descending.
func (s *Store) ListKeys(ctx context.Context) ([]domain.SiteKey, error) {
	return s.queryKeys(ctx, `
		SELECT id, key_value, site_name, status, created_at, last_seen
		FROM site_keys
		ORDER BY created_at DESC, id DESC`,
	)
}

func (s *Store) queryKeys(ctx context.Context, query string, args ...any) ([]domain.SiteKey, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.SiteKey
	for rows.Next() {
		var (
			k        domain.SiteKey
			status   string
			lastSeen sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Value, &k.SiteName, &status, &k.CreatedAt, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		k.Status = domain.KeyStatus(status)
		if lastSeen.Valid {
			t := lastSeen.Time
			k.LastSeen = &t
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// UpdateKeyStatus sets the status of a key. Idempotent.
func (s *Store) UpdateKeyStatus(ctx context.Context, id int64, status domain.KeyStatus) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE site_keys SET status = ? WHERE id = ?`),
		string(status), id)
	if err != nil {
		return fmt.Errorf("update key status: %w", err)
	}
	return nil
}

// DeleteKey hard-removes a key. Idempotent.
func (s *Store) DeleteKey(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM site_keys WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

// TouchLastSeen refreshes the last_seen timestamp of a key.
func (s *Store) TouchLastSeen(ctx context.Context, id int64, t time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE site_keys SET last_seen = ? WHERE id = ?`),
		t.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch last_seen: %w", err)
	}
	return nil
}

// ActiveKeyCount returns the number of active keys.
func (s *Store) ActiveKeyCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM site_keys WHERE status = ?`),
		string(domain.KeyActive)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active keys: %w", err)
	}
	return count, nil
}
