package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// Store implements domain.EventRepository, domain.KeyRepository, and
// domain.AlertRepository over database/sql. Embedded SQLite is the
// default backend; a postgres:// DATABASE_URL selects PostgreSQL.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database named by databaseURL, verifies the
// connection, and applies schema migrations. The caller should call
// Close when the store is no longer needed.
func Open(databaseURL string) (*Store, error) {
	driver := driverSQLite
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		driver = driverPostgres
	}

	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == driverSQLite {
		// modernc's driver opens a fresh connection per pool slot; a
		// single writer avoids SQLITE_BUSY and keeps :memory: coherent.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping probes database reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	idCol := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == driverPostgres {
		idCol = "BIGSERIAL PRIMARY KEY"
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS events (
		id %[1]s,
		post_id BIGINT NOT NULL,
		site_url TEXT NOT NULL,
		site_name TEXT NOT NULL DEFAULT '',
		aggregator TEXT NOT NULL DEFAULT 'Unknown',
		is_duplicate INTEGER NOT NULL DEFAULT 0,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_dedup ON events(post_id, site_url, timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_duplicate ON events(is_duplicate, timestamp);

	CREATE TABLE IF NOT EXISTS site_keys (
		id %[1]s,
		key_value TEXT NOT NULL UNIQUE,
		site_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL,
		last_seen TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_site_keys_status ON site_keys(status);

	CREATE TABLE IF NOT EXISTS alerts (
		id %[1]s,
		alert_type TEXT NOT NULL,
		message TEXT NOT NULL,
		duplicate_count BIGINT NOT NULL DEFAULT 0,
		threshold INTEGER NOT NULL DEFAULT 0,
		window_hours INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at DESC);
	`, idCol)

	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders to $N for the postgres driver. Queries
// throughout this package are written in ? form.
func (s *Store) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports whether err is a unique-constraint failure
// from either driver. lib/pq exposes a typed error; modernc's sqlite
// driver only carries the constraint in the message.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// insertReturningID runs an INSERT and returns the generated row ID,
// papering over the LastInsertId / RETURNING split between drivers.
func (s *Store) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	if s.driver == driverPostgres {
		var id int64
		err := s.db.QueryRowContext(ctx, s.rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
