// Package store persists the collaborator state around the rate-limit
// engine: tenants, their API keys and quota configs, and the check metrics
// the engine emits. It speaks plain database/sql and supports Postgres
// (production) and SQLite (development and tests), selected by DSN scheme.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a uniqueness rule is violated.
	ErrConflict = errors.New("record already exists")

	// ErrInvalidQuota is returned when a quota config fails validation.
	// Invalid configs are rejected here so they never reach the engine.
	ErrInvalidQuota = errors.New("invalid quota config")

	// ErrKeyExpired is returned when a presented API key is past its expiry.
	ErrKeyExpired = errors.New("api key expired")
)

// Store wraps a SQL database holding the service's administrative records.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database named by dsn. A postgres:// or
// postgresql:// scheme selects lib/pq; anything else is treated as a SQLite
// path (use ":memory:" for an ephemeral database).
func Open(dsn string) (*Store, error) {
	driver := "sqlite3"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	} else if !strings.Contains(dsn, "_foreign_keys") {
		// Tenant deletion relies on FK cascades; SQLite leaves them off
		// unless asked.
		if strings.Contains(dsn, "?") {
			dsn += "&_foreign_keys=on"
		} else {
			dsn += "?_foreign_keys=on"
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// One connection: SQLite allows a single writer, and a pooled
		// :memory: database would otherwise be a different database per
		// connection.
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, driver: driver}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_used_at TIMESTAMP,
		expires_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rate_limit_configs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		max_requests INTEGER NOT NULL,
		window_seconds INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rate_limit_metrics (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		resource TEXT,
		subject_id TEXT,
		request_count INTEGER NOT NULL,
		limit_value INTEGER NOT NULL,
		was_limited BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_tenant_created
		ON rate_limit_metrics (tenant_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_tenant_resource
		ON rate_limit_metrics (tenant_id, resource)`,
}

// Init creates the schema if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $1..$N for Postgres. Queries in this
// package are written with ? and must not contain literal question marks.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
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

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func now() time.Time {
	return time.Now().UTC()
}

// nullable maps "" to NULL for optional text columns.
func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
