// Package requestlog persists a per-request operational audit trail for the
// relay: which model answered, whether the cache served it, how long it took,
// and what failed. The chat path never reads this table; it exists for
// operators.
package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Entry represents one chat request as seen by the relay.
type Entry struct {
	TraceID      string
	Model        string
	CacheKey     string
	Cached       bool
	LatencyMS    int64
	ErrorMessage string
	CreatedAt    time.Time
}

// Writer persists request log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLWriter persists entries to SQLite or Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteWriter opens (or creates) an SQLite request log at dsn.
func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "chatrelay-requests.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite request log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriter opens a Postgres request log at dsn.
func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres request log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "postgres"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s request log writer: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS chat_requests (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	model TEXT,
	cache_key TEXT,
	cached INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS chat_requests (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	model TEXT,
	cache_key TEXT,
	cached BOOLEAN NOT NULL,
	latency_ms BIGINT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize request log schema: %w", err)
	}
	return nil
}

// Write inserts one entry. CreatedAt defaults to now when unset.
func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO chat_requests(trace_id, model, cache_key, cached, latency_ms, error_message, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?)`
	if w.dialect == "postgres" {
		query = `INSERT INTO chat_requests(trace_id, model, cache_key, cached, latency_ms, error_message, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)`
	}

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.Model,
		entry.CacheKey,
		entry.Cached,
		entry.LatencyMS,
		entry.ErrorMessage,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write request log: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
