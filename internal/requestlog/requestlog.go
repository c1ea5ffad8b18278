// Package requestlog persists one record per processed text action, giving
// the service an auditable history of what was asked, which backend answered,
// and what it cost in tokens.
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

// Entry is a single processed-action record.
type Entry struct {
	RequestID        string
	Action           string
	Provider         string
	Model            string
	CacheHit         bool
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ErrorMessage     string
	CreatedAt        time.Time
}

// Writer persists action log entries.
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

// NewSQLiteWriter opens (or creates) a SQLite-backed writer at dsn.
func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "textact-actions.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite action log: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriter opens a Postgres-backed writer at dsn.
func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres action log: %w", err)
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
		return fmt.Errorf("ping %s action log: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS action_logs (
	id INTEGER PRIMARY KEY,
	request_id TEXT,
	action TEXT NOT NULL,
	provider TEXT,
	model TEXT,
	cache_hit INTEGER NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);`
	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS action_logs (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT,
	action TEXT NOT NULL,
	provider TEXT,
	model TEXT,
	cache_hit BOOLEAN NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}
	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize action log schema: %w", err)
	}
	return nil
}

// Write inserts one entry.
func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
INSERT INTO action_logs(request_id, action, provider, model, cache_hit, prompt_tokens, completion_tokens, total_tokens, error_message, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		entry.RequestID, entry.Action, entry.Provider, entry.Model,
		boolToInt(entry.CacheHit), entry.PromptTokens, entry.CompletionTokens,
		entry.TotalTokens, entry.ErrorMessage, entry.CreatedAt,
	}
	if w.dialect == "postgres" {
		query = `
INSERT INTO action_logs(request_id, action, provider, model, cache_hit, prompt_tokens, completion_tokens, total_tokens, error_message, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		args[4] = entry.CacheHit
	}

	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write action log entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (w *SQLWriter) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT request_id, action, provider, model, cache_hit, prompt_tokens, completion_tokens, total_tokens, error_message, created_at
FROM action_logs ORDER BY created_at DESC, id DESC LIMIT ?`
	if w.dialect == "postgres" {
		query = strings.Replace(query, "LIMIT ?", "LIMIT $1", 1)
	}

	rows, err := w.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query action log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var cacheHit int
		var scanHit any = &cacheHit
		if w.dialect == "postgres" {
			scanHit = &e.CacheHit
		}
		if err := rows.Scan(&e.RequestID, &e.Action, &e.Provider, &e.Model, scanHit,
			&e.PromptTokens, &e.CompletionTokens, &e.TotalTokens, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action log entry: %w", err)
		}
		if w.dialect != "postgres" {
			e.CacheHit = cacheHit != 0
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
