package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQLStore persists quota-guarded entries in SQLite or Postgres. Accounted
// sizes are kept in an in-memory index loaded at open time, so quota checks
// never re-scan the table; the index mutex covers validate and apply.
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect

	mu    sync.Mutex
	guard *Guard
	sizes map[string]int
	total int
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at dsn.
func NewSQLiteStore(dsn string, limits Limits) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "textact-storage.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite storage: %w", err)
	}
	s := &SQLStore{db: db, dialect: dialectSQLite, guard: NewGuard(limits)}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens a Postgres-backed store at dsn.
func NewPostgresStore(dsn string, limits Limits) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres storage: %w", err)
	}
	s := &SQLStore{db: db, dialect: dialectPostgres, guard: NewGuard(limits)}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s storage: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS storage_items (
	key TEXT PRIMARY KEY,
	value_json TEXT NOT NULL,
	byte_size INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`
	if s.dialect == dialectPostgres {
		ddl = `
CREATE TABLE IF NOT EXISTS storage_items (
	key TEXT PRIMARY KEY,
	value_json TEXT NOT NULL,
	byte_size INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`
	}
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize storage schema: %w", err)
	}

	return s.loadSizeIndex()
}

func (s *SQLStore) loadSizeIndex() error {
	rows, err := s.db.Query(`SELECT key, byte_size FROM storage_items`)
	if err != nil {
		return fmt.Errorf("load storage size index: %w", err)
	}
	defer rows.Close()

	s.sizes = make(map[string]int)
	s.total = 0
	for rows.Next() {
		var key string
		var size int
		if err := rows.Scan(&key, &size); err != nil {
			return fmt.Errorf("scan storage size index: %w", err)
		}
		s.sizes[key] = size
		s.total += size
	}
	return rows.Err()
}

// Get returns the stored JSON for key.
func (s *SQLStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	query := `SELECT value_json FROM storage_items WHERE key = ?`
	if s.dialect == dialectPostgres {
		query = `SELECT value_json FROM storage_items WHERE key = $1`
	}

	var raw string
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return json.RawMessage(raw), true, nil
}

// Set validates and upserts a single key/value pair.
func (s *SQLStore) Set(ctx context.Context, key string, value any) error {
	raw, err := Encode(key, value)
	if err != nil {
		return err
	}
	size := itemSizeFromRaw(key, raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard.checkItem(size); err != nil {
		return err
	}
	newTotal := s.total - s.sizes[key] + size
	if err := s.guard.checkTotal(newTotal); err != nil {
		return err
	}

	if err := s.upsert(ctx, s.db, key, raw, size); err != nil {
		return err
	}
	s.sizes[key] = size
	s.total = newTotal
	return nil
}

// SetBatch validates every item against both limits, then applies the whole
// batch in one transaction.
func (s *SQLStore) SetBatch(ctx context.Context, items map[string]any) error {
	type encodedItem struct {
		raw  []byte
		size int
	}
	encoded := make(map[string]encodedItem, len(items))
	for key, value := range items {
		raw, err := Encode(key, value)
		if err != nil {
			return err
		}
		encoded[key] = encodedItem{raw: raw, size: itemSizeFromRaw(key, raw)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newTotal := s.total
	for key, item := range encoded {
		if err := s.guard.checkItem(item.size); err != nil {
			return err
		}
		newTotal += item.size - s.sizes[key]
	}
	if err := s.guard.checkTotal(newTotal); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	for key, item := range encoded {
		if err := s.upsert(ctx, tx, key, item.raw, item.size); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	for key, item := range encoded {
		s.sizes[key] = item.size
	}
	s.total = newTotal
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) upsert(ctx context.Context, db execer, key string, raw []byte, size int) error {
	query := `
INSERT INTO storage_items(key, value_json, byte_size, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, byte_size = excluded.byte_size, updated_at = excluded.updated_at`
	if s.dialect == dialectPostgres {
		query = `
INSERT INTO storage_items(key, value_json, byte_size, updated_at)
VALUES($1, $2, $3, $4)
ON CONFLICT(key) DO UPDATE SET value_json = EXCLUDED.value_json, byte_size = EXCLUDED.byte_size, updated_at = EXCLUDED.updated_at`
	}
	if _, err := db.ExecContext(ctx, query, key, string(raw), size, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Remove deletes the given keys.
func (s *SQLStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `DELETE FROM storage_items WHERE key = ?`
	if s.dialect == dialectPostgres {
		query = `DELETE FROM storage_items WHERE key = $1`
	}
	for _, key := range keys {
		if _, err := s.db.ExecContext(ctx, query, key); err != nil {
			return fmt.Errorf("remove %q: %w", key, err)
		}
		if size, ok := s.sizes[key]; ok {
			s.total -= size
			delete(s.sizes, key)
		}
	}
	return nil
}

// Clear deletes everything.
func (s *SQLStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM storage_items`); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	s.sizes = make(map[string]int)
	s.total = 0
	return nil
}

// BytesInUse returns the accounted aggregate size.
func (s *SQLStore) BytesInUse(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, nil
}

// Limits reports the enforced byte budgets.
func (s *SQLStore) Limits() Limits { return s.guard.Limits() }

// Keys lists all stored keys.
func (s *SQLStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM storage_items`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
