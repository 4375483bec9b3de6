package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a durable, transactional Adapter backed by a single SQLite
// file opened through modernc.org/sqlite, grounded on the schema/query
// style of the pack's SQLiteReceiptStore. It exists to give the teacher's
// go.mod-only modernc.org/sqlite requirement an implementation it was
// never previously wired to. Update runs inside a SQL transaction, so it
// is linearizable across any number of goroutines sharing the *sql.DB.
type SQLite struct {
	db    *sql.DB
	clock func() time.Time
}

// OpenSQLite opens (or creates) path as a SQLite-backed Adapter and
// ensures its schema exists.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers across connections

	s := &SQLite{db: db, clock: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS kv_entries (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		has_ttl    INTEGER NOT NULL DEFAULT 0,
		expires_at DATETIME
	);`
	_, err := s.db.ExecContext(context.Background(), ddl)
	if err != nil {
		return fmt.Errorf("storage: migrate sqlite schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) getTx(ctx context.Context, q querier, key string) ([]byte, bool, error) {
	var value []byte
	var hasTTL bool
	var expiresAt sql.NullTime

	row := q.QueryRowContext(ctx, `SELECT value, has_ttl, expires_at FROM kv_entries WHERE key = ?`, key)
	switch err := row.Scan(&value, &hasTTL, &expiresAt); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("storage: scan %s: %w", key, err)
	}

	if hasTTL && expiresAt.Valid && !expiresAt.Time.After(s.clock()) {
		return nil, false, nil
	}
	return value, true, nil
}

// querier is the subset of *sql.DB / *sql.Tx that getTx needs, so it can
// run the same read both inside and outside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns the current value for key.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.getTx(ctx, s.db, key)
}

// Set replaces the value for key. ttl <= 0 means no expiry.
func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	hasTTL := ttl > 0
	var expiresAt any
	if hasTTL {
		expiresAt = s.clock().Add(ttl)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, has_ttl, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, has_ttl = excluded.has_ttl, expires_at = excluded.expires_at
	`, key, value, hasTTL, expiresAt)
	if err != nil {
		return fmt.Errorf("storage: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// Update performs a linearizable read-modify-write against key inside a
// single SQL transaction, so concurrent callers serialize through SQLite
// itself rather than an in-process lock.
func (s *SQLite) Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, &TransientError{Op: "begin-tx", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	current, ok, err := s.getTx(ctx, tx, key)
	if err != nil {
		return nil, false, err
	}

	next, ttl, write := fn(current, ok)
	if !write {
		if err := tx.Commit(); err != nil {
			return nil, false, &TransientError{Op: "commit-tx", Err: err}
		}
		return current, ok, nil
	}

	hasTTL := ttl > 0
	var expiresAt any
	if hasTTL {
		expiresAt = s.clock().Add(ttl)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, has_ttl, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, has_ttl = excluded.has_ttl, expires_at = excluded.expires_at
	`, key, next, hasTTL, expiresAt)
	if err != nil {
		return nil, false, fmt.Errorf("storage: update %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, &TransientError{Op: "commit-tx", Err: err}
	}
	return next, true, nil
}

var _ Adapter = (*SQLite)(nil)
var _ Updater = (*SQLite)(nil)
