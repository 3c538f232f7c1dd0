package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/degraphmalizer/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] upgrades a database from user_version i to i+1. The base
// schema is always applied first, so every step must be idempotent.
var migrations = []string{
	// 1: live-document scans per source index.
	`CREATE INDEX IF NOT EXISTS idx_documents_live ON documents(idx, typ, deleted)`,
	// 2: dependents lookup by edge origin.
	`CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_idx, from_typ, from_key)`,
}

// pragmas configure every connection: WAL so readers never block the
// writer, NORMAL sync, a 5s busy timeout before SQLITE_BUSY surfaces as
// ErrStoreUnavailable.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// ErrClosed is returned by every method once Close has been called.
var ErrClosed = fmt.Errorf("store closed: %w", ir.ErrStoreUnavailable)

// Store holds source documents, the dependency graph and target indexes
// in one SQLite database.
//
// Thread-safety: safe for concurrent use. SQLite serializes writers.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// Open opens or creates the database at path and brings its schema up to
// date. Opening an existing database is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection: SQLite has a single writer and pragmas are
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	steps := []struct {
		name string
		fn   func(*sql.DB) error
	}{
		{"connect", func(db *sql.DB) error { return db.Ping() }},
		{"apply pragmas", applyPragmas},
		{"apply schema", applySchema},
		{"migrate", migrate},
	}
	for _, step := range steps {
		if err := step.fn(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("open %s: %s: %w", path, step.name, err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database connection. Later calls report ErrClosed.
func (s *Store) Close() error {
	if s.db == nil || s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle, for tests and ad hoc inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%q: %w", p, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}

// migrate runs the migrations newer than the stored user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("to v%d: %w", v+1, err)
		}
	}
	if version >= len(migrations) {
		return nil
	}
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations)))
	return err
}

// verifyPragma reports whether pragma name currently reads want.
func (s *Store) verifyPragma(name, want string) error {
	var got string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("%s = %q, want %q", name, got, want)
	}
	return nil
}

// check returns ErrClosed once the store is closed.
func (s *Store) check(op string) error {
	if s.closed.Load() {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return nil
}

// wrap annotates err with op and marks contention as ErrStoreUnavailable.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if unavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ir.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func unavailable(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen:
			return true
		}
	}
	return errors.Is(err, sql.ErrConnDone)
}

// rollback discards a transaction that has not been committed.
func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}

// withTx runs fn in a transaction.
func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	if err := s.check(op); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(op+": begin tx", err)
	}
	defer rollback(tx)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrap(op+": commit", err)
	}
	return nil
}
