package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/degraphmalizer/internal/engine"
	"github.com/roach88/degraphmalizer/internal/ir"
)

var (
	_ engine.GraphStore  = (*Store)(nil)
	_ engine.SourceStore = (*Store)(nil)
	_ engine.IndexStore  = (*Store)(nil)
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if _, err := s1.PutDocument(ctx, ir.Ref{Index: "i", Type: "t", Key: "k"}, ir.Document{"a": 1}); err != nil {
		t.Fatalf("PutDocument() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	src, err := s2.Fetch(ctx, ir.Ref{Index: "i", Type: "t", Key: "k"})
	if err != nil {
		t.Fatalf("Fetch() after reopen failed: %v", err)
	}
	if src.ID.Version != 1 {
		t.Errorf("version = %d, want 1", src.ID.Version)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
		"user_version": "2",
	} {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_MigratesOlderDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	for _, stmt := range []string{"DROP INDEX idx_edges_from", "PRAGMA user_version = 1"} {
		if _, err := s.DB().Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("user_version", "2"); err != nil {
		t.Error(err)
	}
	var n int
	err = s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_edges_from'`).Scan(&n)
	if err != nil || n != 1 {
		t.Errorf("idx_edges_from count = %d, err = %v; want 1", n, err)
	}
}

func TestClose_ReportsUnavailable(t *testing.T) {
	s := createTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}

	_, err := s.Fetch(context.Background(), ir.Ref{Index: "i", Type: "t", Key: "k"})
	if !errors.Is(err, ir.ErrStoreUnavailable) {
		t.Errorf("Fetch() after Close error = %v, want ErrStoreUnavailable", err)
	}
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Fetch() after Close error = %v, want ErrClosed", err)
	}
}

func TestWrap(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	if err := wrap("op", busy); !errors.Is(err, ir.ErrStoreUnavailable) {
		t.Errorf("busy: got %v, want ErrStoreUnavailable", err)
	}

	constraint := sqlite3.Error{Code: sqlite3.ErrConstraint}
	if err := wrap("op", constraint); errors.Is(err, ir.ErrStoreUnavailable) {
		t.Errorf("constraint: got %v, want a permanent error", err)
	}

	if wrap("op", nil) != nil {
		t.Error("wrap(nil) should be nil")
	}
}
