package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// TargetDocument is a stored target document.
type TargetDocument struct {
	Version  int64
	Document ir.Document
}

// IndexDefinition is a created target index.
type IndexDefinition struct {
	Settings ir.Document
	Mappings ir.Document
}

// Upsert writes a target document. A version lower than the stored one is
// rejected with ir.ErrWriteRejected; an equal version overwrites.
func (s *Store) Upsert(ctx context.Context, index, typ, key string, version int64, doc ir.Document) error {
	if err := s.check("upsert"); err != nil {
		return err
	}
	raw, err := ir.MarshalCanonical(doc)
	if err != nil {
		return fmt.Errorf("upsert /%s/%s/%s: %w", index, typ, key, err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO targets (idx, typ, key, version, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(idx, typ, key) DO UPDATE SET
			version = excluded.version,
			body = excluded.body
		WHERE excluded.version >= targets.version
	`, index, typ, key, version, string(raw))
	if err != nil {
		return wrap("upsert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("upsert", err)
	}
	if n == 0 {
		return fmt.Errorf("upsert /%s/%s/%s version %d: %w", index, typ, key, version, ir.ErrWriteRejected)
	}
	return nil
}

// Delete removes a target document. Deleting a missing document succeeds.
func (s *Store) Delete(ctx context.Context, index, typ, key string) error {
	if err := s.check("delete"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM targets WHERE idx = ? AND typ = ? AND key = ?
	`, index, typ, key)
	return wrap("delete", err)
}

// CreateIndex records a target index. It reports false if the index
// already existed, leaving its definition untouched.
func (s *Store) CreateIndex(ctx context.Context, name string, settings, mappings map[string]any) (bool, error) {
	if err := s.check("create index"); err != nil {
		return false, err
	}
	rawSettings, err := ir.MarshalCanonical(orEmpty(settings))
	if err != nil {
		return false, fmt.Errorf("create index %s: settings: %w", name, err)
	}
	rawMappings, err := ir.MarshalCanonical(orEmpty(mappings))
	if err != nil {
		return false, fmt.Errorf("create index %s: mappings: %w", name, err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO target_indexes (name, settings, mappings)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, string(rawSettings), string(rawMappings))
	if err != nil {
		return false, wrap("create index", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("create index", err)
	}
	return n > 0, nil
}

// Target returns a stored target document.
func (s *Store) Target(ctx context.Context, index, typ, key string) (TargetDocument, bool, error) {
	if err := s.check("target"); err != nil {
		return TargetDocument{}, false, err
	}
	var (
		td   TargetDocument
		body string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, body FROM targets WHERE idx = ? AND typ = ? AND key = ?
	`, index, typ, key).Scan(&td.Version, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return TargetDocument{}, false, nil
	}
	if err != nil {
		return TargetDocument{}, false, wrap("target", err)
	}
	if td.Document, err = ir.DecodeDocument([]byte(body)); err != nil {
		return TargetDocument{}, false, fmt.Errorf("target: %w", err)
	}
	return td, true, nil
}

// CountTargets returns the number of documents in a target index.
func (s *Store) CountTargets(ctx context.Context, index string) (int, error) {
	if err := s.check("count targets"); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM targets WHERE idx = ?`, index).Scan(&n)
	return n, wrap("count targets", err)
}

// Index returns the definition of a created target index.
func (s *Store) Index(ctx context.Context, name string) (IndexDefinition, bool, error) {
	if err := s.check("index"); err != nil {
		return IndexDefinition{}, false, err
	}
	var settings, mappings string
	err := s.db.QueryRowContext(ctx, `
		SELECT settings, mappings FROM target_indexes WHERE name = ?
	`, name).Scan(&settings, &mappings)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexDefinition{}, false, nil
	}
	if err != nil {
		return IndexDefinition{}, false, wrap("index", err)
	}
	var def IndexDefinition
	if def.Settings, err = ir.DecodeDocument([]byte(settings)); err != nil {
		return IndexDefinition{}, false, fmt.Errorf("index %s: settings: %w", name, err)
	}
	if def.Mappings, err = ir.DecodeDocument([]byte(mappings)); err != nil {
		return IndexDefinition{}, false, fmt.Errorf("index %s: mappings: %w", name, err)
	}
	return def, true, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
