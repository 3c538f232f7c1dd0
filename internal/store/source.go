package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// PutDocument stores body as the next revision of ref and returns its ID.
// The first revision is version 1. Numbers must be integers or
// json.Number; floats are rejected.
func (s *Store) PutDocument(ctx context.Context, ref ir.Ref, body ir.Document) (ir.ID, error) {
	raw, err := ir.MarshalCanonical(body)
	if err != nil {
		return ir.ID{}, fmt.Errorf("put document %s: %w", ref, err)
	}

	var version int64
	err = s.withTx(ctx, "put document", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (idx, typ, key, version, body, deleted)
			VALUES (?, ?, ?, 1, ?, 0)
			ON CONFLICT(idx, typ, key) DO UPDATE SET
				version = documents.version + 1,
				body = excluded.body,
				deleted = 0
		`, ref.Index, ref.Type, ref.Key, string(raw))
		if err != nil {
			return wrap("put document", err)
		}
		err = tx.QueryRowContext(ctx, `
			SELECT version FROM documents
			WHERE idx = ? AND typ = ? AND key = ?
		`, ref.Index, ref.Type, ref.Key).Scan(&version)
		return wrap("put document: read version", err)
	})
	if err != nil {
		return ir.ID{}, err
	}
	return ref.At(version), nil
}

// RemoveDocument deletes ref, bumping its version. Removing a document
// that does not exist fails with ir.ErrNotFound.
func (s *Store) RemoveDocument(ctx context.Context, ref ir.Ref) (ir.ID, error) {
	var version int64
	err := s.withTx(ctx, "remove document", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE documents SET version = version + 1, body = NULL, deleted = 1
			WHERE idx = ? AND typ = ? AND key = ? AND deleted = 0
		`, ref.Index, ref.Type, ref.Key)
		if err != nil {
			return wrap("remove document", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrap("remove document", err)
		}
		if n == 0 {
			return fmt.Errorf("remove document %s: %w", ref, ir.ErrNotFound)
		}
		err = tx.QueryRowContext(ctx, `
			SELECT version FROM documents
			WHERE idx = ? AND typ = ? AND key = ?
		`, ref.Index, ref.Type, ref.Key).Scan(&version)
		return wrap("remove document: read version", err)
	})
	if err != nil {
		return ir.ID{}, err
	}
	return ref.At(version), nil
}

// Fetch returns the current revision of ref.
func (s *Store) Fetch(ctx context.Context, ref ir.Ref) (ir.SourceDocument, error) {
	if err := s.check("fetch"); err != nil {
		return ir.SourceDocument{}, err
	}
	var (
		version int64
		body    sql.NullString
		deleted bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, body, deleted FROM documents
		WHERE idx = ? AND typ = ? AND key = ?
	`, ref.Index, ref.Type, ref.Key).Scan(&version, &body, &deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
		return ir.SourceDocument{}, fmt.Errorf("fetch %s: %w", ref, ir.ErrNotFound)
	}
	if err != nil {
		return ir.SourceDocument{}, wrap("fetch "+ref.String(), err)
	}
	doc, err := ir.DecodeDocument([]byte(body.String))
	if err != nil {
		return ir.SourceDocument{}, fmt.Errorf("fetch %s: %w", ref, err)
	}
	return ir.SourceDocument{ID: ref.At(version), Body: doc}, nil
}

// Link records that to depends on from. Linking twice is a no-op.
func (s *Store) Link(ctx context.Context, from, to ir.Ref) error {
	if err := s.check("link"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edges (from_idx, from_typ, from_key, to_idx, to_typ, to_key)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, from.Index, from.Type, from.Key, to.Index, to.Type, to.Key)
	return wrap("link", err)
}

// Unlink removes the edge from -> to. Removing a missing edge succeeds.
func (s *Store) Unlink(ctx context.Context, from, to ir.Ref) error {
	if err := s.check("unlink"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM edges
		WHERE from_idx = ? AND from_typ = ? AND from_key = ?
		  AND to_idx = ? AND to_typ = ? AND to_key = ?
	`, from.Index, from.Type, from.Key, to.Index, to.Type, to.Key)
	return wrap("unlink", err)
}

// DependentsOf returns the documents linked from id, in link order, at
// their current versions. Dependents that do not exist have version 0.
func (s *Store) DependentsOf(ctx context.Context, id ir.ID) ([]ir.ID, error) {
	if err := s.check("dependents"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.to_idx, e.to_typ, e.to_key,
		       COALESCE(CASE WHEN d.deleted = 0 THEN d.version END, 0)
		FROM edges e
		LEFT JOIN documents d
		  ON d.idx = e.to_idx AND d.typ = e.to_typ AND d.key = e.to_key
		WHERE e.from_idx = ? AND e.from_typ = ? AND e.from_key = ?
		ORDER BY e.id ASC
	`, id.Index, id.Type, id.Key)
	if err != nil {
		return nil, wrap("dependents of "+id.String(), err)
	}
	defer rows.Close()
	return scanIDs(rows, "dependents of "+id.String())
}

// AllDocuments returns every live document of index in insertion order.
func (s *Store) AllDocuments(ctx context.Context, index string) ([]ir.ID, error) {
	if err := s.check("all documents"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, typ, key, version FROM documents
		WHERE idx = ? AND deleted = 0
		ORDER BY id ASC
	`, index)
	if err != nil {
		return nil, wrap("all documents", err)
	}
	defer rows.Close()
	return scanIDs(rows, "all documents")
}

// Edges returns every edge of the dependency graph in link order.
func (s *Store) Edges(ctx context.Context) ([]ir.Edge, error) {
	if err := s.check("edges"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_idx, from_typ, from_key, to_idx, to_typ, to_key
		FROM edges
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, wrap("edges", err)
	}
	defer rows.Close()

	var out []ir.Edge
	for rows.Next() {
		var e ir.Edge
		if err := rows.Scan(&e.From.Index, &e.From.Type, &e.From.Key, &e.To.Index, &e.To.Type, &e.To.Key); err != nil {
			return nil, wrap("edges", err)
		}
		out = append(out, e)
	}
	return out, wrap("edges", rows.Err())
}

func scanIDs(rows *sql.Rows, op string) ([]ir.ID, error) {
	var out []ir.ID
	for rows.Next() {
		var id ir.ID
		if err := rows.Scan(&id.Index, &id.Type, &id.Key, &id.Version); err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, id)
	}
	return out, wrap(op, rows.Err())
}
