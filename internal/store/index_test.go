package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/degraphmalizer/internal/ir"
)

func TestUpsert_Versioned(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "out", "doc", "1", 2, ir.Document{"v": 2}))

	err := s.Upsert(ctx, "out", "doc", "1", 1, ir.Document{"v": 1})
	assert.ErrorIs(t, err, ir.ErrWriteRejected)

	require.NoError(t, s.Upsert(ctx, "out", "doc", "1", 2, ir.Document{"v": 22}), "equal version overwrites")
	require.NoError(t, s.Upsert(ctx, "out", "doc", "1", 5, ir.Document{"v": 5}))

	td, ok, err := s.Target(ctx, "out", "doc", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), td.Version)
	assert.Equal(t, ir.Document{"v": json.Number("5")}, td.Document)
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "out", "doc", "1", 1, ir.Document{}))
	require.NoError(t, s.Upsert(ctx, "out", "doc", "2", 1, ir.Document{}))
	require.NoError(t, s.Delete(ctx, "out", "doc", "1"))
	require.NoError(t, s.Delete(ctx, "out", "doc", "missing"))

	_, ok, err := s.Target(ctx, "out", "doc", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.CountTargets(ctx, "out")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A deleted document can be written again at a lower version.
	require.NoError(t, s.Upsert(ctx, "out", "doc", "1", 1, ir.Document{}))
}

func TestCreateIndex(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	settings := map[string]any{"number_of_shards": 2, "number_of_replicas": 1}
	mappings := map[string]any{"doc": map[string]any{"properties": map[string]any{}}}

	created, err := s.CreateIndex(ctx, "out", settings, mappings)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateIndex(ctx, "out", nil, nil)
	require.NoError(t, err)
	assert.False(t, created)

	def, ok, err := s.Index(ctx, "out")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, json.Number("2"), def.Settings["number_of_shards"])
	assert.Contains(t, def.Mappings, "doc")

	_, ok, err = s.Index(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
