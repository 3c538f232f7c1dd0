package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/degraphmalizer/internal/ir"
)

func ref(index, typ, key string) ir.Ref {
	return ir.Ref{Index: index, Type: typ, Key: key}
}

func TestPutDocument_BumpsVersion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.PutDocument(ctx, ref("i", "t", "1"), ir.Document{"name": "a"})
	require.NoError(t, err)
	assert.Equal(t, ir.NewID("i", "t", "1", 1), id)

	id, err = s.PutDocument(ctx, ref("i", "t", "1"), ir.Document{"name": "b", "n": json.Number("2")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id.Version)

	src, err := s.Fetch(ctx, ref("i", "t", "1"))
	require.NoError(t, err)
	assert.Equal(t, id, src.ID)
	assert.Equal(t, ir.Document{"name": "b", "n": json.Number("2")}, src.Body)
}

func TestPutDocument_RejectsFloats(t *testing.T) {
	s := createTestStore(t)
	_, err := s.PutDocument(context.Background(), ref("i", "t", "1"), ir.Document{"x": 1.5})
	assert.Error(t, err)
}

func TestFetch_Missing(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Fetch(context.Background(), ref("i", "t", "nope"))
	assert.ErrorIs(t, err, ir.ErrNotFound)
}

func TestRemoveDocument(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.PutDocument(ctx, ref("i", "t", "1"), ir.Document{})
	require.NoError(t, err)

	id, err := s.RemoveDocument(ctx, ref("i", "t", "1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), id.Version)

	_, err = s.Fetch(ctx, ref("i", "t", "1"))
	assert.ErrorIs(t, err, ir.ErrNotFound)

	_, err = s.RemoveDocument(ctx, ref("i", "t", "1"))
	assert.ErrorIs(t, err, ir.ErrNotFound)

	// Versions keep growing across a removal.
	id, err = s.PutDocument(ctx, ref("i", "t", "1"), ir.Document{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id.Version)
}

func TestDependentsOf_LinkOrderAndVersions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	root := ref("i", "t", "root")
	_, err := s.PutDocument(ctx, root, ir.Document{})
	require.NoError(t, err)
	_, err = s.PutDocument(ctx, ref("i", "t", "b"), ir.Document{})
	require.NoError(t, err)
	_, err = s.PutDocument(ctx, ref("i", "t", "b"), ir.Document{})
	require.NoError(t, err)
	_, err = s.PutDocument(ctx, ref("j", "u", "a"), ir.Document{})
	require.NoError(t, err)

	require.NoError(t, s.Link(ctx, root, ref("i", "t", "b")))
	require.NoError(t, s.Link(ctx, root, ref("j", "u", "a")))
	require.NoError(t, s.Link(ctx, root, ref("i", "t", "ghost")))
	require.NoError(t, s.Link(ctx, root, ref("i", "t", "b")), "duplicate link is a no-op")

	got, err := s.DependentsOf(ctx, root.At(1))
	require.NoError(t, err)
	assert.Equal(t, []ir.ID{
		ir.NewID("i", "t", "b", 2),
		ir.NewID("j", "u", "a", 1),
		ir.NewID("i", "t", "ghost", 0),
	}, got)

	require.NoError(t, s.Unlink(ctx, root, ref("j", "u", "a")))
	got, err = s.DependentsOf(ctx, root.At(1))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	none, err := s.DependentsOf(ctx, ir.NewID("i", "t", "b", 2))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDependentsOf_RemovedDependentHasVersionZero(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.PutDocument(ctx, ref("i", "t", "dep"), ir.Document{})
	require.NoError(t, err)
	require.NoError(t, s.Link(ctx, ref("i", "t", "root"), ref("i", "t", "dep")))
	_, err = s.RemoveDocument(ctx, ref("i", "t", "dep"))
	require.NoError(t, err)

	got, err := s.DependentsOf(ctx, ir.NewID("i", "t", "root", 0))
	require.NoError(t, err)
	assert.Equal(t, []ir.ID{ir.NewID("i", "t", "dep", 0)}, got)
}

func TestAllDocuments(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, r := range []ir.Ref{ref("i", "t", "c"), ref("i", "u", "a"), ref("j", "t", "x"), ref("i", "t", "b")} {
		_, err := s.PutDocument(ctx, r, ir.Document{})
		require.NoError(t, err)
	}
	_, err := s.RemoveDocument(ctx, ref("i", "u", "a"))
	require.NoError(t, err)

	got, err := s.AllDocuments(ctx, "i")
	require.NoError(t, err)
	assert.Equal(t, []ir.ID{
		ir.NewID("i", "t", "c", 1),
		ir.NewID("i", "t", "b", 1),
	}, got)

	empty, err := s.AllDocuments(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEdges_LinkOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	edges, err := s.Edges(ctx)
	require.NoError(t, err)
	assert.Empty(t, edges)

	require.NoError(t, s.Link(ctx, ref("i", "t", "2"), ref("i", "t", "3")))
	require.NoError(t, s.Link(ctx, ref("i", "t", "1"), ref("i", "t", "2")))
	require.NoError(t, s.Link(ctx, ref("i", "t", "1"), ref("i", "t", "2")))

	edges, err = s.Edges(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.Edge{
		{From: ref("i", "t", "2"), To: ref("i", "t", "3")},
		{From: ref("i", "t", "1"), To: ref("i", "t", "2")},
	}, edges)

	require.NoError(t, s.Unlink(ctx, ref("i", "t", "2"), ref("i", "t", "3")))
	edges, err = s.Edges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}
