package trees

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// graph maps a node to its dependents in order.
type graph map[string][]string

func (g graph) expander() Expander[string] {
	return func(_ context.Context, v string) ([]string, error) {
		return g[v], nil
	}
}

func identity(s string) string { return s }

func TestExpand_Acyclic(t *testing.T) {
	g := graph{
		"a": {"b", "c"},
		"b": {"d"},
	}
	tr, err := Expand(context.Background(), "a", identity, g.expander(), DefaultLimits())
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, tr.Values()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, SameShape(sample(), tr))
}

func TestExpand_TwoNodeCycleIsPruned(t *testing.T) {
	g := graph{
		"A": {"B"},
		"B": {"A"},
	}
	tr, err := Expand(context.Background(), "A", identity, g.expander(), DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, tr.Values())
	assert.True(t, tr.IsLeaf(1), "branch re-entering A is pruned")
}

func TestExpand_SelfLoopIsPruned(t *testing.T) {
	g := graph{"A": {"A", "B"}}
	tr, err := Expand(context.Background(), "A", identity, g.expander(), DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, tr.Values())
}

func TestExpand_DiamondExpandsBothBranches(t *testing.T) {
	g := graph{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
		"d": {"e"},
	}
	tr, err := Expand(context.Background(), "a", identity, g.expander(), DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d", "d", "e", "e"}, tr.Values())
}

func TestExpand_LongerCycleOnlyPrunesPath(t *testing.T) {
	// a -> b -> c -> a; c also reaches b's sibling x, which is not on its path.
	g := graph{
		"a": {"b", "x"},
		"b": {"c"},
		"c": {"a", "x"},
	}
	tr, err := Expand(context.Background(), "a", identity, g.expander(), DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "x", "c", "x"}, tr.Values())
}

func TestExpand_KeyFunctionIgnoresVersion(t *testing.T) {
	type node struct {
		name    string
		version int
	}
	deps := map[string][]node{
		"a": {{"b", 1}},
		"b": {{"a", 7}},
	}
	tr, err := Expand(context.Background(), node{"a", 3},
		func(n node) string { return n.name },
		func(_ context.Context, n node) ([]node, error) { return deps[n.name], nil },
		DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Len())
}

func TestExpand_ExpanderErrorFailsBuild(t *testing.T) {
	unavailable := errors.New("store unavailable")
	calls := 0
	_, err := Expand(context.Background(), "a", identity,
		func(_ context.Context, v string) ([]string, error) {
			calls++
			if v == "b" {
				return nil, unavailable
			}
			return []string{"b", "c"}, nil
		}, DefaultLimits())

	require.Error(t, err)
	assert.ErrorIs(t, err, unavailable)
	assert.Equal(t, 2, calls)
}

func TestExpand_Limits(t *testing.T) {
	chain := graph{"a": {"b"}, "b": {"c"}, "c": {"d"}}

	_, err := Expand(context.Background(), "a", identity, chain.expander(), Limits{MaxDepth: 2})
	assert.ErrorIs(t, err, ErrLimitExceeded)

	tr, err := Expand(context.Background(), "a", identity, chain.expander(), Limits{MaxDepth: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, tr.Len())

	wide := graph{"a": {"b", "c", "d", "e"}}
	_, err = Expand(context.Background(), "a", identity, wide.expander(), Limits{MaxNodes: 3})
	assert.ErrorIs(t, err, ErrLimitExceeded)

	tr, err = Expand(context.Background(), "a", identity, wide.expander(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, 5, tr.Len())
}

func TestExpand_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Expand(ctx, "a", identity, graph{}.expander(), DefaultLimits())
	assert.ErrorIs(t, err, context.Canceled)
}
