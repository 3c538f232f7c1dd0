package trees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrLimitExceeded is returned by Expand when a tree would grow beyond its
// configured Limits.
var ErrLimitExceeded = errors.New("tree limit exceeded")

// Default expansion limits.
const (
	DefaultMaxDepth = 32
	DefaultMaxNodes = 10000
)

// Limits bound the fan-out of a single Expand call. A zero field means
// unlimited.
type Limits struct {
	MaxDepth int `yaml:"max_depth" json:"max_depth"`
	MaxNodes int `yaml:"max_nodes" json:"max_nodes"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxDepth: DefaultMaxDepth, MaxNodes: DefaultMaxNodes}
}

// Expander returns the ordered dependents of v.
type Expander[V any] func(ctx context.Context, v V) ([]V, error)

// Expand builds a tree breadth-first from root by repeatedly asking expand
// for the dependents of each node.
//
// Cycle guard: a dependent whose key already appears on the path from the
// root to the node being expanded is dropped, ending that branch. Only the
// path is checked, so a diamond (two branches reaching the same dependent)
// is expanded on both branches.
//
// An error from expand aborts the build and is returned wrapped; the caller
// decides whether it is retryable.
func Expand[V any, K comparable](
	ctx context.Context,
	root V,
	key func(V) K,
	expand Expander[V],
	limits Limits,
) (*Tree[V], error) {
	b := NewBuilder(root)

	// Nodes are appended in BFS order, so walking indices is the BFS queue.
	for next := 0; next < b.Len(); next++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parent := b.Value(next)
		deps, err := expand(ctx, parent)
		if err != nil {
			return nil, fmt.Errorf("expand %v: %w", key(parent), err)
		}

		for _, dep := range deps {
			k := key(dep)
			if onPath(b, next, k, key) {
				slog.Debug("dependency cycle pruned",
					"node", k,
					"parent", key(parent),
					"depth", b.Depth(next)+1)
				continue
			}
			if limits.MaxDepth > 0 && b.Depth(next)+1 > limits.MaxDepth {
				return nil, fmt.Errorf("%w: depth %d exceeds max %d at %v",
					ErrLimitExceeded, b.Depth(next)+1, limits.MaxDepth, k)
			}
			if limits.MaxNodes > 0 && b.Len() >= limits.MaxNodes {
				return nil, fmt.Errorf("%w: more than %d nodes", ErrLimitExceeded, limits.MaxNodes)
			}
			b.Add(next, dep)
		}
	}

	return b.Tree(), nil
}

// onPath reports whether k is the key of node i or any of its ancestors.
func onPath[V any, K comparable](b *Builder[V], i int, k K, key func(V) K) bool {
	for ; i >= 0; i = b.Parent(i) {
		if key(b.Value(i)) == k {
			return true
		}
	}
	return false
}
