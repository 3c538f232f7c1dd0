package trees

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/degraphmalizer/internal/workpool"
)

// NodeError reports the failure of a single node during Evaluate.
type NodeError struct {
	Index int
	Err   error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d: %v", e.Index, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// Func computes the result for one node.
type Func[A, B any] func(ctx context.Context, index int, v A) (B, error)

type outcome[B any] struct {
	value B
	done  bool
}

// Evaluate applies fn to every node of t on pool and returns a tree of the
// results with exactly t's shape.
//
// Every node is submitted as soon as a pool slot is free; a parent does not
// wait for, or gate, its children. Evaluate always waits for every submitted
// node before returning.
//
// If a node fails, no further nodes are submitted and the first failure is
// returned as a *NodeError. If ctx is cancelled, submission stops and ctx's
// error is returned. Nodes that are already running are never interrupted:
// fn receives a context that carries ctx's values but not its cancellation.
func Evaluate[A, B any](ctx context.Context, pool *workpool.Pool, t *Tree[A], fn Func[A, B]) (*Tree[B], error) {
	results := make([]outcome[B], t.Len())
	nodeCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < t.Len(); i++ {
		// Stops on the first node failure as well as on caller cancellation.
		if err := pool.Acquire(gctx); err != nil {
			break
		}
		g.Go(func() error {
			defer pool.Release()
			v, err := fn(nodeCtx, i, t.values[i])
			if err != nil {
				return &NodeError{Index: i, Err: err}
			}
			results[i] = outcome[B]{value: v, done: true}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out, ok := All(reshape(t, results), func(o outcome[B]) (B, bool) {
		return o.value, o.done
	})
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluation stopped: %w", err)
		}
		return nil, fmt.Errorf("evaluation stopped before all nodes ran")
	}
	return out, nil
}
