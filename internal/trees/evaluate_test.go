package trees

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/degraphmalizer/internal/workpool"
)

// wideTree builds a root with n children, each with n children.
func wideTree(n int) *Tree[int] {
	b := NewBuilder(0)
	next := 1
	for i := 0; i < n; i++ {
		b.Add(0, next)
		next++
	}
	for i := 1; i <= n; i++ {
		for j := 0; j < n; j++ {
			b.Add(i, next)
			next++
		}
	}
	return b.Tree()
}

func TestEvaluate_ShapePreservedForAnyPoolSize(t *testing.T) {
	tr := wideTree(4)
	for size := 1; size <= 8; size++ {
		t.Run(fmt.Sprintf("pool_%d", size), func(t *testing.T) {
			pool := workpool.New(size)
			out, err := Evaluate(context.Background(), pool, tr,
				func(_ context.Context, _ int, v int) (string, error) {
					return fmt.Sprintf("n%d", v), nil
				})
			require.NoError(t, err)

			assert.Equal(t, tr.Len(), out.Len())
			assert.True(t, SameShape(tr, out))
			for i := 0; i < tr.Len(); i++ {
				assert.Equal(t, fmt.Sprintf("n%d", tr.Value(i)), out.Value(i))
			}
			assert.Equal(t, 0, pool.InFlight())
		})
	}
}

func TestEvaluate_ChildrenDoNotWaitForParent(t *testing.T) {
	tr := New("root", Leaf("child"))
	childDone := make(chan struct{})

	out, err := Evaluate(context.Background(), workpool.New(2), tr,
		func(_ context.Context, _ int, v string) (string, error) {
			if v == "root" {
				// Root only finishes once its child has run.
				select {
				case <-childDone:
				case <-time.After(time.Second):
					return "", errors.New("child never ran concurrently")
				}
			} else {
				close(childDone)
			}
			return v, nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "child"}, out.Values())
}

func TestEvaluate_FailureWaitsForOutstandingNodes(t *testing.T) {
	// 5-node tree: root with four children.
	tr := New(0, Leaf(1), Leaf(2), Leaf(3), Leaf(4))
	boom := errors.New("boom")

	var running atomic.Int64
	var mu sync.Mutex
	var finished []int
	out, err := Evaluate(context.Background(), workpool.New(5), tr,
		func(_ context.Context, _ int, v int) (int, error) {
			running.Add(1)
			defer running.Add(-1)
			if v == 2 {
				time.Sleep(5 * time.Millisecond)
				return 0, boom
			}
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			finished = append(finished, v)
			mu.Unlock()
			return v, nil
		})

	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, boom)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, 2, nodeErr.Index)
	assert.Equal(t, int64(0), running.Load(), "no node may still be running")
	assert.ElementsMatch(t, []int{0, 1, 3, 4}, finished)
}

func TestEvaluate_FailureStopsSubmission(t *testing.T) {
	tr := wideTree(5)
	var calls atomic.Int64
	_, err := Evaluate(context.Background(), workpool.New(1), tr,
		func(_ context.Context, i int, _ int) (int, error) {
			calls.Add(1)
			if i == 0 {
				return 0, errors.New("root failed")
			}
			return i, nil
		})

	require.Error(t, err)
	assert.Less(t, calls.Load(), int64(tr.Len()))
}

func TestEvaluate_CancellationStopsSubmission(t *testing.T) {
	tr := wideTree(3)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int64
	_, err := Evaluate(ctx, workpool.New(1), tr,
		func(nodeCtx context.Context, _ int, v int) (int, error) {
			calls.Add(1)
			if v == 0 {
				cancel()
			}
			// Running nodes keep a live context.
			assert.NoError(t, nodeCtx.Err())
			return v, nil
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls.Load(), int64(tr.Len()))
}

func TestEvaluate_SingleNode(t *testing.T) {
	out, err := Evaluate(context.Background(), workpool.New(1), Leaf("x"),
		func(_ context.Context, _ int, v string) (string, error) { return v + "!", nil })
	require.NoError(t, err)
	assert.Equal(t, "x!", out.Root())
}
