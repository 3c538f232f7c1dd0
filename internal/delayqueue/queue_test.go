package delayqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/degraphmalizer/internal/testutil"
)

func TestQueue_OrdersByDelayNotInsertion(t *testing.T) {
	q := New[string]()
	require.True(t, q.Schedule("50ms", 50*time.Millisecond))
	require.True(t, q.Schedule("10ms", 10*time.Millisecond))
	require.True(t, q.Schedule("30ms", 30*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var got []string
	for i := 0; i < 3; i++ {
		v, err := q.Take(ctx)
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []string{"10ms", "30ms", "50ms"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_TakeBlocksUntilDelayElapses(t *testing.T) {
	q := New[int]()
	start := time.Now()
	q.Schedule(1, 30*time.Millisecond)

	v, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestQueue_ZeroDelayIsImmediatelyEligible(t *testing.T) {
	q := New[int]()
	q.Schedule(1, 0)
	q.Schedule(2, -time.Second)

	v, ok := q.TryTake()
	require.True(t, ok)
	assert.Equal(t, 1, v, "negative delay is clamped to zero")
}

func TestQueue_EqualDelaysKeepScheduleOrder(t *testing.T) {
	clock := testutil.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	q := New[string](WithNow(clock.Now))
	q.Schedule("first", time.Second)
	q.Schedule("second", time.Second)
	q.Schedule("early", 0)

	pending := q.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, "early", pending[0].Value)
	assert.Equal(t, "first", pending[1].Value)
	assert.Equal(t, "second", pending[2].Value)
	assert.Equal(t, time.Second, pending[1].Remaining(clock.Now()))
}

func TestQueue_EligibilityFollowsClock(t *testing.T) {
	clock := testutil.NewManualClock(time.Unix(1000, 0))
	q := New[string](WithNow(clock.Now))
	q.Schedule("b", 2*time.Minute)
	q.Schedule("a", time.Minute)

	_, ok := q.TryTake()
	assert.False(t, ok)

	clock.Advance(time.Minute)
	v, ok := q.TryTake()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = q.TryTake()
	assert.False(t, ok)

	clock.Advance(time.Hour)
	v, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestQueue_TryTakeNotYetEligible(t *testing.T) {
	q := New[int]()
	q.Schedule(1, time.Hour)

	_, ok := q.TryTake()
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_SoonerEntryWakesWaiter(t *testing.T) {
	q := New[string]()
	q.Schedule("late", time.Hour)

	got := make(chan string, 1)
	go func() {
		v, err := q.Take(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Schedule("soon", 5*time.Millisecond)

	select {
	case v := <-got:
		assert.Equal(t, "soon", v)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by a sooner entry")
	}
	assert.Equal(t, 1, q.Len())
}

func TestQueue_EmptyTakeBlocksUntilScheduled(t *testing.T) {
	q := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Schedule(42, 0)
	}()
	v, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestQueue_ConcurrentTakers(t *testing.T) {
	q := New[int]()
	const n = 50

	var wg sync.WaitGroup
	results := make(chan int, n)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := q.Take(context.Background())
				if err != nil {
					return
				}
				results <- v
			}
		}()
	}

	for i := 0; i < n; i++ {
		q.Schedule(i, time.Duration(i%5)*time.Millisecond)
	}

	seen := make(map[int]bool)
	for len(seen) < n {
		select {
		case v := <-results:
			assert.False(t, seen[v], "value %d taken twice", v)
			seen[v] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d values taken", len(seen), n)
		}
	}

	q.Close()
	wg.Wait()
}

func TestQueue_CloseReturnsPendingAndWakesTakers(t *testing.T) {
	q := New[string]()
	q.Schedule("b", 2*time.Hour)
	q.Schedule("a", time.Hour)

	errs := make(chan error, 1)
	go func() {
		_, err := q.Take(context.Background())
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, []string{"a", "b"}, q.Close())
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("taker not woken by Close")
	}

	assert.False(t, q.Schedule("c", 0))
	assert.Nil(t, q.Close())
	_, err := q.Take(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
