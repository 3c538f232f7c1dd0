// Package delayqueue provides a priority queue of payloads ordered by
// remaining delay.
//
// The queue is policy-agnostic: it neither computes backoff nor collapses
// duplicates. Callers choose the delay; the queue only releases each entry
// once its delay has elapsed, soonest first.
package delayqueue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrClosed is returned by Take after Close.
var ErrClosed = errors.New("delay queue closed")

// Entry is a scheduled payload.
type Entry[T any] struct {
	Value    T
	Deadline time.Time

	seq uint64
}

// Remaining returns the delay left at now; zero or negative means eligible.
func (e Entry[T]) Remaining(now time.Time) time.Duration {
	return e.Deadline.Sub(now)
}

// Less orders entries by remaining delay. Entries with the same deadline
// keep scheduling order.
func (e Entry[T]) Less(other Entry[T]) bool {
	if !e.Deadline.Equal(other.Deadline) {
		return e.Deadline.Before(other.Deadline)
	}
	return e.seq < other.seq
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNow replaces the time source used to compute deadlines.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// Queue is a delay queue.
//
// Thread-safety: all methods are safe for concurrent use. Any number of
// goroutines may Take concurrently.
type Queue[T any] struct {
	mu     sync.Mutex
	heap   minHeap[Entry[T]]
	seq    uint64
	closed bool
	now    func() time.Time

	// signal is buffered (size 1) so Schedule never blocks.
	signal chan struct{}
	done   chan struct{}
}

// New creates an empty queue.
func New[T any](opts ...Option) *Queue[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Queue[T]{
		heap:   minHeap[Entry[T]]{less: Entry[T].Less},
		now:    o.now,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Schedule adds v, eligible after delay. A non-positive delay makes it
// eligible immediately. Returns false if the queue is closed.
func (q *Queue[T]) Schedule(v T, delay time.Duration) bool {
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.seq++
	q.heap.Push(Entry[T]{Value: v, Deadline: q.now().Add(delay), seq: q.seq})
	q.mu.Unlock()

	q.wake()
	return true
}

func (q *Queue[T]) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
		// Already signaled
	}
}

// Take removes and returns the entry with the least remaining delay,
// blocking until that delay has elapsed. On an empty queue it blocks until
// something is scheduled. A newly scheduled entry that becomes eligible
// sooner than the current head wakes the waiter early.
//
// Returns ctx.Err() if ctx ends first and ErrClosed once the queue is closed.
func (q *Queue[T]) Take(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}

		var timer *time.Timer
		var expired <-chan time.Time
		if q.heap.Len() > 0 {
			wait := q.heap.Peek().Remaining(q.now())
			if wait <= 0 {
				e := q.heap.Pop()
				more := q.heap.Len() > 0
				q.mu.Unlock()
				if more {
					// Pass the turn on to any other waiting taker.
					q.wake()
				}
				return e.Value, nil
			}
			timer = time.NewTimer(wait)
			expired = timer.C
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return zero, ctx.Err()
		case <-q.done:
			stopTimer(timer)
			return zero, ErrClosed
		case <-q.signal:
		case <-expired:
		}
		stopTimer(timer)
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// TryTake returns the head entry if it is already eligible.
func (q *Queue[T]) TryTake() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.closed || q.heap.Len() == 0 || q.heap.Peek().Remaining(q.now()) > 0 {
		return zero, false
	}
	return q.heap.Pop().Value, true
}

// Len returns the number of scheduled entries, eligible or not.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Pending returns a snapshot of all entries, soonest first.
func (q *Queue[T]) Pending() []Entry[T] {
	q.mu.Lock()
	out := slices.Clone(q.heap.buf)
	q.mu.Unlock()
	sortEntries(out)
	return out
}

func sortEntries[T any](entries []Entry[T]) {
	slices.SortFunc(entries, func(a, b Entry[T]) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
}

// Close stops the queue and returns the values that were still scheduled,
// soonest first. Blocked and future Take calls return ErrClosed.
// Close is idempotent; later calls return nil.
func (q *Queue[T]) Close() []T {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	pending := q.heap.buf
	q.heap.buf = nil
	q.mu.Unlock()
	close(q.done)

	sortEntries(pending)
	out := make([]T, len(pending))
	for i, e := range pending {
		out[i] = e.Value
	}
	return out
}
