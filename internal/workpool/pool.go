// Package workpool provides the bounded worker pool shared by tree
// construction and tree evaluation.
//
// The pool is sized once, independently of request volume. Callers that
// find it saturated block in Acquire (backpressure) or use TryGo and decide
// themselves where the work goes instead.
package workpool

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the pool size used when a non-positive size is requested.
const DefaultSize = 8

// Pool bounds the number of concurrently running units of work.
//
// Thread-safety: all methods are safe for concurrent use.
type Pool struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

// New creates a pool running at most size units at once.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Acquire blocks until a slot is free or ctx is done.
// Every successful Acquire must be paired with exactly one Release.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire worker: %w", err)
	}
	p.inFlight.Add(1)
	return nil
}

// Release returns a slot taken by Acquire.
func (p *Pool) Release() {
	p.inFlight.Add(-1)
	p.sem.Release(1)
}

// Go runs fn on a new goroutine once a slot is free.
// Blocks while the pool is saturated; returns an error if ctx ends first,
// in which case fn never runs.
func (p *Pool) Go(ctx context.Context, fn func()) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}
	go func() {
		defer p.Release()
		fn()
	}()
	return nil
}

// TryGo runs fn on a new goroutine if a slot is free right now.
// Returns false without running fn when the pool is saturated.
func (p *Pool) TryGo(fn func()) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	p.inFlight.Add(1)
	go func() {
		defer p.Release()
		fn()
	}()
	return true
}

// Do runs fn on the calling goroutine while holding a slot.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}
	defer p.Release()
	return fn()
}

// Size returns the maximum number of concurrent units.
func (p *Pool) Size() int {
	return p.size
}

// InFlight returns the number of units currently holding a slot.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}
