package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/degraphmalizer/internal/config"
	"github.com/roach88/degraphmalizer/internal/delayqueue"
	"github.com/roach88/degraphmalizer/internal/ir"
	"github.com/roach88/degraphmalizer/internal/trees"
	"github.com/roach88/degraphmalizer/internal/workpool"
)

// DefaultBackpressureDelay is how long a submission is deferred when the
// engine is saturated.
const DefaultBackpressureDelay = 50 * time.Millisecond

// Degraphmalizr is the degraphmalize job engine.
//
// It accepts requests, builds their dependency trees from the graph store,
// evaluates every tree node on a shared worker pool and reports through an
// Action handle and a Status callback.
//
// Thread-safety model:
//   - Submit, Degraphmalize, Actions, Lookup: safe from any goroutine
//   - Run: drives the delay queue; call from exactly one goroutine
//   - Stop: safe from any goroutine, idempotent
//
// Retries and backpressure redirects go through the delay queue, so Run
// must be running for deferred actions to make progress.
type Degraphmalizr struct {
	graph   GraphStore
	source  SourceStore
	index   IndexStore
	configs ConfigProvider

	pool              *workpool.Pool
	limits            trees.Limits
	retry             RetryPolicy
	maxInFlight       int
	backpressureDelay time.Duration
	ids               IDGenerator
	clock             Clock

	delayed  *delayqueue.Queue[*Action]
	actions  *xsync.MapOf[string, *Action] // live actions by ID
	retrying *xsync.MapOf[string, *Action] // pending retry by request key
	inFlight atomic.Int64

	lifecycle sync.RWMutex
	stopped   bool
	running   sync.WaitGroup
	stopOnce  sync.Once
}

// Option configures a Degraphmalizr.
type Option func(*Degraphmalizr)

// WithPool shares an existing worker pool.
//
// Default: a pool of workpool.DefaultSize workers.
func WithPool(p *workpool.Pool) Option {
	return func(e *Degraphmalizr) {
		e.pool = p
	}
}

// WithLimits bounds dependency tree depth and size.
//
// Default: trees.DefaultLimits().
func WithLimits(l trees.Limits) Option {
	return func(e *Degraphmalizr) {
		e.limits = l
	}
}

// WithRetryPolicy sets the backoff used when a store is unavailable.
//
// Default: DefaultRetryPolicy().
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Degraphmalizr) {
		e.retry = p
	}
}

// WithMaxInFlight caps the number of concurrently executing actions.
// Submissions beyond the cap are deferred to the delay queue.
//
// Default: four times the pool size.
func WithMaxInFlight(n int) Option {
	return func(e *Degraphmalizr) {
		e.maxInFlight = n
	}
}

// WithBackpressureDelay sets how long a deferred submission waits.
func WithBackpressureDelay(d time.Duration) Option {
	return func(e *Degraphmalizr) {
		e.backpressureDelay = d
	}
}

// WithIDGenerator replaces the action ID generator.
//
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Degraphmalizr) {
		e.ids = g
	}
}

// FromConfig applies an engine configuration file.
func FromConfig(cfg config.Engine) Option {
	return func(e *Degraphmalizr) {
		e.pool = workpool.New(cfg.PoolSize)
		e.limits = trees.Limits{MaxDepth: cfg.MaxDepth, MaxNodes: cfg.MaxNodes}
		e.maxInFlight = cfg.MaxInFlight
		e.backpressureDelay = cfg.BackpressureDelay
		e.retry = RetryPolicy{
			Base:        cfg.Retry.Base,
			Max:         cfg.Retry.Max,
			Multiplier:  cfg.Retry.Multiplier,
			MaxAttempts: cfg.Retry.MaxAttempts,
		}
	}
}

// New creates an engine over the given collaborators.
//
// configs may be nil, in which case only the configs carried by each
// request are used.
func New(
	graph GraphStore,
	source SourceStore,
	index IndexStore,
	configs ConfigProvider,
	opts ...Option,
) *Degraphmalizr {
	if configs == nil {
		configs = StaticConfigs(nil)
	}
	e := &Degraphmalizr{
		graph:             graph,
		source:            source,
		index:             index,
		configs:           configs,
		limits:            trees.DefaultLimits(),
		retry:             DefaultRetryPolicy(),
		backpressureDelay: DefaultBackpressureDelay,
		ids:               UUIDv7Generator{},
		delayed:           delayqueue.New[*Action](),
		actions:           xsync.NewMapOf[string, *Action](),
		retrying:          xsync.NewMapOf[string, *Action](),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.pool == nil {
		e.pool = workpool.New(workpool.DefaultSize)
	}
	if e.maxInFlight <= 0 {
		e.maxInFlight = 4 * e.pool.Size()
	}
	if e.backpressureDelay <= 0 {
		e.backpressureDelay = DefaultBackpressureDelay
	}
	return e
}

// Submit starts processing req and returns its PENDING action immediately.
//
// The action runs under ctx: cancelling ctx (or the action) stops it
// cooperatively. status may be nil.
func (e *Degraphmalizr) Submit(ctx context.Context, req Request, status Status) *Action {
	if status == nil {
		status = NopStatus{}
	}
	a := newAction(ctx, e.ids.Generate(), e.clock.Next(), req, status)
	e.actions.Store(a.id, a)
	actionsSubmitted.WithLabelValues(req.Type.String(), req.Scope.String()).Inc()

	slog.Debug("action submitted",
		"action_id", a.id,
		"seq", a.seq,
		"request", req.String())

	if err := req.Validate(); err != nil {
		e.finish(a, e.failure(a, &RuntimeError{
			Code:     ErrCodeInvalidRequest,
			Message:  "invalid request",
			ActionID: a.id,
			Cause:    err,
		}))
		return a
	}

	if leader, ok := e.retrying.Load(req.Key()); ok && leader.follow(a) {
		e.watchFollower(a)
		retriesCollapsed.Inc()
		slog.Debug("action collapsed into pending retry",
			"action_id", a.id,
			"leader_id", leader.id)
		return a
	}

	e.dispatch(a)
	return a
}

// Degraphmalize submits an UPDATE of a single document with the
// configurations the provider holds for it.
func (e *Degraphmalizr) Degraphmalize(ctx context.Context, id ir.ID, status Status) *Action {
	return e.Submit(ctx, Request{
		Type:    ir.RequestUpdate,
		Scope:   ir.ScopeDocument,
		ID:      id,
		Configs: e.configs.ConfigurationsFor(id.Index, id.Type),
	}, status)
}

// Run consumes the delay queue, re-dispatching retried and deferred actions
// as their delays elapse. Blocks until ctx is done or Stop is called.
//
// Must be called from exactly one goroutine.
func (e *Degraphmalizr) Run(ctx context.Context) error {
	slog.Info("degraphmalizer starting",
		"pool_size", e.pool.Size(),
		"max_in_flight", e.maxInFlight,
		"max_depth", e.limits.MaxDepth,
		"max_nodes", e.limits.MaxNodes)

	for {
		a, err := e.delayed.Take(ctx)
		if err != nil {
			if errors.Is(err, delayqueue.ErrClosed) {
				slog.Info("degraphmalizer stopping: stopped")
				return nil
			}
			slog.Info("degraphmalizer stopping: context cancelled")
			return err
		}
		delayQueueLength.Set(float64(e.delayed.Len()))

		e.retrying.Compute(a.req.Key(), func(leader *Action, loaded bool) (*Action, bool) {
			return leader, !loaded || leader == a
		})

		if !a.stopWatch() || a.isResolved() {
			// Cancelled while waiting.
			continue
		}
		if err := a.ctx.Err(); err != nil {
			e.finish(a, e.failure(a, err))
			continue
		}
		e.dispatch(a)
	}
}

// Stop closes the delay queue, fails every action still waiting in it as
// CANCELLED, and waits for executing actions to finish.
func (e *Degraphmalizr) Stop() {
	e.stopOnce.Do(func() {
		e.lifecycle.Lock()
		e.stopped = true
		e.lifecycle.Unlock()

		for _, a := range e.delayed.Close() {
			a.stopWatch()
			e.finish(a, e.failure(a, &RuntimeError{
				Code:     ErrCodeCancelled,
				Message:  "engine stopped",
				ActionID: a.id,
			}))
		}
		delayQueueLength.Set(0)
		e.running.Wait()
	})
}

// Actions returns the actions that have not resolved yet, in submission
// order.
func (e *Degraphmalizr) Actions() []*Action {
	var out []*Action
	e.actions.Range(func(_ string, a *Action) bool {
		out = append(out, a)
		return true
	})
	sortBySeq(out)
	return out
}

// Lookup returns the unresolved action with the given ID.
func (e *Degraphmalizr) Lookup(id string) (*Action, bool) {
	return e.actions.Load(id)
}

// InFlight returns the number of executing actions.
func (e *Degraphmalizr) InFlight() int {
	return int(e.inFlight.Load())
}

// Deferred returns the number of actions waiting in the delay queue.
func (e *Degraphmalizr) Deferred() int {
	return e.delayed.Len()
}

// dispatch executes a on its own goroutine, or defers it when the engine
// is saturated.
func (e *Degraphmalizr) dispatch(a *Action) {
	e.lifecycle.RLock()
	if e.stopped {
		e.lifecycle.RUnlock()
		e.finish(a, e.failure(a, &RuntimeError{
			Code:     ErrCodeCancelled,
			Message:  "engine stopped",
			ActionID: a.id,
		}))
		return
	}
	if !e.acquireSlot() {
		e.lifecycle.RUnlock()
		backpressureRedirects.Inc()
		slog.Debug("engine saturated, action deferred",
			"action_id", a.id,
			"in_flight", e.InFlight(),
			"delay", e.backpressureDelay)
		e.postpone(a, e.backpressureDelay)
		return
	}
	e.running.Add(1)
	e.lifecycle.RUnlock()

	go func() {
		defer e.running.Done()
		defer e.releaseSlot()
		e.execute(a)
	}()
}

func (e *Degraphmalizr) acquireSlot() bool {
	for {
		n := e.inFlight.Load()
		if n >= int64(e.maxInFlight) {
			return false
		}
		if e.inFlight.CompareAndSwap(n, n+1) {
			actionsInFlight.Inc()
			return true
		}
	}
}

func (e *Degraphmalizr) releaseSlot() {
	e.inFlight.Add(-1)
	actionsInFlight.Dec()
}

// postpone parks a pending action in the delay queue. Cancelling the
// action while it waits resolves it at once.
func (e *Degraphmalizr) postpone(a *Action, delay time.Duration) {
	a.watchCancel(func() {
		e.finish(a, e.failure(a, a.ctx.Err()))
	})
	if !e.delayed.Schedule(a, delay) {
		a.stopWatch()
		e.finish(a, e.failure(a, &RuntimeError{
			Code:     ErrCodeCancelled,
			Message:  "engine stopped",
			ActionID: a.id,
		}))
		return
	}
	delayQueueLength.Set(float64(e.delayed.Len()))
}

// watchFollower resolves a follower as soon as it is cancelled, without
// waiting for its leader.
func (e *Degraphmalizr) watchFollower(f *Action) {
	f.watchCancel(func() {
		e.finish(f, e.failure(f, f.ctx.Err()))
	})
}

// execute builds and evaluates the trees of a, then resolves it, unless
// tree construction hit an unavailable store and a retry was scheduled.
func (e *Degraphmalizr) execute(a *Action) {
	if a.isResolved() {
		return
	}
	attempt := int(a.attempts.Add(1))

	ctx, span := tracer.Start(a.ctx, "degraphmalizer.execute",
		trace.WithAttributes(
			attribute.String("action_id", a.id),
			attribute.String("request", a.req.String()),
			attribute.Int("attempt", attempt),
		),
	)
	defer span.End()

	forest, err := e.buildTrees(ctx, a)
	if err != nil {
		if IsRetryable(err) && ctx.Err() == nil && e.scheduleRetry(a, attempt, err) {
			span.AddEvent("retry scheduled")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.finish(a, e.failure(a, err))
		return
	}

	a.start()
	results := make([]*trees.Tree[NodeResult], 0, len(forest))
	for i, t := range forest {
		res, err := trees.Evaluate(ctx, e.pool, t, e.recompute(a, i))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.finish(a, e.failure(a, err))
			return
		}
		results = append(results, res)
	}

	span.SetAttributes(attribute.Int("trees", len(results)))
	e.finish(a, &Result{
		ActionID: a.id,
		Request:  a.req,
		Success:  true,
		Trees:    results,
		Attempts: attempt,
	})
}

// buildTrees expands one dependency tree per root. Graph queries run on the
// shared pool.
func (e *Degraphmalizr) buildTrees(ctx context.Context, a *Action) ([]*trees.Tree[ir.ID], error) {
	roots := []ir.ID{a.req.ID}
	if a.req.Scope == ir.ScopeIndex {
		var docs []ir.ID
		err := e.pool.Do(ctx, func() error {
			var err error
			docs, err = e.graph.AllDocuments(ctx, a.req.ID.Index)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list documents of /%s: %w", a.req.ID.Index, err)
		}
		roots = roots[:0]
		for _, id := range docs {
			if a.req.ID.Type == "" || id.Type == a.req.ID.Type {
				roots = append(roots, id)
			}
		}
	}

	expand := func(ctx context.Context, id ir.ID) ([]ir.ID, error) {
		var deps []ir.ID
		err := e.pool.Do(ctx, func() error {
			var err error
			deps, err = e.graph.DependentsOf(ctx, id)
			return err
		})
		return deps, err
	}

	forest := make([]*trees.Tree[ir.ID], 0, len(roots))
	for _, root := range roots {
		t, err := trees.Expand(ctx, root, ir.ID.Ref, expand, e.limits)
		if err != nil {
			return nil, err
		}
		forest = append(forest, t)
	}
	return forest, nil
}

// scheduleRetry re-enqueues a after an unavailable store. Returns false if
// the retry budget is spent.
func (e *Degraphmalizr) scheduleRetry(a *Action, attempt int, cause error) bool {
	if e.retry.Exhausted(attempt) {
		slog.Warn("retries exhausted",
			"action_id", a.id,
			"attempts", attempt,
			"error", cause)
		return false
	}

	key := a.req.Key()
	if leader, loaded := e.retrying.LoadOrStore(key, a); loaded && leader != a {
		if leader.follow(a) {
			e.watchFollower(a)
			retriesCollapsed.Inc()
			slog.Debug("retry collapsed into pending retry",
				"action_id", a.id,
				"leader_id", leader.id)
			return true
		}
		e.retrying.Store(key, a)
	}

	delay := e.retry.Backoff(attempt)
	retriesScheduled.Inc()
	slog.Warn("store unavailable, retry scheduled",
		"action_id", a.id,
		"attempt", attempt,
		"delay", delay,
		"error", cause)
	e.postpone(a, delay)
	return true
}

func (e *Degraphmalizr) failure(a *Action, err error) *Result {
	re := classify(a.id, err)
	if re.ActionID == "" {
		re.ActionID = a.id
	}
	return &Result{
		ActionID: a.id,
		Request:  a.req,
		Err:      re,
		Attempts: a.Attempts(),
	}
}

// finish resolves a and then its followers.
func (e *Degraphmalizr) finish(a *Action, res *Result) {
	followers, ok := a.resolve(res)
	if !ok {
		return
	}
	e.actions.Delete(a.id)

	outcome := "complete"
	if !res.Success {
		outcome = "failed"
	}
	actionsResolved.WithLabelValues(outcome).Inc()
	actionDuration.Observe(time.Since(a.submitted).Seconds())

	if res.Success {
		slog.Debug("action complete",
			"action_id", a.id,
			"affected", len(res.Affected()),
			"attempts", res.Attempts)
	} else {
		slog.Debug("action failed",
			"action_id", a.id,
			"code", CodeOf(res.Err),
			"error", res.Err)
	}

	for _, f := range followers {
		if !f.stopWatch() {
			continue
		}
		// A follower outlives a cancelled leader unless it was cancelled too.
		if IsCancelled(res.Err) && f.ctx.Err() == nil {
			e.dispatch(f)
			continue
		}
		e.finish(f, res.followedBy(f))
	}
}
