package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// Request is one requested change: what to do (Type), how far it reaches
// (Scope) and where it starts (ID).
type Request struct {
	Type  ir.RequestType  `json:"type"`
	Scope ir.RequestScope `json:"scope"`

	// ID names the changed document. For ScopeIndex only ID.Index is
	// required; a non-empty ID.Type restricts the rebuild to that type.
	ID ir.ID `json:"id"`

	// Configs are the type configurations applicable to ID. When empty,
	// the engine's ConfigProvider is consulted.
	Configs []ir.TypeConfig `json:"configs,omitempty"`
}

// Key is the deduplication key of the request. It ignores the version and
// the configs: a recompute always reads the current source revision.
func (r Request) Key() string {
	return ir.RequestKey(r.Type, r.Scope, r.ID.Ref())
}

// Validate checks the request is well formed.
func (r Request) Validate() error {
	if _, err := r.Type.MarshalText(); err != nil {
		return err
	}
	if _, err := r.Scope.MarshalText(); err != nil {
		return err
	}
	if r.ID.Index == "" {
		return fmt.Errorf("request has no index")
	}
	if r.Scope == ir.ScopeDocument && (r.ID.Type == "" || r.ID.Key == "") {
		return fmt.Errorf("document request %s needs type and key", r.ID.Ref())
	}
	if r.ID.Version < 0 {
		return fmt.Errorf("negative version %d", r.ID.Version)
	}
	return nil
}

func (r Request) String() string {
	if r.Scope == ir.ScopeIndex {
		return fmt.Sprintf("%s/%s %s", r.Type, r.Scope, r.ID.Ref())
	}
	return fmt.Sprintf("%s/%s %s", r.Type, r.Scope, r.ID)
}

// State is the lifecycle state of an Action.
type State int32

const (
	// StatePending: submitted, dependency trees not yet built. Actions
	// waiting for a retry or for a free slot stay pending.
	StatePending State = iota
	// StateRunning: tree evaluation has started.
	StateRunning
	// StateComplete: every node recomputed successfully.
	StateComplete
	// StateFailed: the action failed; Result().Err holds the cause.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether s is COMPLETE or FAILED.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Action is the handle of one submitted request.
//
// An Action moves PENDING -> RUNNING -> COMPLETE|FAILED and resolves exactly
// once. On resolution the status callback runs first, then Done is closed;
// the result never changes afterwards.
//
// Thread-safety: all methods are safe for concurrent use.
type Action struct {
	id        string
	seq       int64
	req       Request
	status    Status
	submitted time.Time

	ctx    context.Context
	cancel context.CancelFunc

	state    atomic.Int32
	attempts atomic.Int32

	mu        sync.Mutex
	document  ir.Document
	result    *Result
	resolved  bool
	followers []*Action
	unwatch   func() bool

	done chan struct{}
}

func newAction(ctx context.Context, id string, seq int64, req Request, status Status) *Action {
	actx, cancel := context.WithCancel(ctx)
	return &Action{
		id:        id,
		seq:       seq,
		req:       req,
		status:    status,
		submitted: time.Now(),
		ctx:       actx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// ID returns the action's unique identifier.
func (a *Action) ID() string { return a.id }

// Seq returns the logical submission sequence number.
func (a *Action) Seq() int64 { return a.seq }

// Request returns the submitted request.
func (a *Action) Request() Request { return a.req }

// State returns the current lifecycle state.
func (a *Action) State() State { return State(a.state.Load()) }

// Attempts returns how many times tree construction has been attempted.
func (a *Action) Attempts() int { return int(a.attempts.Load()) }

// Done is closed once the action has resolved.
func (a *Action) Done() <-chan struct{} { return a.done }

// Document returns the current source document of the requested node, once
// it has been fetched.
func (a *Action) Document() (ir.Document, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.document, a.document != nil
}

func (a *Action) setDocument(doc ir.Document) {
	a.mu.Lock()
	a.document = doc
	a.mu.Unlock()
}

// Result returns the final result without blocking.
func (a *Action) Result() (*Result, bool) {
	select {
	case <-a.done:
		return a.result, true
	default:
		return nil, false
	}
}

// Wait blocks until the action resolves or ctx ends. A failed action
// returns its result together with the failure.
//
// ctx ending means "result unknown": the action itself keeps running.
func (a *Action) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-a.done:
		return a.result, a.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel asks the engine to stop the action. Nodes that are already being
// recomputed finish; no new nodes are started. A pending action resolves
// as CANCELLED.
func (a *Action) Cancel() {
	a.cancel()
}

func (a *Action) isResolved() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resolved
}

// start moves a pending action to RUNNING.
func (a *Action) start() {
	a.state.CompareAndSwap(int32(StatePending), int32(StateRunning))
}

// follow registers f to be resolved together with a. Returns false if a has
// already resolved.
func (a *Action) follow(f *Action) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.resolved {
		return false
	}
	a.followers = append(a.followers, f)
	return true
}

// watchCancel arranges for fn to run if the action's context ends while it
// is waiting outside the engine's workers.
func (a *Action) watchCancel(fn func()) {
	stop := context.AfterFunc(a.ctx, fn)
	a.mu.Lock()
	a.unwatch = stop
	a.mu.Unlock()
}

// stopWatch undoes watchCancel. Returns false if the watch already fired.
func (a *Action) stopWatch() bool {
	a.mu.Lock()
	stop := a.unwatch
	a.unwatch = nil
	a.mu.Unlock()
	if stop == nil {
		return true
	}
	return stop()
}

// resolve settles the action. It returns the followers to settle next, and
// false if the action had already resolved.
func (a *Action) resolve(res *Result) ([]*Action, bool) {
	a.mu.Lock()
	if a.resolved {
		a.mu.Unlock()
		return nil, false
	}
	a.resolved = true
	a.result = res
	followers := a.followers
	a.followers = nil
	if res.Success {
		a.state.Store(int32(StateComplete))
	} else {
		a.state.Store(int32(StateFailed))
	}
	a.mu.Unlock()

	a.cancel()
	notifyResolved(a.status, res)
	close(a.done)
	return followers, true
}
