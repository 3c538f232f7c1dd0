package engine

import (
	"log/slog"
	"sync"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// Status observes the progress of an action.
//
// Hooks run synchronously on the goroutine that did the work: the
// Recompute hooks on a pool worker, Complete/Failed on the goroutine that
// resolved the action, before its Done channel closes. Implementations must
// not block.
type Status interface {
	// RecomputeStarted is called before a tree node is recomputed.
	RecomputeStarted(RecomputeAction)

	// RecomputeComplete is called after a tree node was recomputed,
	// successfully or not.
	RecomputeComplete(RecomputeResult)

	// Complete is called once when the whole action succeeded.
	Complete(*Result)

	// Failed is called once when the action failed. Result.Err is the cause.
	Failed(*Result)
}

// RecomputeAction describes one node recompute.
type RecomputeAction struct {
	ActionID  string
	Tree      int
	Node      int
	ID        ir.ID
	Operation Operation
	Configs   []ir.TypeConfig
}

// RecomputeResult is the outcome of one node recompute.
type RecomputeResult struct {
	RecomputeAction
	Result NodeResult
	Err    error
}

// NopStatus ignores every event.
type NopStatus struct{}

func (NopStatus) RecomputeStarted(RecomputeAction)   {}
func (NopStatus) RecomputeComplete(RecomputeResult) {}
func (NopStatus) Complete(*Result)                  {}
func (NopStatus) Failed(*Result)                    {}

// LoggingStatus logs every event with slog.
type LoggingStatus struct{}

func (LoggingStatus) RecomputeStarted(ra RecomputeAction) {
	slog.Debug("recompute started",
		"action_id", ra.ActionID,
		"node", ra.ID.String(),
		"operation", ra.Operation,
		"configs", len(ra.Configs))
}

func (LoggingStatus) RecomputeComplete(rr RecomputeResult) {
	if rr.Err != nil {
		slog.Warn("recompute failed",
			"action_id", rr.ActionID,
			"node", rr.ID.String(),
			"error", rr.Err)
		return
	}
	slog.Debug("recompute complete",
		"action_id", rr.ActionID,
		"node", rr.Result.ID.String(),
		"operation", rr.Result.Operation,
		"targets", len(rr.Result.Targets))
}

func (LoggingStatus) Complete(res *Result) {
	slog.Info("degraphmalize complete",
		"action_id", res.ActionID,
		"request", res.Request.String(),
		"affected", len(res.Affected()))
}

func (LoggingStatus) Failed(res *Result) {
	slog.Error("degraphmalize failed",
		"action_id", res.ActionID,
		"request", res.Request.String(),
		"error", res.Err)
}

// StatusFuncs adapts optional functions to Status. Nil fields are skipped.
type StatusFuncs struct {
	OnRecomputeStarted  func(RecomputeAction)
	OnRecomputeComplete func(RecomputeResult)
	OnComplete          func(*Result)
	OnFailed            func(*Result)
}

func (f StatusFuncs) RecomputeStarted(ra RecomputeAction) {
	if f.OnRecomputeStarted != nil {
		f.OnRecomputeStarted(ra)
	}
}

func (f StatusFuncs) RecomputeComplete(rr RecomputeResult) {
	if f.OnRecomputeComplete != nil {
		f.OnRecomputeComplete(rr)
	}
}

func (f StatusFuncs) Complete(res *Result) {
	if f.OnComplete != nil {
		f.OnComplete(res)
	}
}

func (f StatusFuncs) Failed(res *Result) {
	if f.OnFailed != nil {
		f.OnFailed(res)
	}
}

// RecordingStatus records every event in order. Useful for tests and for
// the scenario harness.
type RecordingStatus struct {
	mu       sync.Mutex
	started  []RecomputeAction
	finished []RecomputeResult
	complete []*Result
	failed   []*Result
}

func (r *RecordingStatus) RecomputeStarted(ra RecomputeAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, ra)
}

func (r *RecordingStatus) RecomputeComplete(rr RecomputeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, rr)
}

func (r *RecordingStatus) Complete(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = append(r.complete, res)
}

func (r *RecordingStatus) Failed(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, res)
}

// Started returns the recorded RecomputeStarted events.
func (r *RecordingStatus) Started() []RecomputeAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecomputeAction(nil), r.started...)
}

// Finished returns the recorded RecomputeComplete events.
func (r *RecordingStatus) Finished() []RecomputeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecomputeResult(nil), r.finished...)
}

// Completed returns the results passed to Complete.
func (r *RecordingStatus) Completed() []*Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Result(nil), r.complete...)
}

// Failures returns the results passed to Failed.
func (r *RecordingStatus) Failures() []*Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Result(nil), r.failed...)
}

// notifyResolved calls Complete or Failed. A panicking hook is logged and
// does not prevent the action from resolving.
func notifyResolved(s Status, res *Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("status callback panicked", "action_id", res.ActionID, "panic", r)
		}
	}()
	if res.Success {
		s.Complete(res)
	} else {
		s.Failed(res)
	}
}
