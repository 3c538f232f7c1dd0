// Package engine implements the degraphmalize job engine.
//
// A caller submits a Request (UPDATE or DELETE, of one document or of a
// whole source index) and gets back an Action handle. For every action the
// engine:
//
//  1. builds a dependency tree per root document by asking the GraphStore
//     who depends on each node (trees.Expand, path-based cycle guard);
//  2. moves the action to RUNNING and evaluates every node on the shared
//     worker pool (trees.Evaluate): read the node's current source
//     document, apply each TypeConfig mapping, upsert the target documents;
//  3. resolves the action exactly once, COMPLETE with a Result tree of the
//     same shape or FAILED with the first node's error as cause.
//
// Progress is pushed through the Status callback; the final outcome is
// pulled through Action.Wait. Both are fed by the same resolution event:
// callbacks run first, then the handle's Done channel closes.
//
// RETRIES AND BACKPRESSURE:
//
// Tree construction that fails with ir.ErrStoreUnavailable is retried with
// exponential backoff through a delay queue; the action stays PENDING in
// the meantime, and later submissions of the same request key follow the
// pending one instead of queueing a duplicate. When MaxInFlight actions
// are executing, new submissions are deferred to the delay queue as well.
// Run drives the queue.
//
// Node failures are never retried: the action fails as a whole and must be
// resubmitted. Target writes are versioned and idempotent, so that is safe.
package engine
