package harness

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/degraphmalizer/internal/config"
	"github.com/roach88/degraphmalizer/internal/engine"
	"github.com/roach88/degraphmalizer/internal/ir"
	"github.com/roach88/degraphmalizer/internal/testutil"
	"github.com/roach88/degraphmalizer/internal/workpool"
)

// DefaultRequestTimeout bounds how long Run waits for one request.
const DefaultRequestTimeout = 10 * time.Second

// retryPolicy keeps injected outages cheap to run through.
var retryPolicy = engine.RetryPolicy{
	Base:        time.Millisecond,
	Max:         5 * time.Millisecond,
	Multiplier:  2,
	MaxAttempts: 3,
}

// TraceEvent is the outcome of one scenario request.
type TraceEvent struct {
	Request string
	Result  ir.Document
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool

	// Trace holds one event per request, in request order.
	Trace []TraceEvent

	// Errors describes every failed expectation or assertion.
	Errors []string

	// Targets is the final content of the target indexes.
	Targets []testutil.TargetEntry
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// request converts the step into an engine request.
func (r RequestStep) request() (engine.Request, error) {
	typ, err := ir.ParseRequestType(r.Type)
	if err != nil {
		return engine.Request{}, err
	}
	scope, err := ir.ParseRequestScope(r.Scope)
	if err != nil {
		return engine.Request{}, err
	}
	var id ir.ID
	if scope == ir.ScopeIndex {
		ref, err := ir.ParseRef(r.ID)
		if err != nil {
			return engine.Request{}, err
		}
		id = ref.At(0)
	} else if id, err = ir.ParseID(r.ID); err != nil {
		return engine.Request{}, err
	}
	req := engine.Request{Type: typ, Scope: scope, ID: id}
	if err := req.Validate(); err != nil {
		return engine.Request{}, err
	}
	return req, nil
}

// Run executes a scenario against fresh in-memory stores.
//
// Execution flow:
// 1. Parse the CUE configuration
// 2. Store documents and edges, inject faults
// 3. Submit each request and wait for it, checking its expectation
// 4. Evaluate assertions against the final target indexes
//
// The returned error reports a scenario that could not run; failed
// expectations are reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := config.Parse(scenario.Name+".cue", []byte(scenario.Config))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	mem := testutil.NewMemory()
	for _, d := range scenario.Documents {
		ref := ir.Ref{Index: d.Index, Type: d.Type, Key: d.Key}
		if d.Remove {
			mem.Remove(ref)
			continue
		}
		body, err := toDocument(d.Body)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", ref, err)
		}
		mem.Put(d.Index, d.Type, d.Key, body)
	}
	for _, e := range scenario.Edges {
		from, _ := ir.ParseRef(e.From)
		to, _ := ir.ParseRef(e.To)
		mem.Link(from, to)
	}
	for _, f := range scenario.Faults {
		mem.Inject(testutil.Fault{Op: f.Op, Key: f.Key, Times: f.Times, Err: faultErrors[f.Error]})
	}

	eng := engine.New(mem, mem, mem, config.StaticProvider(cfg),
		engine.WithPool(workpool.New(1)),
		engine.WithIDGenerator(engine.NewSequenceGenerator("action")),
		engine.WithRetryPolicy(retryPolicy),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = eng.Run(ctx) }()
	defer eng.Stop()

	result := NewResult()
	for i, step := range scenario.Requests {
		req, err := step.request()
		if err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
		event, err := execute(ctx, eng, req)
		if err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, event)
		checkExpect(result, i, step.Expect, event.Result)
	}

	result.Targets = mem.Targets()
	for _, a := range scenario.Assertions {
		if err := evaluateAssertion(mem, a); err != nil {
			result.AddError("%v", err)
		}
	}
	return result, nil
}

func execute(ctx context.Context, eng *engine.Degraphmalizr, req engine.Request) (TraceEvent, error) {
	a := eng.Submit(ctx, req, engine.NopStatus{})
	waitCtx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()
	res, _ := a.Wait(waitCtx)
	if res == nil {
		return TraceEvent{}, fmt.Errorf("%s did not resolve within %s", req, DefaultRequestTimeout)
	}
	doc, err := res.Document()
	if err != nil {
		return TraceEvent{}, fmt.Errorf("%s: %w", req, err)
	}
	return TraceEvent{Request: req.String(), Result: doc}, nil
}

func checkExpect(result *Result, i int, want ExpectClause, got ir.Document) {
	if success, _ := got["success"].(bool); success != want.Success {
		result.AddError("requests[%d]: success = %v, want %v (error: %v)", i, success, want.Success, got["error"])
	}
	if want.Code != "" {
		if code, _ := got["code"].(string); code != want.Code {
			result.AddError("requests[%d]: code = %q, want %q", i, code, want.Code)
		}
	}
	if want.Affected != nil {
		var affected []string
		for _, id := range got["affected"].([]any) {
			affected = append(affected, id.(string))
		}
		if !slices.Equal(affected, want.Affected) {
			result.AddError("requests[%d]: affected = %v, want %v", i, affected, want.Affected)
		}
	}
}

// canonicalEqual compares two values by their canonical JSON encoding, so
// that int and json.Number values of the same number are equal.
func canonicalEqual(a, b any) bool {
	ca, errA := ir.MarshalCanonical(a)
	cb, errB := ir.MarshalCanonical(b)
	return errA == nil && errB == nil && bytes.Equal(ca, cb)
}
