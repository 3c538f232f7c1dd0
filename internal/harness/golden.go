package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// TraceSnapshot captures the complete outcome of a scenario execution.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Targets      []targetSnapshot
}

type targetSnapshot struct {
	Index, Type, Key string
	Version          int64
	Document         ir.Document
}

func newSnapshot(name string, result *Result) TraceSnapshot {
	s := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	for _, t := range result.Targets {
		s.Targets = append(s.Targets, targetSnapshot{
			Index:    t.Index,
			Type:     t.Type,
			Key:      t.Key,
			Version:  t.Version,
			Document: t.Document,
		})
	}
	return s
}

// toCanonicalMap converts the snapshot to the generic form accepted by
// ir.MarshalCanonical.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	requests := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		requests[i] = map[string]any{
			"request": event.Request,
			"result":  event.Result,
		}
	}
	targets := make([]any, len(s.Targets))
	for i, t := range s.Targets {
		targets[i] = map[string]any{
			"index":    t.Index,
			"type":     t.Type,
			"key":      t.Key,
			"version":  t.Version,
			"document": t.Document,
		}
	}
	return map[string]any{
		"scenario": s.ScenarioName,
		"requests": requests,
		"targets":  targets,
	}
}

// MarshalTrace renders a scenario result as canonical JSON.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snapshot := newSnapshot(name, result)
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors, or an
// error if the scenario could not run.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
