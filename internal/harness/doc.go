// Package harness runs degraphmalizer scenarios: YAML files that describe
// source documents, dependency edges, a CUE type configuration, injected
// store faults and a sequence of requests, together with expectations on
// the results and the final target indexes.
//
// Scenarios run against the in-memory collaborators of package testutil
// with a single worker, sequential action IDs and a fast retry policy, so
// the produced trace is deterministic. RunWithGolden compares that trace,
// rendered as canonical JSON, with testdata/golden/<name>.golden.
package harness
