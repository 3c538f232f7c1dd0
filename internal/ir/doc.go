// Package ir provides the value types shared by every degraphmalizer package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// identifier, request and configuration types at the bottom of the
// dependency graph.
//
// Key design constraints:
//   - ID and Ref are comparable value types and may be used as map keys
//   - Documents decode numbers as json.Number, never float64
//   - Collaborator failures are classified with the sentinels in errors.go
//   - All JSON tags use snake_case
package ir
