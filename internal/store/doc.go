// Package store is a SQLite implementation of the degraphmalizer's
// collaborators: the source document store, the dependency graph and the
// target index store.
//
// # Data model
//
//   - documents: source documents keyed by (index, type, key). Every write
//     or removal bumps the document's version; removal leaves a tombstone
//     so versions never go backwards.
//   - edges: "to depends on from". Dependents are returned in the order
//     their edges were recorded.
//   - target_indexes: created target indexes with their settings and
//     per-type mappings.
//   - targets: projected documents. Writes are externally versioned: a
//     write carrying a lower version than the stored one is rejected with
//     ir.ErrWriteRejected; an equal version overwrites.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Busy and locked databases, and a closed Store, report
// ir.ErrStoreUnavailable so the engine retries.
package store
