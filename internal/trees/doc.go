// Package trees implements the immutable dependency tree used by the
// degraphmalizer and the algorithms over it.
//
// A Tree is an arena: node values live in one slice and the shape is kept in
// parent/children index arrays, so ownership is acyclic by construction and
// no algorithm in this package recurses. Construction (Expand), mapping,
// evaluation and serialization all use explicit queues or stacks, which keeps
// pathologically deep trees from exhausting the goroutine stack.
//
// Node indices are assigned in breadth-first order: index 0 is the root and
// a node's children always have larger indices than the node itself.
package trees
