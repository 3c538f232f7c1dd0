package trees

import (
	"fmt"
	"slices"
)

// Tree is an immutable, ordered, n-ary tree.
//
// Child order is the order in which children were added and is stable, so
// two trees built from the same input compare equal node for node.
type Tree[T any] struct {
	values   []T
	parents  []int
	depths   []int
	children [][]int
}

// Len returns the number of nodes.
func (t *Tree[T]) Len() int {
	return len(t.values)
}

// Root returns the root value.
func (t *Tree[T]) Root() T {
	return t.values[0]
}

// Value returns the value of node i.
func (t *Tree[T]) Value(i int) T {
	return t.values[i]
}

// Children returns the indices of node i's children in order.
// The returned slice is a copy.
func (t *Tree[T]) Children(i int) []int {
	return slices.Clone(t.children[i])
}

// Parent returns the index of node i's parent, or -1 for the root.
func (t *Tree[T]) Parent(i int) int {
	return t.parents[i]
}

// Depth returns the number of edges between the root and node i.
func (t *Tree[T]) Depth(i int) int {
	return t.depths[i]
}

// IsLeaf reports whether node i has no children.
func (t *Tree[T]) IsLeaf(i int) bool {
	return len(t.children[i]) == 0
}

// Values returns all node values in breadth-first order.
func (t *Tree[T]) Values() []T {
	out := make([]T, 0, t.Len())
	t.Walk(func(_ int, v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Walk visits nodes breadth-first, children in order. Returning false from
// fn stops the walk.
func (t *Tree[T]) Walk(fn func(i int, v T) bool) {
	queue := []int{0}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if !fn(i, t.values[i]) {
			return
		}
		queue = append(queue, t.children[i]...)
	}
}

// Leaf returns a single-node tree.
func Leaf[T any](v T) *Tree[T] {
	return NewBuilder(v).Tree()
}

// New returns a tree with root value v and the given subtrees as children,
// in order. The subtrees are copied; they are not shared with the result.
func New[T any](v T, children ...*Tree[T]) *Tree[T] {
	b := NewBuilder(v)

	// Breadth-first over the subtrees keeps the result's indices BFS ordered.
	type pending struct {
		src    *Tree[T]
		node   int
		parent int
	}
	var queue []pending
	for _, c := range children {
		queue = append(queue, pending{src: c, node: 0, parent: 0})
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		idx := b.Add(p.parent, p.src.values[p.node])
		for _, c := range p.src.children[p.node] {
			queue = append(queue, pending{src: p.src, node: c, parent: idx})
		}
	}
	return b.Tree()
}

// Builder assembles a Tree node by node.
//
// Nodes must be added breadth-first (all children of node i before any
// child of node i+1) for the resulting indices to be in BFS order; Expand
// and New both do this.
type Builder[T any] struct {
	t *Tree[T]
}

// NewBuilder starts a tree with the given root value.
func NewBuilder[T any](root T) *Builder[T] {
	return &Builder[T]{t: &Tree[T]{
		values:   []T{root},
		parents:  []int{-1},
		depths:   []int{0},
		children: [][]int{nil},
	}}
}

// Add appends v as the last child of parent and returns its index.
// Panics if parent is out of range or the builder has been finished.
func (b *Builder[T]) Add(parent int, v T) int {
	if b.t == nil {
		panic("trees: Add after Tree")
	}
	if parent < 0 || parent >= len(b.t.values) {
		panic(fmt.Sprintf("trees: parent index %d out of range [0,%d)", parent, len(b.t.values)))
	}
	idx := len(b.t.values)
	b.t.values = append(b.t.values, v)
	b.t.parents = append(b.t.parents, parent)
	b.t.depths = append(b.t.depths, b.t.depths[parent]+1)
	b.t.children = append(b.t.children, nil)
	b.t.children[parent] = append(b.t.children[parent], idx)
	return idx
}

// Len returns the number of nodes added so far, including the root.
func (b *Builder[T]) Len() int {
	return len(b.t.values)
}

// Value returns the value of node i.
func (b *Builder[T]) Value(i int) T {
	return b.t.values[i]
}

// Parent returns the parent index of node i, or -1 for the root.
func (b *Builder[T]) Parent(i int) int {
	return b.t.parents[i]
}

// Depth returns the depth of node i.
func (b *Builder[T]) Depth(i int) int {
	return b.t.depths[i]
}

// Tree finishes the build. The builder must not be used afterwards.
func (b *Builder[T]) Tree() *Tree[T] {
	t := b.t
	b.t = nil
	return t
}

// Map returns a tree with the same shape as t whose values are fn applied
// to t's values.
func Map[A, B any](t *Tree[A], fn func(A) B) *Tree[B] {
	out := make([]B, len(t.values))
	for i, v := range t.values {
		out[i] = fn(v)
	}
	return reshape(t, out)
}

// All unwraps every node with get. It returns false if get reports a
// missing value for any node.
func All[A, B any](t *Tree[A], get func(A) (B, bool)) (*Tree[B], bool) {
	out := make([]B, len(t.values))
	for i, v := range t.values {
		b, ok := get(v)
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return reshape(t, out), true
}

// reshape pairs values with t's shape. The index arrays are shared; both
// trees are immutable.
func reshape[A, B any](t *Tree[A], values []B) *Tree[B] {
	return &Tree[B]{
		values:   values,
		parents:  t.parents,
		depths:   t.depths,
		children: t.children,
	}
}

// SameShape reports whether a and b have identical structure and child
// order, ignoring values.
func SameShape[A, B any](a *Tree[A], b *Tree[B]) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.children {
		if !slices.Equal(a.children[i], b.children[i]) {
			return false
		}
	}
	return true
}
