// Package graph analyses the document dependency graph.
package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// Cycle is a set of documents that depend on each other.
//
// Cycles are reported, not rejected: dependency tree expansion stops at a
// document already on the current branch, so a cycle only means that a
// change to any member recomputes every other member.
type Cycle struct {
	Path    []string `json:"path"`    // ["/i/t/a", "/i/t/b", "/i/t/a"]
	Message string   `json:"message"` // Human-readable description
}

// adjacency maps a document to the documents depending on it, in link order.
type adjacency map[ir.Ref][]ir.Ref

// FindCycles returns every cycle in edges. The result is deterministic:
// cycles are ordered by their first document, and each path starts at the
// smallest member.
func FindCycles(edges []ir.Edge) []Cycle {
	graph := make(adjacency)
	for _, e := range edges {
		graph[e.From] = append(graph[e.From], e.To)
		if _, ok := graph[e.To]; !ok {
			graph[e.To] = nil
		}
	}

	cycles := []Cycle{}
	for _, scc := range stronglyConnected(graph) {
		if len(scc) > 1 || slices.Contains(graph[scc[0]], scc[0]) {
			cycles = append(cycles, toCycle(scc, graph))
		}
	}
	slices.SortFunc(cycles, func(a, b Cycle) int { return strings.Compare(a.Path[0], b.Path[0]) })
	return cycles
}

func compareRefs(a, b ir.Ref) int {
	return strings.Compare(a.String(), b.String())
}

// stronglyConnected runs Tarjan's algorithm over graph, visiting nodes in
// sorted order.
func stronglyConnected(graph adjacency) [][]ir.Ref {
	var (
		next    int
		stack   []ir.Ref
		indices = make(map[ir.Ref]int)
		lowlink = make(map[ir.Ref]int)
		onStack = make(map[ir.Ref]bool)
		sccs    [][]ir.Ref
	)

	var connect func(ir.Ref)
	connect = func(v ir.Ref) {
		indices[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, seen := indices[w]; !seen {
				connect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var scc []ir.Ref
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		slices.SortFunc(scc, compareRefs)
		sccs = append(sccs, scc)
	}

	nodes := make([]ir.Ref, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, compareRefs)
	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			connect(n)
		}
	}
	return sccs
}

// toCycle walks the edges inside scc from its smallest member back to it.
func toCycle(scc []ir.Ref, graph adjacency) Cycle {
	start := scc[0]
	path := []string{start.String()}
	if len(scc) == 1 {
		path = append(path, start.String())
		return Cycle{Path: path, Message: fmt.Sprintf("self-dependent document: %s", start)}
	}

	members := make(map[ir.Ref]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	visited := map[ir.Ref]bool{start: true}
	for current := start; ; {
		var step ir.Ref
		found := false
		for _, w := range graph[current] {
			if members[w] && (w == start || !visited[w]) {
				step, found = w, true
				if w != start {
					break
				}
			}
		}
		if !found {
			break
		}
		path = append(path, step.String())
		if step == start {
			break
		}
		visited[step] = true
		current = step
	}
	return Cycle{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " -> ")),
	}
}
