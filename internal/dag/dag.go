// SPDX-License-Identifier: MPL-2.0

// Package dag orders the nodes of a dependency graph so that every node comes
// after the nodes it depends on. It is used to compute bundle load order.
package dag

import "fmt"

type (
	// CycleError reports a dependency edge that closes a cycle. From depends
	// on To, and To is already being visited further up the traversal.
	CycleError struct {
		From string
		To   string
	}

	// Graph is a directed dependency graph. An ordered edge from A to B
	// means A depends on B, so B must be emitted first. Unordered edges are
	// recorded for introspection but never constrain the order.
	Graph[K comparable] struct {
		// adjacency maps each node to its dependencies in insertion order.
		adjacency map[K][]edge[K]
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes   []K
		nodeSet map[K]bool
		label   func(K) string
	}

	edge[K comparable] struct {
		to        K
		unordered bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency between packages %s and %s", e.From, e.To)
}

// New creates an empty Graph. label names a node in CycleError; nil uses
// fmt's default formatting.
func New[K comparable](label func(K) string) *Graph[K] {
	if label == nil {
		label = func(k K) string { return fmt.Sprint(k) }
	}
	return &Graph[K]{
		adjacency: make(map[K][]edge[K]),
		nodeSet:   make(map[K]bool),
		label:     label,
	}
}

// AddNode adds a node. Adding an existing node is a no-op and does not move it.
func (g *Graph[K]) AddNode(n K) {
	if g.nodeSet[n] {
		return
	}
	g.nodeSet[n] = true
	g.nodes = append(g.nodes, n)
}

// AddEdge records that from depends on to.
func (g *Graph[K]) AddEdge(from, to K) {
	g.addEdge(from, to, false)
}

// AddUnorderedEdge records that from uses to without requiring to first.
func (g *Graph[K]) AddUnorderedEdge(from, to K) {
	g.addEdge(from, to, true)
}

func (g *Graph[K]) addEdge(from, to K, unordered bool) {
	g.AddNode(from)
	g.AddNode(to)
	g.adjacency[from] = append(g.adjacency[from], edge[K]{to: to, unordered: unordered})
}

// Len returns the number of nodes.
func (g *Graph[K]) Len() int {
	return len(g.nodes)
}

// Dependencies returns the ordered dependencies of n in insertion order.
func (g *Graph[K]) Dependencies(n K) []K {
	var out []K
	for _, e := range g.adjacency[n] {
		if !e.unordered {
			out = append(out, e.to)
		}
	}
	return out
}

// Order returns every node exactly once, each after all of its ordered
// dependencies. Traversal is depth-first from each node in insertion order,
// following edges in insertion order, so the result is deterministic.
// A cycle through ordered edges returns a *CycleError and no order.
func (g *Graph[K]) Order() ([]K, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	var (
		result  = make([]K, 0, len(g.nodes))
		done    = make(map[K]bool, len(g.nodes))
		onStack = make(map[K]bool)
	)

	var visit func(n K) error
	visit = func(n K) error {
		onStack[n] = true
		for _, e := range g.adjacency[n] {
			if e.unordered || done[e.to] {
				continue
			}
			if onStack[e.to] {
				return &CycleError{From: g.label(n), To: g.label(e.to)}
			}
			if err := visit(e.to); err != nil {
				return err
			}
		}
		delete(onStack, n)
		done[n] = true
		result = append(result, n)
		return nil
	}

	for _, n := range g.nodes {
		if done[n] {
			continue
		}
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return result, nil
}
