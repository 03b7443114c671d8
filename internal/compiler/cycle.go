package compiler

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ParentCycle is a set of world nodes whose parent links form a loop.
type ParentCycle struct {
	Path    []string `json:"path"` // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"`
}

// FindParentCycles detects loops in the node -> parent relation.
//
// The algorithm:
//  1. Build a node -> parent graph, keeping only parents that are nodes of
//     the same world
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-parent as a cycle
//
// A forest returns an empty list. Results are ordered by their first id.
func FindParentCycles(parents map[string]string) []ParentCycle {
	graph := buildParentGraph(parents)

	var cycles []ParentCycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	slices.SortFunc(cycles, func(a, b ParentCycle) int { return strings.Compare(a.Path[0], b.Path[0]) })
	return cycles
}

// dependencyGraph maps node id -> the nodes it depends on (its parent).
type dependencyGraph map[string][]string

func buildParentGraph(parents map[string]string) dependencyGraph {
	graph := make(dependencyGraph, len(parents))
	for id, parent := range parents {
		graph[id] = []string{}
		if _, ok := parents[parent]; ok && parent != "" {
			graph[id] = append(graph[id], parent)
		}
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the output is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range slices.Sorted(maps.Keys(graph)) {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// sccToCycle walks parent links from the smallest id in scc back to itself.
func sccToCycle(scc []string, graph dependencyGraph) ParentCycle {
	start := slices.Min(scc)
	path := []string{start}
	for current := start; ; {
		next := graph[current][0]
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return ParentCycle{
		Path:    path,
		Message: fmt.Sprintf("parent cycle: %s", strings.Join(path, " -> ")),
	}
}

// parentFirst orders node ids so every parent precedes its children.
// Siblings and roots are in sorted order. Nodes on a cycle are omitted.
func parentFirst(parents map[string]string) []string {
	children := make(map[string][]string)
	var roots []string
	for _, id := range slices.Sorted(maps.Keys(parents)) {
		parent := parents[id]
		if _, ok := parents[parent]; ok && parent != "" {
			children[parent] = append(children[parent], id)
			continue
		}
		roots = append(roots, id)
	}

	var order []string
	var visit func(string)
	visit = func(id string) {
		order = append(order, id)
		for _, c := range children[id] {
			visit(c)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return order
}
