package topology

import (
	"fmt"
	"sort"
)

// =============================================================================
// Node Ordering Functions
// =============================================================================

// SortNodes sorts nodes by their dependencies using Kahn's algorithm.
// Dependencies come before the nodes that name them.
//
// The sort is stable with respect to the input order: whenever several
// nodes are ready, the one that appears first in nodes is emitted first.
// Resolve passes nodes in canonical order (proxies in declaration order,
// then Anubis, then backend services), so equal inputs give equal output.
//
// A dependency on a name that is not in nodes is an ErrorUnresolvable
// TopologyError. A cycle is an ErrorCycle TopologyError naming the two
// nodes of the edge that closes it.
//
// Example:
//
//	// Nodes: edge → anubis → inner
//	nodes := []Node{
//	    {Name: "edge", DependsOn: []string{"anubis"}},
//	    {Name: "inner"},
//	    {Name: "anubis", DependsOn: []string{"inner"}},
//	}
//	sorted, _ := SortNodes(nodes)
//	// Result: [inner, anubis, edge]
func SortNodes(nodes []Node) ([]Node, error) {
	if len(nodes) == 0 {
		return nodes, nil
	}

	// Build dependency graph
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.Name] = i
	}

	inDegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for i, n := range nodes {
		for _, dep := range uniqueStrings(n.DependsOn) {
			j, ok := index[dep]
			if !ok {
				return nil, NewTopologyError(ErrorUnresolvable,
					fmt.Sprintf("%s depends on %s, which is not part of the topology", n.Name, dep),
					n.Name, dep)
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// Start with nodes that have no dependencies, in input order
	var ready []int
	for i := range nodes {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	result := make([]Node, 0, len(nodes))
	emitted := make([]bool, len(nodes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]

		result = append(result, nodes[i])
		emitted[i] = true

		// Reduce in-degree for dependents
		for _, d := range dependents[i] {
			inDegree[d]--
			if inDegree[d] == 0 {
				ready = insertSorted(ready, d)
			}
		}
	}

	if len(result) < len(nodes) {
		from, to := closingEdge(nodes, index, emitted)
		return nil, NewTopologyError(ErrorCycle,
			fmt.Sprintf("dependency cycle closes at %s -> %s", from, to),
			from, to)
	}

	return result, nil
}

// insertSorted inserts v into the ascending slice s.
func insertSorted(s []int, v int) []int {
	pos := sort.SearchInts(s, v)
	s = append(s, 0)
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	return s
}

// closingEdge walks the nodes left over by the sort and returns the edge
// that closes the first cycle found, searching in input order.
func closingEdge(nodes []Node, index map[string]int, emitted []bool) (string, string) {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]int, len(nodes))

	var from, to string
	var visit func(i int) bool
	visit = func(i int) bool {
		state[i] = onPath
		for _, dep := range nodes[i].DependsOn {
			j := index[dep]
			if emitted[j] {
				continue
			}
			switch state[j] {
			case onPath:
				from, to = nodes[i].Name, nodes[j].Name
				return true
			case unvisited:
				if visit(j) {
					return true
				}
			}
		}
		state[i] = done
		return false
	}

	for i := range nodes {
		if !emitted[i] && state[i] == unvisited && visit(i) {
			return from, to
		}
	}
	return "", ""
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
