package depgraph

import (
	"sort"
	"strings"

	"toolvet/internal/contract"
)

// Adjacency maps each tool to the tools it feeds, restricted to edges at or
// above the given confidence. Neighbor lists are sorted and deduplicated so
// traversal order is deterministic.
func Adjacency(deps []contract.Dependency, minConfidence float64) map[string][]string {
	adj := make(map[string]map[string]struct{})
	for _, dep := range deps {
		if dep.Confidence < minConfidence {
			continue
		}
		set, ok := adj[dep.FromTool]
		if !ok {
			set = make(map[string]struct{})
			adj[dep.FromTool] = set
		}
		set[dep.ToTool] = struct{}{}
	}

	result := make(map[string][]string, len(adj))
	for from, set := range adj {
		neighbors := make([]string, 0, len(set))
		for to := range set {
			neighbors = append(neighbors, to)
		}
		sort.Strings(neighbors)
		result[from] = neighbors
	}
	return result
}

// FindCycles detects cycles by depth-first search over the adjacency map.
// Each distinct cycle is reported once, canonicalized by the sorted set of
// its nodes; self-edges count as length-1 cycles. Results are ordered by
// canonical key for determinism.
func FindCycles(adj map[string][]string) [][]string {
	nodes := make([]string, 0, len(adj))
	for node := range adj {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	seen := make(map[string][]string) // canonical key -> sorted node set
	state := make(map[string]int)     // 0 unvisited, 1 on stack, 2 done
	var stack []string

	var dfs func(node string)
	dfs = func(node string) {
		state[node] = 1
		stack = append(stack, node)

		for _, next := range adj[node] {
			switch state[next] {
			case 0:
				dfs(next)
			case 1:
				// Back-edge: the cycle is the stack suffix from next.
				start := len(stack) - 1
				for start >= 0 && stack[start] != next {
					start--
				}
				if start < 0 {
					continue
				}
				cycle := append([]string(nil), stack[start:]...)
				sort.Strings(cycle)
				seen[strings.Join(cycle, "\x00")] = cycle
			}
		}

		stack = stack[:len(stack)-1]
		state[node] = 2
	}

	for _, node := range nodes {
		if state[node] == 0 {
			dfs(node)
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	cycles := make([][]string, 0, len(keys))
	for _, key := range keys {
		cycles = append(cycles, seen[key])
	}
	return cycles
}
