package definition

import (
	"fmt"
	"slices"
	"strings"
)

// CycleWarning reports actions that dispatch each other without a delay.
// Such a cycle recurses on the caller's stack unless a when guard ends it,
// so it is reported rather than rejected.
type CycleWarning struct {
	Store   string   `json:"store"`
	Path    []string `json:"path"` // ["a", "b", "a"]
	Message string   `json:"message"`
}

// AnalyzeCycles finds cycles among the immediate dispatch steps of d.
// Delayed steps run later on the loop and never recurse, so they are not edges.
// Returns an empty slice for an acyclic definition.
func AnalyzeCycles(d *Definition) []CycleWarning {
	graph := dispatchGraph(d)

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		path := cyclePath(scc, graph)
		warnings = append(warnings, CycleWarning{
			Store:   d.Name,
			Path:    path,
			Message: fmt.Sprintf("store %s: actions dispatch each other without delay: %s", d.Name, strings.Join(path, " → ")),
		})
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int { return strings.Compare(a.Path[0], b.Path[0]) })
	return warnings
}

// dispatchGraph maps each action to the actions it dispatches immediately.
// Neighbours are sorted so traversal order is stable.
func dispatchGraph(d *Definition) map[string][]string {
	graph := make(map[string][]string, len(d.Actions))
	for _, name := range d.ActionNames() {
		var next []string
		for _, step := range d.Actions[name].Steps {
			if step.Dispatch != "" && step.Delay == 0 && !slices.Contains(next, step.Dispatch) {
				next = append(next, step.Dispatch)
			}
		}
		slices.Sort(next)
		graph[name] = next
	}
	return graph
}

// tarjanSCC returns the strongly connected components of graph.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var visit func(string)
	visit = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, seen := indices[w]; !seen {
				visit(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
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
		slices.Sort(scc)
		sccs = append(sccs, scc)
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			visit(n)
		}
	}
	return sccs
}

// cyclePath walks from the smallest member of scc back to itself.
func cyclePath(scc []string, graph map[string][]string) []string {
	start := scc[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range graph[current] {
			if w == start || (slices.Contains(scc, w) && !visited[w]) {
				next = w
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
