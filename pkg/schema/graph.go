package schema

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// graph is a directed graph over file paths. It is built for a single Merge call.
type graph struct {
	nodes map[string]struct{}
	out   map[string]map[string]struct{}
	in    map[string]map[string]struct{}
}

func newGraph() *graph {
	return &graph{
		nodes: make(map[string]struct{}),
		out:   make(map[string]map[string]struct{}),
		in:    make(map[string]map[string]struct{}),
	}
}

func (g *graph) addNode(n string) {
	g.nodes[n] = struct{}{}
}

// addEdge adds from -> to, creating both nodes if needed. Duplicate edges are ignored.
func (g *graph) addEdge(from, to string) {
	g.addNode(from)
	g.addNode(to)

	if g.out[from] == nil {
		g.out[from] = make(map[string]struct{})
	}
	if g.in[to] == nil {
		g.in[to] = make(map[string]struct{})
	}

	g.out[from][to] = struct{}{}
	g.in[to][from] = struct{}{}
}

func (g *graph) isolated(n string) bool {
	return len(g.in[n]) == 0 && len(g.out[n]) == 0
}

// sort returns the nodes in topological order. Among nodes that are ready at the same time the
// lexicographically smallest comes first, so the order is fully determined by the graph.
func (g *graph) sort() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	var ready []string
	for n := range g.nodes {
		indegree[n] = len(g.in[n])
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		for next := range g.out[n] {
			indegree[next]--
			if indegree[next] == 0 {
				i := sort.SearchStrings(ready, next)
				ready = append(ready, "")
				copy(ready[i+1:], ready[i:])
				ready[i] = next
			}
		}
	}

	if len(order) < len(g.nodes) {
		var cyclic []string
		for n, d := range indegree {
			if d > 0 {
				cyclic = append(cyclic, n)
			}
		}
		sort.Strings(cyclic)

		return nil, errors.Wrapf(ErrDependencyCycle, "unresolved imports between %s", strings.Join(cyclic, ", "))
	}

	return order, nil
}
