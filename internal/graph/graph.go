// Package graph builds the dependency graph of a sprint plan.
//
// The graph is computed once and is read-only afterwards, so it can be shared
// between the scheduler loop and any number of readers without locking. Nodes
// are addressed by task id; there are no pointers between nodes.
package graph

import (
	"sort"

	"github.com/Iron-Ham/sprint/internal/errors"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

// node holds the adjacency of a single task.
type node struct {
	deps       []string // tasks this task waits on, sorted
	dependents []string // tasks waiting on this task, sorted
	depth      int
	position   int // index in the execution order
}

// Graph is the dependency DAG of a plan together with its leveling.
type Graph struct {
	nodes  map[string]*node
	order  []string
	groups [][]string
}

// Build constructs the graph for plan. Dependencies on ids that are not part
// of the plan are ignored; reporting them is the validator's job. If the
// dependencies contain a cycle, Build returns a *errors.ValidationError of
// kind cycle listing every task that could not be ordered.
func Build(plan *sprint.SprintPlan) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*node, len(plan.Tasks))}

	for id := range plan.Tasks {
		g.nodes[id] = &node{}
	}
	for id, t := range plan.Tasks {
		seen := make(map[string]bool, len(t.Dependencies))
		for _, dep := range t.Dependencies {
			if seen[dep] || g.nodes[dep] == nil {
				continue
			}
			seen[dep] = true
			g.nodes[id].deps = append(g.nodes[id].deps, dep)
			g.nodes[dep].dependents = append(g.nodes[dep].dependents, id)
		}
	}
	for _, n := range g.nodes {
		sort.Strings(n.deps)
		sort.Strings(n.dependents)
	}

	if err := g.sort(); err != nil {
		return nil, err
	}
	g.level()
	return g, nil
}

// sort runs Kahn's algorithm, always taking the smallest ready id next.
func (g *Graph) sort() error {
	inDegree := make(map[string]int, len(g.nodes))
	var ready []string
	for id, n := range g.nodes {
		inDegree[id] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	g.order = make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]

		g.nodes[id].position = len(g.order)
		g.order = append(g.order, id)

		for _, dependent := range g.nodes[id].dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = insertSorted(ready, dependent)
			}
		}
	}

	if len(g.order) < len(g.nodes) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return errors.NewCycleError(stuck)
	}
	return nil
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// level assigns depths in execution order, which is topological, so every
// dependency's depth is final before its dependents are visited.
func (g *Graph) level() {
	maxDepth := -1
	for _, id := range g.order {
		n := g.nodes[id]
		for _, dep := range n.deps {
			if d := g.nodes[dep].depth + 1; d > n.depth {
				n.depth = d
			}
		}
		if n.depth > maxDepth {
			maxDepth = n.depth
		}
	}

	g.groups = make([][]string, maxDepth+1)
	for _, id := range g.order {
		d := g.nodes[id].depth
		g.groups[d] = append(g.groups[d], id)
	}
	for _, group := range g.groups {
		sort.Strings(group)
	}
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Has reports whether id is a task in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// ExecutionOrder returns a topological order of all tasks. Among tasks whose
// dependencies are satisfied at the same point, the smaller id comes first.
func (g *Graph) ExecutionOrder() []string {
	return append([]string(nil), g.order...)
}

// ParallelGroups returns the tasks grouped by depth. Group 0 holds tasks
// without dependencies; a task's group is one more than the deepest of its
// dependencies. Each group is sorted by id.
func (g *Graph) ParallelGroups() [][]string {
	out := make([][]string, len(g.groups))
	for i, group := range g.groups {
		out[i] = append([]string(nil), group...)
	}
	return out
}

// Dependencies returns the direct dependencies of id, sorted.
func (g *Graph) Dependencies(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), n.deps...)
}

// Dependents returns the tasks that directly depend on id, sorted.
func (g *Graph) Dependents(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), n.dependents...)
}

// Depth returns the parallel group index of id, or -1 if id is unknown.
func (g *Graph) Depth(id string) int {
	n, ok := g.nodes[id]
	if !ok {
		return -1
	}
	return n.depth
}

// Position returns the index of id in the execution order, or -1 if id is
// unknown.
func (g *Graph) Position(id string) int {
	n, ok := g.nodes[id]
	if !ok {
		return -1
	}
	return n.position
}

// ReadyTasks returns every task that is neither completed nor in flight and
// whose dependencies are all completed, in execution order. It does not
// modify any state, so repeated calls with the same sets return the same
// result.
func (g *Graph) ReadyTasks(completed, inFlight map[string]bool) []string {
	var ready []string
	for _, id := range g.order {
		if completed[id] || inFlight[id] {
			continue
		}
		if g.satisfied(id, completed) {
			ready = append(ready, id)
		}
	}
	return ready
}

func (g *Graph) satisfied(id string, completed map[string]bool) bool {
	for _, dep := range g.nodes[id].deps {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// TransitiveDependents returns every task that directly or indirectly
// depends on id, in execution order.
func (g *Graph) TransitiveDependents(id string) []string {
	return g.closure(id, func(n *node) []string { return n.dependents })
}

// TransitiveDependencies returns every task that id directly or indirectly
// depends on, in execution order.
func (g *Graph) TransitiveDependencies(id string) []string {
	return g.closure(id, func(n *node) []string { return n.deps })
}

func (g *Graph) closure(id string, next func(*node) []string) []string {
	if _, ok := g.nodes[id]; !ok {
		return nil
	}

	seen := map[string]bool{id: true}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, nb := range next(g.nodes[cur]) {
			if !seen[nb] {
				seen[nb] = true
				stack = append(stack, nb)
			}
		}
	}
	delete(seen, id)

	out := make([]string, 0, len(seen))
	for _, oid := range g.order {
		if seen[oid] {
			out = append(out, oid)
		}
	}
	return out
}
