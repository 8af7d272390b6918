package validation

import (
	"github.com/Iron-Ham/sprint/internal/graph"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

// ExecutablePlan is a validated plan together with its dependency graph and
// approval gate coverage. It is read-only and safe to share.
type ExecutablePlan struct {
	plan  *sprint.SprintPlan
	graph *graph.Graph

	gated   map[string][]string // stage -> tasks held back by the gate
	gatesOf map[string][]string // task -> stages holding it back
}

// Compile validates plan and, if it is valid, returns the executable form.
// The Result is always returned. When the plan is invalid the error is the
// complete errors.ValidationErrors list.
func Compile(plan *sprint.SprintPlan) (*ExecutablePlan, *Result, error) {
	r := Validate(plan)
	if !r.OK {
		return nil, r, r.Err()
	}
	return newExecutablePlan(plan, r.graph), r, nil
}

func newExecutablePlan(plan *sprint.SprintPlan, g *graph.Graph) *ExecutablePlan {
	e := &ExecutablePlan{
		plan:    plan,
		graph:   g,
		gated:   make(map[string][]string, len(plan.ApprovalGates)),
		gatesOf: make(map[string][]string),
	}

	for _, gate := range plan.ApprovalGates {
		held := gatedTasks(gate, g)
		e.gated[gate.Stage] = held
		for _, id := range held {
			e.gatesOf[id] = append(e.gatesOf[id], gate.Stage)
		}
	}
	return e
}

// gatedTasks resolves which tasks a gate holds back: its explicit Blocks
// list, or else every transitive dependent of its required tasks that is not
// itself needed to satisfy the gate.
func gatedTasks(gate sprint.ApprovalGate, g *graph.Graph) []string {
	held := make(map[string]bool)
	if len(gate.Blocks) > 0 {
		for _, id := range gate.Blocks {
			held[id] = true
		}
	} else {
		for _, req := range gate.Requires {
			if !g.Has(req) {
				continue
			}
			for _, id := range g.TransitiveDependents(req) {
				held[id] = true
			}
		}
		for id := range neededBy(gate, g) {
			delete(held, id)
		}
	}

	out := make([]string, 0, len(held))
	for _, id := range g.ExecutionOrder() {
		if held[id] {
			out = append(out, id)
		}
	}
	return out
}

// neededBy returns the tasks that must complete before gate can be asked:
// its required tasks and all of their dependencies.
func neededBy(gate sprint.ApprovalGate, g *graph.Graph) map[string]bool {
	needed := make(map[string]bool)
	for _, req := range gate.Requires {
		if !g.Has(req) {
			continue
		}
		needed[req] = true
		for _, dep := range g.TransitiveDependencies(req) {
			needed[dep] = true
		}
	}
	return needed
}

// Plan returns the underlying plan.
func (e *ExecutablePlan) Plan() *sprint.SprintPlan { return e.plan }

// Graph returns the dependency graph.
func (e *ExecutablePlan) Graph() *graph.Graph { return e.graph }

// Len returns the number of tasks.
func (e *ExecutablePlan) Len() int { return e.graph.Len() }

// Task returns the task with the given id.
func (e *ExecutablePlan) Task(id string) (sprint.Task, bool) {
	return e.plan.Task(id)
}

// Tasks returns every task in execution order.
func (e *ExecutablePlan) Tasks() []sprint.Task {
	order := e.graph.ExecutionOrder()
	out := make([]sprint.Task, 0, len(order))
	for _, id := range order {
		out = append(out, e.plan.Tasks[id])
	}
	return out
}

// Dependencies returns the direct dependencies of id.
func (e *ExecutablePlan) Dependencies(id string) []string { return e.graph.Dependencies(id) }

// Dependents returns the tasks that directly depend on id.
func (e *ExecutablePlan) Dependents(id string) []string { return e.graph.Dependents(id) }

// ParallelGroups returns tasks grouped by dependency depth.
func (e *ExecutablePlan) ParallelGroups() [][]string { return e.graph.ParallelGroups() }

// ExecutionOrder returns the deterministic topological order.
func (e *ExecutablePlan) ExecutionOrder() []string { return e.graph.ExecutionOrder() }

// ReadyTasks returns the tasks whose dependencies are all completed and that
// are not completed or in flight.
func (e *ExecutablePlan) ReadyTasks(completed, inFlight map[string]bool) []string {
	return e.graph.ReadyTasks(completed, inFlight)
}

// Gates returns the approval gates in plan order.
func (e *ExecutablePlan) Gates() []sprint.ApprovalGate {
	return append([]sprint.ApprovalGate(nil), e.plan.ApprovalGates...)
}

// GatedTasks returns the tasks held back by the gate with the given stage,
// in execution order.
func (e *ExecutablePlan) GatedTasks(stage string) []string {
	return append([]string(nil), e.gated[stage]...)
}

// GatesFor returns the stages of every gate holding back task id.
func (e *ExecutablePlan) GatesFor(id string) []string {
	return append([]string(nil), e.gatesOf[id]...)
}
