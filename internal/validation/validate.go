package validation

import (
	"fmt"

	"github.com/Iron-Ham/sprint/internal/errors"
	"github.com/Iron-Ham/sprint/internal/graph"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

// Warning is a problem that does not stop a plan from running.
type Warning struct {
	TaskID  string `json:"task_id,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// String renders the warning on one line.
func (w Warning) String() string {
	if w.TaskID != "" {
		return fmt.Sprintf("[%s] %s: %s", w.TaskID, w.Field, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// Result is the complete outcome of validating a plan.
type Result struct {
	OK       bool
	Errors   errors.ValidationErrors
	Warnings []Warning

	graph *graph.Graph
}

// Err returns the validation errors as a single error, or nil when the plan
// is valid.
func (r *Result) Err() error {
	if r.OK {
		return nil
	}
	return r.Errors
}

// Validate checks every semantic rule and returns all problems found.
func Validate(plan *sprint.SprintPlan) *Result {
	r := &Result{}

	r.checkDuplicates(plan)
	r.checkDependencies(plan)
	r.checkGateReferences(plan)

	g, err := graph.Build(plan)
	if err != nil {
		var cycle *errors.ValidationError
		if errors.As(err, &cycle) {
			r.Errors = append(r.Errors, cycle)
		} else {
			r.Errors = append(r.Errors, errors.NewCycleError(nil))
		}
	} else {
		r.graph = g
		r.checkGateConflicts(plan, g)
	}

	r.checkDurations(plan)
	r.checkAcceptanceCriteria(plan)

	r.OK = len(r.Errors) == 0
	return r
}

func (r *Result) checkDuplicates(plan *sprint.SprintPlan) {
	counts := make(map[string]int)
	var firstSeen []string
	for _, id := range plan.DeclaredIDs() {
		if counts[id] == 0 {
			firstSeen = append(firstSeen, id)
		}
		counts[id]++
	}
	for _, id := range firstSeen {
		if counts[id] > 1 {
			r.Errors = append(r.Errors, errors.NewDuplicateIDError(id, counts[id]))
		}
	}
}

func (r *Result) checkDependencies(plan *sprint.SprintPlan) {
	for _, id := range plan.TaskIDs() {
		for _, dep := range plan.Tasks[id].Dependencies {
			if _, ok := plan.Tasks[dep]; !ok {
				r.Errors = append(r.Errors, errors.NewUnknownDependencyError(id, dep))
			}
		}
	}
}

func (r *Result) checkGateReferences(plan *sprint.SprintPlan) {
	stages := make(map[string]int)
	for _, gate := range plan.ApprovalGates {
		stages[gate.Stage]++
		if stages[gate.Stage] == 2 {
			r.Errors = append(r.Errors, errors.NewDuplicateGateError(gate.Stage))
		}
		for _, ref := range gate.Requires {
			if _, ok := plan.Tasks[ref]; !ok {
				r.Errors = append(r.Errors, errors.NewUnknownGateTaskError(gate.Stage, ref))
			}
		}
		for _, ref := range gate.Blocks {
			if _, ok := plan.Tasks[ref]; !ok {
				r.Errors = append(r.Errors, errors.NewUnknownGateTaskError(gate.Stage, ref))
			}
		}
	}
}

// checkGateConflicts reports gates that can never open because they hold
// back a task they wait for, either directly or through other gates that
// wait on them in turn.
func (r *Result) checkGateConflicts(plan *sprint.SprintPlan, g *graph.Graph) {
	type edge struct {
		stage  string // gate that holds back taskID
		taskID string
	}

	heldBy := make(map[string][]string)
	needed := make(map[string]map[string]bool, len(plan.ApprovalGates))
	for _, gate := range plan.ApprovalGates {
		for _, id := range gatedTasks(gate, g) {
			heldBy[id] = append(heldBy[id], gate.Stage)
		}
		needed[gate.Stage] = neededBy(gate, g)
	}

	// waitsOn[s] lists the gates holding back a task that gate s needs.
	waitsOn := make(map[string][]edge, len(needed))
	for stage, tasks := range needed {
		for _, id := range g.ExecutionOrder() {
			if !tasks[id] {
				continue
			}
			for _, holder := range heldBy[id] {
				waitsOn[stage] = append(waitsOn[stage], edge{stage: holder, taskID: id})
			}
		}
	}

	reaches := func(from, to string) bool {
		seen := map[string]bool{from: true}
		queue := []string{from}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, e := range waitsOn[cur] {
				if e.stage == to {
					return true
				}
				if !seen[e.stage] {
					seen[e.stage] = true
					queue = append(queue, e.stage)
				}
			}
		}
		return false
	}

	reported := make(map[string]bool)
	for _, gate := range plan.ApprovalGates {
		if reported[gate.Stage] {
			continue
		}
		for _, e := range waitsOn[gate.Stage] {
			if e.stage == gate.Stage || reaches(e.stage, gate.Stage) {
				r.Errors = append(r.Errors, errors.NewGateConflictError(gate.Stage, e.taskID))
				reported[gate.Stage] = true
				if e.stage != gate.Stage {
					break
				}
			}
		}
	}
}

func (r *Result) checkDurations(plan *sprint.SprintPlan) {
	if _, err := sprint.ParseDuration(plan.Duration); err != nil {
		r.Warnings = append(r.Warnings, Warning{
			Field:   "sprint.duration",
			Message: err.Error(),
		})
	}
	for _, id := range plan.TaskIDs() {
		if _, err := sprint.ParseDuration(plan.Tasks[id].Duration); err != nil {
			r.Warnings = append(r.Warnings, Warning{
				TaskID:  id,
				Field:   "duration",
				Message: err.Error() + "; the task will not count toward the sequential estimate",
			})
		}
	}
}

func (r *Result) checkAcceptanceCriteria(plan *sprint.SprintPlan) {
	for _, id := range plan.TaskIDs() {
		if len(plan.Tasks[id].AcceptanceCriteria) == 0 {
			r.Warnings = append(r.Warnings, Warning{
				TaskID:  id,
				Field:   "acceptance_criteria",
				Message: "task has no acceptance criteria",
			})
		}
	}
}
