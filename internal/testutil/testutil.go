// Package testutil provides fixtures shared by the sprint engine tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

// ExamplePlanYAML is a small plan with a fan-out, a fan-in, and one
// approval gate.
const ExamplePlanYAML = `sprint:
  name: Checkout revamp
  duration: 1 week
  goals:
    - Ship the new checkout flow
  tasks:
    - id: DB-001
      title: Add orders table
      agent: database
      duration: 2 hours
      acceptance_criteria:
        - Migration applies cleanly
    - id: API-001
      title: Orders endpoint
      agent: api
      duration: 3 hours
      dependencies: [DB-001]
    - id: UI-001
      title: Checkout page
      agent: ui
      duration: 4 hours
      dependencies: [DB-001]
    - id: TEST-001
      title: End-to-end checkout tests
      agent: test
      duration: 1 hour
      dependencies: [API-001, UI-001]
  approval_gates:
    - stage: after-implementation
      requires: [API-001, UI-001]
      message: Review the implementation before testing
`

// ExamplePlanTOML encodes the same plan as ExamplePlanYAML.
const ExamplePlanTOML = `[sprint]
name = "Checkout revamp"
duration = "1 week"
goals = ["Ship the new checkout flow"]

[[sprint.tasks]]
id = "DB-001"
title = "Add orders table"
agent = "database"
duration = "2 hours"
acceptance_criteria = ["Migration applies cleanly"]

[[sprint.tasks]]
id = "API-001"
title = "Orders endpoint"
agent = "api"
duration = "3 hours"
dependencies = ["DB-001"]

[[sprint.tasks]]
id = "UI-001"
title = "Checkout page"
agent = "ui"
duration = "4 hours"
dependencies = ["DB-001"]

[[sprint.tasks]]
id = "TEST-001"
title = "End-to-end checkout tests"
agent = "test"
duration = "1 hour"
dependencies = ["API-001", "UI-001"]

[[sprint.approval_gates]]
stage = "after-implementation"
requires = ["API-001", "UI-001"]
message = "Review the implementation before testing"
`

// ExamplePlanJSON encodes the same plan as ExamplePlanYAML.
const ExamplePlanJSON = `{
  "sprint": {
    "name": "Checkout revamp",
    "duration": "1 week",
    "goals": ["Ship the new checkout flow"],
    "tasks": [
      {"id": "DB-001", "title": "Add orders table", "agent": "database", "duration": "2 hours",
       "acceptance_criteria": ["Migration applies cleanly"]},
      {"id": "API-001", "title": "Orders endpoint", "agent": "api", "duration": "3 hours",
       "dependencies": ["DB-001"]},
      {"id": "UI-001", "title": "Checkout page", "agent": "ui", "duration": "4 hours",
       "dependencies": ["DB-001"]},
      {"id": "TEST-001", "title": "End-to-end checkout tests", "agent": "test", "duration": "1 hour",
       "dependencies": ["API-001", "UI-001"]}
    ],
    "approval_gates": [
      {"stage": "after-implementation", "requires": ["API-001", "UI-001"],
       "message": "Review the implementation before testing"}
    ]
  }
}`

// Task builds a task with a one-hour estimate.
func Task(id string, agent sprint.AgentKind, deps ...string) sprint.Task {
	return sprint.Task{
		ID:           id,
		Title:        id,
		Agent:        agent,
		Duration:     "1 hour",
		Dependencies: deps,
	}
}

// NewPlan builds a plan from tasks, recording them in the given order.
func NewPlan(tasks ...sprint.Task) *sprint.SprintPlan {
	p := sprint.NewSprintPlan("test sprint", "1 day")
	for _, t := range tasks {
		p.AddTask(t)
	}
	return p
}

// WithGate appends an approval gate to p and returns p.
func WithGate(p *sprint.SprintPlan, stage string, requires ...string) *sprint.SprintPlan {
	p.ApprovalGates = append(p.ApprovalGates, sprint.ApprovalGate{
		Stage:    stage,
		Requires: requires,
	})
	return p
}

// WriteFile writes content to name inside a temporary directory and returns
// the full path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// SkipIfNoShell skips the test if /bin/sh is not available.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}
