package sprint

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// AgentKind identifies the class of worker agent a task is routed to.
type AgentKind string

// The closed set of agent kinds.
const (
	AgentDatabase       AgentKind = "database"
	AgentUI             AgentKind = "ui"
	AgentAPI            AgentKind = "api"
	AgentInfrastructure AgentKind = "infrastructure"
	AgentTest           AgentKind = "test"
	AgentDocs           AgentKind = "docs"
	AgentReview         AgentKind = "review"
	AgentCommit         AgentKind = "commit"
	AgentPlanning       AgentKind = "planning"
)

// AgentKinds returns every valid agent kind in declaration order.
func AgentKinds() []AgentKind {
	return []AgentKind{
		AgentDatabase,
		AgentUI,
		AgentAPI,
		AgentInfrastructure,
		AgentTest,
		AgentDocs,
		AgentReview,
		AgentCommit,
		AgentPlanning,
	}
}

// Valid reports whether k is one of the known agent kinds.
func (k AgentKind) Valid() bool {
	for _, known := range AgentKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// String returns the wire name of the agent kind.
func (k AgentKind) String() string {
	return string(k)
}

// ParseAgentKind converts a plan value to an AgentKind. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseAgentKind(s string) (AgentKind, error) {
	k := AgentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown agent kind %q (expected one of %s)", s, strings.Join(agentKindNames(), ", "))
	}
	return k, nil
}

func agentKindNames() []string {
	kinds := AgentKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

// Task is a single unit of work in a sprint plan.
type Task struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Agent              AgentKind `json:"agent"`
	Duration           string    `json:"duration"` // Estimate, e.g. "2 hours" or "90m"
	Dependencies       []string  `json:"dependencies,omitempty"`
	AcceptanceCriteria []string  `json:"acceptance_criteria,omitempty"`
	Files              []string  `json:"files,omitempty"`    // Opaque to the engine
	Patterns           []string  `json:"patterns,omitempty"` // Opaque to the engine
}

// Estimate returns the parsed duration estimate, or false when the estimate
// cannot be parsed.
func (t Task) Estimate() (time.Duration, bool) {
	d, err := ParseDuration(t.Duration)
	if err != nil {
		return 0, false
	}
	return d, true
}

// ApprovalGate is a manual checkpoint. It opens for approval once every task
// in Requires has completed.
type ApprovalGate struct {
	Stage    string   `json:"stage"`
	Requires []string `json:"requires"`
	Message  string   `json:"message,omitempty"`
	// Blocks lists the tasks held back until the gate is approved. When empty,
	// every task that transitively depends on a required task is held back.
	Blocks []string `json:"blocks,omitempty"`
}

// SprintPlan is the parsed plan document.
type SprintPlan struct {
	Name          string          `json:"name"`
	Duration      string          `json:"duration"`
	Goals         []string        `json:"goals"`
	Tasks         map[string]Task `json:"tasks"`
	ApprovalGates []ApprovalGate  `json:"approval_gates"`

	// order holds task ids in declaration order, duplicates included.
	order []string
}

// NewSprintPlan creates an empty plan.
func NewSprintPlan(name, duration string) *SprintPlan {
	return &SprintPlan{
		Name:          name,
		Duration:      duration,
		Goals:         []string{},
		Tasks:         make(map[string]Task),
		ApprovalGates: []ApprovalGate{},
	}
}

// AddTask records a task declaration. A repeated id replaces the stored
// task but the repetition is remembered for validation.
func (p *SprintPlan) AddTask(t Task) {
	if p.Tasks == nil {
		p.Tasks = make(map[string]Task)
	}
	p.Tasks[t.ID] = t
	p.order = append(p.order, t.ID)
}

// DeclaredIDs returns task ids in declaration order, including repeats.
// Plans built without AddTask report their ids sorted.
func (p *SprintPlan) DeclaredIDs() []string {
	if len(p.order) > 0 {
		return append([]string(nil), p.order...)
	}
	return p.TaskIDs()
}

// TaskIDs returns the unique task ids in ascending order.
func (p *SprintPlan) TaskIDs() []string {
	ids := make([]string, 0, len(p.Tasks))
	for id := range p.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Task returns the task with the given id.
func (p *SprintPlan) Task(id string) (Task, bool) {
	t, ok := p.Tasks[id]
	return t, ok
}

// Gate returns the approval gate with the given stage name.
func (p *SprintPlan) Gate(stage string) (ApprovalGate, bool) {
	for _, g := range p.ApprovalGates {
		if g.Stage == stage {
			return g, true
		}
	}
	return ApprovalGate{}, false
}
