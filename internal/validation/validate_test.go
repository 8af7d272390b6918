package validation

import (
	"reflect"
	"strings"
	"testing"

	"github.com/Iron-Ham/sprint/internal/errors"
	"github.com/Iron-Ham/sprint/internal/plan"
	"github.com/Iron-Ham/sprint/internal/sprint"
	"github.com/Iron-Ham/sprint/internal/testutil"
)

func kinds(errs errors.ValidationErrors) []errors.ValidationKind {
	out := make([]errors.ValidationKind, len(errs))
	for i, e := range errs {
		out[i] = e.Kind
	}
	return out
}

func TestValidate_ExamplePlan(t *testing.T) {
	p, err := plan.Parse([]byte(testutil.ExamplePlanYAML), plan.FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	r := Validate(p)
	if !r.OK {
		t.Fatalf("Validate() not OK: %v", r.Errors)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v, want nil", r.Err())
	}

	// Only DB-001 declares acceptance criteria.
	if got := len(r.Warnings); got != 3 {
		t.Errorf("len(Warnings) = %d, want 3: %v", got, r.Warnings)
	}
}

func TestValidate_CollectsEveryError(t *testing.T) {
	p := testutil.NewPlan(
		testutil.Task("A", sprint.AgentAPI, "B"),
		testutil.Task("B", sprint.AgentAPI, "A"),
		testutil.Task("C", sprint.AgentAPI, "ghost"),
		testutil.Task("C", sprint.AgentAPI, "ghost"),
	)
	testutil.WithGate(p, "review", "missing")

	r := Validate(p)
	if r.OK {
		t.Fatal("Validate() OK on a broken plan")
	}

	want := []errors.ValidationKind{
		errors.KindDuplicateID,
		errors.KindUnknownDependency,
		errors.KindUnknownGateTask,
		errors.KindCycle,
	}
	if got := kinds(r.Errors); !reflect.DeepEqual(got, want) {
		t.Errorf("error kinds = %v, want %v", got, want)
	}

	cycle := r.Errors.OfKind(errors.KindCycle)[0]
	if !reflect.DeepEqual(cycle.IDs, []string{"A", "B"}) {
		t.Errorf("cycle IDs = %v, want [A B]", cycle.IDs)
	}
	if r.Errors[1].TaskID != "C" || r.Errors[1].Ref != "ghost" {
		t.Errorf("unknown dependency error = %+v", r.Errors[1])
	}
	if r.Errors[2].Stage != "review" || r.Errors[2].Ref != "missing" {
		t.Errorf("unknown gate task error = %+v", r.Errors[2])
	}

	if !errors.Is(r.Err(), errors.ErrInvalidPlan) {
		t.Error("Err() should match ErrInvalidPlan")
	}
}

func TestValidate_TwoTaskCycleNamesBoth(t *testing.T) {
	p := testutil.NewPlan(
		testutil.Task("A", sprint.AgentAPI, "B"),
		testutil.Task("B", sprint.AgentAPI, "A"),
	)

	r := Validate(p)
	cycles := r.Errors.OfKind(errors.KindCycle)
	if len(cycles) != 1 {
		t.Fatalf("cycle errors = %d, want 1", len(cycles))
	}
	msg := cycles[0].Error()
	if !strings.Contains(msg, "A") || !strings.Contains(msg, "B") {
		t.Errorf("cycle error %q should name A and B", msg)
	}
}

func TestValidate_DanglingDependency(t *testing.T) {
	p := testutil.NewPlan(testutil.Task("A", sprint.AgentAPI, "X"))

	r := Validate(p)
	if r.OK {
		t.Fatal("Validate() OK with a dangling dependency")
	}
	if len(r.Errors) != 1 || r.Errors[0].Kind != errors.KindUnknownDependency {
		t.Fatalf("Errors = %v, want one unknown dependency", r.Errors)
	}
	if r.Errors[0].TaskID != "A" || r.Errors[0].Ref != "X" {
		t.Errorf("error = %+v, want task=A ref=X", r.Errors[0])
	}
}

func TestValidate_GateBlocks(t *testing.T) {
	tests := []struct {
		name     string
		requires []string
		blocks   []string
		want     []errors.ValidationKind
	}{
		{name: "independent block", requires: []string{"B"}, blocks: []string{"C"}},
		{name: "blocks required task", requires: []string{"B"}, blocks: []string{"B"},
			want: []errors.ValidationKind{errors.KindGateConflict}},
		{name: "blocks ancestor of required task", requires: []string{"B"}, blocks: []string{"A"},
			want: []errors.ValidationKind{errors.KindGateConflict}},
		{name: "blocks unknown task", requires: []string{"B"}, blocks: []string{"Q"},
			want: []errors.ValidationKind{errors.KindUnknownGateTask}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.NewPlan(
				testutil.Task("A", sprint.AgentAPI),
				testutil.Task("B", sprint.AgentAPI, "A"),
				testutil.Task("C", sprint.AgentAPI),
			)
			p.ApprovalGates = []sprint.ApprovalGate{{Stage: "g", Requires: tt.requires, Blocks: tt.blocks}}

			r := Validate(p)
			if got := kinds(r.Errors); len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
				t.Errorf("error kinds = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate_DuplicateGateStage(t *testing.T) {
	p := testutil.NewPlan(testutil.Task("A", sprint.AgentAPI))
	testutil.WithGate(p, "review", "A")
	testutil.WithGate(p, "review", "A")
	testutil.WithGate(p, "review", "A")

	r := Validate(p)
	if got := kinds(r.Errors); !reflect.DeepEqual(got, []errors.ValidationKind{errors.KindDuplicateGate}) {
		t.Errorf("error kinds = %v, want one duplicate_gate", got)
	}
}

func TestValidate_DurationWarnings(t *testing.T) {
	p := testutil.NewPlan(
		sprint.Task{ID: "A", Agent: sprint.AgentAPI, Duration: "a while", AcceptanceCriteria: []string{"x"}},
	)
	p.Duration = "forever"

	r := Validate(p)
	if !r.OK {
		t.Fatalf("duration problems should not fail validation: %v", r.Errors)
	}
	if len(r.Warnings) != 2 {
		t.Fatalf("Warnings = %v, want 2", r.Warnings)
	}
	if r.Warnings[0].Field != "sprint.duration" || r.Warnings[1].TaskID != "A" {
		t.Errorf("Warnings = %v", r.Warnings)
	}
	if !strings.HasPrefix(r.Warnings[1].String(), "[A] duration:") {
		t.Errorf("Warning.String() = %q", r.Warnings[1].String())
	}
}

func TestValidate_EmptyPlan(t *testing.T) {
	ep, r, err := Compile(testutil.NewPlan())
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if !r.OK {
		t.Error("empty plan should validate")
	}
	if len(ep.ParallelGroups()) != 0 || len(ep.ExecutionOrder()) != 0 {
		t.Error("empty plan should have empty leveling")
	}
}

func TestCompile_Invalid(t *testing.T) {
	p := testutil.NewPlan(
		testutil.Task("A", sprint.AgentAPI, "X"),
		testutil.Task("B", sprint.AgentAPI, "Y"),
	)

	ep, r, err := Compile(p)
	if ep != nil {
		t.Error("Compile() returned a plan for invalid input")
	}
	if r == nil || r.OK {
		t.Fatal("Compile() should return a failing Result")
	}

	var ve errors.ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("error %T is not ValidationErrors", err)
	}
	if len(ve) != 2 {
		t.Errorf("len(ValidationErrors) = %d, want 2 (never truncated)", len(ve))
	}
}

func TestExecutablePlan_Accessors(t *testing.T) {
	p, err := plan.Parse([]byte(testutil.ExamplePlanYAML), plan.FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	ep, _, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	if ep.Len() != 4 {
		t.Errorf("Len() = %d, want 4", ep.Len())
	}
	if got := ep.ExecutionOrder(); !reflect.DeepEqual(got, []string{"DB-001", "API-001", "UI-001", "TEST-001"}) {
		t.Errorf("ExecutionOrder() = %v", got)
	}
	if got := ep.ParallelGroups(); len(got) != 3 {
		t.Errorf("ParallelGroups() = %v, want 3 groups", got)
	}
	if got := ep.Dependents("DB-001"); !reflect.DeepEqual(got, []string{"API-001", "UI-001"}) {
		t.Errorf("Dependents(DB-001) = %v", got)
	}
	if got := ep.Dependencies("API-001"); !reflect.DeepEqual(got, []string{"DB-001"}) {
		t.Errorf("Dependencies(API-001) = %v", got)
	}
	if got := ep.ReadyTasks(map[string]bool{"DB-001": true}, nil); !reflect.DeepEqual(got, []string{"API-001", "UI-001"}) {
		t.Errorf("ReadyTasks({DB-001}) = %v", got)
	}
	if ep.Plan() != p || ep.Graph() == nil {
		t.Error("Plan()/Graph() accessors broken")
	}

	tasks := ep.Tasks()
	if len(tasks) != 4 || tasks[0].ID != "DB-001" || tasks[3].ID != "TEST-001" {
		t.Errorf("Tasks() not in execution order: %v", tasks)
	}
	if task, ok := ep.Task("UI-001"); !ok || task.Agent != sprint.AgentUI {
		t.Errorf("Task(UI-001) = %+v, %v", task, ok)
	}

	if got := ep.GatedTasks("after-implementation"); !reflect.DeepEqual(got, []string{"TEST-001"}) {
		t.Errorf("GatedTasks() = %v, want [TEST-001]", got)
	}
	if got := ep.GatesFor("TEST-001"); !reflect.DeepEqual(got, []string{"after-implementation"}) {
		t.Errorf("GatesFor(TEST-001) = %v", got)
	}
	if got := ep.GatesFor("API-001"); len(got) != 0 {
		t.Errorf("GatesFor(API-001) = %v, want none", got)
	}
	if len(ep.Gates()) != 1 {
		t.Errorf("Gates() = %v", ep.Gates())
	}
}

func TestExecutablePlan_ExplicitGateBlocks(t *testing.T) {
	p := testutil.NewPlan(
		testutil.Task("A", sprint.AgentAPI),
		testutil.Task("B", sprint.AgentAPI, "A"),
		testutil.Task("C", sprint.AgentDocs),
	)
	p.ApprovalGates = []sprint.ApprovalGate{{Stage: "docs-review", Requires: []string{"A"}, Blocks: []string{"C"}}}

	ep, _, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if got := ep.GatedTasks("docs-review"); !reflect.DeepEqual(got, []string{"C"}) {
		t.Errorf("GatedTasks() = %v, want [C]", got)
	}
	if got := ep.GatesFor("B"); len(got) != 0 {
		t.Errorf("explicit blocks should replace the implicit set, B gated by %v", got)
	}
}

func TestExecutablePlan_ImplicitGateSkipsNeededTasks(t *testing.T) {
	p := testutil.NewPlan(
		testutil.Task("A", sprint.AgentAPI),
		testutil.Task("B", sprint.AgentAPI, "A"),
		testutil.Task("C", sprint.AgentAPI, "B"),
		testutil.Task("D", sprint.AgentTest, "C"),
	)
	testutil.WithGate(p, "after-implementation", "A", "C")

	ep, _, err := Compile(p)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if got := ep.GatedTasks("after-implementation"); !reflect.DeepEqual(got, []string{"D"}) {
		t.Errorf("GatedTasks() = %v, want [D]", got)
	}
	if got := ep.GatesFor("B"); len(got) != 0 {
		t.Errorf("B is needed by the gate but gated by %v", got)
	}
}

func TestValidate_GatesWaitingOnEachOther(t *testing.T) {
	tests := []struct {
		name  string
		gates []sprint.ApprovalGate
		want  []string // stages reported as conflicting
	}{
		{
			name: "independent gates",
			gates: []sprint.ApprovalGate{
				{Stage: "one", Requires: []string{"X"}, Blocks: []string{"Z"}},
				{Stage: "two", Requires: []string{"Y"}, Blocks: []string{"Z"}},
			},
		},
		{
			name: "two gates holding each other's requirements",
			gates: []sprint.ApprovalGate{
				{Stage: "one", Requires: []string{"X"}, Blocks: []string{"Y"}},
				{Stage: "two", Requires: []string{"Y"}, Blocks: []string{"X"}},
			},
			want: []string{"one", "two"},
		},
		{
			name: "three gates in a ring",
			gates: []sprint.ApprovalGate{
				{Stage: "one", Requires: []string{"X"}, Blocks: []string{"Y"}},
				{Stage: "two", Requires: []string{"Y"}, Blocks: []string{"Z"}},
				{Stage: "three", Requires: []string{"Z"}, Blocks: []string{"X"}},
			},
			want: []string{"one", "two", "three"},
		},
		{
			name: "gate holding an ancestor of another gate's requirement",
			gates: []sprint.ApprovalGate{
				{Stage: "one", Requires: []string{"X"}, Blocks: []string{"Y"}},
				{Stage: "two", Requires: []string{"W"}, Blocks: []string{"X"}},
			},
			want: []string{"one", "two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.NewPlan(
				testutil.Task("X", sprint.AgentAPI),
				testutil.Task("Y", sprint.AgentAPI),
				testutil.Task("W", sprint.AgentAPI, "Y"),
				testutil.Task("Z", sprint.AgentDocs),
			)
			p.ApprovalGates = tt.gates

			r := Validate(p)
			var got []string
			for _, e := range r.Errors.OfKind(errors.KindGateConflict) {
				got = append(got, e.Stage)
			}
			if len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
				t.Errorf("conflicting gates = %v, want %v (errors %v)", got, tt.want, r.Errors)
			}
			if r.OK != (len(tt.want) == 0) {
				t.Errorf("OK = %v", r.OK)
			}
		})
	}
}
