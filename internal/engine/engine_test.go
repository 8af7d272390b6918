package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/sprint/internal/agent"
	"github.com/Iron-Ham/sprint/internal/approval"
	"github.com/Iron-Ham/sprint/internal/errors"
	"github.com/Iron-Ham/sprint/internal/event"
	"github.com/Iron-Ham/sprint/internal/logging"
	"github.com/Iron-Ham/sprint/internal/monitor"
	"github.com/Iron-Ham/sprint/internal/scheduler"
	"github.com/Iron-Ham/sprint/internal/sprint"
	"github.com/Iron-Ham/sprint/internal/testutil"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "plan.yaml", testutil.ExamplePlanYAML},
		{"toml", "plan.toml", testutil.ExamplePlanTOML},
		{"json", "plan.json", testutil.ExamplePlanJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, result, err := Load(testutil.WriteFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !result.OK {
				t.Errorf("result not OK: %v", result.Errors)
			}
			if ep.Len() != 4 {
				t.Errorf("Len() = %d, want 4", ep.Len())
			}
			want := [][]string{{"DB-001"}, {"API-001", "UI-001"}, {"TEST-001"}}
			groups := ep.ParallelGroups()
			if len(groups) != len(want) {
				t.Fatalf("ParallelGroups() = %v, want %v", groups, want)
			}
			for i := range want {
				if strings.Join(groups[i], ",") != strings.Join(want[i], ",") {
					t.Errorf("group %d = %v, want %v", i, groups[i], want[i])
				}
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, result, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil || result != nil {
			t.Errorf("Load() = %v, %v; want error without result", result, err)
		}
	})

	t.Run("parse error", func(t *testing.T) {
		path := testutil.WriteFile(t, "plan.yaml", "sprint:\n  name: x\n  tasks: 3\n")
		_, result, err := Load(path)
		if !errors.Is(err, errors.ErrParse) {
			t.Errorf("Load() error = %v, want ErrParse", err)
		}
		if result != nil {
			t.Error("parse errors should not produce a validation result")
		}
	})

	t.Run("cycle", func(t *testing.T) {
		cyclic := `sprint:
  name: loop
  duration: 1 day
  tasks:
    - {id: A, title: A, agent: api, duration: 1 hour, dependencies: [B]}
    - {id: B, title: B, agent: api, duration: 1 hour, dependencies: [A]}
`
		_, result, err := Load(testutil.WriteFile(t, "plan.yaml", cyclic))
		if !errors.Is(err, errors.ErrDependencyCycle) {
			t.Fatalf("Load() error = %v, want cycle", err)
		}
		if result == nil || result.OK {
			t.Fatal("expected a failed validation result")
		}
		if !strings.Contains(err.Error(), "A, B") {
			t.Errorf("error should name both tasks: %v", err)
		}
	})
}

func TestNew(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() without executor should fail")
	}
	if _, err := New(Options{Executor: agent.NewSimulatedExecutor(0), Scheduler: scheduler.Config{MaxConcurrency: -1}}); err == nil {
		t.Error("New() with invalid scheduler config should fail")
	}
}

func TestRun_ExamplePlan(t *testing.T) {
	ep, _, err := Load(testutil.WriteFile(t, "plan.yaml", testutil.ExamplePlanYAML))
	if err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	textfile := filepath.Join(t.TempDir(), "sprint.prom")

	var (
		mu       sync.Mutex
		progress []monitor.Snapshot
	)
	e, err := New(Options{
		Scheduler:       scheduler.DefaultConfig(),
		Executor:        agent.NewSimulatedExecutor(1e-6),
		Approver:        approval.AutoApprove(),
		Logger:          logging.NewWriterLogger(&logs, logging.LevelDebug),
		MetricsTextfile: textfile,
		Progress: func(_ event.TaskTransitionEvent, s monitor.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			progress = append(progress, s)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Run(context.Background(), ep)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Report.Outcome != nil {
		t.Fatalf("Outcome = %v", res.Report.Outcome)
	}
	if res.Summary.Completed != 4 || !res.Summary.Succeeded() {
		t.Errorf("summary = %+v", res.Summary)
	}
	if res.Summary.RunID != res.Report.RunID || res.Report.RunID == "" {
		t.Errorf("run ids differ: summary %q report %q", res.Summary.RunID, res.Report.RunID)
	}
	if res.Summary.SequentialEstimate <= 0 {
		t.Error("SequentialEstimate should count the plan's estimates")
	}
	if res.Summary.Gates["after-implementation"] != sprint.GateApproved {
		t.Errorf("gate = %v", res.Summary.Gates["after-implementation"])
	}

	mu.Lock()
	last := progress[len(progress)-1]
	mu.Unlock()
	if last.Remaining != 0 || last.Completed != 4 {
		t.Errorf("last progress = %+v", last)
	}

	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), `sprint_runs_total{outcome="success"} 1`) {
		t.Errorf("metrics missing run counter:\n%s", data)
	}

	for _, want := range []string{`"msg":"event"`, `"type":"task.transition"`, `"sprint_id"`} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("logs missing %s", want)
		}
	}
}

func TestRun_GateRejectedAndFailures(t *testing.T) {
	ep, _, err := Load(testutil.WriteFile(t, "plan.yaml", testutil.ExamplePlanYAML))
	if err != nil {
		t.Fatal(err)
	}

	e, err := New(Options{
		Scheduler: scheduler.DefaultConfig(),
		Executor:  agent.NewSimulatedExecutor(1e-6, agent.WithFailures("UI-001")),
		Approver:  approval.AutoReject("should not be asked"),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Run(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}

	// UI-001 failing makes the gate unreachable before it is ever asked.
	if res.Report.Gates["after-implementation"] != sprint.GateUnreachable {
		t.Errorf("gate = %v, want unreachable", res.Report.Gates["after-implementation"])
	}
	if got := res.Summary.Tasks["TEST-001"].Status; got != sprint.StatusBlocked {
		t.Errorf("TEST-001 = %v, want blocked", got)
	}
	if res.Summary.Failed != 1 || res.Summary.Completed != 2 {
		t.Errorf("counts: %d completed, %d failed", res.Summary.Completed, res.Summary.Failed)
	}
	if !errors.Is(res.Summary.Outcome, errors.ErrTaskFailed) {
		t.Errorf("Outcome = %v", res.Summary.Outcome)
	}
}

func TestRun_CommandExecutor(t *testing.T) {
	testutil.SkipIfNoShell(t)

	ep, _, err := Load(testutil.WriteFile(t, "plan.yaml", testutil.ExamplePlanYAML))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	exec, err := agent.NewCommandExecutor(agent.CommandConfig{
		DefaultCommand: `echo "{{.ID}}"`,
		Commands:       map[sprint.AgentKind]string{sprint.AgentTest: `exit 3`},
		Output:         &out,
	})
	if err != nil {
		t.Fatal(err)
	}

	e, err := New(Options{Scheduler: scheduler.Config{MaxConcurrency: 1}, Executor: exec})
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.Run(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}

	if got := res.Report.WithStatus(sprint.StatusCompleted); strings.Join(got, ",") != "DB-001,API-001,UI-001" {
		t.Errorf("completed = %v", got)
	}
	if got := res.Report.WithStatus(sprint.StatusFailed); strings.Join(got, ",") != "TEST-001" {
		t.Errorf("failed = %v", got)
	}
	for _, id := range []string{"DB-001", "API-001", "UI-001"} {
		if !strings.Contains(out.String(), id) {
			t.Errorf("command output missing %s: %q", id, out.String())
		}
	}
}

func TestRun_Unblock(t *testing.T) {
	ep, _, err := Load(testutil.WriteFile(t, "plan.yaml", testutil.ExamplePlanYAML))
	if err != nil {
		t.Fatal(err)
	}

	sim := agent.NewSimulatedExecutor(1e-6, agent.WithBlocked("DB-001"))
	cfg := scheduler.DefaultConfig()
	cfg.WaitForUnblock = true

	var e *Engine
	unblockErr := make(chan error, 1)
	e, err = New(Options{
		Scheduler: cfg,
		Executor:  sim,
		Progress: func(ev event.TaskTransitionEvent, _ monitor.Snapshot) {
			if ev.State.TaskID == "DB-001" && ev.State.Status == sprint.StatusBlocked {
				// Progress runs on the scheduler goroutine
				go func() { unblockErr <- e.Unblock("DB-001") }()
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Unblock("DB-001"); err == nil {
		t.Error("Unblock() before Run should fail")
	}

	res, err := e.Run(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-unblockErr; err != nil {
		t.Errorf("Unblock() error = %v", err)
	}
	if !res.Summary.Succeeded() {
		t.Errorf("summary = %+v", res.Summary)
	}
	if got := sim.Attempts("DB-001"); got != 2 {
		t.Errorf("Attempts(DB-001) = %d, want 2", got)
	}
}
