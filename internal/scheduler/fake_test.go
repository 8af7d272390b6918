package scheduler

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/sprint/internal/agent"
	"github.com/Iron-Ham/sprint/internal/event"
	"github.com/Iron-Ham/sprint/internal/sprint"
	"github.com/Iron-Ham/sprint/internal/validation"
)

var _ Plan = (*validation.ExecutablePlan)(nil)

// regatedPlan replaces the gate coverage of a compiled plan.
type regatedPlan struct {
	*validation.ExecutablePlan
	gated map[string][]string // stage -> held tasks
}

func (p regatedPlan) GatedTasks(stage string) []string {
	return append([]string(nil), p.gated[stage]...)
}

func (p regatedPlan) GatesFor(id string) []string {
	var stages []string
	for _, gate := range p.Gates() {
		if slices.Contains(p.gated[gate.Stage], id) {
			stages = append(stages, gate.Stage)
		}
	}
	return stages
}

func (f *fakeExecutor) dispatchedTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dispatched...)
}

// fakeExecutor completes tasks according to a per-task script.
type fakeExecutor struct {
	mu          sync.Mutex
	fail        map[string]string
	blockTimes  map[string]int
	dispatchErr map[string]error
	held        map[string]chan struct{}
	delay       time.Duration

	running     int
	maxRunning  int
	perAgent    map[sprint.AgentKind]int
	maxPerAgent map[sprint.AgentKind]int
	dispatched  []string
	aborted     []string
	started     chan string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		fail:        make(map[string]string),
		blockTimes:  make(map[string]int),
		dispatchErr: make(map[string]error),
		held:        make(map[string]chan struct{}),
		perAgent:    make(map[sprint.AgentKind]int),
		maxPerAgent: make(map[sprint.AgentKind]int),
		started:     make(chan string, 64),
	}
}

// hold makes id run until Release or Abort.
func (f *fakeExecutor) hold(ids ...string) *fakeExecutor {
	for _, id := range ids {
		f.held[id] = make(chan struct{})
	}
	return f
}

func (f *fakeExecutor) Release(id string) {
	close(f.held[id])
}

func (f *fakeExecutor) Dispatch(_ context.Context, task sprint.Task, events chan<- agent.Completion) (agent.Handle, error) {
	f.mu.Lock()
	if err := f.dispatchErr[task.ID]; err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.dispatched = append(f.dispatched, task.ID)
	f.running++
	f.maxRunning = max(f.maxRunning, f.running)
	f.perAgent[task.Agent]++
	f.maxPerAgent[task.Agent] = max(f.maxPerAgent[task.Agent], f.perAgent[task.Agent])

	c := agent.Completion{TaskID: task.ID, Status: agent.CompletionSuccess}
	if msg, ok := f.fail[task.ID]; ok {
		c = agent.Completion{TaskID: task.ID, Status: agent.CompletionFailed, Error: msg}
	}
	if f.blockTimes[task.ID] > 0 {
		f.blockTimes[task.ID]--
		c = agent.Completion{TaskID: task.ID, Status: agent.CompletionBlocked, Error: "needs input"}
	}
	release := f.held[task.ID]
	f.mu.Unlock()

	select {
	case f.started <- task.ID:
	default:
	}

	abort := make(chan string, 1)
	go func() {
		switch {
		case release != nil:
			select {
			case <-release:
			case reason := <-abort:
				c = agent.Failed(task.ID, "aborted: "+reason)
			}
		case f.delay > 0:
			time.Sleep(f.delay)
		}

		f.mu.Lock()
		f.running--
		f.perAgent[task.Agent]--
		f.mu.Unlock()

		c.At = time.Now()
		events <- c
	}()

	return agent.HandleFunc(func(reason string) error {
		f.mu.Lock()
		f.aborted = append(f.aborted, task.ID)
		f.mu.Unlock()
		select {
		case abort <- reason:
		default:
		}
		return nil
	}), nil
}

func (f *fakeExecutor) waitStarted(t *testing.T, id string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-f.started:
			if got == id {
				return
			}
		case <-timeout:
			t.Fatalf("task %s was never dispatched", id)
		}
	}
}

func (f *fakeExecutor) abortedTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.aborted...)
}

// recorder captures events published by the scheduler.
type recorder struct {
	mu          sync.Mutex
	transitions []event.TaskTransitionEvent
	gates       []event.GateChangedEvent
	started     int
	finished    []event.SprintFinishedEvent
}

func record(bus *event.Bus) *recorder {
	r := &recorder{}
	event.SubscribeFunc(bus, event.TypeTaskTransition, func(e event.TaskTransitionEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.transitions = append(r.transitions, e)
	})
	event.SubscribeFunc(bus, event.TypeGateChanged, func(e event.GateChangedEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.gates = append(r.gates, e)
	})
	event.SubscribeFunc(bus, event.TypeSprintStarted, func(event.SprintStartedEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.started++
	})
	event.SubscribeFunc(bus, event.TypeSprintFinished, func(e event.SprintFinishedEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.finished = append(r.finished, e)
	})
	return r
}

// statuses returns the sequence of statuses id moved through.
func (r *recorder) statuses(id string) []sprint.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sprint.TaskStatus
	for _, e := range r.transitions {
		if e.TaskID() == id {
			out = append(out, e.To())
		}
	}
	return out
}

// index returns the position of id's first move to status among all
// transitions, or -1.
func (r *recorder) index(id string, status sprint.TaskStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.transitions {
		if e.TaskID() == id && e.To() == status {
			return i
		}
	}
	return -1
}

func (r *recorder) reached(id string, status sprint.TaskStatus) bool {
	return r.index(id, status) >= 0
}

func (r *recorder) gateStatuses(stage string) []sprint.GateStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sprint.GateStatus
	for _, e := range r.gates {
		if e.Stage == stage {
			out = append(out, e.Status)
		}
	}
	return out
}

func compile(t *testing.T, p *sprint.SprintPlan) *validation.ExecutablePlan {
	t.Helper()
	ep, _, err := validation.Compile(p)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return ep
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// agentStray reports a completion for a task that was never dispatched
// alongside every real dispatch.
type agentStray struct {
	inner *fakeExecutor
}

func (a agentStray) Dispatch(ctx context.Context, task sprint.Task, events chan<- agent.Completion) (agent.Handle, error) {
	go func() { events <- agent.Succeeded("GHOST") }()
	return a.inner.Dispatch(ctx, task, events)
}
