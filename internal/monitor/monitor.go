package monitor

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/sprint/internal/event"
	"github.com/Iron-Ham/sprint/internal/sprint"
	"github.com/Iron-Ham/sprint/internal/validation"
)

// Monitor accumulates task states from bus events.
type Monitor struct {
	mu   sync.RWMutex
	bus  *event.Bus
	subs []string
	now  func() time.Time

	name      string
	order     []string
	estimates map[string]time.Duration
	critical  time.Duration

	runID        string
	startedAt    time.Time
	lastTerminal time.Time
	states       map[string]sprint.TaskState
	gates        map[string]sprint.GateStatus
	outcome      error
	finished     bool
}

// New creates a Monitor for plan. Estimates that do not parse count as zero.
func New(plan *validation.ExecutablePlan) *Monitor {
	m := &Monitor{
		now:       time.Now,
		name:      plan.Plan().Name,
		order:     plan.ExecutionOrder(),
		estimates: make(map[string]time.Duration, plan.Len()),
		states:    make(map[string]sprint.TaskState, plan.Len()),
		gates:     make(map[string]sprint.GateStatus),
	}
	for _, task := range plan.Tasks() {
		if d, ok := task.Estimate(); ok {
			m.estimates[task.ID] = d
		}
		m.states[task.ID] = sprint.TaskState{TaskID: task.ID, Agent: task.Agent, Status: sprint.StatusPending}
	}
	for _, gate := range plan.Gates() {
		m.gates[gate.Stage] = sprint.GateWaiting
	}
	m.critical = criticalPath(plan, m.estimates)
	return m
}

// criticalPath returns the longest sum of estimates along any dependency
// chain.
func criticalPath(plan *validation.ExecutablePlan, estimates map[string]time.Duration) time.Duration {
	finish := make(map[string]time.Duration, plan.Len())
	var longest time.Duration
	for _, id := range plan.ExecutionOrder() {
		var start time.Duration
		for _, dep := range plan.Dependencies(id) {
			start = max(start, finish[dep])
		}
		finish[id] = start + estimates[id]
		longest = max(longest, finish[id])
	}
	return longest
}

// Attach subscribes the monitor to bus.
func (m *Monitor) Attach(bus *event.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bus = bus
	m.subs = append(m.subs,
		event.SubscribeFunc(bus, event.TypeSprintStarted, m.onStarted),
		event.SubscribeFunc(bus, event.TypeTaskTransition, m.onTransition),
		event.SubscribeFunc(bus, event.TypeGateChanged, m.onGate),
		event.SubscribeFunc(bus, event.TypeSprintFinished, m.onFinished),
	)
}

// Detach removes the monitor's subscriptions.
func (m *Monitor) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.subs {
		m.bus.Unsubscribe(id)
	}
	m.subs = nil
}

func (m *Monitor) onStarted(e event.SprintStartedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runID = e.RunID
	m.startedAt = e.Timestamp()
}

func (m *Monitor) onTransition(e event.TaskTransitionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[e.TaskID()] = e.State
	if e.To().IsTerminal() && e.Timestamp().After(m.lastTerminal) {
		m.lastTerminal = e.Timestamp()
	}
}

func (m *Monitor) onGate(e event.GateChangedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gates[e.Stage] = e.Status
}

func (m *Monitor) onFinished(e event.SprintFinishedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcome = e.Outcome
	m.finished = true
}

// Finished reports whether the run ended.
func (m *Monitor) Finished() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finished
}

// Snapshot returns live progress.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{Total: len(m.order)}
	if !m.startedAt.IsZero() {
		s.Elapsed = m.now().Sub(m.startedAt)
	}

	var measured time.Duration
	for _, st := range m.states {
		switch st.Status {
		case sprint.StatusCompleted:
			s.Completed++
			measured += st.Elapsed()
		case sprint.StatusFailed:
			s.Failed++
		case sprint.StatusBlocked:
			s.Blocked++
		case sprint.StatusAssigned, sprint.StatusRunning:
			s.Running++
		}
		if !st.Status.IsTerminal() {
			s.Remaining++
		}
	}
	if s.Completed > 0 {
		s.EstimatedRemaining = measured / time.Duration(s.Completed) * time.Duration(s.Remaining)
	}
	return s
}

// Finalize returns the result of the run. outcome overrides the outcome
// carried by the finish event when non-nil.
func (m *Monitor) Finalize(outcome error) SprintResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if outcome == nil {
		outcome = m.outcome
	}

	r := SprintResult{
		RunID:        m.runID,
		Name:         m.name,
		StartedAt:    m.startedAt,
		FinishedAt:   m.lastTerminal,
		CriticalPath: m.critical,
		Total:        len(m.order),
		Order:        slices.Clone(m.order),
		Tasks:        make(map[string]TaskResult, len(m.states)),
		Gates:        maps.Clone(m.gates),
		Errors:       make(map[string]string),
		Outcome:      outcome,
	}

	if !m.startedAt.IsZero() && m.lastTerminal.After(m.startedAt) {
		r.WallClock = m.lastTerminal.Sub(m.startedAt)
	}

	for _, id := range m.order {
		st := m.states[id]
		est := m.estimates[id]
		r.SequentialEstimate += est
		r.TheoreticalMin = max(r.TheoreticalMin, est)

		r.Tasks[id] = TaskResult{
			ID:          id,
			Agent:       st.Agent,
			Status:      st.Status,
			Estimate:    est,
			Elapsed:     st.Elapsed(),
			Error:       st.Error,
			BlockReason: st.BlockReason,
		}
		if st.Error != "" {
			r.Errors[id] = st.Error
		}

		switch st.Status {
		case sprint.StatusCompleted:
			r.Completed++
		case sprint.StatusFailed:
			r.Failed++
		case sprint.StatusBlocked:
			r.Blocked++
		}
	}

	r.ParallelEfficiency = Efficiency(r.WallClock, r.SequentialEstimate)
	if saved := r.SequentialEstimate - r.WallClock; saved > 0 {
		r.TimeSaved = saved
	}
	return r
}

// Efficiency returns 1 - wall/sequential clamped to [0, 1]. It is 0 when
// sequential is not positive.
func Efficiency(wall, sequential time.Duration) float64 {
	if sequential <= 0 {
		return 0
	}
	e := 1 - float64(wall)/float64(sequential)
	return min(max(e, 0), 1)
}
