package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/sprint/internal/agent"
	"github.com/Iron-Ham/sprint/internal/approval"
	"github.com/Iron-Ham/sprint/internal/errors"
	"github.com/Iron-Ham/sprint/internal/event"
	"github.com/Iron-Ham/sprint/internal/graph"
	"github.com/Iron-Ham/sprint/internal/logging"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

// Plan is the read-only view of a validated plan the scheduler runs.
// *validation.ExecutablePlan implements it.
type Plan interface {
	Plan() *sprint.SprintPlan
	Graph() *graph.Graph
	Task(id string) (sprint.Task, bool)
	ExecutionOrder() []string
	ReadyTasks(completed, inFlight map[string]bool) []string
	Gates() []sprint.ApprovalGate
	GatedTasks(stage string) []string
	GatesFor(id string) []string
}

// Scheduler executes sprint plans. A Scheduler runs one plan at a time but
// may be reused for further runs once Execute returns.
type Scheduler struct {
	cfg      Config
	executor agent.Executor
	approver approval.Approver
	opts     options

	mu      sync.Mutex
	current *run
	cancel  context.CancelFunc
}

// New creates a Scheduler. A nil approver approves every gate.
func New(cfg Config, executor agent.Executor, approver approval.Approver, opts ...Option) (*Scheduler, error) {
	if executor == nil {
		return nil, fmt.Errorf("scheduler: executor is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if cfg.CancelPolicy == "" {
		cfg.CancelPolicy = CancelSoft
	}
	if cfg.DurationPolicy == "" {
		cfg.DurationPolicy = DurationMetrics
	}
	if approver == nil {
		approver = approval.AutoApprove()
	}

	o := options{
		newRunID:   uuid.NewString,
		abortGrace: defaultAbortGrace,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = event.NewBus()
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}

	return &Scheduler{
		cfg:      cfg,
		executor: executor,
		approver: approver,
		opts:     o,
	}, nil
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Bus returns the event bus the scheduler publishes to.
func (s *Scheduler) Bus() *event.Bus {
	return s.opts.bus
}

// Execute runs plan to completion and returns the final report. It blocks
// until every task is terminal or the run stops early. Task failures, gate
// rejection, deadlock and cancellation are reported through Report.Outcome;
// the returned error is non-nil only when the run could not start.
//
// With Config.WaitForUnblock set, a task its agent reported as blocked keeps
// the run alive: once nothing else can progress Execute waits, without a
// time limit, until Unblock is called for it or ctx is canceled.
func (s *Scheduler) Execute(ctx context.Context, plan Plan) (*Report, error) {
	if plan == nil {
		return nil, fmt.Errorf("scheduler: plan is required")
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		cancel()
		return nil, errors.ErrAlreadyRunning
	}
	r := newRun(s, plan)
	s.current = r
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.current = nil
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	return r.execute(ctx, runCtx), nil
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Cancel stops the current run as if its context had been canceled. It is a
// no-op when nothing is running.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Unblock returns a task that its agent reported as blocked to Ready.
func (s *Scheduler) Unblock(taskID string) error {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return fmt.Errorf("unblock %s: no sprint is running", taskID)
	}
	return r.request(control{kind: controlUnblock, taskID: taskID})
}
