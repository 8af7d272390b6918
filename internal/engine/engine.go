package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/sprint/internal/agent"
	"github.com/Iron-Ham/sprint/internal/approval"
	"github.com/Iron-Ham/sprint/internal/errors"
	"github.com/Iron-Ham/sprint/internal/event"
	"github.com/Iron-Ham/sprint/internal/logging"
	"github.com/Iron-Ham/sprint/internal/metrics"
	"github.com/Iron-Ham/sprint/internal/monitor"
	"github.com/Iron-Ham/sprint/internal/plan"
	"github.com/Iron-Ham/sprint/internal/scheduler"
	"github.com/Iron-Ham/sprint/internal/validation"
)

// ProgressFunc is called after every task transition with the live progress
// of the run. It runs on the scheduler goroutine and must not block.
type ProgressFunc func(e event.TaskTransitionEvent, s monitor.Snapshot)

// Options configures an Engine.
type Options struct {
	Scheduler scheduler.Config
	Executor  agent.Executor
	Approver  approval.Approver
	Logger    *logging.Logger

	// MetricsTextfile, when set, receives the run's metrics in Prometheus
	// text format after the run.
	MetricsTextfile string

	// Progress receives live progress updates.
	Progress ProgressFunc
}

// Result is the outcome of one run.
type Result struct {
	Report  *scheduler.Report
	Summary monitor.SprintResult
	Metrics *metrics.Collector
}

// Engine runs sprint plans.
type Engine struct {
	opts   Options
	logger *logging.Logger

	mu    sync.Mutex
	sched *scheduler.Scheduler // Set while a run is in progress
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("engine: executor is required")
	}
	if err := opts.Scheduler.Validate(); err != nil {
		return nil, errors.Wrap(err, "engine")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	return &Engine{
		opts:   opts,
		logger: opts.Logger.WithComponent("engine"),
	}, nil
}

// Load reads and validates the plan at path. The validation result is
// returned whenever the file parsed, so callers can print warnings or the
// complete error list.
func Load(path string) (*validation.ExecutablePlan, *validation.Result, error) {
	p, err := plan.ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	ep, result, err := validation.Compile(p)
	if err != nil {
		return nil, result, errors.Wrapf(err, "plan: %s", path)
	}
	return ep, result, nil
}

// Run executes ep. The returned error is non-nil only when the run could not
// start or its metrics could not be written; task failures and early stops
// are reported in Result.
func (e *Engine) Run(ctx context.Context, ep *validation.ExecutablePlan) (*Result, error) {
	runID := uuid.NewString()
	logger := e.opts.Logger.WithSprint(runID)
	bus := event.NewBus(event.WithPanicHandler(func(eventType string, r any, stack []byte) {
		logger.Error("event handler panicked", "event_type", eventType, "panic", fmt.Sprint(r), "stack", string(stack))
	}))

	mon := monitor.New(ep)
	mon.Attach(bus)
	defer mon.Detach()

	collector := metrics.NewCollector()
	collector.Attach(bus)
	defer collector.Detach()

	el := newEventLogger(logger)
	el.attach(bus)
	defer el.detach()

	if e.opts.Progress != nil {
		progress := e.opts.Progress
		id := event.SubscribeFunc(bus, event.TypeTaskTransition, func(ev event.TaskTransitionEvent) {
			progress(ev, mon.Snapshot())
		})
		defer bus.Unsubscribe(id)
	}

	sched, err := scheduler.New(e.opts.Scheduler, e.opts.Executor, e.opts.Approver,
		scheduler.WithBus(bus),
		scheduler.WithLogger(logger),
		scheduler.WithRunID(func() string { return runID }),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.sched = sched
	e.mu.Unlock()
	report, err := sched.Execute(ctx, ep)
	e.mu.Lock()
	e.sched = nil
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	summary := mon.Finalize(report.Outcome)
	collector.ObserveResult(summary)
	res := &Result{Report: report, Summary: summary, Metrics: collector}

	if path := e.opts.MetricsTextfile; path != "" {
		if err := collector.WriteTextfile(path); err != nil {
			logger.Warn("failed to write metrics", "path", path, "error", err.Error())
			return res, err
		}
		logger.Debug("metrics written", "path", path)
	}
	return res, nil
}

// Unblock returns an agent-blocked task of the current run to Ready.
func (e *Engine) Unblock(taskID string) error {
	e.mu.Lock()
	sched := e.sched
	e.mu.Unlock()
	if sched == nil {
		return fmt.Errorf("unblock %s: no sprint is running", taskID)
	}
	return sched.Unblock(taskID)
}
