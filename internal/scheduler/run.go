package scheduler

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/sprint/internal/agent"
	"github.com/Iron-Ham/sprint/internal/approval"
	"github.com/Iron-Ham/sprint/internal/errors"
	"github.com/Iron-Ham/sprint/internal/event"
	"github.com/Iron-Ham/sprint/internal/logging"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

type controlKind int

const (
	controlUnblock controlKind = iota
)

type control struct {
	kind   controlKind
	taskID string
	reply  chan error
}

type decision struct {
	stage string
	approval.Decision
}

type expiry struct {
	taskID  string
	attempt int
}

type gateState struct {
	gate   sprint.ApprovalGate
	status sprint.GateStatus
	reason string
}

// stopPlan describes how a run that ends early settles its tasks.
type stopPlan struct {
	abort        bool              // abort in-flight tasks
	activeStatus sprint.TaskStatus // applied to aborted tasks
	idleStatus   sprint.TaskStatus // applied to tasks not in flight
	reason       sprint.BlockReason
	message      string
}

// run is the state of a single Execute call. Everything except the channels
// and exited is owned by the loop goroutine.
type run struct {
	cfg        Config
	executor   agent.Executor
	approver   approval.Approver
	bus        *event.Bus
	logger     *logging.Logger
	now        func() time.Time
	abortGrace time.Duration

	plan      Plan
	id        string
	order     []string
	gateOrder []string

	states       map[string]*sprint.TaskState
	completed    map[string]bool
	released     map[string]bool // left Pending
	signaled     map[string]bool // Blocked by the agent, may be unblocked
	outstanding  map[string]bool // dispatched, completion not yet received
	handles      map[string]agent.Handle
	perAgent     map[sprint.AgentKind]int
	attempts     map[string]int
	timers       map[string]*time.Timer
	abortedAt    map[string]time.Time
	gates        map[string]*gateState
	deciding     int
	firstFailure *errors.ExecutionError

	completions chan agent.Completion
	decisions   chan decision
	expired     chan expiry
	controls    chan control
	exited      chan struct{}

	taskCtx         context.Context
	cancelTasks     context.CancelFunc
	approveCtx      context.Context
	cancelApprovals context.CancelFunc

	stopping  bool
	graceC    <-chan time.Time
	outcome   error
	startedAt time.Time
}

func newRun(s *Scheduler, plan Plan) *run {
	id := s.opts.newRunID()
	order := plan.ExecutionOrder()
	gates := plan.Gates()

	r := &run{
		cfg:        s.cfg,
		executor:   s.executor,
		approver:   s.approver,
		bus:        s.opts.bus,
		logger:     s.opts.logger.WithSprint(id).WithComponent("scheduler"),
		now:        s.opts.now,
		abortGrace: s.opts.abortGrace,

		plan:  plan,
		id:    id,
		order: order,

		states:      make(map[string]*sprint.TaskState, len(order)),
		completed:   make(map[string]bool, len(order)),
		released:    make(map[string]bool, len(order)),
		signaled:    make(map[string]bool),
		outstanding: make(map[string]bool),
		handles:     make(map[string]agent.Handle),
		perAgent:    make(map[sprint.AgentKind]int),
		attempts:    make(map[string]int),
		timers:      make(map[string]*time.Timer),
		abortedAt:   make(map[string]time.Time),
		gates:       make(map[string]*gateState, len(gates)),

		// Each dispatch produces one completion and at most one dispatch per
		// task is outstanding, so executors never block on send.
		completions: make(chan agent.Completion, max(len(order), 1)),
		decisions:   make(chan decision, max(len(gates), 1)),
		expired:     make(chan expiry, 1),
		controls:    make(chan control),
		exited:      make(chan struct{}),
	}

	for _, id := range order {
		task, _ := plan.Task(id)
		r.states[id] = &sprint.TaskState{TaskID: id, Agent: task.Agent, Status: sprint.StatusPending}
	}
	for _, gate := range gates {
		r.gates[gate.Stage] = &gateState{gate: gate, status: sprint.GateWaiting}
		r.gateOrder = append(r.gateOrder, gate.Stage)
	}
	return r
}

// request delivers a control message to the loop and waits for its reply.
func (r *run) request(c control) error {
	c.reply = make(chan error, 1)
	select {
	case r.controls <- c:
	case <-r.exited:
		return fmt.Errorf("%s: sprint already finished", c.taskID)
	}
	select {
	case err := <-c.reply:
		return err
	case <-r.exited:
		return fmt.Errorf("%s: sprint already finished", c.taskID)
	}
}

func (r *run) execute(ctx, runCtx context.Context) *Report {
	// Under the soft policy in-flight tasks outlive cancellation.
	base := context.WithoutCancel(ctx)
	if r.cfg.hardCancel() {
		base = runCtx
	}
	r.taskCtx, r.cancelTasks = context.WithCancel(base)
	r.approveCtx, r.cancelApprovals = context.WithCancel(runCtx)
	defer r.cancelTasks()
	defer r.cancelApprovals()

	name := r.plan.Plan().Name
	r.startedAt = r.now()
	r.logger.Info("sprint started",
		"name", name,
		"tasks", len(r.order),
		"gates", len(r.gateOrder),
		"max_concurrency", r.cfg.MaxConcurrency,
	)
	r.bus.Publish(event.NewSprintStartedEvent(r.id, name, r.order, r.startedAt))

	if runCtx.Err() == nil {
		for _, stage := range r.gateOrder {
			if g := r.gates[stage]; len(g.gate.Requires) == 0 {
				r.requestApproval(g)
			}
		}
	}

	r.loop(runCtx)
	return r.finish()
}

func (r *run) loop(ctx context.Context) {
	ctxDone := ctx.Done()
	for {
		// Cancellation wins over any completion handled in the same pass.
		if ctxDone != nil && ctx.Err() != nil {
			ctxDone = nil
			r.cancel()
		}
		if !r.stopping {
			r.advance()
		}
		if r.done() {
			return
		}

		select {
		case c := <-r.completions:
			r.complete(c)
		case d := <-r.decisions:
			r.decide(d)
		case e := <-r.expired:
			r.expire(e)
		case c := <-r.controls:
			c.reply <- r.control(c)
		case <-ctxDone:
			ctxDone = nil
			r.cancel()
		case <-r.graceC:
			r.giveUp()
		}
	}
}

// advance promotes and dispatches tasks, then checks whether the run can
// still make progress.
func (r *run) advance() {
	r.promote()
	r.dispatch()

	if r.stopping || len(r.outstanding) > 0 || r.deciding > 0 {
		return
	}
	if len(r.signaled) > 0 {
		if r.cfg.WaitForUnblock {
			return
		}
		r.releaseSignaled()
	}
	if pending := r.unfinished(); len(pending) > 0 {
		r.logger.Error("deadlock detected", "pending", pending)
		r.stop(errors.NewDeadlockError(pending), stopPlan{
			idleStatus: sprint.StatusBlocked,
			reason:     sprint.BlockDeadlock,
			message:    "no task can make progress",
		})
	}
}

func (r *run) done() bool {
	if len(r.outstanding) > 0 {
		return false
	}
	if r.stopping {
		return true
	}
	if len(r.signaled) > 0 && r.cfg.WaitForUnblock {
		return false
	}
	return len(r.unfinished()) == 0
}

// promote moves tasks whose dependencies all completed to Ready.
func (r *run) promote() {
	for _, id := range r.plan.ReadyTasks(r.completed, r.released) {
		if r.states[id].Status == sprint.StatusPending {
			r.setStatus(id, sprint.StatusReady, sprint.BlockNone, "")
		}
	}
}

// dispatch launches Ready tasks in execution order while slots are free.
func (r *run) dispatch() {
	for _, id := range r.order {
		if r.states[id].Status != sprint.StatusReady {
			continue
		}
		if r.cfg.MaxConcurrency > 0 && len(r.outstanding) >= r.cfg.MaxConcurrency {
			return
		}
		if r.heldByGate(id) {
			continue
		}
		task, _ := r.plan.Task(id)
		if limit := r.cfg.limitFor(task.Agent); limit > 0 && r.perAgent[task.Agent] >= limit {
			continue
		}

		r.launch(task)
		if r.stopping {
			return
		}
	}
}

func (r *run) heldByGate(id string) bool {
	for _, stage := range r.plan.GatesFor(id) {
		if r.gates[stage].status != sprint.GateApproved {
			return true
		}
	}
	return false
}

func (r *run) launch(task sprint.Task) {
	id := task.ID
	r.setStatus(id, sprint.StatusAssigned, sprint.BlockNone, "")
	r.attempts[id]++

	handle, err := r.executor.Dispatch(r.taskCtx, task, r.completions)
	if err != nil {
		r.logger.Warn("dispatch failed", "task_id", id, "agent", string(task.Agent), "error", err.Error())
		r.fail(id, "dispatch failed", err)
		return
	}
	if handle == nil {
		handle = agent.NopHandle
	}

	r.outstanding[id] = true
	r.handles[id] = handle
	r.perAgent[task.Agent]++
	r.setStatus(id, sprint.StatusRunning, sprint.BlockNone, "")
	r.logger.Info("task dispatched", "task_id", id, "agent", string(task.Agent), "attempt", r.attempts[id])
	r.armTimeout(task)
}

func (r *run) armTimeout(task sprint.Task) {
	limit, ok := r.timeoutFor(task)
	if !ok {
		return
	}
	e := expiry{taskID: task.ID, attempt: r.attempts[task.ID]}
	r.timers[task.ID] = time.AfterFunc(limit, func() {
		select {
		case r.expired <- e:
		case <-r.exited:
		}
	})
}

func (r *run) timeoutFor(task sprint.Task) (time.Duration, bool) {
	if r.cfg.DurationPolicy != DurationTimeout {
		return 0, false
	}
	est, ok := task.Estimate()
	if !ok || est <= 0 {
		return 0, false
	}
	return time.Duration(float64(est) * r.cfg.TimeoutScale), true
}

func (r *run) complete(c agent.Completion) {
	id := c.TaskID
	if !r.outstanding[id] {
		r.logger.Warn("ignoring completion for task that is not in flight",
			"task_id", id, "status", c.Status.String())
		return
	}
	r.releaseSlot(id)

	// Aborted tasks were settled when the abort was issued.
	if r.states[id].Status.IsTerminal() {
		return
	}

	switch c.Status {
	case agent.CompletionSuccess:
		r.succeed(id)
	case agent.CompletionBlocked:
		r.logger.Warn("task blocked by agent", "task_id", id, "reason", c.Error)
		r.signaled[id] = true
		r.setStatus(id, sprint.StatusBlocked, sprint.BlockAgentSignal, c.Error)
	default:
		msg := c.Error
		if msg == "" {
			msg = "task failed"
		}
		r.fail(id, msg, nil)
	}
}

func (r *run) releaseSlot(id string) {
	if !r.outstanding[id] {
		return
	}
	delete(r.outstanding, id)
	delete(r.handles, id)
	delete(r.abortedAt, id)
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
	task, _ := r.plan.Task(id)
	r.perAgent[task.Agent]--
}

func (r *run) succeed(id string) {
	r.completed[id] = true
	r.setStatus(id, sprint.StatusCompleted, sprint.BlockNone, "")
	r.logger.Info("task completed", "task_id", id, "elapsed", r.states[id].Elapsed().String())

	if r.stopping {
		return
	}
	for _, stage := range r.gateOrder {
		g := r.gates[stage]
		if g.status != sprint.GateWaiting || !slices.Contains(g.gate.Requires, id) {
			continue
		}
		if r.allCompleted(g.gate.Requires) {
			r.requestApproval(g)
		}
	}
}

func (r *run) allCompleted(ids []string) bool {
	for _, id := range ids {
		if !r.completed[id] {
			return false
		}
	}
	return true
}

// fail marks id Failed, blocks everything downstream of it and applies the
// fail-fast policy.
func (r *run) fail(id, reason string, cause error) {
	execErr := errors.NewExecutionError(id, reason, cause)
	if r.firstFailure == nil {
		r.firstFailure = execErr
	}

	msg := reason
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", reason, cause)
	}
	r.setStatus(id, sprint.StatusFailed, sprint.BlockNone, msg)
	r.logger.Warn("task failed", "task_id", id, "error", msg)

	r.blockDependents(id, sprint.BlockDependencyFailed, fmt.Sprintf("dependency %s failed", id))
	r.updateGates()

	if r.cfg.FailFast && !r.stopping {
		r.stop(execErr.WithFatal(true), stopPlan{
			abort:        true,
			activeStatus: sprint.StatusFailed,
			idleStatus:   sprint.StatusBlocked,
			reason:       sprint.BlockAborted,
			message:      fmt.Sprintf("sprint aborted after %s failed", id),
		})
	}
}

func (r *run) waiting(id string) bool {
	s := r.states[id].Status
	return s == sprint.StatusPending || s == sprint.StatusReady
}

// block marks id and its downstream tasks Blocked.
func (r *run) block(id string, reason sprint.BlockReason, msg string) {
	if !r.waiting(id) {
		return
	}
	r.setStatus(id, sprint.StatusBlocked, reason, msg)
	r.blockDependents(id, sprint.BlockDependencyBlocked, fmt.Sprintf("dependency %s is blocked", id))
}

func (r *run) blockDependents(id string, reason sprint.BlockReason, msg string) {
	for _, dep := range r.plan.Graph().TransitiveDependents(id) {
		if r.waiting(dep) {
			r.setStatus(dep, sprint.StatusBlocked, reason, msg)
		}
	}
}

// updateGates marks gates whose required tasks can no longer complete as
// unreachable and blocks the tasks they hold back. Blocking may make other
// gates unreachable, so it repeats until nothing changes.
func (r *run) updateGates() {
	for changed := true; changed; {
		changed = false
		for _, stage := range r.gateOrder {
			g := r.gates[stage]
			if g.status != sprint.GateWaiting {
				continue
			}
			req, ok := r.lostRequirement(g.gate)
			if !ok {
				continue
			}

			changed = true
			r.setGate(g, sprint.GateUnreachable,
				fmt.Sprintf("required task %s is %s", req, r.states[req].Status))
			for _, id := range r.plan.GatedTasks(stage) {
				r.block(id, sprint.BlockGateUnreachable,
					fmt.Sprintf("approval gate %s can no longer open", stage))
			}
		}
	}
}

func (r *run) lostRequirement(gate sprint.ApprovalGate) (string, bool) {
	for _, id := range gate.Requires {
		switch r.states[id].Status {
		case sprint.StatusFailed:
			return id, true
		case sprint.StatusBlocked:
			if !r.signaled[id] {
				return id, true
			}
		}
	}
	return "", false
}

// releaseSignaled gives up on tasks still waiting for Unblock once nothing
// else can progress.
func (r *run) releaseSignaled() {
	for _, id := range r.order {
		if !r.signaled[id] {
			continue
		}
		delete(r.signaled, id)
		r.logger.Warn("task left blocked", "task_id", id)
		r.blockDependents(id, sprint.BlockDependencyBlocked, fmt.Sprintf("dependency %s is blocked", id))
	}
	r.updateGates()
}

func (r *run) unfinished() []string {
	var ids []string
	for _, id := range r.order {
		if !r.states[id].Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *run) requestApproval(g *gateState) {
	r.setGate(g, sprint.GateAwaitingApproval, "")
	r.deciding++

	ctx := r.approveCtx
	go func(gate sprint.ApprovalGate) {
		d, err := r.approver.ResolveGate(ctx, gate)
		if err != nil {
			d = approval.Decision{Approved: false, Reason: err.Error()}
		}
		r.decisions <- decision{stage: gate.Stage, Decision: d}
	}(g.gate)
}

func (r *run) decide(d decision) {
	r.deciding--
	g := r.gates[d.stage]
	if r.stopping || g.status != sprint.GateAwaitingApproval {
		return
	}

	if d.Approved {
		r.setGate(g, sprint.GateApproved, d.Reason)
		return
	}

	r.setGate(g, sprint.GateRejected, d.Reason)
	plan := stopPlan{
		idleStatus: sprint.StatusBlocked,
		reason:     sprint.BlockGateRejected,
		message:    fmt.Sprintf("approval gate %s rejected", d.stage),
	}
	if r.cfg.hardCancel() {
		plan.abort = true
		plan.activeStatus = sprint.StatusBlocked
	}
	r.stop(errors.NewGateRejectedError(d.stage, d.Reason), plan)
}

func (r *run) setGate(g *gateState, status sprint.GateStatus, reason string) {
	g.status = status
	g.reason = reason
	r.logger.Info("approval gate changed", "stage", g.gate.Stage, "status", status.String(), "reason", reason)
	r.bus.Publish(event.NewGateChangedEvent(r.id, g.gate, status, reason, r.now()))
}

func (r *run) expire(e expiry) {
	id := e.taskID
	if r.attempts[id] != e.attempt || !r.outstanding[id] || r.states[id].Status != sprint.StatusRunning {
		return
	}
	delete(r.timers, id)

	task, _ := r.plan.Task(id)
	limit, _ := r.timeoutFor(task)
	r.abort(id, "time budget exceeded")
	r.fail(id, fmt.Sprintf("exceeded time budget of %s", sprint.FormatDuration(limit)), errors.ErrTimeout)
}

func (r *run) control(c control) error {
	switch c.kind {
	case controlUnblock:
		return r.unblock(c.taskID)
	default:
		return fmt.Errorf("unknown control request %d", c.kind)
	}
}

func (r *run) unblock(id string) error {
	if _, ok := r.states[id]; !ok {
		return fmt.Errorf("unblock %s: %w", id, errors.ErrTaskNotFound)
	}
	if r.stopping {
		return fmt.Errorf("unblock %s: sprint is stopping", id)
	}
	if !r.signaled[id] {
		return fmt.Errorf("unblock %s: task is %s, not waiting on its agent", id, r.states[id].Status)
	}
	delete(r.signaled, id)
	r.setStatus(id, sprint.StatusReady, sprint.BlockNone, "")
	r.logger.Info("task unblocked", "task_id", id)
	return nil
}

func (r *run) cancel() {
	r.logger.Warn("sprint canceled", "policy", string(r.cfg.CancelPolicy))
	plan := stopPlan{
		idleStatus: sprint.StatusBlocked,
		reason:     sprint.BlockCanceled,
		message:    "sprint canceled",
	}
	if r.cfg.hardCancel() {
		plan = stopPlan{
			abort:        true,
			activeStatus: sprint.StatusFailed,
			idleStatus:   sprint.StatusFailed,
			reason:       sprint.BlockCanceled,
			message:      "sprint canceled",
		}
	}
	r.stop(errors.ErrCanceled, plan)
}

// stop ends dispatching and settles every task that is not in flight.
// In-flight tasks are aborted or left to finish depending on p.
func (r *run) stop(outcome error, p stopPlan) {
	r.stopping = true
	if r.outcome == nil {
		r.outcome = outcome
	}
	r.cancelApprovals()
	clear(r.signaled)

	for _, id := range r.order {
		st := r.states[id]
		switch {
		case st.Status.IsTerminal():
		case r.outstanding[id]:
			if p.abort {
				r.abort(id, p.message)
				r.setStatus(id, p.activeStatus, p.reason, "aborted: "+p.message)
			}
		default:
			r.setStatus(id, p.idleStatus, p.reason, p.message)
		}
	}
}

// abort asks the executor to stop a task. The task keeps its slot until its
// completion arrives or the abort grace period runs out.
func (r *run) abort(id, reason string) {
	if h, ok := r.handles[id]; ok {
		if err := h.Abort(reason); err != nil {
			r.logger.Warn("abort failed", "task_id", id, "error", err.Error())
		}
	}
	r.abortedAt[id] = time.Now()
	if r.graceC == nil {
		r.graceC = time.After(r.abortGrace)
	}
}

// giveUp releases aborted tasks that never reported back.
func (r *run) giveUp() {
	r.graceC = nil
	now := time.Now()
	var next time.Duration
	for id, at := range r.abortedAt {
		if wait := r.abortGrace - now.Sub(at); wait > 0 {
			if next == 0 || wait < next {
				next = wait
			}
			continue
		}
		r.logger.Warn("task did not report after abort", "task_id", id)
		r.releaseSlot(id)
	}
	if next > 0 {
		r.graceC = time.After(next)
	}
}

func (r *run) setStatus(id string, to sprint.TaskStatus, reason sprint.BlockReason, msg string) {
	st := r.states[id]
	from := st.Status
	now := r.now()

	st.Status = to
	switch to {
	case sprint.StatusReady:
		st.EndTime = time.Time{}
		st.Error = ""
		st.BlockReason = sprint.BlockNone
	case sprint.StatusRunning:
		st.StartTime = now
		st.EndTime = time.Time{}
	case sprint.StatusCompleted, sprint.StatusFailed:
		st.EndTime = now
	case sprint.StatusBlocked:
		st.EndTime = now
		st.BlockReason = reason
	}
	if msg != "" {
		st.Error = msg
	}
	if from == sprint.StatusPending && to != sprint.StatusPending {
		r.released[id] = true
	}

	r.logger.Debug("task transition", "task_id", id, "from", from.String(), "to", to.String())
	r.bus.Publish(event.NewTaskTransitionEvent(r.id, from, *st, now))
}

func (r *run) finish() *Report {
	close(r.exited)
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}

	for _, id := range r.unfinished() {
		r.setStatus(id, sprint.StatusBlocked, sprint.BlockAborted, "sprint ended")
	}

	outcome := r.outcome
	if outcome == nil {
		outcome = r.incomplete()
	}
	finishedAt := r.now()

	report := &Report{
		RunID:      r.id,
		Name:       r.plan.Plan().Name,
		Order:      slices.Clone(r.order),
		States:     make(map[string]sprint.TaskState, len(r.states)),
		Gates:      make(map[string]sprint.GateStatus, len(r.gates)),
		StartedAt:  r.startedAt,
		FinishedAt: finishedAt,
		Outcome:    outcome,
	}
	for id, st := range r.states {
		report.States[id] = *st
	}
	for stage, g := range r.gates {
		report.Gates[stage] = g.status
	}

	if outcome != nil {
		r.logger.Warn("sprint finished",
			"completed", report.Count(sprint.StatusCompleted),
			"failed", report.Count(sprint.StatusFailed),
			"blocked", report.Count(sprint.StatusBlocked),
			"outcome", outcome.Error(),
		)
	} else {
		r.logger.Info("sprint finished", "completed", report.Count(sprint.StatusCompleted))
	}
	r.bus.Publish(event.NewSprintFinishedEvent(r.id, outcome, finishedAt))
	return report
}

// incomplete explains why a run that was not stopped still left tasks
// unfinished, or returns nil when everything completed.
func (r *run) incomplete() error {
	if r.firstFailure != nil {
		return r.firstFailure
	}
	var missing []string
	for _, id := range r.order {
		if !r.completed[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.NewExecutionError(missing[0],
		fmt.Sprintf("%d of %d tasks did not complete", len(missing), len(r.order)), nil)
}
