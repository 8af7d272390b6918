package engine

import (
	"github.com/Iron-Ham/sprint/internal/errors"
	"github.com/Iron-Ham/sprint/internal/event"
	"github.com/Iron-Ham/sprint/internal/logging"
)

// eventLogger writes every bus event to the log at debug level, giving a
// complete transition trace of the run. A run that ends early is logged at
// the severity of its outcome.
type eventLogger struct {
	logger *logging.Logger
	bus    *event.Bus
	sub    string
}

func newEventLogger(logger *logging.Logger) *eventLogger {
	return &eventLogger{logger: logger.WithComponent("events")}
}

func (l *eventLogger) attach(bus *event.Bus) {
	l.bus = bus
	l.sub = bus.SubscribeAll(l.handle)
}

func (l *eventLogger) detach() {
	if l.bus != nil {
		l.bus.Unsubscribe(l.sub)
	}
}

func (l *eventLogger) handle(e event.Event) {
	args := []any{"type", e.EventType()}

	switch ev := e.(type) {
	case event.SprintStartedEvent:
		args = append(args, "name", ev.Name, "tasks", len(ev.TaskIDs))
	case event.SprintFinishedEvent:
		if ev.Outcome != nil {
			args = append(args, "outcome", ev.Outcome.Error())
			l.logAt(errors.GetSeverity(ev.Outcome), "sprint did not complete", args)
			return
		}
		args = append(args, "outcome", "success")
	case event.GateChangedEvent:
		args = append(args, "stage", ev.Stage, "status", ev.Status.String(), "reason", ev.Reason)
	case event.TaskTransitionEvent:
		st := ev.State
		args = append(args,
			"task_id", st.TaskID,
			"agent", string(st.Agent),
			"from", ev.From.String(),
			"to", st.Status.String(),
		)
		if st.Error != "" {
			args = append(args, "error", st.Error)
		}
		if st.BlockReason != "" {
			args = append(args, "block_reason", string(st.BlockReason))
		}
	}

	l.logger.Debug("event", args...)
}

func (l *eventLogger) logAt(sev errors.Severity, msg string, args []any) {
	switch sev {
	case errors.SeverityDebug:
		l.logger.Debug(msg, args...)
	case errors.SeverityInfo:
		l.logger.Info(msg, args...)
	case errors.SeverityWarning:
		l.logger.Warn(msg, args...)
	default:
		l.logger.Error(msg, args...)
	}
}
