// Package logging provides structured logging for sprint runs.
//
// The package wraps Go's log/slog to produce JSON-formatted logs with
// persistent context attributes, so every line written while a sprint runs
// can be tied back to the run and the task that produced it.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/run", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("sprint started", "tasks", 12)
//
// # Context Propagation
//
// Child loggers carry attributes into every entry they write:
//
//	runLogger := logger.WithSprint("2f1c...").WithComponent("scheduler")
//	runLogger.WithTask("API-001").Debug("dispatched", "agent", "api")
//
// # Log Levels
//
//   - DEBUG: task dispatches and every state transition
//   - INFO: sprint start and finish, gate decisions
//   - WARN: task failures, gate rejections, cancellation
//   - ERROR: deadlocks and executor errors
//
// # Thread Safety
//
// [Logger] is safe for concurrent use. Child loggers share the underlying
// writer.
package logging
