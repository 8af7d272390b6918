// Package event provides a pub-sub event bus for decoupled communication
// between the scheduler and the components that observe a sprint run.
//
// The scheduler publishes every task state transition and gate change on a
// [Bus]. The execution monitor, the metrics collector, and the run log
// subscribe to it without the scheduler knowing they exist. Events carry
// copies of state, never references into the scheduler.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Events
//
//   - [SprintStartedEvent]: a run began
//   - [TaskTransitionEvent]: a task changed status
//   - [GateChangedEvent]: an approval gate changed status
//   - [SprintFinishedEvent]: a run ended
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine. A panicking handler is
// recovered and reported through [WithPanicHandler]; the remaining handlers
// still run.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	event.SubscribeFunc(bus, event.TypeTaskTransition, func(tr event.TaskTransitionEvent) {
//	    log.Printf("%s: %s -> %s", tr.TaskID(), tr.From, tr.To())
//	})
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - sprint.started, sprint.finished
//   - task.transition
//   - gate.changed
package event
