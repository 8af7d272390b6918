package agent

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

// SimulatedExecutor completes tasks after a delay proportional to their
// estimate. It backs dry runs and tests.
type SimulatedExecutor struct {
	scale    float64
	fallback time.Duration
	failing  map[string]bool
	blocking map[string]bool

	mu       sync.Mutex
	attempts map[string]int
}

// SimOption configures a SimulatedExecutor.
type SimOption func(*SimulatedExecutor)

// WithFailures makes the given tasks fail.
func WithFailures(ids ...string) SimOption {
	return func(s *SimulatedExecutor) {
		for _, id := range ids {
			s.failing[id] = true
		}
	}
}

// WithBlocked makes the given tasks report blocked on their first dispatch.
// Later dispatches of the same task succeed.
func WithBlocked(ids ...string) SimOption {
	return func(s *SimulatedExecutor) {
		for _, id := range ids {
			s.blocking[id] = true
		}
	}
}

// WithFallbackDuration sets the simulated duration used for tasks whose
// estimate cannot be parsed. It is not scaled.
func WithFallbackDuration(d time.Duration) SimOption {
	return func(s *SimulatedExecutor) {
		s.fallback = d
	}
}

// NewSimulatedExecutor creates a SimulatedExecutor. A task estimated at d
// takes d*scale of wall-clock time.
func NewSimulatedExecutor(scale float64, opts ...SimOption) *SimulatedExecutor {
	s := &SimulatedExecutor{
		scale:    scale,
		failing:  make(map[string]bool),
		blocking: make(map[string]bool),
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delay returns the simulated run time of task.
func (s *SimulatedExecutor) Delay(task sprint.Task) time.Duration {
	est, ok := task.Estimate()
	if !ok {
		return s.fallback
	}
	return time.Duration(float64(est) * s.scale)
}

// Attempts returns how many times task id has been dispatched.
func (s *SimulatedExecutor) Attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}

// Dispatch schedules the simulated completion of task.
func (s *SimulatedExecutor) Dispatch(ctx context.Context, task sprint.Task, events chan<- Completion) (Handle, error) {
	s.mu.Lock()
	s.attempts[task.ID]++
	attempt := s.attempts[task.ID]
	s.mu.Unlock()

	outcome := Succeeded(task.ID)
	switch {
	case s.failing[task.ID]:
		outcome = Failed(task.ID, "simulated failure")
	case s.blocking[task.ID] && attempt == 1:
		outcome = Blocked(task.ID, "simulated block")
	}

	abort := make(chan string, 1)
	go func() {
		timer := time.NewTimer(s.Delay(task))
		defer timer.Stop()

		select {
		case <-timer.C:
			outcome.At = time.Now()
			events <- outcome
		case reason := <-abort:
			events <- Failed(task.ID, "aborted: "+reason)
		case <-ctx.Done():
			events <- Failed(task.ID, ctx.Err().Error())
		}
	}()

	var once sync.Once
	return HandleFunc(func(reason string) error {
		once.Do(func() { abort <- reason })
		return nil
	}), nil
}
