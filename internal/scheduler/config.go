package scheduler

import (
	"fmt"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

// CancelPolicy controls what happens to in-flight tasks when a run stops
// early.
type CancelPolicy string

const (
	// CancelSoft lets in-flight tasks finish, then blocks the rest.
	CancelSoft CancelPolicy = "soft"
	// CancelHard aborts in-flight tasks.
	CancelHard CancelPolicy = "hard"
)

// DurationPolicy controls how task estimates are used.
type DurationPolicy string

const (
	// DurationMetrics uses estimates for reporting only.
	DurationMetrics DurationPolicy = "metrics"
	// DurationTimeout aborts tasks that overrun their estimate.
	DurationTimeout DurationPolicy = "timeout"
)

// DefaultTimeoutScale is the estimate multiplier used by DurationTimeout.
const DefaultTimeoutScale = 1.5

// Config holds scheduler behavior settings.
type Config struct {
	// MaxConcurrency caps Assigned+Running tasks. Zero means unbounded.
	MaxConcurrency int
	// AgentLimits caps concurrent tasks per agent kind. Missing or zero
	// entries are unbounded.
	AgentLimits map[sprint.AgentKind]int
	// FailFast aborts the run on the first task failure.
	FailFast bool
	// CancelPolicy applies to cancellation and gate rejection.
	CancelPolicy CancelPolicy
	// DurationPolicy decides whether estimates become timeouts.
	DurationPolicy DurationPolicy
	// TimeoutScale multiplies estimates under DurationTimeout.
	TimeoutScale float64
	// WaitForUnblock keeps a run alive, with no time limit, while a task
	// blocked by its agent waits for Unblock. When false, such tasks stay
	// Blocked once nothing else can progress and the run ends.
	WaitForUnblock bool
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		CancelPolicy:   CancelSoft,
		DurationPolicy: DurationMetrics,
		TimeoutScale:   DefaultTimeoutScale,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency must be >= 0, got %d", c.MaxConcurrency)
	}
	for kind, limit := range c.AgentLimits {
		if !kind.Valid() {
			return fmt.Errorf("agent limit for unknown agent kind %q", kind)
		}
		if limit < 0 {
			return fmt.Errorf("agent limit for %s must be >= 0, got %d", kind, limit)
		}
	}
	switch c.CancelPolicy {
	case "", CancelSoft, CancelHard:
	default:
		return fmt.Errorf("invalid cancel policy %q (must be soft or hard)", c.CancelPolicy)
	}
	switch c.DurationPolicy {
	case "", DurationMetrics, DurationTimeout:
	default:
		return fmt.Errorf("invalid duration policy %q (must be metrics or timeout)", c.DurationPolicy)
	}
	if c.DurationPolicy == DurationTimeout && c.TimeoutScale <= 0 {
		return fmt.Errorf("timeout scale must be > 0, got %v", c.TimeoutScale)
	}
	return nil
}

func (c Config) hardCancel() bool {
	return c.CancelPolicy == CancelHard
}

func (c Config) limitFor(kind sprint.AgentKind) int {
	return c.AgentLimits[kind]
}
