package scheduler

import (
	"time"

	"github.com/Iron-Ham/sprint/internal/event"
	"github.com/Iron-Ham/sprint/internal/logging"
)

// defaultAbortGrace bounds how long a stopping run waits for aborted tasks
// to report back.
const defaultAbortGrace = 10 * time.Second

type options struct {
	bus        *event.Bus
	logger     *logging.Logger
	newRunID   func() string
	abortGrace time.Duration
	now        func() time.Time
}

// Option configures a Scheduler.
type Option func(*options)

// WithBus sets the bus that receives sprint, task and gate events.
func WithBus(bus *event.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRunID sets the function that names each run. The default produces a
// random UUID.
func WithRunID(fn func() string) Option {
	return func(o *options) { o.newRunID = fn }
}

// WithAbortGrace sets how long to wait for aborted tasks to deliver their
// completion before the run ends without them.
func WithAbortGrace(d time.Duration) Option {
	return func(o *options) { o.abortGrace = d }
}

// WithClock overrides the time source used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
