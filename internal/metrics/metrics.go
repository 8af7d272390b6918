// Package metrics exports sprint execution metrics in Prometheus format.
//
// A [Collector] subscribes to the scheduler's event bus. Because sprint runs
// are short-lived processes, metrics are written to a node_exporter textfile
// with [Collector.WriteTextfile] rather than served over HTTP.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Iron-Ham/sprint/internal/event"
	"github.com/Iron-Ham/sprint/internal/monitor"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

// Metrics holds the Prometheus metrics for sprint runs.
type Metrics struct {
	TaskTransitions *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	TasksRunning    prometheus.Gauge
	GateDecisions   *prometheus.CounterVec
	SprintRuns      *prometheus.CounterVec

	SprintWallClock  prometheus.Gauge
	SprintSequential prometheus.Gauge
	SprintEfficiency prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		TaskTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sprint_task_transitions_total",
				Help: "Total number of task status transitions",
			},
			[]string{"agent", "status"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sprint_task_duration_seconds",
				Help:    "Measured task run time",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"agent", "status"},
		),
		TasksRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sprint_tasks_running",
				Help: "Number of tasks currently running",
			},
		),
		GateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sprint_gate_changes_total",
				Help: "Total number of approval gate status changes",
			},
			[]string{"status"},
		),
		SprintRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sprint_runs_total",
				Help: "Total number of sprint runs",
			},
			[]string{"outcome"},
		),
		SprintWallClock: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sprint_wall_clock_seconds",
				Help: "Wall-clock duration of the last sprint run",
			},
		),
		SprintSequential: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sprint_sequential_estimate_seconds",
				Help: "Sum of task estimates of the last sprint run",
			},
		),
		SprintEfficiency: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sprint_parallel_efficiency_ratio",
				Help: "Parallel efficiency of the last sprint run",
			},
		),
	}
}

// Collector feeds Metrics from bus events.
type Collector struct {
	registry *prometheus.Registry
	metrics  *Metrics

	mu   sync.Mutex
	bus  *event.Bus
	subs []string
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	return &Collector{
		registry: reg,
		metrics:  NewMetrics(reg),
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Metrics returns the underlying metrics.
func (c *Collector) Metrics() *Metrics {
	return c.metrics
}

// Attach subscribes the collector to bus.
func (c *Collector) Attach(bus *event.Bus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bus = bus
	c.subs = append(c.subs,
		event.SubscribeFunc(bus, event.TypeTaskTransition, c.onTransition),
		event.SubscribeFunc(bus, event.TypeGateChanged, c.onGate),
		event.SubscribeFunc(bus, event.TypeSprintFinished, c.onFinished),
	)
}

// Detach removes the collector's subscriptions.
func (c *Collector) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.subs {
		c.bus.Unsubscribe(id)
	}
	c.subs = nil
}

func (c *Collector) onTransition(e event.TaskTransitionEvent) {
	agent := string(e.State.Agent)
	c.metrics.TaskTransitions.WithLabelValues(agent, e.To().String()).Inc()

	if e.To() == sprint.StatusRunning {
		c.metrics.TasksRunning.Inc()
	}
	if e.From == sprint.StatusRunning {
		c.metrics.TasksRunning.Dec()
		if e.To().IsTerminal() {
			c.metrics.TaskDuration.WithLabelValues(agent, e.To().String()).Observe(e.State.Elapsed().Seconds())
		}
	}
}

func (c *Collector) onGate(e event.GateChangedEvent) {
	c.metrics.GateDecisions.WithLabelValues(e.Status.String()).Inc()
}

func (c *Collector) onFinished(e event.SprintFinishedEvent) {
	outcome := "success"
	if e.Outcome != nil {
		outcome = "failure"
	}
	c.metrics.SprintRuns.WithLabelValues(outcome).Inc()
}

// ObserveResult records the summary statistics of a finished run.
func (c *Collector) ObserveResult(r monitor.SprintResult) {
	c.metrics.SprintWallClock.Set(r.WallClock.Seconds())
	c.metrics.SprintSequential.Set(r.SequentialEstimate.Seconds())
	c.metrics.SprintEfficiency.Set(r.ParallelEfficiency)
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
