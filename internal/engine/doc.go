// Package engine wires the sprint pipeline together: it loads and validates a
// plan, runs it through the scheduler on a fresh event bus, and collects the
// monitor's result, metrics and log output for that run.
package engine
