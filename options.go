package dpp

import (
	"github.com/fastpdi/dpp/internal/ports"
	"github.com/fastpdi/dpp/pkg/log"
)

// RunRecorder persists finished run reports, e.g. to the sqlite metrics
// database. Recording failures never abort a run.
type RunRecorder = ports.RunRecorder

// StateChangeHandler is called on every lifecycle transition.
// Handlers are called synchronously from the transitioning goroutine.
type StateChangeHandler func(previous, current State, reason string)

// Option configures optional behavior of a Service.
type Option func(*options)

// options holds the optional configuration for a Service instance.
type options struct {
	logger       log.Logger
	recorder     ports.RunRecorder
	stateHandler StateChangeHandler
	plugins      []Plugin
	watch        bool
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRunRecorder sets a custom run-report sink, replacing the sqlite
// database the service would otherwise open from Config.MetricsDB.
func WithRunRecorder(recorder RunRecorder) Option {
	return func(o *options) {
		o.recorder = recorder
	}
}

// WithStateChangeHandler sets a handler for lifecycle transitions.
// If not provided, no events are emitted.
func WithStateChangeHandler(handler StateChangeHandler) Option {
	return func(o *options) {
		o.stateHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when the Service starts.
// Plugins are initialized in registration order and shut down in reverse
// order. For built-in plugins, use their package options, e.g.
// ingestwatcher.WithIngestWatcher().
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithWatch keeps the service running after the first reduction and
// re-reduces on Trigger(). Without it the service runs once and stops.
func WithWatch() Option {
	return func(o *options) {
		o.watch = true
	}
}
