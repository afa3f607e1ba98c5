// Package dpp is the embeddable entry point for the FastPDI data
// post-processing pipeline. Use New() to create a Service, then Start()
// to run the reduction.
//
// In the default one-shot mode the service runs a single reduction and
// stops. In watch mode (WithWatch) it stays running and re-reduces when
// triggered, typically by the ingestwatcher plugin when new raw cubes
// appear.
package dpp

import (
	"context"
	"sync"

	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/internal/metricsdb"
	"github.com/fastpdi/dpp/internal/pipeline"
	"github.com/fastpdi/dpp/internal/ports"
	"github.com/fastpdi/dpp/pkg/lifecycle"
	"github.com/fastpdi/dpp/pkg/log"
)

// Re-export the run configuration and report types so embedders can use
// this package alone. Sub-packages can also be imported directly.
type (
	// Config is the full run configuration, decoded from TOML.
	Config = pipeline.Config

	// RunReport is the per-stage, per-file outcome record of one run.
	RunReport = domain.RunReport

	// Logger is the structured logging interface from pkg/log.
	Logger = log.Logger

	// State is the service lifecycle state.
	State = lifecycle.State

	// StagePlan is the ordered set of enabled stages a configuration
	// resolves to.
	StagePlan = domain.StagePlan
)

// Lifecycle states, re-exported for Status() checks.
const (
	StateStopped  = lifecycle.StateStopped
	StateStarting = lifecycle.StateStarting
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateCrashed  = lifecycle.StateCrashed
)

// LoadConfig reads and decodes a TOML run configuration.
func LoadConfig(path string) (*Config, error) {
	return pipeline.LoadConfig(path)
}

// BuildPlan resolves the stage plan a configuration would run, without
// running it. Useful for validating a configuration up front.
func BuildPlan(cfg *Config) (*StagePlan, error) {
	plan, _, err := pipeline.BuildPlan(cfg)
	return plan, err
}

// Run executes a single reduction synchronously and returns its report.
// It is the one-call API for embedders that do not need the service
// lifecycle or plugins.
func Run(ctx context.Context, cfg *Config, opts ...Option) (*RunReport, error) {
	s, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	defer s.closeRecorder()
	return s.runOnce(ctx)
}

// Service runs reductions under a lifecycle state machine. Use New() to
// create an instance, then Start() to begin.
type Service struct {
	cfg  *Config
	opts options

	lifecycle *lifecycle.DefaultManager
	logger    log.Logger

	recorder       ports.RunRecorder
	recorderCloser interface{ Close() error }

	plugins  []Plugin
	triggers chan struct{}

	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	lastReport *domain.RunReport
	lastErr    error
}

// New creates a new Service with the given configuration.
// The instance is created in StateStopped; call Start() to begin.
// Returns an error if the configuration is invalid.
func New(cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, domain.ErrConfiguration
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger

	// Open the cross-run metrics database unless the embedder supplied
	// its own recorder.
	recorder := o.recorder
	var closer interface{ Close() error }
	if recorder == nil && cfg.MetricsDB != "" {
		db, err := metricsdb.Open(cfg.MetricsDB)
		if err != nil {
			return nil, err
		}
		recorder = db
		closer = db
	}

	var emitter lifecycle.EventEmitter
	if o.stateHandler != nil {
		emitter = stateHandlerEmitter{handler: o.stateHandler}
	}

	return &Service{
		cfg:            cfg,
		opts:           o,
		lifecycle:      lifecycle.NewManager(logger, emitter),
		logger:         logger,
		recorder:       recorder,
		recorderCloser: closer,
		plugins:        o.plugins,
		triggers:       make(chan struct{}, 1),
	}, nil
}

// Start begins the reduction service in the background.
// Returns immediately after starting the run goroutine.
// Returns an error if already running or if a plugin fails to initialize.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CanStart() {
		return lifecycle.ErrAlreadyRunning
	}

	if err := s.lifecycle.TransitionTo(lifecycle.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.ctx = runCtx
	s.cancel = cancel
	s.lifecycle.SetCancel(cancel)

	pluginCfg := PluginConfig{
		Config:  s.cfg,
		Logger:  s.logger,
		Trigger: s.Trigger,
	}
	for _, p := range s.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			_ = s.lifecycle.TransitionTo(lifecycle.StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		s.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	s.lifecycle.AddWorker()
	go s.run(runCtx)

	return nil
}

// run is the service body: one reduction in one-shot mode, a trigger-driven
// loop in watch mode.
func (s *Service) run(ctx context.Context) {
	defer s.lifecycle.WorkerDone()

	if err := s.lifecycle.TransitionTo(lifecycle.StateRunning, "service starting"); err != nil {
		s.logger.Error("failed to transition to running", log.Err(err))
		return
	}

	if !s.opts.watch {
		_, err := s.runOnce(ctx)
		switch {
		case err == nil || err == context.Canceled:
			if s.lifecycle.CanStop() {
				_ = s.lifecycle.TransitionTo(lifecycle.StateStopping, "run complete")
				_ = s.lifecycle.TransitionTo(lifecycle.StateStopped, "run complete")
			}
		default:
			_ = s.lifecycle.TransitionTo(lifecycle.StateCrashed, err.Error())
		}
		return
	}

	s.watchLoop(ctx)
}

// watchLoop serializes triggered reductions. A failed run is retried with
// exponential backoff; a successful run resets it.
func (s *Service) watchLoop(ctx context.Context) {
	backoff := lifecycle.NewBackoff(lifecycle.DefaultBackoffInitial, lifecycle.DefaultBackoffMax)

	// Initial reduction on startup, before any trigger.
	s.Trigger()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.triggers:
		}

		_, err := s.runOnce(ctx)
		if err != nil {
			if err == context.Canceled || ctx.Err() != nil {
				return
			}
			s.logger.Error("reduction failed, backing off",
				log.Err(err),
				log.Duration("retry_in", backoff.Current()))
			backoff.Sleep()
			s.Trigger()
			continue
		}
		backoff.Reset()
	}
}

// runOnce drives a single reduction and records its report.
func (s *Service) runOnce(ctx context.Context) (*RunReport, error) {
	driver := pipeline.NewDriver(s.cfg, s.logger, s.recorder)
	report, err := driver.Run(ctx)

	s.mu.Lock()
	s.lastReport = report
	s.lastErr = err
	s.mu.Unlock()

	return report, err
}

// Trigger requests a reduction in watch mode. A trigger arriving while a
// run is in progress coalesces with any already pending one. In one-shot
// mode triggers are ignored.
func (s *Service) Trigger() {
	select {
	case s.triggers <- struct{}{}:
	default:
	}
}

// Stop gracefully shuts down the service.
// Waits up to 30 seconds for the in-flight reduction before forcing exit.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (s *Service) Stop() error {
	s.mu.Lock()

	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return lifecycle.ErrNotRunning
	}

	if err := s.lifecycle.TransitionTo(lifecycle.StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	err := s.lifecycle.WaitWithTimeout(lifecycle.ShutdownTimeout)

	// Shutdown plugins in reverse order.
	shutdownCtx := context.Background()
	for i := len(s.plugins) - 1; i >= 0; i-- {
		p := s.plugins[i]
		if shutdownErr := p.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(shutdownErr))
		}
	}

	s.closeRecorder()

	_ = s.lifecycle.TransitionTo(lifecycle.StateStopped, "Stop() complete")
	return err
}

// Status returns the current lifecycle state.
func (s *Service) Status() State {
	return s.lifecycle.State()
}

// LastReport returns the most recent run report and its error, if any.
// Nil until the first reduction finishes.
func (s *Service) LastReport() (*RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport, s.lastErr
}

func (s *Service) closeRecorder() {
	if s.recorderCloser != nil {
		if err := s.recorderCloser.Close(); err != nil {
			s.logger.Warn("metrics database close failed", log.Err(err))
		}
		s.recorderCloser = nil
	}
}

// stateHandlerEmitter adapts a StateChangeHandler to the lifecycle emitter.
type stateHandlerEmitter struct {
	handler StateChangeHandler
}

func (e stateHandlerEmitter) OnStateChange(previous, current lifecycle.State, reason string) {
	e.handler(previous, current, reason)
}
