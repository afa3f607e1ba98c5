// Package ingestwatcher provides input-directory monitoring for dpp.
// When enabled, it watches the raw input directory and triggers a
// reduction when new cube files appear.
package ingestwatcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fastpdi/dpp"
)

// Plugin implements input-directory watching.
// It monitors the configured input directory for new raw cubes and asks
// the service for a reduction after the directory settles.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	debounceDelay time.Duration
	extension     string

	// Runtime state
	inputDir string
	logger   dpp.Logger
	trigger  func()
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the ingest watcher plugin.
type Config struct {
	// DebounceDelay is how long the directory must stay quiet after a
	// change before a reduction is triggered. Raw cubes arrive in bursts
	// at the end of an exposure sequence, so this should comfortably
	// exceed the inter-file gap. Default: 5 seconds.
	DebounceDelay time.Duration

	// Extension limits watching to files with this suffix.
	// Default: ".fpdc"
	Extension string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 5 * time.Second,
		Extension:     ".fpdc",
	}
}

// New creates a new ingest watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 5 * time.Second
	}
	if cfg.Extension == "" {
		cfg.Extension = ".fpdc"
	}

	return &Plugin{
		debounceDelay: cfg.DebounceDelay,
		extension:     cfg.Extension,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "ingestwatcher"
}

// Initialize sets up the plugin and starts the directory watcher.
func (p *Plugin) Initialize(ctx context.Context, cfg dpp.PluginConfig) error {
	p.mu.Lock()
	p.inputDir = cfg.Config.InputDir
	p.logger = cfg.Logger
	p.trigger = cfg.Trigger
	p.mu.Unlock()

	if p.inputDir == "" || p.trigger == nil {
		p.logger.Warn("Ingest watcher disabled: no input directory or trigger configured")
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("Ingest watcher plugin initialized")

	p.wg.Add(1)
	go p.watchLoop(watchCtx)

	return nil
}

// Shutdown stops the directory watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// watchLoop watches the input directory for new raw cubes.
func (p *Plugin) watchLoop(ctx context.Context) {
	defer p.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Error("Ingest watcher: failed to create watcher")
		return
	}
	defer watcher.Close()

	if err := watcher.Add(p.inputDir); err != nil {
		p.logger.Error("Ingest watcher: failed to watch input directory")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(filepath.Base(event.Name), p.extension) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceTrigger(p.debounceDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			_ = err // logged as generic error
			p.logger.Error("Ingest watcher: watcher error")
		}
	}
}

// debounceTrigger re-arms the settle timer; the trigger fires only once the
// directory has been quiet for the full delay.
func (p *Plugin) debounceTrigger(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}

	p.debounce = time.AfterFunc(delay, func() {
		p.logger.Info("Ingest watcher: input directory settled, triggering reduction")
		p.trigger()
	})
}

// Ensure Plugin implements dpp.Plugin.
var _ dpp.Plugin = (*Plugin)(nil)
