// Package workdirclean provides automatic work-directory cleanup for dpp.
// When enabled, it periodically removes the oldest stage artifacts to
// prevent unbounded disk usage. Removed artifacts are regenerated on the
// next run that needs them, so cleanup only ever costs recomputation.
package workdirclean

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fastpdi/dpp"
)

// metricsSuffix is the sidecar appended to each artifact path.
const metricsSuffix = ".metrics.json"

// stageDirs are the work-directory subdirectories holding regenerable
// stage artifacts. Final products are never touched.
var stageDirs = []string{"calibrate", "frame_select", "register", "collapse"}

// Plugin implements work-directory cleanup.
// It periodically checks the total size of the stage artifact directories
// and removes the oldest artifacts when it exceeds the high watermark.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	checkInterval time.Duration
	highWatermark int64
	lowWatermark  int64

	// Runtime state
	workDir string
	logger  dpp.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Config holds configuration options for the work-directory cleanup plugin.
type Config struct {
	// CheckInterval is how often to check the work directory size.
	// Default: 1 hour
	CheckInterval time.Duration

	// HighWatermark is the size in bytes above which cleanup begins.
	// Default: 8 GiB
	HighWatermark int64

	// LowWatermark is the target size in bytes after cleanup.
	// Default: 6 GiB
	LowWatermark int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval: time.Hour,
		HighWatermark: 8 << 30, // 8 GiB
		LowWatermark:  6 << 30, // 6 GiB
	}
}

// New creates a new work-directory cleanup plugin with the given
// configuration.
func New(cfg Config) *Plugin {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = 8 << 30
	}
	if cfg.LowWatermark <= 0 {
		cfg.LowWatermark = 6 << 30
	}

	return &Plugin{
		checkInterval: cfg.CheckInterval,
		highWatermark: cfg.HighWatermark,
		lowWatermark:  cfg.LowWatermark,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "workdirclean"
}

// Initialize sets up the plugin and starts the cleanup loop.
func (p *Plugin) Initialize(ctx context.Context, cfg dpp.PluginConfig) error {
	p.mu.Lock()
	p.workDir = cfg.Config.WorkDir
	p.logger = cfg.Logger
	p.mu.Unlock()

	if p.workDir == "" {
		p.logger.Warn("Work-dir cleanup disabled: no work directory configured")
		return nil
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("Work-dir cleanup plugin initialized")

	p.wg.Add(1)
	go p.cleanupLoop(cleanupCtx)

	return nil
}

// Shutdown stops the cleanup loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// cleanupLoop runs periodic cleanup checks.
func (p *Plugin) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	// Run immediately on startup
	p.cleanupOnce(ctx)

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanupOnce(ctx)
		}
	}
}

// cleanupOnce performs a single cleanup check.
func (p *Plugin) cleanupOnce(ctx context.Context) {
	p.mu.RLock()
	workDir := p.workDir
	p.mu.RUnlock()

	curSize, err := artifactDirSize(workDir)
	if err != nil {
		p.logger.Error("Work-dir cleanup: size check failed")
		return
	}

	if curSize <= p.highWatermark {
		return
	}

	arts, err := orderedArtifacts(workDir)
	if err != nil {
		p.logger.Error("Work-dir cleanup: list artifacts failed")
		return
	}
	if len(arts) == 0 {
		return
	}

	removed := int64(0)
	for _, art := range arts {
		if ctx.Err() != nil {
			return
		}
		if curSize <= p.lowWatermark {
			break
		}

		bytesFreed, rmErr := removeArtifact(art)
		if rmErr != nil {
			p.logger.Error("Work-dir cleanup: remove failed")
			continue
		}
		curSize -= bytesFreed
		removed += bytesFreed
	}

	if removed > 0 {
		p.logger.Info("Work-dir cleanup completed")
	}
}

// artifact represents a stage artifact and its metrics sidecar.
type artifact struct {
	path        string
	sidecarPath string
	size        int64
	sidecarSize int64
	modTime     time.Time
}

// artifactDirSize totals the stage artifact directories only; anything
// else under the work directory is left alone.
func artifactDirSize(workDir string) (int64, error) {
	var total int64
	for _, stage := range stageDirs {
		dir := filepath.Join(workDir, stage)
		ents, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		for _, e := range ents {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return 0, err
			}
			total += info.Size()
		}
	}
	return total, nil
}

// orderedArtifacts lists stage artifacts oldest first.
func orderedArtifacts(workDir string) ([]artifact, error) {
	var arts []artifact
	for _, stage := range stageDirs {
		dir := filepath.Join(workDir, stage)
		ents, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range ents {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".fpdc") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return nil, err
			}
			art := artifact{
				path:    filepath.Join(dir, name),
				size:    info.Size(),
				modTime: info.ModTime(),
			}
			if sInfo, sErr := os.Stat(art.path + metricsSuffix); sErr == nil {
				art.sidecarPath = art.path + metricsSuffix
				art.sidecarSize = sInfo.Size()
			}
			arts = append(arts, art)
		}
	}

	sort.Slice(arts, func(i, j int) bool {
		return arts[i].modTime.Before(arts[j].modTime)
	})
	return arts, nil
}

// removeArtifact deletes an artifact and its sidecar, returning the bytes
// freed.
func removeArtifact(art artifact) (int64, error) {
	if art.path == "" {
		return 0, fmt.Errorf("missing artifact path")
	}
	if err := os.Remove(art.path); err != nil {
		return 0, err
	}

	bytesFreed := art.size
	if art.sidecarPath != "" {
		if err := os.Remove(art.sidecarPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return bytesFreed, err
		}
		bytesFreed += art.sidecarSize
	}
	return bytesFreed, nil
}

// Ensure Plugin implements dpp.Plugin.
var _ dpp.Plugin = (*Plugin)(nil)
