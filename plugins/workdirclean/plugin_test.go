package workdirclean

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fastpdi/dpp"
	"github.com/fastpdi/dpp/pkg/log"
)

// writeArtifact creates a stage artifact with a sidecar and the given age.
func writeArtifact(t *testing.T, workDir, stage, name string, size int, age time.Duration) string {
	t.Helper()
	dir := filepath.Join(workDir, stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+metricsSuffix, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPlugin_RemovesOldestFirst(t *testing.T) {
	workDir := t.TempDir()

	oldest := writeArtifact(t, workDir, "calibrate", "a_calib_0001.fpdc", 600, 3*time.Hour)
	middle := writeArtifact(t, workDir, "register", "a_aligned_0002.fpdc", 600, 2*time.Hour)
	newest := writeArtifact(t, workDir, "collapse", "a_collapsed_0003.fpdc", 600, time.Hour)

	p := New(Config{
		CheckInterval: time.Hour,
		HighWatermark: 1500,
		LowWatermark:  1000,
	})
	p.workDir = workDir
	p.logger = log.NewNoopLogger()

	p.cleanupOnce(context.Background())

	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Error("oldest artifact not removed")
	}
	if _, err := os.Stat(oldest + metricsSuffix); !os.IsNotExist(err) {
		t.Error("oldest artifact sidecar not removed")
	}
	if _, err := os.Stat(middle); err != nil {
		t.Errorf("middle artifact removed, want kept: %v", err)
	}
	if _, err := os.Stat(newest); err != nil {
		t.Errorf("newest artifact removed, want kept: %v", err)
	}
}

func TestPlugin_BelowWatermarkIsNoop(t *testing.T) {
	workDir := t.TempDir()
	kept := writeArtifact(t, workDir, "calibrate", "a_calib_0001.fpdc", 100, time.Hour)

	p := New(DefaultConfig())
	p.workDir = workDir
	p.logger = log.NewNoopLogger()

	p.cleanupOnce(context.Background())

	if _, err := os.Stat(kept); err != nil {
		t.Errorf("artifact removed below watermark: %v", err)
	}
}

func TestPlugin_IgnoresProductDirectory(t *testing.T) {
	workDir := t.TempDir()
	writeArtifact(t, workDir, "calibrate", "a_calib_0001.fpdc", 2000, 2*time.Hour)

	productDir := filepath.Join(workDir, "products")
	if err := os.MkdirAll(productDir, 0o755); err != nil {
		t.Fatal(err)
	}
	product := filepath.Join(productDir, "run_stokes_000.fpdc")
	if err := os.WriteFile(product, make([]byte, 4000), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New(Config{HighWatermark: 1000, LowWatermark: 500})
	p.workDir = workDir
	p.logger = log.NewNoopLogger()

	p.cleanupOnce(context.Background())

	if _, err := os.Stat(product); err != nil {
		t.Errorf("product removed, cleanup must only touch stage artifacts: %v", err)
	}
}

func TestPlugin_DisabledWhenWorkDirEmpty(t *testing.T) {
	p := New(DefaultConfig())

	cfg := &dpp.Config{}
	err := p.Initialize(context.Background(), dpp.PluginConfig{
		Config: cfg,
		Logger: log.NewNoopLogger(),
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestPlugin_Name(t *testing.T) {
	if got := New(DefaultConfig()).Name(); got != "workdirclean" {
		t.Errorf("Name() = %q", got)
	}
}
