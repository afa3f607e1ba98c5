package ingestwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fastpdi/dpp"
	"github.com/fastpdi/dpp/pkg/log"
)

func TestPlugin_TriggersAfterSettle(t *testing.T) {
	inputDir := t.TempDir()

	var triggered atomic.Int32

	plugin := New(Config{DebounceDelay: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &dpp.Config{InputDir: inputDir}
	err := plugin.Initialize(ctx, dpp.PluginConfig{
		Config:  cfg,
		Logger:  log.NewNoopLogger(),
		Trigger: func() { triggered.Add(1) },
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer plugin.Shutdown(context.Background())

	// A burst of new cubes should coalesce into a single trigger.
	for i := 0; i < 3; i++ {
		name := filepath.Join(inputDir, "cube_000"+string(rune('0'+i))+".fpdc")
		if err := os.WriteFile(name, []byte("raw"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for triggered.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if got := triggered.Load(); got != 1 {
		t.Errorf("triggers = %d, want 1", got)
	}
}

func TestPlugin_IgnoresOtherFiles(t *testing.T) {
	inputDir := t.TempDir()

	var triggered atomic.Int32

	plugin := New(Config{DebounceDelay: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &dpp.Config{InputDir: inputDir}
	err := plugin.Initialize(ctx, dpp.PluginConfig{
		Config:  cfg,
		Logger:  log.NewNoopLogger(),
		Trigger: func() { triggered.Add(1) },
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer plugin.Shutdown(context.Background())

	if err := os.WriteFile(filepath.Join(inputDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if got := triggered.Load(); got != 0 {
		t.Errorf("triggers = %d for non-cube file, want 0", got)
	}
}

func TestPlugin_DisabledWhenInputDirEmpty(t *testing.T) {
	plugin := New(DefaultConfig())

	err := plugin.Initialize(context.Background(), dpp.PluginConfig{
		Config:  &dpp.Config{},
		Logger:  log.NewNoopLogger(),
		Trigger: func() {},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := plugin.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestPlugin_Name(t *testing.T) {
	if got := New(DefaultConfig()).Name(); got != "ingestwatcher" {
		t.Errorf("Name() = %q", got)
	}
}
