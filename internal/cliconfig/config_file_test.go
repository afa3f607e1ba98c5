package cliconfig

import (
	"testing"

	"github.com/fastpdi/dpp/internal/pipeline"
)

func TestApplyFileConfig(t *testing.T) {
	pc := &pipeline.Config{
		Name:       "file-run",
		InputDir:   "/file/raw",
		WorkDir:    "/file/work",
		OutputDir:  "/file/out",
		Workers:    3,
		DualCamera: true,
		MetricsDB:  "/file/runs.db",
	}

	t.Run("fills unset fields", func(t *testing.T) {
		cfg := DefaultConfig()
		ApplyFileConfig(&cfg, pc, map[string]bool{})

		if cfg.Name != "file-run" || cfg.InputDir != "/file/raw" {
			t.Errorf("file values not applied: %+v", cfg)
		}
		if cfg.Workers != 3 || !cfg.DualCamera {
			t.Errorf("numeric/bool values not applied: %+v", cfg)
		}
		if cfg.MetricsDB != "/file/runs.db" {
			t.Errorf("MetricsDB = %q", cfg.MetricsDB)
		}
	})

	t.Run("changed flags win over file values", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.InputDir = "/flag/raw"
		cfg.Workers = 8
		ApplyFileConfig(&cfg, pc, map[string]bool{"input-dir": true, "workers": true})

		if cfg.InputDir != "/flag/raw" {
			t.Errorf("InputDir = %q, want flag value", cfg.InputDir)
		}
		if cfg.Workers != 8 {
			t.Errorf("Workers = %d, want flag value 8", cfg.Workers)
		}
		if cfg.WorkDir != "/file/work" {
			t.Errorf("WorkDir = %q, want file value", cfg.WorkDir)
		}
	})
}

func TestOverlay(t *testing.T) {
	cfg := Config{
		Name:       "resolved",
		InputDir:   "/raw",
		WorkDir:    "/work",
		OutputDir:  "/out",
		Workers:    2,
		DualCamera: true,
		DiagDir:    "/diag",
	}

	pc := &pipeline.Config{Name: "stale", InputDir: "/stale"}
	cfg.Overlay(pc)

	if pc.Name != "resolved" || pc.InputDir != "/raw" || pc.WorkDir != "/work" {
		t.Errorf("Overlay did not replace run-level fields: %+v", pc)
	}
	if pc.Workers != 2 || !pc.DualCamera || pc.DiagDir != "/diag" {
		t.Errorf("Overlay missed fields: %+v", pc)
	}
}
