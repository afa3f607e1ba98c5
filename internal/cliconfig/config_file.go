package cliconfig

import (
	"os"
	"path/filepath"

	"github.com/fastpdi/dpp/internal/pipeline"
)

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.dpp/config.toml if the user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".dpp", "config.toml")
	}
	return ""
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// ApplyFileConfig applies the run-level fields of a loaded pipeline config
// to the CLI Config. It respects flags that have been explicitly set
// (changed map).
func ApplyFileConfig(cfg *Config, pc *pipeline.Config, changed map[string]bool) {
	s := newConfigSetter(changed)

	s.setString("name", pc.Name, &cfg.Name)
	s.setString("input-dir", pc.InputDir, &cfg.InputDir)
	s.setString("work-dir", pc.WorkDir, &cfg.WorkDir)
	s.setString("output-dir", pc.OutputDir, &cfg.OutputDir)
	s.setString("metrics-db", pc.MetricsDB, &cfg.MetricsDB)
	s.setString("diag-dir", pc.DiagDir, &cfg.DiagDir)

	s.setInt("workers", pc.Workers, &cfg.Workers)

	if pc.DualCamera {
		v := true
		s.setBool("dual-camera", &v, &cfg.DualCamera)
	}
	if pc.Coronagraphic {
		v := true
		s.setBool("coronagraphic", &v, &cfg.Coronagraphic)
	}
}

// Overlay writes the resolved CLI values back into the pipeline config that
// will drive the run. Stage sections already decoded from the file are left
// untouched.
func (c *Config) Overlay(pc *pipeline.Config) {
	pc.Name = c.Name
	pc.InputDir = c.InputDir
	pc.WorkDir = c.WorkDir
	pc.OutputDir = c.OutputDir
	pc.Workers = c.Workers
	pc.DualCamera = c.DualCamera
	pc.Coronagraphic = c.Coronagraphic
	pc.MetricsDB = c.MetricsDB
	pc.DiagDir = c.DiagDir
}
