package cliconfig

import "os"

// ApplyEnvConfig applies DPP_* environment variables to the Config.
// Environment values override file config but are overridden by flags
// (checked via the changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("name", os.Getenv("DPP_NAME"), &cfg.Name)
	s.setString("input-dir", os.Getenv("DPP_INPUT_DIR"), &cfg.InputDir)
	s.setString("work-dir", os.Getenv("DPP_WORK_DIR"), &cfg.WorkDir)
	s.setString("output-dir", os.Getenv("DPP_OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("metrics-db", os.Getenv("DPP_METRICS_DB"), &cfg.MetricsDB)
	s.setString("diag-dir", os.Getenv("DPP_DIAG_DIR"), &cfg.DiagDir)

	if err := s.setIntFromString("workers", os.Getenv("DPP_WORKERS"), &cfg.Workers); err != nil {
		return err
	}

	s.setBoolFromString("dual-camera", os.Getenv("DPP_DUAL_CAMERA"), &cfg.DualCamera)
	s.setBoolFromString("coronagraphic", os.Getenv("DPP_CORONAGRAPHIC"), &cfg.Coronagraphic)
	s.setBoolFromString("watch", os.Getenv("DPP_WATCH"), &cfg.Watch)

	return nil
}
