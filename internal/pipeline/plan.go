package pipeline

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/fastpdi/dpp/internal/cache"
	"github.com/fastpdi/dpp/internal/cubeio"
	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/internal/ports"
	"github.com/fastpdi/dpp/internal/stages"
)

// BuildPlan resolves the configuration into a fixed stage plan and the
// transform set implementing it. All branching (camera mode, coronagraph
// windows) is decided here, once per run; invalid stage parameters fail now,
// before any file is touched.
func BuildPlan(cfg *Config) (*domain.StagePlan, []ports.StageTransform, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	plan := &domain.StagePlan{
		Name:          cfg.Name,
		WorkDir:       cfg.WorkDir,
		DualCamera:    cfg.DualCamera,
		Coronagraphic: cfg.Coronagraphic,
		Workers:       cfg.Workers,
	}

	var satspots *stages.Satspots
	if cfg.Coronagraphic {
		satspots = cfg.Satspots
	}

	// Validate sections up front so defaults are filled in before the
	// config fingerprints are taken: a defaulted and an explicit-default
	// section must fingerprint identically.
	if cfg.FrameSelect != nil {
		if err := cfg.FrameSelect.Validate(); err != nil {
			return nil, nil, err
		}
	}
	if cfg.Register != nil {
		if err := cfg.Register.Validate(); err != nil {
			return nil, nil, err
		}
	}
	if cfg.Collapse != nil {
		if err := cfg.Collapse.Validate(); err != nil {
			return nil, nil, err
		}
	}

	var transforms []ports.StageTransform

	if cfg.Calibrate != nil {
		dark, flat, err := loadCalibrationPlanes(cfg.Calibrate)
		if err != nil {
			return nil, nil, err
		}
		tr, err := stages.NewCalibrate(*cfg.Calibrate, dark, flat)
		if err != nil {
			return nil, nil, err
		}
		transforms = append(transforms, tr)
	}
	if cfg.FrameSelect != nil {
		tr, err := stages.NewFrameSelect(*cfg.FrameSelect, satspots, nil)
		if err != nil {
			return nil, nil, err
		}
		transforms = append(transforms, tr)
	}
	if cfg.Register != nil {
		tr, err := stages.NewRegister(*cfg.Register, satspots)
		if err != nil {
			return nil, nil, err
		}
		transforms = append(transforms, tr)
	}
	if cfg.Collapse != nil {
		tr, err := stages.NewCollapse(*cfg.Collapse)
		if err != nil {
			return nil, nil, err
		}
		transforms = append(transforms, tr)
	}

	sections := []struct {
		name    domain.StageName
		section interface{}
		enabled bool
	}{
		{domain.StageCalibrate, cfg.Calibrate, cfg.Calibrate != nil},
		{domain.StageFrameSelect, cfg.FrameSelect, cfg.FrameSelect != nil},
		{domain.StageRegister, cfg.Register, cfg.Register != nil},
		{domain.StageCollapse, cfg.Collapse, cfg.Collapse != nil},
	}
	for _, s := range sections {
		planned := domain.PlannedStage{Name: s.name, Enabled: s.enabled}
		if s.enabled {
			fp, err := sectionFingerprint(s.name, s.section)
			if err != nil {
				return nil, nil, err
			}
			planned.ConfigFingerprint = fp
		}
		plan.Stages = append(plan.Stages, planned)
	}

	if cfg.Polarimetry != nil {
		if err := cfg.Polarimetry.Validate(); err != nil {
			return nil, nil, err
		}
		fp, err := sectionFingerprint(domain.StagePolarimetry, cfg.Polarimetry)
		if err != nil {
			return nil, nil, err
		}
		plan.Polarimetry = true
		plan.PolarimetryFingerprint = fp
	}

	return plan, transforms, nil
}

// sectionFingerprint digests one stage's serialized configuration. The
// serialized form, not the struct, is the cache key component, so defaulted
// and explicit-default configs fingerprint identically after Validate
// filled the defaults in.
func sectionFingerprint(name domain.StageName, section interface{}) (string, error) {
	b, err := toml.Marshal(section)
	if err != nil {
		return "", fmt.Errorf("%w: serialize %s config: %v", domain.ErrConfiguration, name, err)
	}
	return cache.ConfigFingerprint(b), nil
}

// loadCalibrationPlanes reads the configured master dark and flat, collapsing
// multi-frame masters to their first plane.
func loadCalibrationPlanes(cfg *stages.CalibrateConfig) (dark, flat []float64, err error) {
	load := func(path, kind string) ([]float64, error) {
		if path == "" {
			return nil, nil
		}
		cube, err := cubeio.Read(path)
		if err != nil {
			return nil, fmt.Errorf("%w: master %s %s: %v", domain.ErrConfiguration, kind, path, err)
		}
		if cube.NFrames < 1 {
			return nil, fmt.Errorf("%w: master %s %s is empty", domain.ErrConfiguration, kind, path)
		}
		return cube.Frame(0), nil
	}
	if dark, err = load(cfg.MasterDark, "dark"); err != nil {
		return nil, nil, err
	}
	if flat, err = load(cfg.MasterFlat, "flat"); err != nil {
		return nil, nil, err
	}
	return dark, flat, nil
}
