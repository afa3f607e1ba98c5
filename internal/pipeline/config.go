package pipeline

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/internal/polarimetry"
	"github.com/fastpdi/dpp/internal/stages"
)

// PolarimetryConfig holds the combination stage parameters.
type PolarimetryConfig struct {
	// Method is one of difference, ratio.
	Method string `toml:"method,omitempty"`

	// NoiseFloor is the minimum total intensity for polarization maps.
	NoiseFloor float64 `toml:"noise_floor,omitempty"`

	// GainRatio overrides the camera-2/camera-1 gain calibration recorded
	// in the raw headers. Zero keeps the header values.
	GainRatio float64 `toml:"gain_ratio,omitempty"`

	// IPQ and IPU are the instrumental-polarization coefficients: the
	// fraction of total intensity leaking into Q and U.
	IPQ float64 `toml:"ip_pq,omitempty"`
	IPU float64 `toml:"ip_pu,omitempty"`

	// IPMethod selects how the correction coefficients are obtained:
	// "scalar" applies ip_pq/ip_pu directly, "mueller" derives them from
	// the optical-train model in the mueller section. Empty behaves as
	// scalar.
	IPMethod string `toml:"ip_method,omitempty"`

	// Mueller parameterizes the optical train for ip_method = "mueller".
	Mueller *MuellerConfig `toml:"mueller,omitempty"`
}

// MuellerConfig holds the optical-train model parameters. All angles and
// retardances are in degrees.
type MuellerConfig struct {
	PA            float64 `toml:"pa,omitempty"`
	Altitude      float64 `toml:"altitude,omitempty"`
	MirrorEpsilon float64 `toml:"mirror_epsilon,omitempty"`
	HWPTheta      float64 `toml:"hwp_theta,omitempty"`
	HWPDelta      float64 `toml:"hwp_delta,omitempty"`
	IMRTheta      float64 `toml:"imr_theta,omitempty"`
	IMRDelta      float64 `toml:"imr_delta,omitempty"`
	QWP1          float64 `toml:"qwp1,omitempty"`
	QWP2          float64 `toml:"qwp2,omitempty"`
}

// Validate fills the retardance defaults: an unspecified waveplate is ideal.
func (c *MuellerConfig) Validate() error {
	if c.MirrorEpsilon < 0 || c.MirrorEpsilon >= 1 {
		return fmt.Errorf("%w: mirror diattenuation must be in [0, 1)", domain.ErrConfiguration)
	}
	if c.HWPDelta == 0 {
		c.HWPDelta = 180
	}
	if c.IMRDelta == 0 {
		c.IMRDelta = 180
	}
	return nil
}

// Train builds the polarimetry train model from the section.
func (c *MuellerConfig) Train() polarimetry.Train {
	return polarimetry.Train{
		PA:            c.PA,
		Altitude:      c.Altitude,
		MirrorEpsilon: c.MirrorEpsilon,
		HWPTheta:      c.HWPTheta,
		HWPDelta:      c.HWPDelta,
		IMRTheta:      c.IMRTheta,
		IMRDelta:      c.IMRDelta,
		QWP1:          c.QWP1,
		QWP2:          c.QWP2,
	}
}

// Validate checks the section at plan-build time.
func (c *PolarimetryConfig) Validate() error {
	if c.Method == "" {
		c.Method = polarimetry.MethodDifference
	}
	if !polarimetry.KnownMethod(c.Method) {
		return fmt.Errorf("%w: polarimetry method not recognized: %q", domain.ErrConfiguration, c.Method)
	}
	if c.NoiseFloor < 0 {
		return fmt.Errorf("%w: polarimetry noise floor must be non-negative", domain.ErrConfiguration)
	}
	if c.GainRatio < 0 {
		return fmt.Errorf("%w: polarimetry gain ratio must be non-negative", domain.ErrConfiguration)
	}
	switch c.IPMethod {
	case "", polarimetry.IPMethodScalar:
	case polarimetry.IPMethodMueller:
		if c.Mueller == nil {
			return fmt.Errorf("%w: ip_method %q requires a mueller section", domain.ErrConfiguration, c.IPMethod)
		}
	default:
		return fmt.Errorf("%w: ip correction method not recognized: %q", domain.ErrConfiguration, c.IPMethod)
	}
	if c.Mueller != nil {
		if err := c.Mueller.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Config is the full run configuration. Each stage has one optional section;
// an absent section disables that stage (pass-through), never an error.
type Config struct {
	// Name is the run name, used as filename stem for reports and products.
	Name string `toml:"name"`

	// InputDir holds the raw cube files to ingest.
	InputDir string `toml:"input_dir"`

	// WorkDir is the root for per-stage intermediate artifacts.
	WorkDir string `toml:"work_dir"`

	// OutputDir receives final Stokes products and the run report.
	OutputDir string `toml:"output_dir,omitempty"`

	// Workers bounds per-stage concurrency; 0 picks a default from the
	// host CPU count.
	Workers int `toml:"workers,omitempty"`

	// DualCamera enables camera-2 branches and the normalized-difference
	// algebra. Single-camera runs produce reduced-precision products.
	DualCamera bool `toml:"dual_camera,omitempty"`

	// Coronagraphic switches selection and registration to the satellite
	// spot windows. Requires the satspots section.
	Coronagraphic bool `toml:"coronagraphic,omitempty"`

	// Satspots is the satellite-spot geometry, required in coronagraphic
	// mode and ignored otherwise.
	Satspots *stages.Satspots `toml:"satspots,omitempty"`

	Calibrate   *stages.CalibrateConfig   `toml:"calibrate,omitempty"`
	FrameSelect *stages.FrameSelectConfig `toml:"frame_select,omitempty"`
	Register    *stages.RegisterConfig    `toml:"register,omitempty"`
	Collapse    *stages.CollapseConfig    `toml:"collapse,omitempty"`
	Polarimetry *PolarimetryConfig        `toml:"polarimetry,omitempty"`

	// MetricsDB is an optional sqlite file collecting run reports across
	// runs for diagnostics.
	MetricsDB string `toml:"metrics_db,omitempty"`

	// DiagDir receives optional HTML diagnostic charts; empty disables them.
	DiagDir string `toml:"diag_dir,omitempty"`
}

// LoadConfig reads and decodes a TOML run configuration.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %v", domain.ErrConfiguration, err)
	}
	var cfg Config
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", domain.ErrConfiguration, err)
	}
	return &cfg, nil
}

// Validate checks run-level settings. Stage sections validate during plan
// building, where their transforms are constructed.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: run name is required", domain.ErrConfiguration)
	}
	if c.InputDir == "" {
		return fmt.Errorf("%w: input_dir is required", domain.ErrConfiguration)
	}
	if c.WorkDir == "" {
		return fmt.Errorf("%w: work_dir is required", domain.ErrConfiguration)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative", domain.ErrConfiguration)
	}
	if c.Coronagraphic && c.Satspots == nil {
		return fmt.Errorf("%w: coronagraphic mode requires the satspots section", domain.ErrConfiguration)
	}
	if c.Satspots != nil && c.Satspots.Radius <= 0 {
		return fmt.Errorf("%w: satspot radius must be positive", domain.ErrConfiguration)
	}
	return nil
}
