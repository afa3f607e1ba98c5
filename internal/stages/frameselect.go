package stages

import (
	"context"
	"fmt"
	"math"

	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/internal/imageproc"
	"github.com/fastpdi/dpp/internal/ports"
)

// FrameSelectConfig holds the frame selection stage parameters.
type FrameSelectConfig struct {
	// Cutoff is the quantile below which frames are discarded: 0 keeps
	// everything, values approaching 1 discard almost everything.
	Cutoff float64 `toml:"cutoff"`

	// Metric is one of peak, l2norm, normvar.
	Metric string `toml:"metric,omitempty"`

	// WindowSize is the cutout size in pixels around the PSF (or each
	// satellite spot) in which the metric is measured.
	WindowSize int `toml:"window_size,omitempty"`
}

// Validate checks the configuration at plan-build time.
func (c *FrameSelectConfig) Validate() error {
	if c.Metric == "" {
		c.Metric = imageproc.MetricNormVar
	}
	if !imageproc.KnownMetric(c.Metric) {
		return fmt.Errorf("%w: frame selection metric not recognized: %q", domain.ErrConfiguration, c.Metric)
	}
	if c.Cutoff < 0 || c.Cutoff >= 1 {
		return fmt.Errorf("%w: frame selection cutoff must be in [0, 1), got %g", domain.ErrConfiguration, c.Cutoff)
	}
	if c.WindowSize == 0 {
		c.WindowSize = 20
	}
	if c.WindowSize < 0 {
		return fmt.Errorf("%w: frame selection window must be positive", domain.ErrConfiguration)
	}
	return nil
}

// Satspots holds the satellite-spot geometry used in coronagraphic mode.
type Satspots struct {
	// Radius is the spot separation from the star in pixels.
	Radius float64 `toml:"radius"`

	// Angle is the first spot's position angle in degrees.
	Angle float64 `toml:"angle,omitempty"`
}

// FrameSelect measures a quality metric per frame and discards frames below
// the configured quantile. Discarded frames stay in the metric table for
// diagnostics; a mask that would discard every frame fails the file.
type FrameSelect struct {
	cfg       FrameSelectConfig
	satspots  *Satspots // nil for direct (central PSF) mode
	extractor ports.MetricExtractor
}

// NewFrameSelect builds the selection transform. satspots switches metric
// measurement to the four calibration-speckle windows; extractor overrides
// the built-in windowed metric when a custom extractor is supplied.
func NewFrameSelect(cfg FrameSelectConfig, satspots *Satspots, extractor ports.MetricExtractor) (*FrameSelect, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FrameSelect{cfg: cfg, satspots: satspots, extractor: extractor}, nil
}

// Name returns the stage identifier.
func (s *FrameSelect) Name() domain.StageName {
	return domain.StageFrameSelect
}

// Apply measures the metric for every frame, thresholds at the configured
// quantile, and returns the cube restricted to the kept frames. The metric
// vector and keep mask are recorded for every input frame.
func (s *FrameSelect) Apply(ctx context.Context, cube *domain.Cube, rec *domain.FrameRecord) (*domain.Cube, domain.MetricRecord, error) {
	values := make([]float64, cube.NFrames)
	for f := 0; f < cube.NFrames; f++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		v, err := s.measure(cube.Frame(f), cube.Height, cube.Width)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: frame %d: %v", domain.ErrMetricComputation, f, err)
		}
		values[f] = v
	}

	threshold := imageproc.Quantile(values, s.cfg.Cutoff)
	keep := make([]bool, cube.NFrames)
	kept := 0
	for i, v := range values {
		if !math.IsNaN(v) && v >= threshold {
			keep[i] = true
			kept++
		}
	}
	if kept == 0 {
		return nil, nil, fmt.Errorf("%w: metric %q, cutoff %g", domain.ErrAllFramesDiscarded, s.cfg.Metric, s.cfg.Cutoff)
	}

	out := cube.Select(keep)
	metrics := domain.MetricRecord{
		s.cfg.Metric: values,
		"keep":       boolsToFloats(keep),
		"threshold":  []float64{threshold},
	}
	return out, metrics, nil
}

func (s *FrameSelect) measure(frame []float64, h, w int) (float64, error) {
	if s.extractor != nil {
		m, err := s.extractor.Measure(frame, w)
		if err != nil {
			return 0, err
		}
		v, ok := m[s.cfg.Metric]
		if !ok {
			return 0, fmt.Errorf("extractor did not produce metric %q", s.cfg.Metric)
		}
		return v, nil
	}

	cy, cx := imageproc.FrameCenter(h, w)
	if s.satspots != nil {
		wins := imageproc.SatspotWindows(h, w, cy, cx, s.satspots.Radius, s.satspots.Angle, s.cfg.WindowSize)
		return imageproc.MeasureSatspots(s.cfg.Metric, frame, w, wins), nil
	}
	win := imageproc.CutoutWindow(h, w, cy, cx, s.cfg.WindowSize)
	return imageproc.Measure(s.cfg.Metric, frame, w, win), nil
}

func boolsToFloats(mask []bool) []float64 {
	out := make([]float64, len(mask))
	for i, k := range mask {
		if k {
			out[i] = 1
		}
	}
	return out
}
