package stages

import (
	"context"
	"fmt"

	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/internal/imageproc"
)

// CollapseConfig holds the temporal-collapse stage parameters.
type CollapseConfig struct {
	// Method is one of median, mean, varmean, biweight.
	Method string `toml:"method,omitempty"`
}

// Validate checks the configuration at plan-build time.
func (c *CollapseConfig) Validate() error {
	if c.Method == "" {
		c.Method = imageproc.ReduceMedian
	}
	if !imageproc.KnownReducer(c.Method) {
		return fmt.Errorf("%w: collapse method not recognized: %q", domain.ErrConfiguration, c.Method)
	}
	return nil
}

// Collapse reduces a cube to a single frame along the time axis. NaN pixels
// are excluded per pixel, so a pixel is masked in the output only when it is
// masked in every input frame.
type Collapse struct {
	cfg CollapseConfig
}

// NewCollapse builds the collapse transform.
func NewCollapse(cfg CollapseConfig) (*Collapse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Collapse{cfg: cfg}, nil
}

// Name returns the stage identifier.
func (s *Collapse) Name() domain.StageName {
	return domain.StageCollapse
}

// Apply reduces the cube to a single-frame cube with the configured reducer.
func (s *Collapse) Apply(ctx context.Context, cube *domain.Cube, rec *domain.FrameRecord) (*domain.Cube, domain.MetricRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	out := domain.NewCube(1, cube.Height, cube.Width)
	out.Header = cube.Header
	copy(out.Frame(0), imageproc.Collapse(cube, s.cfg.Method))

	metrics := domain.MetricRecord{
		"mask_fraction": []float64{out.MaskFraction()},
		"input_frames":  []float64{float64(cube.NFrames)},
	}
	return out, metrics, nil
}
