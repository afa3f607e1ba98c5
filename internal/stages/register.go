package stages

import (
	"context"
	"fmt"
	"math"

	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/internal/imageproc"
)

// Registration methods.
const (
	RegisterCOM  = "com"
	RegisterPeak = "peak"
)

// RegisterConfig holds the registration stage parameters.
type RegisterConfig struct {
	// Method is one of com, peak.
	Method string `toml:"method,omitempty"`

	// WindowSize is the cutout size in pixels used for centroiding.
	WindowSize int `toml:"window_size,omitempty"`

	// Smooth applies a 3x3 box filter before centroiding. Centroids are
	// measured on the smoothed copy; shifts are applied to the original.
	Smooth bool `toml:"smooth,omitempty"`
}

// Validate checks the configuration at plan-build time.
func (c *RegisterConfig) Validate() error {
	if c.Method == "" {
		c.Method = RegisterCOM
	}
	if c.Method != RegisterCOM && c.Method != RegisterPeak {
		return fmt.Errorf("%w: registration method not recognized: %q", domain.ErrConfiguration, c.Method)
	}
	if c.WindowSize == 0 {
		c.WindowSize = 30
	}
	if c.WindowSize < 0 {
		return fmt.Errorf("%w: registration window must be positive", domain.ErrConfiguration)
	}
	return nil
}

// Register centers each frame on the frame center by measuring the PSF
// centroid and applying the opposing sub-pixel shift. In coronagraphic mode
// the star position is the mean of the four satellite-spot centroids.
type Register struct {
	cfg      RegisterConfig
	satspots *Satspots
}

// NewRegister builds the registration transform.
func NewRegister(cfg RegisterConfig, satspots *Satspots) (*Register, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Register{cfg: cfg, satspots: satspots}, nil
}

// Name returns the stage identifier.
func (s *Register) Name() domain.StageName {
	return domain.StageRegister
}

// Apply shifts every frame so the measured star position lands on the frame
// center. Per-frame offsets are recorded as metrics for diagnostics.
func (s *Register) Apply(ctx context.Context, cube *domain.Cube, rec *domain.FrameRecord) (*domain.Cube, domain.MetricRecord, error) {
	out := domain.NewCube(cube.NFrames, cube.Height, cube.Width)
	out.Header = cube.Header

	cy, cx := imageproc.FrameCenter(cube.Height, cube.Width)
	offY := make([]float64, cube.NFrames)
	offX := make([]float64, cube.NFrames)

	for f := 0; f < cube.NFrames; f++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		frame := cube.Frame(f)
		my, mx, err := s.locate(frame, cube.Height, cube.Width, cy, cx)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: frame %d: %v", domain.ErrMetricComputation, f, err)
		}
		dy := cy - my
		dx := cx - mx
		offY[f] = dy
		offX[f] = dx
		copy(out.Frame(f), imageproc.Shift(frame, cube.Height, cube.Width, dy, dx))
	}

	metrics := domain.MetricRecord{
		"offset_y": offY,
		"offset_x": offX,
	}
	return out, metrics, nil
}

// locate measures the star position in one frame. Coronagraphic frames use
// the satellite-spot average; direct frames centroid the central PSF window.
func (s *Register) locate(frame []float64, h, w int, cy, cx float64) (float64, float64, error) {
	src := frame
	if s.cfg.Smooth {
		src = imageproc.Smooth3(frame, h, w)
	}

	if s.satspots != nil {
		wins := imageproc.SatspotWindows(h, w, cy, cx, s.satspots.Radius, s.satspots.Angle, s.cfg.WindowSize)
		var sy, sx float64
		n := 0
		for _, win := range wins {
			my, mx := s.centroid(src, w, win)
			if math.IsNaN(my) || math.IsNaN(mx) {
				continue
			}
			sy += my
			sx += mx
			n++
		}
		if n == 0 {
			return 0, 0, fmt.Errorf("no finite satellite-spot centroid")
		}
		return sy / float64(n), sx / float64(n), nil
	}

	win := imageproc.CutoutWindow(h, w, cy, cx, s.cfg.WindowSize)
	my, mx := s.centroid(src, w, win)
	if math.IsNaN(my) || math.IsNaN(mx) {
		return 0, 0, fmt.Errorf("no finite pixels in centroid window")
	}
	return my, mx, nil
}

func (s *Register) centroid(frame []float64, w int, win imageproc.Window) (float64, float64) {
	if s.cfg.Method == RegisterPeak {
		return imageproc.CentroidPeak(frame, w, win)
	}
	return imageproc.CentroidCOM(frame, w, win)
}
