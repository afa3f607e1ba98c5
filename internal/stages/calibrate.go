package stages

import (
	"context"
	"fmt"
	"math"

	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/internal/imageproc"
)

// CalibrateConfig holds the calibration stage parameters.
type CalibrateConfig struct {
	// MasterDark is the path to the master dark cube; empty disables dark
	// subtraction.
	MasterDark string `toml:"master_dark,omitempty"`

	// MasterFlat is the path to the master flat cube; empty disables
	// flat-field normalization.
	MasterFlat string `toml:"master_flat,omitempty"`

	// FlipY mirrors frames along the y axis to match the sky orientation.
	FlipY bool `toml:"flip_y,omitempty"`
}

// Calibrate subtracts the master dark, normalizes by the master flat, and
// masks unusable pixels. The dark and flat planes are resolved once at
// construction so Apply stays a pure function of its input.
type Calibrate struct {
	dark []float64 // nil when disabled
	flat []float64 // pre-normalized by its own mean; nil when disabled
	flip bool
}

// NewCalibrate builds the calibration transform from resolved calibration
// planes. The flat is normalized by the mean of its finite, positive pixels;
// nonpositive flat pixels mask the output pixel (NaN).
func NewCalibrate(cfg CalibrateConfig, dark, flat []float64) (*Calibrate, error) {
	c := &Calibrate{dark: dark, flip: cfg.FlipY}
	if flat != nil {
		var sum float64
		n := 0
		for _, v := range flat {
			if !math.IsNaN(v) && v > 0 {
				sum += v
				n++
			}
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: master flat has no usable pixels", domain.ErrConfiguration)
		}
		mean := sum / float64(n)
		norm := make([]float64, len(flat))
		for i, v := range flat {
			if math.IsNaN(v) || v <= 0 {
				norm[i] = math.NaN()
			} else {
				norm[i] = v / mean
			}
		}
		c.flat = norm
	}
	return c, nil
}

// Name returns the stage identifier.
func (c *Calibrate) Name() domain.StageName {
	return domain.StageCalibrate
}

// Apply produces the calibrated cube and a per-frame background metric.
func (c *Calibrate) Apply(ctx context.Context, cube *domain.Cube, rec *domain.FrameRecord) (*domain.Cube, domain.MetricRecord, error) {
	npix := cube.Height * cube.Width
	if c.dark != nil && len(c.dark) != npix {
		return nil, nil, fmt.Errorf("%w: master dark shape %d does not match frame %d",
			domain.ErrInputFile, len(c.dark), npix)
	}
	if c.flat != nil && len(c.flat) != npix {
		return nil, nil, fmt.Errorf("%w: master flat shape %d does not match frame %d",
			domain.ErrInputFile, len(c.flat), npix)
	}

	out := domain.NewCube(cube.NFrames, cube.Height, cube.Width)
	out.Header = cube.Header
	background := make([]float64, cube.NFrames)

	for f := 0; f < cube.NFrames; f++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		in := cube.Frame(f)
		dst := out.Frame(f)
		for p := 0; p < npix; p++ {
			v := in[p]
			if c.dark != nil {
				v -= c.dark[p]
			}
			if c.flat != nil {
				v /= c.flat[p] // NaN flat pixel masks the output
			}
			dst[p] = v
		}
		if c.flip {
			flipY(dst, cube.Height, cube.Width)
		}
		background[f] = frameMedian(dst)
	}

	metrics := domain.MetricRecord{"background": background}
	return out, metrics, nil
}

func flipY(frame []float64, h, w int) {
	for y := 0; y < h/2; y++ {
		top := frame[y*w : (y+1)*w]
		bot := frame[(h-1-y)*w : (h-y)*w]
		for x := 0; x < w; x++ {
			top[x], bot[x] = bot[x], top[x]
		}
	}
}

func frameMedian(frame []float64) float64 {
	return imageproc.Quantile(frame, 0.5)
}
