package polarimetry

import (
	"fmt"
	"math"

	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/internal/ports"
)

// Combination methods.
const (
	MethodDifference = "difference"
	MethodRatio      = "ratio"
)

// KnownMethod reports whether name is a supported combination method.
func KnownMethod(name string) bool {
	return name == MethodDifference || name == MethodRatio
}

// HWP state indices into Epoch slots: state 1..4 maps to slot 0..3 at
// plate angles {0, 22.5, 45, 67.5} degrees.
const (
	slot0   = 0 // 0.0 deg
	slot225 = 1 // 22.5 deg
	slot45  = 2 // 45.0 deg
	slot675 = 3 // 67.5 deg
)

// Combiner turns complete modulation epochs into Stokes products using the
// double-difference or double-ratio algebra with instrumental-polarization
// correction. A nil IP model skips the correction.
type Combiner struct {
	method     string
	noiseFloor float64
	ip         ports.IPModel
}

// NewCombiner builds a combiner. method is one of difference, ratio;
// noiseFloor is the minimum total intensity below which polarization maps
// are masked.
func NewCombiner(method string, noiseFloor float64, ip ports.IPModel) (*Combiner, error) {
	if method == "" {
		method = MethodDifference
	}
	if !KnownMethod(method) {
		return nil, fmt.Errorf("%w: combination method not recognized: %q", domain.ErrConfiguration, method)
	}
	if noiseFloor < 0 {
		return nil, fmt.Errorf("%w: noise floor must be non-negative", domain.ErrConfiguration)
	}
	return &Combiner{method: method, noiseFloor: noiseFloor, ip: ip}, nil
}

// Combine produces the Stokes product for one epoch. Every modulation state
// must be present; the epoch has already been validated by BuildEpochs, so a
// nil slot here means provenance was corrupted and fails hard.
func (c *Combiner) Combine(epoch *Epoch) (*domain.StokesProduct, error) {
	w, h, err := epochShape(epoch)
	if err != nil {
		return nil, err
	}
	npix := w * h

	intensity := c.totalIntensity(epoch, npix)

	var q, u []float64
	if epoch.Dual {
		q, u, err = c.dualStokes(epoch, npix, intensity)
	} else {
		q, u, err = c.singleStokes(epoch, npix)
	}
	if err != nil {
		return nil, err
	}

	if c.ip != nil {
		dq, du := c.ip.Correct(intensity)
		for p := 0; p < npix; p++ {
			q[p] -= dq[p]
			u[p] -= du[p]
		}
	}

	polFrac := make([]float64, npix)
	polAngle := make([]float64, npix)
	for p := 0; p < npix; p++ {
		i := intensity[p]
		if math.IsNaN(i) || i <= c.noiseFloor {
			polFrac[p] = math.NaN()
			polAngle[p] = math.NaN()
			continue
		}
		polFrac[p] = math.Sqrt(q[p]*q[p]+u[p]*u[p]) / i
		polAngle[p] = 0.5 * math.Atan2(u[p], q[p]) * 180 / math.Pi
	}

	return &domain.StokesProduct{
		Width:            w,
		Height:           h,
		I:                intensity,
		Q:                q,
		U:                u,
		PolFrac:          polFrac,
		PolAngle:         polAngle,
		ReducedPrecision: !epoch.Dual,
		Contributing:     epoch.Sources(),
	}, nil
}

// dualStokes forms the normalized single differences per state and combines
// orthogonal pairs. Both the difference and ratio variants yield fractional
// q/u, scaled to intensity units here.
func (c *Combiner) dualStokes(epoch *Epoch, npix int, intensity []float64) ([]float64, []float64, error) {
	g := epoch.GainRatio()

	q := make([]float64, npix)
	u := make([]float64, npix)
	for p := 0; p < npix; p++ {
		var qf, uf float64
		if c.method == MethodRatio {
			qf = doubleRatio(
				epoch.Ordinary[slot0].Image[p], epoch.Extraordinary[slot0].Image[p],
				epoch.Ordinary[slot45].Image[p], epoch.Extraordinary[slot45].Image[p])
			uf = doubleRatio(
				epoch.Ordinary[slot225].Image[p], epoch.Extraordinary[slot225].Image[p],
				epoch.Ordinary[slot675].Image[p], epoch.Extraordinary[slot675].Image[p])
		} else {
			qf = 0.5 * (singleDiff(epoch.Ordinary[slot0].Image[p], epoch.Extraordinary[slot0].Image[p], g) -
				singleDiff(epoch.Ordinary[slot45].Image[p], epoch.Extraordinary[slot45].Image[p], g))
			uf = 0.5 * (singleDiff(epoch.Ordinary[slot225].Image[p], epoch.Extraordinary[slot225].Image[p], g) -
				singleDiff(epoch.Ordinary[slot675].Image[p], epoch.Extraordinary[slot675].Image[p], g))
		}
		q[p] = qf * intensity[p]
		u[p] = uf * intensity[p]
	}
	return q, u, nil
}

// singleStokes is the single-camera fallback: plain intensity differences
// across orthogonal plate positions, already in intensity units.
func (c *Combiner) singleStokes(epoch *Epoch, npix int) ([]float64, []float64, error) {
	q := make([]float64, npix)
	u := make([]float64, npix)
	for p := 0; p < npix; p++ {
		q[p] = 0.5 * (epoch.Ordinary[slot0].Image[p] - epoch.Ordinary[slot45].Image[p])
		u[p] = 0.5 * (epoch.Ordinary[slot225].Image[p] - epoch.Ordinary[slot675].Image[p])
	}
	return q, u, nil
}

// totalIntensity is the per-pixel mean over every frame of the epoch, the
// extraordinary beam scaled by the gain ratio. NaN pixels are excluded.
func (c *Combiner) totalIntensity(epoch *Epoch, npix int) []float64 {
	g := epoch.GainRatio()
	out := make([]float64, npix)
	for p := 0; p < npix; p++ {
		var sum float64
		n := 0
		for s := 0; s < hwpStates; s++ {
			if v := epoch.Ordinary[s].Image[p]; !math.IsNaN(v) {
				sum += v
				n++
			}
			if epoch.Dual {
				if v := epoch.Extraordinary[s].Image[p]; !math.IsNaN(v) {
					sum += g * v
					n++
				}
			}
		}
		if n == 0 {
			out[p] = math.NaN()
		} else {
			out[p] = sum / float64(n)
		}
	}
	return out
}

// singleDiff is the normalized beam difference (ord - g*ext)/(ord + g*ext).
func singleDiff(ord, ext, g float64) float64 {
	den := ord + g*ext
	if den == 0 {
		return math.NaN()
	}
	return (ord - g*ext) / den
}

// doubleRatio forms R = sqrt((ord0/ext0) / (ord1/ext1)) over one orthogonal
// plate pair and maps it to a fractional Stokes value (R-1)/(R+1). Beam gain
// cancels in the ratio.
func doubleRatio(ord0, ext0, ord1, ext1 float64) float64 {
	if ext0 == 0 || ord1 == 0 || ext1 == 0 {
		return math.NaN()
	}
	r2 := (ord0 / ext0) / (ord1 / ext1)
	if r2 < 0 || math.IsNaN(r2) {
		return math.NaN()
	}
	r := math.Sqrt(r2)
	return (r - 1) / (r + 1)
}

func epochShape(epoch *Epoch) (w, h int, err error) {
	var ref *domain.CollapsedFrame
	for s := 0; s < hwpStates; s++ {
		for _, f := range []*domain.CollapsedFrame{epoch.Ordinary[s], epoch.Extraordinary[s]} {
			if f == nil {
				continue
			}
			if ref == nil {
				ref = f
				continue
			}
			if f.Width != ref.Width || f.Height != ref.Height {
				return 0, 0, fmt.Errorf("%w: frame %s shape %dx%d does not match %s %dx%d",
					domain.ErrInputFile, f.Source, f.Width, f.Height, ref.Source, ref.Width, ref.Height)
			}
		}
		if epoch.Ordinary[s] == nil || (epoch.Dual && epoch.Extraordinary[s] == nil) {
			return 0, 0, fmt.Errorf("%w: modulation state %d missing", domain.ErrIncompleteEpoch, s+1)
		}
	}
	return ref.Width, ref.Height, nil
}
