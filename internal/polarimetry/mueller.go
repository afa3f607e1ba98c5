package polarimetry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Mueller-matrix constructors for the optical elements of the instrument
// train. All angles are in radians; every matrix is 4x4 acting on Stokes
// vectors (I, Q, U, V).

// HWP returns the Mueller matrix of an ideal half-wave plate with its
// fast axis at theta.
func HWP(theta float64) *mat.Dense {
	cos2t := math.Cos(2 * theta)
	sin2t := math.Sin(2 * theta)
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, cos2t*cos2t - sin2t*sin2t, 2 * cos2t * sin2t, 0,
		0, 2 * cos2t * sin2t, sin2t*sin2t - cos2t*cos2t, 0,
		0, 0, 0, -1,
	})
}

// QWP returns the Mueller matrix of an ideal quarter-wave plate with its
// fast axis at theta.
func QWP(theta float64) *mat.Dense {
	cos2t := math.Cos(2 * theta)
	sin2t := math.Sin(2 * theta)
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, cos2t * cos2t, cos2t * sin2t, -sin2t,
		0, cos2t * sin2t, sin2t * sin2t, cos2t,
		0, sin2t, -cos2t, 0,
	})
}

// Waveplate returns the Mueller matrix of a waveplate with arbitrary
// retardance delta and fast axis at theta. Waveplate(t, pi) equals HWP(t);
// Waveplate(t, pi/2) equals QWP(t).
func Waveplate(theta, delta float64) *mat.Dense {
	cos2t := math.Cos(2 * theta)
	sin2t := math.Sin(2 * theta)
	cosd := math.Cos(delta)
	sind := math.Sin(delta)
	a := (1 - cosd) * sin2t * cos2t
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, cos2t*cos2t + cosd*sin2t*sin2t, a, -sind * sin2t,
		0, a, sin2t*sin2t + cosd*cos2t*cos2t, sind * cos2t,
		0, sind * sin2t, -sind * cos2t, cosd,
	})
}

// Rotator returns the Mueller matrix for a clockwise rotation of the frame
// of reference about the optical axis.
func Rotator(theta float64) *mat.Dense {
	cos2t := math.Cos(2 * theta)
	sin2t := math.Sin(2 * theta)
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, cos2t, sin2t, 0,
		0, -sin2t, cos2t, 0,
		0, 0, 0, 1,
	})
}

// LinearPolarizer returns the Mueller matrix of an ideal linear polarizer
// oriented at theta.
func LinearPolarizer(theta float64) *mat.Dense {
	cos2t := math.Cos(2 * theta)
	sin2t := math.Sin(2 * theta)
	m := mat.NewDense(4, 4, []float64{
		1, cos2t, sin2t, 0,
		cos2t, cos2t * cos2t, cos2t * sin2t, 0,
		sin2t, cos2t * sin2t, sin2t * sin2t, 0,
		0, 0, 0, 0,
	})
	m.Scale(0.5, m)
	return m
}

// Mirror returns the Mueller matrix of an ideal mirror.
func Mirror() *mat.Dense {
	return HWP(0)
}

// Generic returns the Mueller matrix of an optic with diattenuation epsilon
// and retardance delta, fast axis at theta. Generic(t, 0, d) equals
// Waveplate(t, d); Generic(0, e, pi) is a mirror with diattenuation e.
func Generic(theta, epsilon, delta float64) *mat.Dense {
	cos2t := math.Cos(2 * theta)
	sin2t := math.Sin(2 * theta)
	cosd := math.Cos(delta)
	sind := math.Sin(delta)
	fac := math.Sqrt((1 - epsilon) * (1 + epsilon))
	a := cos2t*sin2t - fac*cosd*cos2t*sin2t
	return mat.NewDense(4, 4, []float64{
		1, epsilon * cos2t, epsilon * sin2t, 0,
		epsilon * cos2t, cos2t*cos2t + sin2t*sin2t*fac*cosd, a, -fac * sind * sin2t,
		epsilon * sin2t, a, sin2t*sin2t + cos2t*cos2t*fac*cosd, fac * sind * cos2t,
		0, fac * sind * sin2t, -fac * sind * cos2t, fac * cosd,
	})
}

// Wollaston returns the Mueller matrix of one output beam of a polarizing
// beamsplitter. ordinary selects the beam; eta is the diattenuation, 1 for
// a perfect splitter.
func Wollaston(ordinary bool, eta float64) *mat.Dense {
	if !ordinary {
		eta = -eta
	}
	rad := math.Sqrt((1 - eta) * (1 + eta))
	m := mat.NewDense(4, 4, []float64{
		1, eta, 0, 0,
		eta, 1, 0, 0,
		0, 0, rad, 0,
		0, 0, 0, rad,
	})
	m.Scale(0.5, m)
	return m
}

// Instrumental returns the Mueller matrix of the polarimetrically imperfect
// optical train: identity plus intensity-to-(Q,U,V) crosstalk terms.
func Instrumental(pQ, pU, pV float64) *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	m.Set(1, 0, pQ)
	m.Set(2, 0, pU)
	m.Set(3, 0, pV)
	return m
}

// Chain multiplies the given matrices in optical order: Chain(a, b, c)
// returns a*b*c, the matrix applied to light passing c first.
func Chain(ms ...*mat.Dense) *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		out.Set(i, i, 1)
	}
	for _, m := range ms {
		var tmp mat.Dense
		tmp.Mul(out, m)
		out.CloneFrom(&tmp)
	}
	return out
}

// InstrumentalModel is the instrumental-polarization correction derived from
// the train's Instrumental Mueller terms: the spurious Q/U signal scales
// linearly with total intensity.
type InstrumentalModel struct {
	PQ float64
	PU float64
}

// Correct returns the per-pixel instrumental Q/U contribution for the given
// intensity plane.
func (m InstrumentalModel) Correct(intensity []float64) (dq, du []float64) {
	dq = make([]float64, len(intensity))
	du = make([]float64, len(intensity))
	for i, v := range intensity {
		dq[i] = m.PQ * v
		du[i] = m.PU * v
	}
	return dq, du
}
