package polarimetry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Instrumental-polarization correction methods.
const (
	IPMethodScalar  = "scalar"
	IPMethodMueller = "mueller"
)

// PupilOffsetDeg is the fixed rotation between the pupil and detector axes.
const PupilOffsetDeg = 2.7

// Train is the Mueller-matrix model of the optical path, sky to detector.
// All angles and retardances are in degrees.
type Train struct {
	// PA is the parallactic angle at observation.
	PA float64

	// Altitude is the telescope altitude.
	Altitude float64

	// MirrorEpsilon is the primary-mirror diattenuation, the dominant
	// source of instrumental polarization.
	MirrorEpsilon float64

	// HWPTheta and HWPDelta are the fast-axis angle and retardance of the
	// upstream half-wave plate. An ideal plate has delta 180.
	HWPTheta float64
	HWPDelta float64

	// IMRTheta and IMRDelta describe the image-rotator K-mirror.
	IMRTheta float64
	IMRDelta float64

	// QWP1 and QWP2 are the fast-axis angles of the quarter-wave plates.
	QWP1 float64
	QWP2 float64
}

// CommonPath returns the Mueller matrix of the optics shared by both beams,
// everything upstream of the polarizing beamsplitter, in light order: sky
// rotation, primary mirror, altitude rotation, half-wave plate, image
// rotator, quarter-wave plates, pupil offset.
func (t Train) CommonPath() *mat.Dense {
	return Chain(
		Rotator(rad(PupilOffsetDeg)),
		QWP(rad(t.QWP2)),
		QWP(rad(t.QWP1)),
		Waveplate(rad(t.IMRTheta), rad(t.IMRDelta)),
		Waveplate(rad(t.HWPTheta), rad(t.HWPDelta)),
		Rotator(-rad(t.Altitude)),
		Generic(0, t.MirrorEpsilon, math.Pi),
		Rotator(rad(t.PA)),
	)
}

// Beam returns the full matrix for one camera: the common path seen through
// that camera's beamsplitter output.
func (t Train) Beam(camera int) *mat.Dense {
	return Chain(Wollaston(camera == 1, 1), t.CommonPath())
}

// IPModel derives the scalar correction coefficients from the common path:
// the Q and U signal an unpolarized source picks up crossing the train,
// relative to its intensity throughput. The beamsplitter is excluded since
// the double difference cancels beam-dependent terms.
func (t Train) IPModel() InstrumentalModel {
	m := t.CommonPath()
	i0 := m.At(0, 0)
	return InstrumentalModel{
		PQ: m.At(1, 0) / i0,
		PU: m.At(2, 0) / i0,
	}
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
