package domain

// CollapsedFrame is one reduced 2-D image per (file, camera), tagged with its
// polarimetric state. Produced once by the collapse stage, immutable after
// creation, and shared read-only across the combination epochs that reuse it.
type CollapsedFrame struct {
	Width  int
	Height int

	// Image is the collapsed plane, Height*Width, NaN for masked pixels.
	Image []float64

	// Camera is the detector that recorded the underlying exposures.
	Camera int

	// HWPAngle is the half-wave plate angle in degrees.
	HWPAngle float64

	// ParallacticAngle is the parallactic angle in degrees.
	ParallacticAngle float64

	// GainRatio is the camera-2/camera-1 gain ratio calibration.
	GainRatio float64

	// MJD orders frames in time for modulation-cycle selection.
	MJD float64

	// Source is the raw file the frame descends from, for provenance.
	Source string
}

// HWPState maps the HWP angle to its modulation state 1..4, or 0 when the
// angle is not one of the four standard positions (within a small tolerance).
func (f *CollapsedFrame) HWPState() int {
	return HWPStateOf(f.HWPAngle)
}

// HWPStateOf maps an HWP angle in degrees to modulation state 1..4.
func HWPStateOf(angle float64) int {
	const tol = 0.5
	for i, a := range [4]float64{0, 22.5, 45, 67.5} {
		d := angle - a
		if d < 0 {
			d = -d
		}
		if d < tol {
			return i + 1
		}
	}
	return 0
}

// StokesProduct is the terminal artifact for one combination epoch: Stokes
// I/Q/U planes plus the derived linear polarization fraction and angle maps.
type StokesProduct struct {
	Width  int
	Height int

	// I, Q, U are the Stokes planes in intensity units.
	I []float64
	Q []float64
	U []float64

	// PolFrac is sqrt(Q^2+U^2)/I; pixels with I under the noise floor are
	// NaN, never Inf.
	PolFrac []float64

	// PolAngle is 0.5*atan2(U, Q) in degrees.
	PolAngle []float64

	// ReducedPrecision is set for single-difference (single camera)
	// combination, never for missing HWP angles: those reject the epoch.
	ReducedPrecision bool

	// Contributing lists the raw files combined into this product.
	Contributing []string
}
