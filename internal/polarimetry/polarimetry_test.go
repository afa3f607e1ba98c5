package polarimetry

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/fastpdi/dpp/internal/domain"
)

func TestCycleIndices_CompleteCycles(t *testing.T) {
	states := []int{1, 1, 2, 2, 3, 3, 4, 4, 1, 1, 2, 2, 3, 3, 4, 4}
	inds := CycleIndices(states, 2)
	if len(inds) != len(states) {
		t.Fatalf("expected all %d indices kept, got %d", len(states), len(inds))
	}
	for i, idx := range inds {
		if idx != i {
			t.Fatalf("index %d: got %d", i, idx)
		}
	}

	states = []int{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}
	if inds := CycleIndices(states, 4); len(inds) != 16 {
		t.Fatalf("expected full 4x4 cycle kept, got %d indices", len(inds))
	}
}

func TestCycleIndices_DropsBrokenCycleFromFront(t *testing.T) {
	states := []int{1, 1, 2, 2, 3, 3, 1, 1, 2, 2, 3, 3, 4, 4}
	inds := CycleIndices(states, 2)
	want := []int{6, 7, 8, 9, 10, 11, 12, 13}
	if len(inds) != len(want) {
		t.Fatalf("got %v want %v", inds, want)
	}
	for i := range want {
		if inds[i] != want[i] {
			t.Fatalf("got %v want %v", inds, want)
		}
	}
}

func TestCycleIndices_DropsTrailingPartialCycle(t *testing.T) {
	states := []int{
		1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4,
		1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 4, 4, 4, 4,
	}
	inds := CycleIndices(states, 4)
	if len(inds) != 16 {
		t.Fatalf("expected only the first complete cycle, got %d indices", len(inds))
	}
	for i := 0; i < 16; i++ {
		if inds[i] != i {
			t.Fatalf("index %d: got %d", i, inds[i])
		}
	}
}

// syntheticEpoch builds a dual-camera epoch with fractional polarization
// (q, u) on a flat intensity field, unit gain ratio.
func syntheticEpoch(t *testing.T, w, h int, i0, q, u float64) []*domain.CollapsedFrame {
	t.Helper()
	diffs := map[float64]float64{0: q, 45: -q, 22.5: u, 67.5: -u}
	var frames []*domain.CollapsedFrame
	mjd := 60000.0
	for _, angle := range []float64{0, 22.5, 45, 67.5} {
		d := diffs[angle]
		for cam := 1; cam <= 2; cam++ {
			img := make([]float64, w*h)
			v := i0 / 2 * (1 + d)
			if cam == 2 {
				v = i0 / 2 * (1 - d)
			}
			for p := range img {
				img[p] = v
			}
			frames = append(frames, &domain.CollapsedFrame{
				Width: w, Height: h, Image: img,
				Camera: cam, HWPAngle: angle, GainRatio: 1,
				MJD:    mjd,
				Source: fmt.Sprintf("file_%05.1f_cam%d", angle, cam),
			})
		}
		mjd += 0.001
	}
	return frames
}

func TestCombine_RecoversInjectedPolarization(t *testing.T) {
	const (
		i0 = 100.0
		qF = 0.02
		uF = -0.01
	)
	frames := syntheticEpoch(t, 8, 8, i0, qF, uF)

	for _, method := range []string{MethodDifference, MethodRatio} {
		epochs, _, err := BuildEpochs(frames, true)
		if err != nil {
			t.Fatalf("BuildEpochs: %v", err)
		}
		if len(epochs) != 1 {
			t.Fatalf("expected one epoch, got %d", len(epochs))
		}

		comb, err := NewCombiner(method, 0, nil)
		if err != nil {
			t.Fatalf("NewCombiner(%s): %v", method, err)
		}
		product, err := comb.Combine(epochs[0])
		if err != nil {
			t.Fatalf("Combine(%s): %v", method, err)
		}
		if product.ReducedPrecision {
			t.Fatalf("%s: dual-camera product must not be reduced precision", method)
		}

		wantP := math.Sqrt(qF*qF + uF*uF)
		wantAngle := 0.5 * math.Atan2(uF, qF) * 180 / math.Pi
		for p := 0; p < 64; p++ {
			if rel := math.Abs(product.PolFrac[p]-wantP) / wantP; rel > 1e-6 {
				t.Fatalf("%s: pol fraction pixel %d: got %v want %v (rel %v)",
					method, p, product.PolFrac[p], wantP, rel)
			}
			if math.Abs(product.PolAngle[p]-wantAngle) > 1e-6 {
				t.Fatalf("%s: pol angle pixel %d: got %v want %v", method, p, product.PolAngle[p], wantAngle)
			}
		}
		if len(product.Contributing) != 8 {
			t.Fatalf("%s: expected 8 contributing files, got %d", method, len(product.Contributing))
		}
	}
}

func TestCombine_InstrumentalCorrection(t *testing.T) {
	const (
		i0 = 100.0
		pQ = 0.004
	)
	// Unpolarized source seen through a train that leaks pQ of I into Q.
	frames := syntheticEpoch(t, 4, 4, i0, pQ, 0)

	epochs, _, err := BuildEpochs(frames, true)
	if err != nil {
		t.Fatalf("BuildEpochs: %v", err)
	}
	comb, err := NewCombiner(MethodDifference, 0, InstrumentalModel{PQ: pQ})
	if err != nil {
		t.Fatalf("NewCombiner: %v", err)
	}
	product, err := comb.Combine(epochs[0])
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	for p, v := range product.Q {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("pixel %d: instrumental Q not removed: %v", p, v)
		}
	}
}

func TestBuildEpochs_TwoOfFourAnglesIsIncomplete(t *testing.T) {
	var frames []*domain.CollapsedFrame
	for i, angle := range []float64{0, 45} {
		img := make([]float64, 16)
		frames = append(frames, &domain.CollapsedFrame{
			Width: 4, Height: 4, Image: img,
			Camera: 1, HWPAngle: angle, MJD: 60000 + float64(i),
			Source: fmt.Sprintf("f%d", i),
		})
	}
	_, _, err := BuildEpochs(frames, false)
	if !errors.Is(err, domain.ErrIncompleteEpoch) {
		t.Fatalf("expected ErrIncompleteEpoch, got %v", err)
	}
}

func TestBuildEpochs_UnknownAngleIsIncomplete(t *testing.T) {
	img := make([]float64, 4)
	frames := []*domain.CollapsedFrame{
		{Width: 2, Height: 2, Image: img, Camera: 1, HWPAngle: 30, MJD: 60000, Source: "f0"},
	}
	_, _, err := BuildEpochs(frames, false)
	if !errors.Is(err, domain.ErrIncompleteEpoch) {
		t.Fatalf("expected ErrIncompleteEpoch for off-grid HWP angle, got %v", err)
	}
}

func TestBuildEpochs_ReportsTrailingPartialCycle(t *testing.T) {
	var frames []*domain.CollapsedFrame
	for i, angle := range []float64{0, 22.5, 45, 67.5, 0, 22.5} {
		frames = append(frames, &domain.CollapsedFrame{
			Width: 2, Height: 2, Image: make([]float64, 4),
			Camera: 1, HWPAngle: angle, MJD: 60000 + float64(i),
			Source: fmt.Sprintf("f%d", i),
		})
	}

	epochs, leftover, err := BuildEpochs(frames, false)
	if err != nil {
		t.Fatalf("BuildEpochs: %v", err)
	}
	if len(epochs) != 1 {
		t.Fatalf("expected one complete epoch, got %d", len(epochs))
	}
	if len(leftover) != 2 {
		t.Fatalf("expected the two trailing frames as leftover, got %d", len(leftover))
	}
	if leftover[0].Source != "f4" || leftover[1].Source != "f5" {
		t.Fatalf("leftover sources: %s, %s", leftover[0].Source, leftover[1].Source)
	}
}

func TestCombine_SingleCameraIsReducedPrecision(t *testing.T) {
	var frames []*domain.CollapsedFrame
	for _, f := range syntheticEpoch(t, 4, 4, 50, 0.01, 0.02) {
		if f.Camera == 1 {
			frames = append(frames, f)
		}
	}
	epochs, _, err := BuildEpochs(frames, false)
	if err != nil {
		t.Fatalf("BuildEpochs: %v", err)
	}
	comb, err := NewCombiner(MethodDifference, 0, nil)
	if err != nil {
		t.Fatalf("NewCombiner: %v", err)
	}
	product, err := comb.Combine(epochs[0])
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if !product.ReducedPrecision {
		t.Fatalf("single-camera product must carry the reduced-precision flag")
	}
}

func TestCombine_NoiseFloorMasksNotInf(t *testing.T) {
	frames := syntheticEpoch(t, 2, 2, 100, 0.01, 0)
	// Zero out one pixel across every frame so its intensity sits below the
	// noise floor.
	for _, f := range frames {
		f.Image[3] = 0
	}
	epochs, _, err := BuildEpochs(frames, true)
	if err != nil {
		t.Fatalf("BuildEpochs: %v", err)
	}
	comb, err := NewCombiner(MethodDifference, 1e-3, nil)
	if err != nil {
		t.Fatalf("NewCombiner: %v", err)
	}
	product, err := comb.Combine(epochs[0])
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if !math.IsNaN(product.PolFrac[3]) {
		t.Fatalf("pixel below noise floor must be NaN, got %v", product.PolFrac[3])
	}
	for p := 0; p < 4; p++ {
		if math.IsInf(product.PolFrac[p], 0) {
			t.Fatalf("pol fraction must never be Inf, pixel %d is", p)
		}
	}
}

func TestNewCombiner_RejectsUnknownMethod(t *testing.T) {
	if _, err := NewCombiner("triple", 0, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func matNear(t *testing.T, got, want *mat.Dense, tol float64) {
	t.Helper()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(got.At(i, j)-want.At(i, j)) > tol {
				t.Fatalf("matrix mismatch at (%d,%d): got %v want %v", i, j, got.At(i, j), want.At(i, j))
			}
		}
	}
}

func TestMueller_WaveplateSpecializations(t *testing.T) {
	for _, theta := range []float64{0, math.Pi / 8, math.Pi / 4} {
		matNear(t, Waveplate(theta, math.Pi), HWP(theta), 1e-12)
		matNear(t, Waveplate(theta, math.Pi/2), QWP(theta), 1e-12)
	}
}

func TestMueller_HWPAtZero(t *testing.T) {
	want := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, -1, 0,
		0, 0, 0, -1,
	})
	matNear(t, HWP(0), want, 1e-12)
	matNear(t, Mirror(), want, 1e-12)
}

func TestMueller_WollastonSplitsUnpolarizedEvenly(t *testing.T) {
	stokes := mat.NewVecDense(4, []float64{1, 0, 0, 0})
	var ord, ext mat.VecDense
	ord.MulVec(Wollaston(true, 1), stokes)
	ext.MulVec(Wollaston(false, 1), stokes)
	if math.Abs(ord.AtVec(0)-0.5) > 1e-12 || math.Abs(ext.AtVec(0)-0.5) > 1e-12 {
		t.Fatalf("unpolarized light must split 50/50, got %v and %v", ord.AtVec(0), ext.AtVec(0))
	}
}

func TestMueller_ChainAppliesRightToLeft(t *testing.T) {
	// A polarizer at 0 then an HWP at 45 flips Q.
	m := Chain(HWP(math.Pi/4), LinearPolarizer(0))
	stokes := mat.NewVecDense(4, []float64{1, 0, 0, 0})
	var out mat.VecDense
	out.MulVec(m, stokes)
	if math.Abs(out.AtVec(1)-(-0.5)) > 1e-12 {
		t.Fatalf("expected Q = -0.5 after polarizer then HWP(45), got %v", out.AtVec(1))
	}
}

func TestMueller_GenericSpecializations(t *testing.T) {
	for _, theta := range []float64{0, math.Pi / 8, math.Pi / 3} {
		matNear(t, Generic(theta, 0, math.Pi), HWP(theta), 1e-12)
		matNear(t, Generic(theta, 0, math.Pi/2), QWP(theta), 1e-12)
		matNear(t, Generic(theta, 0, 0.7), Waveplate(theta, 0.7), 1e-12)
	}
}

func TestTrain_IdealTrainHasNoIP(t *testing.T) {
	tr := Train{PA: 40, Altitude: 55, HWPTheta: 10, HWPDelta: 180, IMRTheta: 25, IMRDelta: 180}
	ip := tr.IPModel()
	if math.Abs(ip.PQ) > 1e-12 || math.Abs(ip.PU) > 1e-12 {
		t.Fatalf("pure retarders and rotators cannot polarize: PQ=%v PU=%v", ip.PQ, ip.PU)
	}
}

func TestTrain_MirrorDiattenuationSetsIP(t *testing.T) {
	// With every rotation at zero and ideal waveplates, the mirror's Q leak
	// only gets rotated by the fixed pupil offset.
	const eps = 0.02
	tr := Train{MirrorEpsilon: eps, HWPDelta: 180, IMRDelta: 180}
	ip := tr.IPModel()

	wantQ := eps * math.Cos(2*rad(PupilOffsetDeg))
	wantU := -eps * math.Sin(2*rad(PupilOffsetDeg))
	if math.Abs(ip.PQ-wantQ) > 1e-12 {
		t.Errorf("PQ = %v, want %v", ip.PQ, wantQ)
	}
	if math.Abs(ip.PU-wantU) > 1e-12 {
		t.Errorf("PU = %v, want %v", ip.PU, wantU)
	}
}

func TestTrain_BeamsConserveIntensity(t *testing.T) {
	tr := Train{PA: 30, Altitude: 60, MirrorEpsilon: 0.01, HWPTheta: 22.5, HWPDelta: 172, IMRTheta: 45, IMRDelta: 175}
	stokes := mat.NewVecDense(4, []float64{1, 0, 0, 0})

	var common, ord, ext mat.VecDense
	common.MulVec(tr.CommonPath(), stokes)
	ord.MulVec(tr.Beam(1), stokes)
	ext.MulVec(tr.Beam(2), stokes)
	if math.Abs(ord.AtVec(0)+ext.AtVec(0)-common.AtVec(0)) > 1e-12 {
		t.Fatalf("beam intensities %v + %v do not sum to the common path %v",
			ord.AtVec(0), ext.AtVec(0), common.AtVec(0))
	}
}

func TestInstrumentalModel_ScalesWithIntensity(t *testing.T) {
	m := InstrumentalModel{PQ: 0.01, PU: -0.02}
	dq, du := m.Correct([]float64{100, 200})
	if dq[0] != 1 || dq[1] != 2 {
		t.Fatalf("dq: got %v", dq)
	}
	if du[0] != -2 || du[1] != -4 {
		t.Fatalf("du: got %v", du)
	}
}
