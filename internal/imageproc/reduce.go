package imageproc

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/fastpdi/dpp/internal/domain"
)

// Collapse reducer names.
const (
	ReduceMedian   = "median"
	ReduceMean     = "mean"
	ReduceVarMean  = "varmean"
	ReduceBiweight = "biweight"
)

// KnownReducer reports whether name is one of the supported reducers.
func KnownReducer(name string) bool {
	switch name {
	case ReduceMedian, ReduceMean, ReduceVarMean, ReduceBiweight:
		return true
	}
	return false
}

// Collapse reduces a cube along its frame axis with the named reducer.
// Reducers operate pixel-wise and exclude NaN per pixel; a pixel comes out
// NaN only when it is masked in every frame. Masking is inherited from
// upstream calibration: the reducer choice never changes which pixels are
// masked.
func Collapse(cube *domain.Cube, method string) []float64 {
	switch method {
	case ReduceMean:
		return collapsePixelwise(cube, nanMean)
	case ReduceMedian:
		return collapsePixelwise(cube, nanMedian)
	case ReduceBiweight:
		return collapsePixelwise(cube, biweightLocation)
	case ReduceVarMean:
		return collapseVarMean(cube)
	}
	return collapsePixelwise(cube, nanMedian)
}

func collapsePixelwise(cube *domain.Cube, reduce func([]float64) float64) []float64 {
	npix := cube.Height * cube.Width
	out := make([]float64, npix)
	stack := make([]float64, 0, cube.NFrames)
	for p := 0; p < npix; p++ {
		stack = stack[:0]
		for f := 0; f < cube.NFrames; f++ {
			v := cube.Data[f*npix+p]
			if !math.IsNaN(v) {
				stack = append(stack, v)
			}
		}
		if len(stack) == 0 {
			out[p] = math.NaN()
			continue
		}
		out[p] = reduce(stack)
	}
	return out
}

// collapseVarMean weights each frame by the inverse variance of its finite
// pixels, then takes the per-pixel weighted mean.
func collapseVarMean(cube *domain.Cube) []float64 {
	npix := cube.Height * cube.Width
	weights := make([]float64, cube.NFrames)
	for f := 0; f < cube.NFrames; f++ {
		frame := cube.Frame(f)
		finite := make([]float64, 0, len(frame))
		for _, v := range frame {
			if !math.IsNaN(v) {
				finite = append(finite, v)
			}
		}
		if len(finite) < 2 {
			weights[f] = 0
			continue
		}
		variance := stat.Variance(finite, nil)
		if variance <= 0 {
			weights[f] = 0
			continue
		}
		weights[f] = 1 / variance
	}

	out := make([]float64, npix)
	for p := 0; p < npix; p++ {
		var num, den float64
		for f := 0; f < cube.NFrames; f++ {
			v := cube.Data[f*npix+p]
			if math.IsNaN(v) || weights[f] == 0 {
				continue
			}
			num += v * weights[f]
			den += weights[f]
		}
		if den == 0 {
			// All weights degenerate: fall back to the plain mean.
			out[p] = nanMeanAt(cube, p, npix)
		} else {
			out[p] = num / den
		}
	}
	return out
}

func nanMeanAt(cube *domain.Cube, p, npix int) float64 {
	var sum float64
	n := 0
	for f := 0; f < cube.NFrames; f++ {
		v := cube.Data[f*npix+p]
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func nanMean(vals []float64) float64 {
	return stat.Mean(vals, nil)
}

func nanMedian(vals []float64) float64 {
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.LinInterp, vals, nil)
}

// biweightLocation is Tukey's biweight location estimator with c = 6,
// a robust location measure resistant to outlier pixels.
func biweightLocation(vals []float64) float64 {
	const c = 6.0
	m := nanMedian(append([]float64(nil), vals...))
	dev := make([]float64, len(vals))
	for i, v := range vals {
		dev[i] = math.Abs(v - m)
	}
	mad := nanMedian(dev)
	if mad == 0 {
		return m
	}
	var num, den float64
	for _, v := range vals {
		u := (v - m) / (c * mad)
		if u <= -1 || u >= 1 {
			continue
		}
		w := (1 - u*u) * (1 - u*u)
		num += (v - m) * w
		den += w
	}
	if den == 0 {
		return m
	}
	return m + num/den
}

// Quantile returns the q-quantile of vals with linear interpolation,
// matching the selection-threshold semantics of the metric tables.
// NaN entries are excluded first.
func Quantile(vals []float64, q float64) float64 {
	finite := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	sort.Float64s(finite)
	return stat.Quantile(q, stat.LinInterp, finite, nil)
}
