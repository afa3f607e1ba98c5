package imageproc

import (
	"math"
)

// Frame-quality metric names recognized by the frame selection stage.
const (
	MetricPeak    = "peak"
	MetricL2Norm  = "l2norm"
	MetricNormVar = "normvar"
)

// KnownMetric reports whether name is one of the supported metrics.
func KnownMetric(name string) bool {
	switch name {
	case MetricPeak, MetricL2Norm, MetricNormVar:
		return true
	}
	return false
}

// Measure computes the named metric over the window of one frame, skipping
// NaN pixels. Returns NaN when the window holds no finite pixels.
func Measure(name string, frame []float64, w int, win Window) float64 {
	var sum, sumsq, max float64
	max = math.Inf(-1)
	n := 0
	for y := win.Y0; y < win.Y1; y++ {
		for x := win.X0; x < win.X1; x++ {
			v := frame[y*w+x]
			if math.IsNaN(v) {
				continue
			}
			sum += v
			sumsq += v * v
			if v > max {
				max = v
			}
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	mean := sum / float64(n)
	switch name {
	case MetricPeak:
		return max
	case MetricL2Norm:
		return sumsq / float64(n)
	case MetricNormVar:
		if mean == 0 {
			return math.NaN()
		}
		variance := sumsq/float64(n) - mean*mean
		return variance / mean
	}
	return math.NaN()
}

// MeasureSatspots averages the metric over the four satellite-spot windows.
func MeasureSatspots(name string, frame []float64, w int, wins [4]Window) float64 {
	var sum float64
	n := 0
	for _, win := range wins {
		v := Measure(name, frame, w, win)
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
