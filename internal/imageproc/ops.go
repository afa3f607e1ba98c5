package imageproc

import (
	"math"
)

// FrameCenter returns the geometric center (cy, cx) of an h x w frame.
func FrameCenter(h, w int) (float64, float64) {
	return float64(h-1) / 2, float64(w-1) / 2
}

// Window is a rectangular pixel region, half-open on both axes.
type Window struct {
	Y0, Y1 int
	X0, X1 int
}

// CutoutWindow returns a window of the given size centered at (cy, cx),
// clipped to the frame bounds.
func CutoutWindow(h, w int, cy, cx float64, size int) Window {
	half := size / 2
	y0 := int(math.Round(cy)) - half
	x0 := int(math.Round(cx)) - half
	y1 := y0 + size
	x1 := x0 + size
	if y0 < 0 {
		y0 = 0
	}
	if x0 < 0 {
		x0 = 0
	}
	if y1 > h {
		y1 = h
	}
	if x1 > w {
		x1 = w
	}
	return Window{Y0: y0, Y1: y1, X0: x0, X1: x1}
}

// SatspotWindows returns the four windows around the satellite spots at the
// given radius (pixels) and position angle (degrees), one per quadrant.
func SatspotWindows(h, w int, cy, cx, radius, angleDeg float64, size int) [4]Window {
	var out [4]Window
	for k := 0; k < 4; k++ {
		theta := (angleDeg + 90*float64(k)) * math.Pi / 180
		sy := cy + radius*math.Sin(theta)
		sx := cx + radius*math.Cos(theta)
		out[k] = CutoutWindow(h, w, sy, sx, size)
	}
	return out
}

// CentroidCOM returns the center of mass (cy, cx) of the window, ignoring
// NaN pixels and clamping negatives to zero so background noise does not
// drag the centroid.
func CentroidCOM(frame []float64, w int, win Window) (float64, float64) {
	var sum, sy, sx float64
	for y := win.Y0; y < win.Y1; y++ {
		for x := win.X0; x < win.X1; x++ {
			v := frame[y*w+x]
			if math.IsNaN(v) || v < 0 {
				continue
			}
			sum += v
			sy += v * float64(y)
			sx += v * float64(x)
		}
	}
	if sum == 0 {
		return float64(win.Y0+win.Y1-1) / 2, float64(win.X0+win.X1-1) / 2
	}
	return sy / sum, sx / sum
}

// CentroidPeak returns the coordinates of the brightest pixel in the window.
func CentroidPeak(frame []float64, w int, win Window) (float64, float64) {
	best := math.Inf(-1)
	by, bx := win.Y0, win.X0
	for y := win.Y0; y < win.Y1; y++ {
		for x := win.X0; x < win.X1; x++ {
			v := frame[y*w+x]
			if !math.IsNaN(v) && v > best {
				best = v
				by, bx = y, x
			}
		}
	}
	return float64(by), float64(bx)
}

// Shift translates a frame by (dy, dx) with bilinear interpolation.
// Pixels sampled outside the frame, or interpolated from any NaN neighbor,
// come out NaN so calibration masks survive registration.
func Shift(frame []float64, h, w int, dy, dx float64) []float64 {
	out := make([]float64, len(frame))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Source coordinate that lands on (y, x) after the shift.
			sy := float64(y) - dy
			sx := float64(x) - dx
			y0 := int(math.Floor(sy))
			x0 := int(math.Floor(sx))
			fy := sy - float64(y0)
			fx := sx - float64(x0)

			if y0 < 0 || x0 < 0 || y0+1 >= h || x0+1 >= w {
				out[y*w+x] = math.NaN()
				continue
			}
			v00 := frame[y0*w+x0]
			v01 := frame[y0*w+x0+1]
			v10 := frame[(y0+1)*w+x0]
			v11 := frame[(y0+1)*w+x0+1]
			out[y*w+x] = v00*(1-fy)*(1-fx) + v01*(1-fy)*fx + v10*fy*(1-fx) + v11*fy*fx
		}
	}
	return out
}

// Smooth3 applies a 3x3 box smoothing pass, skipping NaN contributions.
// Used to stabilize centroiding on noisy frames.
func Smooth3(frame []float64, h, w int) []float64 {
	out := make([]float64, len(frame))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			var n int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					yy, xx := y+dy, x+dx
					if yy < 0 || xx < 0 || yy >= h || xx >= w {
						continue
					}
					v := frame[yy*w+xx]
					if math.IsNaN(v) {
						continue
					}
					sum += v
					n++
				}
			}
			if n == 0 {
				out[y*w+x] = math.NaN()
			} else {
				out[y*w+x] = sum / float64(n)
			}
		}
	}
	return out
}
