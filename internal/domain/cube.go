package domain

import "math"

// Header carries the instrument metadata attached to a cube.
// Field names mirror the raw acquisition headers after ingest normalization.
type Header struct {
	// Name is the observation base name, e.g. "20230101_ABAur_0003_cam1".
	Name string `json:"name"`

	// Object is the target name, if known.
	Object string `json:"object,omitempty"`

	// Camera is the detector identifier, 1 or 2.
	Camera int `json:"camera"`

	// HWPAngle is the half-wave plate angle in degrees.
	HWPAngle float64 `json:"hwp_angle"`

	// ParallacticAngle is the parallactic angle in degrees at mid-exposure.
	ParallacticAngle float64 `json:"parallactic_angle"`

	// ExpTime is the per-frame exposure time in seconds.
	ExpTime float64 `json:"exptime"`

	// MJD is the modified Julian date at the start of the sequence.
	MJD float64 `json:"mjd"`

	// GainRatio is the camera-2/camera-1 gain ratio calibration, when known.
	GainRatio float64 `json:"gain_ratio,omitempty"`

	// Stage names the stage that produced this artifact; empty for raw data.
	Stage string `json:"stage,omitempty"`

	// Fingerprint is the cache fingerprint of the producing (input, stage,
	// config) triple; empty for raw data.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Planes names the image planes of a multi-plane product such as a
	// Stokes cube. Empty for ordinary exposure cubes.
	Planes []string `json:"planes,omitempty"`
}

// Cube is an image cube of NFrames frames, each Height x Width pixels.
// Pixels are float64; NaN marks a masked pixel. Data is stored frame-major.
type Cube struct {
	NFrames int
	Height  int
	Width   int

	// Data holds NFrames*Height*Width pixels, frame-major.
	Data []float64

	Header Header
}

// NewCube allocates a zero-filled cube with the given shape.
func NewCube(nframes, height, width int) *Cube {
	return &Cube{
		NFrames: nframes,
		Height:  height,
		Width:   width,
		Data:    make([]float64, nframes*height*width),
	}
}

// Frame returns the i-th frame as a mutable slice view of length Height*Width.
func (c *Cube) Frame(i int) []float64 {
	n := c.Height * c.Width
	return c.Data[i*n : (i+1)*n]
}

// At returns the pixel at (frame, y, x).
func (c *Cube) At(frame, y, x int) float64 {
	return c.Data[(frame*c.Height+y)*c.Width+x]
}

// Set assigns the pixel at (frame, y, x).
func (c *Cube) Set(frame, y, x int, v float64) {
	c.Data[(frame*c.Height+y)*c.Width+x] = v
}

// Clone returns a deep copy of the cube, header included.
func (c *Cube) Clone() *Cube {
	out := &Cube{
		NFrames: c.NFrames,
		Height:  c.Height,
		Width:   c.Width,
		Data:    make([]float64, len(c.Data)),
		Header:  c.Header,
	}
	copy(out.Data, c.Data)
	if c.Header.Planes != nil {
		out.Header.Planes = append([]string(nil), c.Header.Planes...)
	}
	return out
}

// Select returns a new cube containing only the frames where keep is true.
// The header is carried over unchanged.
func (c *Cube) Select(keep []bool) *Cube {
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	out := NewCube(kept, c.Height, c.Width)
	out.Header = c.Header
	j := 0
	for i := 0; i < c.NFrames; i++ {
		if i < len(keep) && keep[i] {
			copy(out.Frame(j), c.Frame(i))
			j++
		}
	}
	return out
}

// MaskFraction reports the fraction of NaN pixels across the whole cube.
func (c *Cube) MaskFraction() float64 {
	if len(c.Data) == 0 {
		return 0
	}
	masked := 0
	for _, v := range c.Data {
		if math.IsNaN(v) {
			masked++
		}
	}
	return float64(masked) / float64(len(c.Data))
}
