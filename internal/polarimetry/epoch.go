package polarimetry

import (
	"fmt"
	"sort"

	"github.com/fastpdi/dpp/internal/domain"
)

// hwpStates is the number of modulation states in a full cycle.
const hwpStates = 4

// CycleIndices scans a time-ordered sequence of HWP modulation states and
// returns the indices forming complete, correctly ordered cycles: states
// 1..4 in order, each repeated perState times. Entries that break the
// pattern are skipped, so an aborted cycle at the start of a sequence is
// dropped and scanning resumes at the frame that broke it.
func CycleIndices(states []int, perState int) []int {
	template := make([]int, 0, hwpStates*perState)
	for s := 1; s <= hwpStates; s++ {
		for r := 0; r < perState; r++ {
			template = append(template, s)
		}
	}

	var inds []int
	start := 0
	for start+len(template) <= len(states) {
		match := true
		for i, want := range template {
			if states[start+i] != want {
				match = false
				break
			}
		}
		if !match {
			start++
			continue
		}
		for i := range template {
			inds = append(inds, start+i)
		}
		start += len(template)
	}
	return inds
}

// Epoch is one complete modulation cycle ready for combination: for every
// HWP state, the ordinary-beam frame and, in dual-camera mode, the
// extraordinary-beam frame recorded at the same plate position.
type Epoch struct {
	// Ordinary holds the camera-1 frame per state 1..4 (index 0..3).
	Ordinary [hwpStates]*domain.CollapsedFrame

	// Extraordinary holds the camera-2 frame per state; all nil in
	// single-camera mode.
	Extraordinary [hwpStates]*domain.CollapsedFrame

	// Dual reports whether both beams are present.
	Dual bool
}

// Sources lists the raw files contributing to the epoch, in state order.
func (e *Epoch) Sources() []string {
	var out []string
	for s := 0; s < hwpStates; s++ {
		if e.Ordinary[s] != nil {
			out = append(out, e.Ordinary[s].Source)
		}
		if e.Extraordinary[s] != nil {
			out = append(out, e.Extraordinary[s].Source)
		}
	}
	return out
}

// GainRatio returns the camera gain ratio recorded on the epoch's frames,
// defaulting to 1 when the calibration is absent.
func (e *Epoch) GainRatio() float64 {
	for _, f := range e.Ordinary {
		if f != nil && f.GainRatio > 0 {
			return f.GainRatio
		}
	}
	return 1
}

// BuildEpochs groups collapsed frames into combination epochs. Frames are
// ordered by time per camera, reduced to their modulation-state sequence,
// and sliced into complete cycles via CycleIndices. Frames whose HWP angle
// maps to no modulation state fail immediately; a sequence yielding no
// complete cycle is an incomplete epoch. Frames falling outside every
// complete cycle, a broken or trailing partial cycle, are returned as
// leftovers so callers can surface the exclusion.
func BuildEpochs(frames []*domain.CollapsedFrame, dual bool) ([]*Epoch, []*domain.CollapsedFrame, error) {
	cam1 := byTime(frames, 1)
	cam2 := byTime(frames, 2)

	if len(cam1) == 0 {
		return nil, nil, fmt.Errorf("%w: no camera-1 frames", domain.ErrIncompleteEpoch)
	}
	if dual && len(cam2) == 0 {
		return nil, nil, fmt.Errorf("%w: dual-camera mode with no camera-2 frames", domain.ErrIncompleteEpoch)
	}

	cycles1, left1, err := cycles(cam1)
	if err != nil {
		return nil, nil, err
	}
	if len(cycles1) == 0 {
		return nil, nil, fmt.Errorf("%w: %d camera-1 frames form no complete cycle", domain.ErrIncompleteEpoch, len(cam1))
	}

	var cycles2 [][hwpStates]*domain.CollapsedFrame
	var left2 []*domain.CollapsedFrame
	if dual {
		cycles2, left2, err = cycles(cam2)
		if err != nil {
			return nil, nil, err
		}
		if len(cycles2) != len(cycles1) {
			return nil, nil, fmt.Errorf("%w: camera cycle counts differ: %d vs %d",
				domain.ErrIncompleteEpoch, len(cycles1), len(cycles2))
		}
	}

	out := make([]*Epoch, len(cycles1))
	for i := range cycles1 {
		e := &Epoch{Ordinary: cycles1[i], Dual: dual}
		if dual {
			e.Extraordinary = cycles2[i]
		}
		out[i] = e
	}
	return out, append(left1, left2...), nil
}

// byTime returns the camera's frames sorted by MJD.
func byTime(frames []*domain.CollapsedFrame, camera int) []*domain.CollapsedFrame {
	var out []*domain.CollapsedFrame
	for _, f := range frames {
		if f.Camera == camera {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MJD < out[j].MJD })
	return out
}

// cycles slices one camera's time-ordered frames into complete modulation
// cycles, one frame per state, and returns the frames left outside every
// cycle.
func cycles(frames []*domain.CollapsedFrame) ([][hwpStates]*domain.CollapsedFrame, []*domain.CollapsedFrame, error) {
	states := make([]int, len(frames))
	for i, f := range frames {
		s := f.HWPState()
		if s == 0 {
			return nil, nil, fmt.Errorf("%w: %s: HWP angle %.2f matches no modulation state",
				domain.ErrIncompleteEpoch, f.Source, f.HWPAngle)
		}
		states[i] = s
	}

	inds := CycleIndices(states, 1)
	used := make([]bool, len(frames))
	var out [][hwpStates]*domain.CollapsedFrame
	for i := 0; i+hwpStates <= len(inds); i += hwpStates {
		var cycle [hwpStates]*domain.CollapsedFrame
		for s := 0; s < hwpStates; s++ {
			cycle[s] = frames[inds[i+s]]
			used[inds[i+s]] = true
		}
		out = append(out, cycle)
	}

	var leftover []*domain.CollapsedFrame
	for i, f := range frames {
		if !used[i] {
			leftover = append(leftover, f)
		}
	}
	return out, leftover, nil
}
