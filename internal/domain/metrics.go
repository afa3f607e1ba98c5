package domain

// MetricRecord holds named per-frame metric vectors for one file at one
// stage. Scalar metrics are stored as length-1 vectors. The record is what
// the artifact sidecar persists, so cached stages restore their metrics
// without recomputation.
type MetricRecord map[string][]float64

// KeepMask reconstructs the frame-selection mask from the conventional
// "keep" vector, or nil when the record carries none.
func (m MetricRecord) KeepMask() []bool {
	raw, ok := m["keep"]
	if !ok {
		return nil
	}
	mask := make([]bool, len(raw))
	for i, v := range raw {
		mask[i] = v != 0
	}
	return mask
}

