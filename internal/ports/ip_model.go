package ports

import "github.com/fastpdi/dpp/internal/domain"

// IPModel supplies the instrumental-polarization correction: the modeled
// spurious Q/U contribution of the optical train as a function of total
// intensity. Implementations are external calibrations; the combiner only
// subtracts what they return.
type IPModel interface {
	// Correct returns the per-pixel (deltaQ, deltaU) instrumental
	// contribution for the given total-intensity plane.
	Correct(intensity []float64) (dq, du []float64)
}

// RunRecorder persists finished run reports for cross-run diagnostics.
type RunRecorder interface {
	// RecordRun stores the report; failures must not abort the run.
	RecordRun(report *domain.RunReport) error
}
