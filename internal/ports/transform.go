package ports

import (
	"context"

	"github.com/fastpdi/dpp/internal/domain"
)

// StageTransform is one per-file processing stage. Implementations must be
// deterministic given identical inputs and configuration, and must not
// mutate the input cube in place: the output is always a new cube (which may
// share no storage with the input).
type StageTransform interface {
	// Name returns the stage identifier this transform implements.
	Name() domain.StageName

	// Apply transforms one file's current cube. The record is read-only
	// context (earlier-stage metrics, the selection mask); the transform
	// returns the output cube and its metrics record.
	Apply(ctx context.Context, cube *domain.Cube, rec *domain.FrameRecord) (*domain.Cube, domain.MetricRecord, error)
}

// MetricExtractor computes named per-frame metrics. Extractor failures are
// fatal for the file at the measuring stage, not for the run.
type MetricExtractor interface {
	// Measure returns metric name to value for one frame of width w pixels.
	Measure(frame []float64, w int) (map[string]float64, error)
}
