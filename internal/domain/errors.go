package domain

import "errors"

// Domain errors represent error conditions in the dpp pipeline.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrInputFile is returned when a raw file is missing or malformed.
	// Fatal for that file only; the run continues.
	ErrInputFile = errors.New("dpp: bad input file")

	// ErrMetricComputation is returned when a frame metric extractor fails.
	// Fatal for that file at that stage.
	ErrMetricComputation = errors.New("dpp: metric computation failed")

	// ErrIncompleteEpoch is returned when the combiner is missing required
	// modulation states. Fatal for that epoch only; never combined with
	// missing terms treated as zero.
	ErrIncompleteEpoch = errors.New("dpp: incomplete modulation epoch")

	// ErrCacheInconsistency is returned when an on-disk artifact exists but
	// is unreadable or corrupt. Treated as a cache miss, not a fatal error.
	ErrCacheInconsistency = errors.New("dpp: inconsistent cached artifact")

	// ErrConfiguration is returned for invalid stage parameters.
	// Fatal at plan-build time, before any file processing starts.
	ErrConfiguration = errors.New("dpp: invalid configuration")

	// ErrStageExhausted is returned when every surviving file fails a stage.
	// Fatal for the run; downstream stages are not attempted.
	ErrStageExhausted = errors.New("dpp: no files survived stage")

	// ErrAllFramesDiscarded is returned when frame selection would discard
	// every frame of a file. Fatal for that file, never an empty success.
	ErrAllFramesDiscarded = errors.New("dpp: frame selection discarded all frames")
)
