package domain

import "time"

// OutcomeStatus classifies one (file, stage) result.
type OutcomeStatus string

const (
	// OutcomeSucceeded means the stage ran and produced a fresh artifact.
	OutcomeSucceeded OutcomeStatus = "succeeded"

	// OutcomeSkipped means a valid cached artifact satisfied the stage.
	OutcomeSkipped OutcomeStatus = "skipped"

	// OutcomeFailed means the stage failed for this file.
	OutcomeFailed OutcomeStatus = "failed"

	// OutcomeExcluded means the file had already failed an earlier stage.
	OutcomeExcluded OutcomeStatus = "excluded"
)

// FileOutcome is one (file, stage) entry of the run report.
type FileOutcome struct {
	File   string        `json:"file"`
	Stage  StageName     `json:"stage"`
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// StageSummary aggregates outcomes for one stage barrier.
type StageSummary struct {
	Stage     StageName `json:"stage"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
}

// EpochOutcome records one combination epoch's result.
type EpochOutcome struct {
	Epoch            int           `json:"epoch"`
	Status           OutcomeStatus `json:"status"`
	Reason           string        `json:"reason,omitempty"`
	Product          string        `json:"product,omitempty"`
	ReducedPrecision bool          `json:"reduced_precision,omitempty"`
	Contributing     []string      `json:"contributing,omitempty"`
}

// RunReport enumerates per-stage per-file outcomes and the locations of final
// Stokes products. A run always finishes with a report, even under partial
// failure, unless configuration or an all-files-failed condition aborts it.
type RunReport struct {
	RunID      string         `json:"run_id"`
	Name       string         `json:"name"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Summaries  []StageSummary `json:"summaries"`
	Outcomes   []FileOutcome  `json:"outcomes"`
	Epochs     []EpochOutcome `json:"epochs,omitempty"`
	Products   []string       `json:"products,omitempty"`

	// CacheHits and CacheMisses count resumability-layer decisions across
	// the run; a second identical run performs zero recomputation, so every
	// (file, stage) pair counts as a hit.
	CacheHits   int `json:"cache_hits"`
	CacheMisses int `json:"cache_misses"`
}

// Summary returns the stage summary for the given stage, or nil.
func (r *RunReport) Summary(stage StageName) *StageSummary {
	for i := range r.Summaries {
		if r.Summaries[i].Stage == stage {
			return &r.Summaries[i]
		}
	}
	return nil
}
