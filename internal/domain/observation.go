package domain

// RawObservation is one raw cube file as ingested: a path, its parsed header,
// and a stable identity. Immutable once ingested; FrameRecords reference it,
// they never copy the underlying data.
type RawObservation struct {
	// Path is the on-disk location of the raw cube.
	Path string

	// Header is the parsed instrument metadata.
	Header Header

	// Size is the file size in bytes at ingest time.
	Size int64

	// Identity is a stable hex digest of (base name, header, size). It seeds
	// the per-stage fingerprint chain.
	Identity string
}

// FileFailure records why a file dropped out of the run.
type FileFailure struct {
	// Stage is the stage at which the file failed.
	Stage StageName

	// Reason is the error message recorded against the file.
	Reason string
}

// FrameRecord tracks one observation's state as it passes through the stages.
// The engine owns FrameRecords; stage transforms never see them mutably.
//
// Invariant: Cursor only advances, and a record at cursor N has a valid
// artifact path for every stage <= N.
type FrameRecord struct {
	// Obs references the immutable raw observation.
	Obs *RawObservation

	// Cursor is the highest completed stage.
	Cursor StageCursor

	// Artifacts maps each completed cursor position to its artifact path.
	// CursorRaw maps to the raw file itself.
	Artifacts map[StageCursor]string

	// Fingerprint is the cache fingerprint of the current artifact. It
	// starts at the observation identity and is rehashed through every
	// enabled stage, which makes downstream invalidation transitive.
	Fingerprint string

	// Metrics holds named per-frame metric vectors keyed by stage.
	Metrics map[StageName]MetricRecord

	// KeepMask is the frame-selection mask over the calibrated frame index.
	// Nil until frame selection runs.
	KeepMask []bool

	// Failure is set when the file drops out; a failed record is excluded
	// from all subsequent stages but kept for the report.
	Failure *FileFailure
}

// NewFrameRecord creates a record at CursorRaw for the given observation.
func NewFrameRecord(obs *RawObservation) *FrameRecord {
	return &FrameRecord{
		Obs:         obs,
		Cursor:      CursorRaw,
		Artifacts:   map[StageCursor]string{CursorRaw: obs.Path},
		Fingerprint: obs.Identity,
		Metrics:     make(map[StageName]MetricRecord),
	}
}

// Advance moves the cursor to the given position and records the artifact.
// Calls that would move the cursor backwards are ignored; the cursor is
// monotonic by construction.
func (r *FrameRecord) Advance(cursor StageCursor, artifact, fingerprint string) {
	if cursor <= r.Cursor {
		return
	}
	r.Cursor = cursor
	r.Artifacts[cursor] = artifact
	r.Fingerprint = fingerprint
}

// Current returns the artifact path at the record's cursor.
func (r *FrameRecord) Current() string {
	return r.Artifacts[r.Cursor]
}

// Alive reports whether the record is still part of the run.
func (r *FrameRecord) Alive() bool {
	return r.Failure == nil
}

// Fail marks the record failed at the given stage.
func (r *FrameRecord) Fail(stage StageName, err error) {
	if r.Failure != nil {
		return
	}
	r.Failure = &FileFailure{Stage: stage, Reason: err.Error()}
}
