package domain

// StageName identifies one processing stage.
type StageName string

// The fixed stage vocabulary, in dependency order.
const (
	StageCalibrate   StageName = "calibrate"
	StageFrameSelect StageName = "frame_select"
	StageRegister    StageName = "register"
	StageCollapse    StageName = "collapse"
	StagePolarimetry StageName = "polarimetry"
)

// PerFileStages lists the stages the engine runs per file, in order.
// Polarimetry runs after the last per-file barrier and combines across files.
var PerFileStages = []StageName{
	StageCalibrate,
	StageFrameSelect,
	StageRegister,
	StageCollapse,
}

// StageCursor tracks how far a FrameRecord has advanced. It only moves
// forward: a record at cursor N has valid artifacts for all stages <= N.
type StageCursor int

const (
	CursorRaw StageCursor = iota
	CursorCalibrated
	CursorSelected
	CursorRegistered
	CursorCollapsed
)

// String returns a human-readable representation of the cursor.
func (c StageCursor) String() string {
	switch c {
	case CursorRaw:
		return "raw"
	case CursorCalibrated:
		return "calibrated"
	case CursorSelected:
		return "selected"
	case CursorRegistered:
		return "registered"
	case CursorCollapsed:
		return "collapsed"
	default:
		return "unknown"
	}
}

// CursorFor returns the cursor a record reaches after completing the stage.
func CursorFor(stage StageName) StageCursor {
	switch stage {
	case StageCalibrate:
		return CursorCalibrated
	case StageFrameSelect:
		return CursorSelected
	case StageRegister:
		return CursorRegistered
	case StageCollapse:
		return CursorCollapsed
	default:
		return CursorRaw
	}
}

// PlannedStage is one entry of a StagePlan. A disabled stage is a pass-through
// entry, never a gap: the record's cursor still advances past it.
type PlannedStage struct {
	// Name is the stage identifier.
	Name StageName

	// Enabled reports whether the stage has a configuration section.
	Enabled bool

	// ConfigFingerprint is the serialized-stage-config component of the
	// cache key. Empty for disabled stages.
	ConfigFingerprint string
}

// StagePlan is the ordered list of stages for one run, resolved once at
// plan-build time from configuration. Instrument-mode branching (single vs
// dual camera, coronagraphic vs direct) is baked into the plan, not
// re-evaluated per file.
type StagePlan struct {
	// Name is the filename-friendly run name used for outputs.
	Name string

	// WorkDir is the root directory for intermediate and final artifacts.
	WorkDir string

	// Stages holds the per-file stages in dependency order.
	Stages []PlannedStage

	// Polarimetry reports whether the cross-file combination stage runs.
	Polarimetry bool

	// PolarimetryFingerprint is the config fingerprint of the combination
	// stage, used for product caching.
	PolarimetryFingerprint string

	// DualCamera reports whether camera-2 branches are active.
	DualCamera bool

	// Coronagraphic selects satellite-spot windows for selection and
	// registration instead of the central PSF.
	Coronagraphic bool

	// Workers bounds per-stage concurrency.
	Workers int
}

// Stage returns the planned entry for the given stage name, or nil.
func (p *StagePlan) Stage(name StageName) *PlannedStage {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return &p.Stages[i]
		}
	}
	return nil
}
