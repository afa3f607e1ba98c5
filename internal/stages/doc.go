// Package stages implements the four per-file stage transforms: calibration,
// frame selection, registration, and collapse.
//
// Each transform satisfies ports.StageTransform: a deterministic function
// from an input cube (plus read-only record context) to an output cube and a
// metrics record. Transforms never touch the file system; the engine owns
// all artifact I/O and caching.
//
// Instrument-mode branching (central PSF vs satellite spots, single vs dual
// camera) is resolved when the transforms are constructed at plan-build
// time, not re-evaluated per file.
package stages
