// Package ports defines the interfaces (ports) that connect the stage
// execution engine to its collaborators.
//
// The engine depends only on these interfaces. Concrete implementations live
// in internal/stages (transforms), internal/cache (artifact store),
// internal/polarimetry (instrumental-polarization models), and
// internal/metricsdb (run persistence).
//
// # Port Interfaces
//
//   - [StageTransform]: One per-file processing stage
//   - [MetricExtractor]: Per-frame quality/position metrics
//   - [ArtifactStore]: Content-addressed artifact cache with atomic writes
//   - [IPModel]: Instrumental-polarization correction model
//   - [RunRecorder]: Run-report persistence for cross-run diagnostics
//
// This separation enables testing the engine with in-memory fakes and keeps
// the dependency direction pointing at the domain.
package ports
