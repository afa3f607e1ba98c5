// Package domain contains the core domain entities and value objects for dpp.
//
// This package represents the innermost layer of the pipeline. It has no
// dependencies on infrastructure concerns (file I/O, logging, databases) and
// contains only the data model and its invariants.
//
// # Entities
//
//   - [Cube]: An image cube (frames x height x width) with instrument metadata
//   - [RawObservation]: One ingested raw cube file, immutable after ingest
//   - [FrameRecord]: Per-observation processing state advanced stage by stage
//   - [StagePlan]: The ordered, fixed-dependency list of enabled stages
//   - [CollapsedFrame]: One reduced image per (file, camera) with its
//     polarimetric state tag
//   - [StokesProduct]: Terminal Stokes I/Q/U product for one combination epoch
//   - [RunReport]: Per-stage, per-file outcomes for a whole pipeline run
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction where practical (RawObservation,
//     CollapsedFrame, StokesProduct)
//   - Free of infrastructure dependencies
//   - Focused on invariants: the stage cursor only advances, stage order is
//     fixed, an epoch is either complete or rejected
package domain
