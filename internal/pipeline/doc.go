// Package pipeline is the driver glue around the engine and the combiner:
// TOML run configuration, plan building, raw-file ingest, run orchestration,
// and final product writing.
package pipeline
