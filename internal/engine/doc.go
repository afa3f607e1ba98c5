// Package engine drives the per-file stage sequence across the full file
// set: stage-barrier synchronous execution, a bounded worker pool within
// each stage, cache-backed resumability, and per-file failure isolation.
package engine
