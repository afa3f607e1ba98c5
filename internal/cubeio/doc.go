// Package cubeio reads and writes the compact cube container used for raw
// ingests and every intermediate artifact.
//
// A container is a gzip stream of:
//
//	magic "FPDC" | version byte | uint32 header length | JSON header |
//	float64 little-endian pixel data | uint32 CRC32 (IEEE)
//
// The CRC covers everything before it, uncompressed. Writers are atomic:
// content goes to a temporary file in the target directory and is renamed
// into place, so a crash never leaves a complete-looking partial artifact.
// Readers verify magic, shape, and CRC; structural damage is reported as a
// cache inconsistency so the resumability layer can treat it as a miss.
package cubeio
