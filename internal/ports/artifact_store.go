package ports

import (
	"github.com/fastpdi/dpp/internal/domain"
)

// ArtifactStore is the resumability layer: a content-addressed store of
// stage artifacts keyed by (file identity, stage, config fingerprint).
// Writes are atomic (temp-write then rename), so the freshness check never
// sees a complete-looking partial artifact.
type ArtifactStore interface {
	// Expected returns the deterministic output path for the given record,
	// stage, and output fingerprint.
	Expected(rec *domain.FrameRecord, stage domain.StageName, fingerprint string) string

	// Cached reports whether path already holds a valid artifact carrying
	// the given fingerprint, returning its sidecar metrics when present.
	// A corrupt or mismatched artifact counts as a miss.
	Cached(path, fingerprint string) (domain.MetricRecord, bool)

	// Write persists the cube and its sidecar metrics record atomically.
	Write(path string, cube *domain.Cube, metrics domain.MetricRecord) error

	// Read loads a cube artifact.
	Read(path string) (*domain.Cube, error)

	// Stats returns the cache hit and miss counts accumulated so far.
	Stats() (hits, misses int)
}
