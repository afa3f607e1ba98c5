// Package cache implements the artifact cache behind the engine's
// resumability guarantee: every (file, stage, config) triple maps to a
// deterministic output path, and a valid artifact already at that path
// satisfies the stage without recomputation.
package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fastpdi/dpp/internal/cubeio"
	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/pkg/log"
)

// stageSuffix names the artifact file suffix per stage.
var stageSuffix = map[domain.StageName]string{
	domain.StageCalibrate:   "calib",
	domain.StageFrameSelect: "selected",
	domain.StageRegister:    "aligned",
	domain.StageCollapse:    "collapsed",
}

// Store is a file-system artifact store rooted at a work directory.
// It counts cache hits and misses so runs can verify idempotent re-entry.
type Store struct {
	workDir string
	logger  log.Logger

	mu     sync.Mutex
	hits   int
	misses int
}

// NewStore creates a store rooted at workDir.
func NewStore(workDir string, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Store{workDir: workDir, logger: logger}
}

// Expected returns the deterministic artifact path for (record, stage,
// fingerprint): workdir/<stage>/<name>_<suffix>_<fingerprint>.fpdc.
func (s *Store) Expected(rec *domain.FrameRecord, stage domain.StageName, fingerprint string) string {
	suffix := stageSuffix[stage]
	base := rec.Obs.Header.Name + "_" + suffix + "_" + fingerprint + cubeio.Ext
	return filepath.Join(s.workDir, string(stage), base)
}

// Cached reports whether path holds a valid artifact for the fingerprint.
// The whole container is verified, not just the header: a matching
// fingerprint over a CRC-failing body is still a miss. Corruption is
// logged as a warning, not an error, because the stage will simply
// recompute.
func (s *Store) Cached(path, fingerprint string) (domain.MetricRecord, bool) {
	header, err := cubeio.Verify(path)
	if err != nil {
		if errors.Is(err, domain.ErrCacheInconsistency) {
			s.logger.Warn("corrupt cached artifact, recomputing",
				log.String("path", path),
				log.Err(err),
			)
		}
		s.miss()
		return nil, false
	}
	if header.Fingerprint != fingerprint {
		s.miss()
		return nil, false
	}

	metrics := s.readSidecar(path)
	s.hit()
	return metrics, true
}

// Write persists the cube and its sidecar metrics record atomically.
func (s *Store) Write(path string, cube *domain.Cube, metrics domain.MetricRecord) error {
	if err := cubeio.Write(path, cube); err != nil {
		return err
	}
	if len(metrics) == 0 {
		return nil
	}
	return writeJSONAtomic(sidecarPath(path), metrics)
}

// Read loads a cube artifact.
func (s *Store) Read(path string) (*domain.Cube, error) {
	return cubeio.Read(path)
}

// Stats returns the accumulated cache hit and miss counts.
func (s *Store) Stats() (hits, misses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses
}

func (s *Store) hit() {
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
}

func (s *Store) miss() {
	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
}

func (s *Store) readSidecar(path string) domain.MetricRecord {
	b, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return nil
	}
	var metrics domain.MetricRecord
	if err := json.Unmarshal(b, &metrics); err != nil {
		s.logger.Warn("unreadable metrics sidecar, dropping",
			log.String("path", sidecarPath(path)),
			log.Err(err),
		)
		return nil
	}
	return metrics
}

func sidecarPath(path string) string {
	return path + ".metrics.json"
}

// writeJSONAtomic writes JSON with temp-write then rename semantics.
func writeJSONAtomic(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
