package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fastpdi/dpp/internal/cache"
	"github.com/fastpdi/dpp/internal/cubeio"
	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/pkg/log"
)

// Ingest scans the input directory for raw cube files and builds one frame
// record per usable file. Unreadable files are logged and skipped rather
// than failing ingest; the engine's failure policy handles anything that
// slips through. Single-camera plans drop camera-2 files here, once.
func Ingest(dir string, dualCamera bool, logger log.Logger) ([]*domain.FrameRecord, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read input dir: %v", domain.ErrInputFile, err)
	}

	var records []*domain.FrameRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), cubeio.Ext) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		header, _, _, _, err := cubeio.ReadHeader(path)
		if err != nil {
			logger.Warn("skipping unreadable raw file",
				log.String("path", path),
				log.Err(err),
			)
			continue
		}
		if header.Name == "" {
			header.Name = strings.TrimSuffix(entry.Name(), cubeio.Ext)
		}
		if !dualCamera && header.Camera == 2 {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logger.Warn("skipping unstatable raw file",
				log.String("path", path),
				log.Err(err),
			)
			continue
		}

		obs := &domain.RawObservation{
			Path:   path,
			Header: header,
			Size:   info.Size(),
		}
		obs.Identity = cache.Identity(header.Name, header, obs.Size)
		records = append(records, domain.NewFrameRecord(obs))
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no raw cube files in %s", domain.ErrInputFile, dir)
	}

	// Deterministic processing order regardless of directory iteration.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Obs.Header.Name < records[j].Obs.Header.Name
	})
	return records, nil
}
