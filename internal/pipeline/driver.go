package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fastpdi/dpp/internal/cache"
	"github.com/fastpdi/dpp/internal/diag"
	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/internal/engine"
	"github.com/fastpdi/dpp/internal/imageproc"
	"github.com/fastpdi/dpp/internal/polarimetry"
	"github.com/fastpdi/dpp/internal/ports"
	"github.com/fastpdi/dpp/pkg/log"
)

// Driver runs one full reduction: ingest, the per-file stage sequence, the
// polarimetric combination, and product/report writing.
type Driver struct {
	cfg      *Config
	logger   log.Logger
	recorder ports.RunRecorder // optional
}

// NewDriver builds a driver. recorder may be nil; recording failures never
// abort a run either way.
func NewDriver(cfg *Config, logger log.Logger, recorder ports.RunRecorder) *Driver {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Driver{cfg: cfg, logger: logger, recorder: recorder}
}

// Run executes the reduction. The returned report is valid even when err is
// non-nil, except for configuration errors raised before any stage ran.
func (d *Driver) Run(ctx context.Context) (*domain.RunReport, error) {
	plan, transforms, err := BuildPlan(d.cfg)
	if err != nil {
		return nil, err
	}

	report := &domain.RunReport{
		RunID:     uuid.NewString(),
		Name:      plan.Name,
		StartedAt: time.Now().UTC(),
	}

	records, err := Ingest(d.cfg.InputDir, plan.DualCamera, d.logger)
	if err != nil {
		return nil, err
	}
	d.logger.Info("run starting",
		log.String("run_id", report.RunID),
		log.String("name", plan.Name),
		log.Int("files", len(records)),
	)

	store := cache.NewStore(plan.WorkDir, d.logger)
	eng := engine.New(store, transforms, plan.Workers, d.logger)

	res, runErr := eng.Run(ctx, plan, records)
	report.Summaries = res.Summaries
	report.Outcomes = res.Outcomes

	if runErr == nil && plan.Polarimetry {
		d.combine(plan, records, store, report)
	}

	hits, misses := store.Stats()
	report.CacheHits = hits
	report.CacheMisses = misses
	report.FinishedAt = time.Now().UTC()

	d.finish(report, res)
	return report, runErr
}

// combine assembles epochs from the collapsed artifacts and writes one
// Stokes product per complete epoch. Epoch failures are recorded in the
// report, never fatal for the run.
func (d *Driver) combine(plan *domain.StagePlan, records []*domain.FrameRecord, store ports.ArtifactStore, report *domain.RunReport) {
	frames, err := d.collapsedFrames(records, store)
	if err != nil {
		report.Epochs = append(report.Epochs, domain.EpochOutcome{
			Epoch: 0, Status: domain.OutcomeFailed, Reason: err.Error(),
		})
		return
	}

	epochs, leftover, err := polarimetry.BuildEpochs(frames, plan.DualCamera)
	if err != nil {
		d.logger.Warn("epoch assembly failed", log.Err(err))
		report.Epochs = append(report.Epochs, domain.EpochOutcome{
			Epoch: 0, Status: domain.OutcomeFailed, Reason: err.Error(),
		})
		return
	}

	pcfg := d.cfg.Polarimetry
	comb, err := polarimetry.NewCombiner(pcfg.Method, pcfg.NoiseFloor, ipModel(pcfg))
	if err != nil {
		report.Epochs = append(report.Epochs, domain.EpochOutcome{
			Epoch: 0, Status: domain.OutcomeFailed, Reason: err.Error(),
		})
		return
	}

	outDir := d.cfg.OutputDir
	if outDir == "" {
		outDir = filepath.Join(plan.WorkDir, "products")
	}
	for i, epoch := range epochs {
		product, err := comb.Combine(epoch)
		if err != nil {
			d.logger.Warn("epoch combination failed",
				log.Int("epoch", i),
				log.Err(err),
			)
			report.Epochs = append(report.Epochs, domain.EpochOutcome{
				Epoch: i, Status: domain.OutcomeFailed, Reason: err.Error(),
			})
			continue
		}
		path := filepath.Join(outDir, fmt.Sprintf("%s_stokes_%03d.fpdc", plan.Name, i))
		if err := WriteStokes(path, plan.Name, product); err != nil {
			report.Epochs = append(report.Epochs, domain.EpochOutcome{
				Epoch: i, Status: domain.OutcomeFailed, Reason: err.Error(),
			})
			continue
		}
		report.Epochs = append(report.Epochs, domain.EpochOutcome{
			Epoch:            i,
			Status:           domain.OutcomeSucceeded,
			Product:          path,
			ReducedPrecision: product.ReducedPrecision,
			Contributing:     product.Contributing,
		})
		report.Products = append(report.Products, path)
	}

	if len(leftover) > 0 {
		sources := make([]string, len(leftover))
		for i, f := range leftover {
			sources[i] = f.Source
		}
		d.logger.Warn("frames outside any complete modulation cycle",
			log.Int("count", len(leftover)),
		)
		report.Epochs = append(report.Epochs, domain.EpochOutcome{
			Epoch:        len(epochs),
			Status:       domain.OutcomeExcluded,
			Reason:       "outside any complete modulation cycle",
			Contributing: sources,
		})
	}
}

// ipModel resolves the configured instrumental-polarization correction:
// coefficients derived from the Mueller train model, explicit scalar
// coefficients, or none.
func ipModel(pcfg *PolarimetryConfig) ports.IPModel {
	switch {
	case pcfg.IPMethod == polarimetry.IPMethodMueller:
		return pcfg.Mueller.Train().IPModel()
	case pcfg.IPQ != 0 || pcfg.IPU != 0:
		return polarimetry.InstrumentalModel{PQ: pcfg.IPQ, PU: pcfg.IPU}
	}
	return nil
}

// collapsedFrames loads every surviving record's terminal artifact as one
// tagged 2-D frame. Artifacts still holding multiple frames (collapse
// disabled) are reduced by their pixel-wise mean here.
func (d *Driver) collapsedFrames(records []*domain.FrameRecord, store ports.ArtifactStore) ([]*domain.CollapsedFrame, error) {
	var frames []*domain.CollapsedFrame
	for _, rec := range records {
		if !rec.Alive() {
			continue
		}
		cube, err := store.Read(rec.Current())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInputFile, rec.Current(), err)
		}

		var image []float64
		if cube.NFrames == 1 {
			image = cube.Frame(0)
		} else {
			image = imageproc.Collapse(cube, imageproc.ReduceMean)
		}

		gain := cube.Header.GainRatio
		if d.cfg.Polarimetry != nil && d.cfg.Polarimetry.GainRatio > 0 {
			gain = d.cfg.Polarimetry.GainRatio
		}
		frames = append(frames, &domain.CollapsedFrame{
			Width:            cube.Width,
			Height:           cube.Height,
			Image:            image,
			Camera:           cube.Header.Camera,
			HWPAngle:         cube.Header.HWPAngle,
			ParallacticAngle: cube.Header.ParallacticAngle,
			GainRatio:        gain,
			MJD:              cube.Header.MJD,
			Source:           rec.Obs.Header.Name,
		})
	}
	return frames, nil
}

// finish writes the report and diagnostics. None of this can fail the run.
func (d *Driver) finish(report *domain.RunReport, res *engine.Result) {
	reportDir := d.cfg.OutputDir
	if reportDir == "" {
		reportDir = d.cfg.WorkDir
	}
	reportPath := filepath.Join(reportDir, report.Name+"_report.json")
	if err := writeReport(reportPath, report); err != nil {
		d.logger.Warn("report write failed", log.String("path", reportPath), log.Err(err))
	}

	if d.recorder != nil {
		if err := d.recorder.RecordRun(report); err != nil {
			d.logger.Warn("run recording failed", log.Err(err))
		}
	}

	if d.cfg.DiagDir != "" {
		if err := diag.WriteCharts(d.cfg.DiagDir, report, res.Metrics); err != nil {
			d.logger.Warn("diagnostic charts failed", log.Err(err))
		}
	}

	succeeded, failed := 0, 0
	for _, s := range report.Summaries {
		succeeded += s.Succeeded
		failed += s.Failed
	}
	d.logger.Info("run finished",
		log.String("run_id", report.RunID),
		log.Int("succeeded", succeeded),
		log.Int("failed", failed),
		log.Int("products", len(report.Products)),
		log.Int("cache_hits", report.CacheHits),
		log.Int("cache_misses", report.CacheMisses),
		log.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
}
