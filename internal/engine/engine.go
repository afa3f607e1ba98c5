package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/fastpdi/dpp/internal/cache"
	"github.com/fastpdi/dpp/internal/domain"
	"github.com/fastpdi/dpp/internal/ports"
	"github.com/fastpdi/dpp/pkg/log"
)

// Result aggregates one engine run: per-(file, stage) outcomes, per-stage
// summaries, and the per-stage metrics tables keyed by file name.
type Result struct {
	Summaries []domain.StageSummary
	Outcomes  []domain.FileOutcome
	Metrics   map[domain.StageName]map[string]domain.MetricRecord
}

// Engine executes the planned per-file stages over a set of frame records.
// Stages run strictly in dependency order across the whole file set; within
// a stage, files are processed concurrently by a bounded worker pool. The
// stage boundary is a synchronization barrier: no file enters a stage before
// every file has cleared the previous one.
type Engine struct {
	store      ports.ArtifactStore
	transforms map[domain.StageName]ports.StageTransform
	logger     log.Logger
	workers    int
}

// New builds an engine. workers <= 0 selects min(NumCPU, 8).
func New(store ports.ArtifactStore, transforms []ports.StageTransform, workers int, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
	}
	byName := make(map[domain.StageName]ports.StageTransform, len(transforms))
	for _, tr := range transforms {
		byName[tr.Name()] = tr
	}
	return &Engine{
		store:      store,
		transforms: byName,
		logger:     logger,
		workers:    workers,
	}
}

// Run advances every record through the plan's stages. Cancellation is
// honored at stage barriers: the in-flight stage completes (or records its
// failures) before the run stops. A stage that leaves zero records alive is
// fatal for the run and skips all downstream stages.
func (e *Engine) Run(ctx context.Context, plan *domain.StagePlan, records []*domain.FrameRecord) (*Result, error) {
	res := &Result{
		Metrics: make(map[domain.StageName]map[string]domain.MetricRecord),
	}

	for _, planned := range plan.Stages {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if !planned.Enabled {
			e.passThrough(planned.Name, records, res)
			continue
		}

		tr, ok := e.transforms[planned.Name]
		if !ok {
			return res, fmt.Errorf("%w: no transform registered for stage %s",
				domain.ErrConfiguration, planned.Name)
		}

		e.logger.Info("stage starting",
			log.String("stage", string(planned.Name)),
			log.Int("workers", e.workers),
		)
		e.runStage(ctx, planned, tr, records, res)

		summary := res.Summaries[len(res.Summaries)-1]
		e.logger.Info("stage barrier cleared",
			log.String("stage", string(planned.Name)),
			log.Int("succeeded", summary.Succeeded),
			log.Int("failed", summary.Failed),
			log.Int("skipped", summary.Skipped),
		)

		if countAlive(records) == 0 {
			return res, fmt.Errorf("%w: %s", domain.ErrStageExhausted, planned.Name)
		}
	}
	return res, nil
}

// runStage processes every alive record through one stage with a worker
// pool, then aggregates outcomes at the barrier. The only shared mutable
// state is the result, guarded by a single mutex; each record is owned by
// exactly one worker during the stage.
func (e *Engine) runStage(ctx context.Context, planned domain.PlannedStage, tr ports.StageTransform, records []*domain.FrameRecord, res *Result) {
	var mu sync.Mutex
	stageMetrics := make(map[string]domain.MetricRecord)

	record := func(o domain.FileOutcome, metrics domain.MetricRecord) {
		mu.Lock()
		defer mu.Unlock()
		res.Outcomes = append(res.Outcomes, o)
		if metrics != nil {
			stageMetrics[o.File] = metrics
		}
	}

	jobs := make(chan *domain.FrameRecord)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				outcome, metrics := e.runFile(ctx, planned, tr, rec)
				record(outcome, metrics)
			}
		}()
	}

	for _, rec := range records {
		if !rec.Alive() {
			record(domain.FileOutcome{
				File:   rec.Obs.Header.Name,
				Stage:  planned.Name,
				Status: domain.OutcomeExcluded,
				Reason: rec.Failure.Reason,
			}, nil)
			continue
		}
		jobs <- rec
	}
	close(jobs)
	wg.Wait()

	res.Metrics[planned.Name] = stageMetrics

	summary := domain.StageSummary{Stage: planned.Name}
	for _, o := range res.Outcomes {
		if o.Stage != planned.Name {
			continue
		}
		switch o.Status {
		case domain.OutcomeSucceeded:
			summary.Succeeded++
		case domain.OutcomeFailed:
			summary.Failed++
		case domain.OutcomeSkipped:
			summary.Skipped++
		}
	}
	res.Summaries = append(res.Summaries, summary)
}

// runFile runs one record through one stage: cache check first, then load,
// transform, and atomic write. Any error fails the file, not the run.
func (e *Engine) runFile(ctx context.Context, planned domain.PlannedStage, tr ports.StageTransform, rec *domain.FrameRecord) (domain.FileOutcome, domain.MetricRecord) {
	name := rec.Obs.Header.Name
	cursor := domain.CursorFor(planned.Name)
	outFP := cache.Next(rec.Fingerprint, planned.Name, planned.ConfigFingerprint)
	expected := e.store.Expected(rec, planned.Name, outFP)

	if metrics, ok := e.store.Cached(expected, outFP); ok {
		e.restore(planned.Name, rec, metrics)
		rec.Advance(cursor, expected, outFP)
		return domain.FileOutcome{
			File:   name,
			Stage:  planned.Name,
			Status: domain.OutcomeSkipped,
		}, metrics
	}

	fail := func(err error) (domain.FileOutcome, domain.MetricRecord) {
		rec.Fail(planned.Name, err)
		e.logger.Warn("file failed stage",
			log.String("file", name),
			log.String("stage", string(planned.Name)),
			log.Err(err),
		)
		return domain.FileOutcome{
			File:   name,
			Stage:  planned.Name,
			Status: domain.OutcomeFailed,
			Reason: err.Error(),
		}, nil
	}

	cube, err := e.store.Read(rec.Current())
	if err != nil {
		return fail(fmt.Errorf("%w: %s: %v", domain.ErrInputFile, rec.Current(), err))
	}

	out, metrics, err := tr.Apply(ctx, cube, rec)
	if err != nil {
		return fail(err)
	}

	out.Header.Stage = string(planned.Name)
	out.Header.Fingerprint = outFP
	if err := e.store.Write(expected, out, metrics); err != nil {
		return fail(fmt.Errorf("write artifact: %w", err))
	}

	e.restore(planned.Name, rec, metrics)
	rec.Advance(cursor, expected, outFP)
	return domain.FileOutcome{
		File:   name,
		Stage:  planned.Name,
		Status: domain.OutcomeSucceeded,
	}, metrics
}

// restore attaches a stage's metrics to the record, recovering the selection
// mask whether the metrics were freshly computed or read back from a cached
// artifact's sidecar.
func (e *Engine) restore(stage domain.StageName, rec *domain.FrameRecord, metrics domain.MetricRecord) {
	if metrics == nil {
		return
	}
	rec.Metrics[stage] = metrics
	if stage == domain.StageFrameSelect {
		if mask := metrics.KeepMask(); mask != nil {
			rec.KeepMask = mask
		}
	}
}

// passThrough advances every alive record past a disabled stage without
// touching its artifact or fingerprint. Disabled stages are never gaps.
func (e *Engine) passThrough(stage domain.StageName, records []*domain.FrameRecord, res *Result) {
	summary := domain.StageSummary{Stage: stage}
	cursor := domain.CursorFor(stage)
	for _, rec := range records {
		if !rec.Alive() {
			res.Outcomes = append(res.Outcomes, domain.FileOutcome{
				File:   rec.Obs.Header.Name,
				Stage:  stage,
				Status: domain.OutcomeExcluded,
				Reason: rec.Failure.Reason,
			})
			continue
		}
		rec.Advance(cursor, rec.Current(), rec.Fingerprint)
		res.Outcomes = append(res.Outcomes, domain.FileOutcome{
			File:   rec.Obs.Header.Name,
			Stage:  stage,
			Status: domain.OutcomeSkipped,
			Reason: "stage disabled",
		})
		summary.Skipped++
	}
	res.Summaries = append(res.Summaries, summary)
	res.Metrics[stage] = map[string]domain.MetricRecord{}
}

func countAlive(records []*domain.FrameRecord) int {
	n := 0
	for _, rec := range records {
		if rec.Alive() {
			n++
		}
	}
	return n
}
