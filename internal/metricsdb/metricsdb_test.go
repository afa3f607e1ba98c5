package metricsdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fastpdi/dpp/internal/domain"
)

func sampleReport(runID string, started time.Time) *domain.RunReport {
	return &domain.RunReport{
		RunID:      runID,
		Name:       "night1",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Summaries: []domain.StageSummary{
			{Stage: domain.StageCalibrate, Succeeded: 4},
			{Stage: domain.StageCollapse, Succeeded: 3, Failed: 1},
		},
		Outcomes: []domain.FileOutcome{
			{File: "obs_0001_cam1", Stage: domain.StageCalibrate, Status: domain.OutcomeSucceeded},
			{File: "obs_0002_cam1", Stage: domain.StageCollapse, Status: domain.OutcomeFailed, Reason: "all frames masked"},
		},
		Epochs: []domain.EpochOutcome{
			{Epoch: 0, Status: domain.OutcomeSucceeded, Product: "night1_stokes_000.fpdc", ReducedPrecision: true},
		},
		Products:    []string{"night1_stokes_000.fpdc"},
		CacheHits:   2,
		CacheMisses: 6,
	}
}

func TestDB_RecordAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	start := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)
	if err := db.RecordRun(sampleReport("run-a", start)); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	if err := db.RecordRun(sampleReport("run-b", start.Add(time.Hour))); err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns() = %d rows, want 2", len(runs))
	}
	if runs[0].RunID != "run-b" {
		t.Errorf("newest run = %q, want run-b first", runs[0].RunID)
	}
	if runs[0].CacheHits != 2 || runs[0].CacheMisses != 6 || runs[0].Products != 1 {
		t.Errorf("run row = %+v", runs[0])
	}
}

func TestDB_RecordRunIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	report := sampleReport("run-a", time.Now().UTC())
	if err := db.RecordRun(report); err != nil {
		t.Fatal(err)
	}
	report.CacheHits = 99
	if err := db.RecordRun(report); err != nil {
		t.Fatalf("re-recording the same run failed: %v", err)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns() = %d rows after replace, want 1", len(runs))
	}
	if runs[0].CacheHits != 99 {
		t.Errorf("replaced row kept old cache_hits: %+v", runs[0])
	}
}

func TestDB_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RecordRun(sampleReport("run-a", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()
	runs, err := db2.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("runs after reopen = %d, want 1", len(runs))
	}
}
