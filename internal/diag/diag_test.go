package diag

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fastpdi/dpp/internal/domain"
)

func sampleReport() *domain.RunReport {
	return &domain.RunReport{
		RunID: "run-1",
		Name:  "night01",
		Summaries: []domain.StageSummary{
			{Stage: domain.StageCalibrate, Succeeded: 4},
			{Stage: domain.StageFrameSelect, Succeeded: 3, Failed: 1},
			{Stage: domain.StageCollapse, Succeeded: 3, Skipped: 1},
		},
	}
}

func TestWriteCharts(t *testing.T) {
	dir := t.TempDir()
	metrics := map[domain.StageName]map[string]domain.MetricRecord{
		domain.StageFrameSelect: {
			"obs_0001": {
				"l2norm":    {1.0, 2.0, 3.0},
				"keep":      {1, 1, 0},
				"threshold": {1.5, 1.5, 1.5},
			},
			"obs_0002": {
				"l2norm": {4.0, 5.0},
			},
		},
	}

	if err := WriteCharts(dir, sampleReport(), metrics); err != nil {
		t.Fatalf("WriteCharts: %v", err)
	}

	for _, name := range []string{"night01_stages.html", "night01_selection.html"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(data), "<html") {
			t.Errorf("%s is not an HTML document", name)
		}
	}
}

func TestWriteCharts_NoSelectionMetrics(t *testing.T) {
	dir := t.TempDir()
	if err := WriteCharts(dir, sampleReport(), nil); err != nil {
		t.Fatalf("WriteCharts: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "night01_stages.html")); err != nil {
		t.Fatalf("stage chart missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "night01_selection.html")); !os.IsNotExist(err) {
		t.Fatalf("selection chart should not exist without metrics, stat err = %v", err)
	}
}

func TestMetricVectorSkipsBookkeeping(t *testing.T) {
	m := domain.MetricRecord{
		"keep":      {1, 0},
		"threshold": {0.5, 0.5},
		"peak":      {9.0, 8.0},
	}
	got := metricVector(m)
	if len(got) != 2 || got[0] != 9.0 {
		t.Fatalf("metricVector = %v, want the peak series", got)
	}
}
