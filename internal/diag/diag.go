// Package diag renders HTML diagnostic charts for a finished run: the
// per-stage outcome summary and the frame-selection metric distribution per
// file. The charts are standalone files, written next to the run report.
package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fastpdi/dpp/internal/domain"
)

// WriteCharts renders the diagnostic charts into dir. Chart failures are
// returned but callers treat them as non-fatal.
func WriteCharts(dir string, report *domain.RunReport, metrics map[domain.StageName]map[string]domain.MetricRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeStageSummary(filepath.Join(dir, report.Name+"_stages.html"), report); err != nil {
		return err
	}
	if sel, ok := metrics[domain.StageFrameSelect]; ok && len(sel) > 0 {
		if err := writeSelectionMetrics(filepath.Join(dir, report.Name+"_selection.html"), report.Name, sel); err != nil {
			return err
		}
	}
	return nil
}

// writeStageSummary renders succeeded/failed/skipped counts per stage as a
// stacked bar chart.
func writeStageSummary(path string, report *domain.RunReport) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: report.Name + " stages"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Stage outcomes",
			Subtitle: fmt.Sprintf("run %s", report.RunID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	var stageNames []string
	var succeeded, failed, skipped []opts.BarData
	for _, s := range report.Summaries {
		stageNames = append(stageNames, string(s.Stage))
		succeeded = append(succeeded, opts.BarData{Value: s.Succeeded})
		failed = append(failed, opts.BarData{Value: s.Failed})
		skipped = append(skipped, opts.BarData{Value: s.Skipped})
	}
	bar.SetXAxis(stageNames).
		AddSeries("succeeded", succeeded).
		AddSeries("failed", failed).
		AddSeries("skipped", skipped)

	return render(path, bar)
}

// writeSelectionMetrics renders the frame-selection metric vector of every
// file as one line series over frame index.
func writeSelectionMetrics(path, name string, byFile map[string]domain.MetricRecord) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: name + " selection"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Frame selection metrics",
			Subtitle: "per-frame quality metric by file; discarded frames included",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	maxFrames := 0
	for _, f := range files {
		if values := metricVector(byFile[f]); len(values) > maxFrames {
			maxFrames = len(values)
		}
	}
	xs := make([]int, maxFrames)
	for i := range xs {
		xs[i] = i
	}
	line.SetXAxis(xs)

	for _, f := range files {
		values := metricVector(byFile[f])
		data := make([]opts.LineData, len(values))
		for i, v := range values {
			data[i] = opts.LineData{Value: v}
		}
		line.AddSeries(f, data)
	}
	return render(path, line)
}

// metricVector picks the measured metric series out of a selection record,
// skipping the bookkeeping vectors.
func metricVector(m domain.MetricRecord) []float64 {
	for k, v := range m {
		switch k {
		case "keep", "threshold":
			continue
		}
		return v
	}
	return nil
}

func render(path string, chart interface{ Render(w io.Writer) error }) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return chart.Render(f)
}
