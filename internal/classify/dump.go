package classify

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/outlier.report/internal/config"
	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/fsutil"
	"github.com/banshee-data/outlier.report/internal/monitoring"
	"github.com/banshee-data/outlier.report/internal/security"
	"github.com/banshee-data/outlier.report/internal/stream"
)

// DumpClassifier decorates an OutlierClassifier. It forwards every record
// unchanged and, as they pass, writes them to <dir>/<query>-classified.jsonl
// with a scatter chart at <dir>/<query>-classified.html.
type DumpClassifier struct {
	inner     OutlierClassifier
	queryName string
	dir       string
	fs        fsutil.FileSystem
	logf      monitoring.LogFunc
}

var _ OutlierClassifier = (*DumpClassifier)(nil)

// NewDumpClassifier wraps inner.
func NewDumpClassifier(cfg *config.AnalysisConfig, inner OutlierClassifier, queryName string, fs fsutil.FileSystem, logf monitoring.LogFunc) *DumpClassifier {
	return &DumpClassifier{
		inner:     inner,
		queryName: security.SanitizeFilename(queryName),
		dir:       cfg.GetDumpDir(),
		fs:        fs,
		logf:      monitoring.WithPrefix("[dump] ", logf),
	}
}

// Consume forwards batch to the wrapped classifier.
func (d *DumpClassifier) Consume(batch []datamodel.ScoredDatum) error {
	return d.inner.Consume(batch)
}

// Stream drains the wrapped classifier, writes the dump and yields the
// same records.
func (d *DumpClassifier) Stream() stream.Stream[datamodel.ClassifiedDatum] {
	return stream.Func(func() ([]datamodel.ClassifiedDatum, error) {
		records, err := d.inner.Stream().Drain()
		if err != nil {
			return nil, err
		}
		if err := d.dump(records); err != nil {
			return nil, err
		}
		return records, nil
	})
}

// JSONLPath is the path of the record dump.
func (d *DumpClassifier) JSONLPath() string {
	return filepath.Join(d.dir, d.queryName+"-classified.jsonl")
}

// ChartPath is the path of the scatter chart.
func (d *DumpClassifier) ChartPath() string {
	return filepath.Join(d.dir, d.queryName+"-classified.html")
}

// dumpRecord is one line of the JSONL dump.
type dumpRecord struct {
	ID           int64     `json:"id"`
	Outlier      bool      `json:"outlier"`
	Score        *float64  `json:"score"`
	Metrics      []float64 `json:"metrics"`
	Attributes   []int     `json:"attributes"`
	Coefficients []float64 `json:"coefficients"`
}

func (d *DumpClassifier) dump(records []datamodel.ClassifiedDatum) error {
	if err := d.fs.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("failed to create dump directory: %w", err)
	}
	if err := d.writeJSONL(records); err != nil {
		return err
	}
	if err := d.writeChart(records); err != nil {
		return err
	}
	d.logf("dumped %d classified records for %q to %s", len(records), d.queryName, d.dir)
	return nil
}

func (d *DumpClassifier) writeJSONL(records []datamodel.ClassifiedDatum) error {
	f, err := d.fs.Create(d.JSONLPath())
	if err != nil {
		return fmt.Errorf("failed to create classifier dump: %w", err)
	}
	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for _, r := range records {
		rec := dumpRecord{
			ID:           r.ID,
			Outlier:      r.Outlier,
			Score:        finite(r.Score),
			Metrics:      r.Metrics,
			Attributes:   r.Attributes,
			Coefficients: r.Coefficients,
		}
		if err := enc.Encode(rec); err != nil {
			f.Close()
			return fmt.Errorf("failed to write classifier dump: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write classifier dump: %w", err)
	}
	return f.Close()
}

// finite returns nil for values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// writeChart plots score against the first metric, one series per label.
func (d *DumpClassifier) writeChart(records []datamodel.ClassifiedDatum) error {
	inliers := make([]opts.ScatterData, 0, len(records))
	outliers := make([]opts.ScatterData, 0)
	var nOut int
	for _, r := range records {
		var x float64
		if len(r.Metrics) > 0 {
			x = r.Metrics[0]
		}
		if r.Outlier {
			nOut++
		}
		if finite(x) == nil || finite(r.Score) == nil {
			continue
		}
		pt := opts.ScatterData{Value: []interface{}{x, r.Score}, Name: fmt.Sprintf("id=%d", r.ID)}
		if r.Outlier {
			outliers = append(outliers, pt)
		} else {
			inliers = append(inliers, pt)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Classified " + d.queryName, Theme: "dark", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Classifier output", Subtitle: fmt.Sprintf("query=%s records=%d outliers=%d", d.queryName, len(records), nOut)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "metric 0", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("inliers", inliers, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	scatter.AddSeries("outliers", outliers, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	f, err := d.fs.Create(d.ChartPath())
	if err != nil {
		return fmt.Errorf("failed to create classifier chart: %w", err)
	}
	if err := scatter.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render classifier chart: %w", err)
	}
	return f.Close()
}
