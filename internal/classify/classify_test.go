package classify

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/outlier.report/internal/config"
	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/fsutil"
	"github.com/banshee-data/outlier.report/internal/monitoring"
	"github.com/banshee-data/outlier.report/internal/stream"
)

// stubModel is a gmm.Model with k components and no density.
type stubModel struct{ k int }

func (m stubModel) Dim() int                        { return 1 }
func (m stubModel) NumComponents() int              { return m.k }
func (m stubModel) Weights() []float64              { return make([]float64, m.k) }
func (m stubModel) LogDensity(x []float64) float64  { return 0 }
func (m stubModel) Posterior(x []float64) []float64 { return make([]float64, m.k) }

func scored(scores ...float64) []datamodel.ScoredDatum {
	out := make([]datamodel.ScoredDatum, len(scores))
	for i, s := range scores {
		out[i] = datamodel.ScoredDatum{
			Datum:        datamodel.Datum{ID: int64(i + 1), Attributes: []int{i % 3}, Metrics: []float64{float64(i)}},
			Score:        s,
			Coefficients: []float64{0.5, 0.5},
		}
	}
	return out
}

func labels(t *testing.T, c OutlierClassifier) []bool {
	t.Helper()
	out, err := c.Stream().Drain()
	require.NoError(t, err)
	got := make([]bool, len(out))
	for i, r := range out {
		got[i] = r.Outlier
	}
	return got
}

func TestNewMixtureGroupClassifier_Errors(t *testing.T) {
	_, err := NewMixtureGroupClassifier(config.EmptyAnalysisConfig(), nil)
	assert.ErrorIs(t, err, ErrNoModel)

	cfg := &config.AnalysisConfig{TargetComponents: []int{2}}
	_, err = NewMixtureGroupClassifier(cfg, stubModel{k: 2})
	assert.ErrorIs(t, err, ErrComponentOutOfRange)
}

func TestMixtureGroupClassifier_Percentile(t *testing.T) {
	p := 0.75
	cfg := &config.AnalysisConfig{OutlierPercentile: &p}
	c, err := NewMixtureGroupClassifier(cfg, stubModel{k: 2})
	require.NoError(t, err)
	assert.False(t, c.GroupMode())

	// input order is preserved; cutoff is the 6th smallest score
	require.NoError(t, c.Consume(scored(8, 1, 7, 2, 6, 3, 5, 4)))
	assert.Equal(t, 6.0, c.Cutoff())
	assert.Equal(t, []bool{true, false, true, false, false, false, false, false}, labels(t, c))
}

func TestMixtureGroupClassifier_TiedScoresAreInliers(t *testing.T) {
	c, err := NewMixtureGroupClassifier(config.EmptyAnalysisConfig(), stubModel{k: 2})
	require.NoError(t, err)
	require.NoError(t, c.Consume(scored(1, 1, 1, 1)))
	assert.Equal(t, []bool{false, false, false, false}, labels(t, c))
}

func TestMixtureGroupClassifier_GroupMode(t *testing.T) {
	threshold := 0.6
	cfg := &config.AnalysisConfig{TargetComponents: []int{1, 2}, GroupProbabilityThreshold: &threshold}
	c, err := NewMixtureGroupClassifier(cfg, stubModel{k: 3})
	require.NoError(t, err)
	require.True(t, c.GroupMode())

	batch := scored(0, 0, 0)
	batch[0].Coefficients = []float64{0.9, 0.05, 0.05}
	batch[1].Coefficients = []float64{0.4, 0.3, 0.3}
	batch[2].Coefficients = []float64{0.1, 0.0, 0.9}
	require.NoError(t, c.Consume(batch))
	assert.Equal(t, []bool{false, true, true}, labels(t, c))
}

func TestMixtureGroupClassifier_GroupModeCoefficientMismatch(t *testing.T) {
	cfg := &config.AnalysisConfig{TargetComponents: []int{0}}
	c, err := NewMixtureGroupClassifier(cfg, stubModel{k: 3})
	require.NoError(t, err)
	assert.Error(t, c.Consume(scored(1)))
}

func TestMixtureGroupClassifier_Lifecycle(t *testing.T) {
	c, err := NewMixtureGroupClassifier(config.EmptyAnalysisConfig(), stubModel{k: 1})
	require.NoError(t, err)

	_, err = c.Stream().Drain()
	assert.ErrorIs(t, err, ErrNotConsumed)

	require.NoError(t, c.Consume(nil))
	out, err := c.Stream().Drain()
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)

	_, err = c.Stream().Drain()
	assert.ErrorIs(t, err, stream.ErrDrained)
}

func TestDumpClassifier_PassThrough(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	p := 0.5
	dir := "out"
	cfg := &config.AnalysisConfig{OutlierPercentile: &p, DumpDir: &dir}

	plain, err := NewMixtureGroupClassifier(cfg, stubModel{k: 2})
	require.NoError(t, err)
	require.NoError(t, plain.Consume(scored(4, 1, 3, 2)))
	want, err := plain.Stream().Drain()
	require.NoError(t, err)

	inner, err := NewMixtureGroupClassifier(cfg, stubModel{k: 2})
	require.NoError(t, err)
	d := NewDumpClassifier(cfg, inner, "sensors", fs, monitoring.Discard)
	require.NoError(t, d.Consume(scored(4, 1, 3, 2)))
	got, err := d.Stream().Drain()
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dump changed records (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"out/sensors-classified.html", "out/sensors-classified.jsonl"}, fs.Files())

	raw, err := fs.ReadFile(d.JSONLPath())
	require.NoError(t, err)
	sc := bufio.NewScanner(bytes.NewReader(raw))
	var lines []dumpRecord
	for sc.Scan() {
		var rec dumpRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 4)
	assert.Equal(t, int64(1), lines[0].ID)
	assert.True(t, lines[0].Outlier)
	require.NotNil(t, lines[0].Score)
	assert.Equal(t, 4.0, *lines[0].Score)

	html, err := fs.ReadFile(d.ChartPath())
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(html), "outliers"))
}

func TestDumpClassifier_NonFiniteScore(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	p := 0.5
	cfg := &config.AnalysisConfig{OutlierPercentile: &p}
	inner, err := NewMixtureGroupClassifier(cfg, stubModel{k: 2})
	require.NoError(t, err)

	d := NewDumpClassifier(cfg, inner, "q", fs, monitoring.Discard)
	require.NoError(t, d.Consume(scored(1, 2, math.Inf(1))))
	got, err := d.Stream().Drain()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[2].Outlier)

	raw, err := fs.ReadFile("dumps/q-classified.jsonl")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"score":null`)
}

type failingClassifier struct{ err error }

func (f failingClassifier) Consume([]datamodel.ScoredDatum) error { return f.err }
func (f failingClassifier) Stream() stream.Stream[datamodel.ClassifiedDatum] {
	return stream.Failed[datamodel.ClassifiedDatum](f.err)
}

func TestDumpClassifier_PropagatesInnerErrors(t *testing.T) {
	boom := errors.New("boom")
	fs := fsutil.NewMemoryFileSystem()
	d := NewDumpClassifier(config.EmptyAnalysisConfig(), failingClassifier{err: boom}, "q", fs, monitoring.Discard)

	assert.ErrorIs(t, d.Consume(nil), boom)
	_, err := d.Stream().Drain()
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, fs.Files())
}

func TestDumpClassifier_SanitizesQueryName(t *testing.T) {
	dir := "out"
	cfg := &config.AnalysisConfig{DumpDir: &dir}
	inner, err := NewMixtureGroupClassifier(cfg, stubModel{k: 2})
	require.NoError(t, err)

	d := NewDumpClassifier(cfg, inner, "../power by device", fsutil.NewMemoryFileSystem(), monitoring.Discard)
	assert.Equal(t, filepath.Join("out", "power_by_device-classified.jsonl"), d.JSONLPath())
	assert.Equal(t, filepath.Join("out", "power_by_device-classified.html"), d.ChartPath())
}
