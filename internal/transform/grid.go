package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/banshee-data/outlier.report/internal/config"
	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/fsutil"
	"github.com/banshee-data/outlier.report/internal/gmm"
	"github.com/banshee-data/outlier.report/internal/monitoring"
	"github.com/banshee-data/outlier.report/internal/stream"
)

// GridScoreTransform wraps a ProbabilityTransform. After the inner transform
// has consumed a batch it evaluates the fitted density on a regular grid
// over the data's bounding box and, when a dump file is configured, writes
// the grid as JSON with a PNG rendering beside it.
//
// The grid spans the first two metric dimensions; any further dimensions
// are held at their mean. The scored records pass through untouched.
type GridScoreTransform struct {
	inner    ProbabilityTransform
	points   int
	dumpFile string
	fs       fsutil.FileSystem
	logf     monitoring.LogFunc

	grid *DensityGrid
}

var _ ProbabilityTransform = (*GridScoreTransform)(nil)

// NewGridScoreTransform wraps inner. fs receives the dump files.
func NewGridScoreTransform(cfg *config.AnalysisConfig, inner ProbabilityTransform, fs fsutil.FileSystem, logf monitoring.LogFunc) *GridScoreTransform {
	return &GridScoreTransform{
		inner:    inner,
		points:   cfg.GetGridPointsPerDim(),
		dumpFile: cfg.GetGridDumpFile(),
		fs:       fs,
		logf:     monitoring.WithPrefix("[grid] ", logf),
	}
}

// Initialize checks the grid resolution and initializes the inner transform.
func (g *GridScoreTransform) Initialize() error {
	if g.points < 2 {
		return fmt.Errorf("grid resolution must be at least 2 points per dimension, got %d", g.points)
	}
	g.grid = nil
	return g.inner.Initialize()
}

// Consume feeds batch to the inner transform, then builds and dumps the
// density grid.
func (g *GridScoreTransform) Consume(batch []datamodel.Datum) error {
	if err := g.inner.Consume(batch); err != nil {
		return err
	}
	if g.dumpFile == "" {
		return nil
	}

	grid, err := NewDensityGrid(g.inner.MixtureModel(), batch, g.points)
	if err != nil {
		return err
	}
	g.grid = grid
	if err := g.dump(grid); err != nil {
		return err
	}
	g.logf("wrote %dx%d density grid to %s", len(grid.X), max(len(grid.Y), 1), g.dumpFile)
	return nil
}

// Stream returns the inner transform's stream.
func (g *GridScoreTransform) Stream() stream.Stream[datamodel.ScoredDatum] {
	return g.inner.Stream()
}

// MixtureModel returns the inner transform's model.
func (g *GridScoreTransform) MixtureModel() gmm.Model {
	return g.inner.MixtureModel()
}

// Grid returns the last density grid, or nil when dumping is disabled.
func (g *GridScoreTransform) Grid() *DensityGrid {
	return g.grid
}

func (g *GridScoreTransform) dump(grid *DensityGrid) error {
	if dir := filepath.Dir(g.dumpFile); dir != "." {
		if err := g.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create grid dump directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(grid, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode density grid: %w", err)
	}
	if err := g.fs.WriteFile(g.dumpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write density grid: %w", err)
	}

	w, err := g.fs.Create(plotPath(g.dumpFile))
	if err != nil {
		return fmt.Errorf("failed to create grid plot: %w", err)
	}
	if err := writeGridPlot(w, grid); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// plotPath returns the PNG path that accompanies a grid dump file.
func plotPath(dumpFile string) string {
	return strings.TrimSuffix(dumpFile, filepath.Ext(dumpFile)) + ".png"
}

// DensityGrid is the mixture density sampled on a regular grid.
//
// For one-dimensional data Y is empty and Density has a single row.
// Density[r][c] is the density at (X[c], Y[r]).
type DensityGrid struct {
	Dims    []int       `json:"dims"`
	X       []float64   `json:"x"`
	Y       []float64   `json:"y,omitempty"`
	Fixed   []float64   `json:"fixed,omitempty"`
	Density [][]float64 `json:"density"`
}

// NewDensityGrid evaluates model on n points per axis over the bounding
// box of batch.
func NewDensityGrid(model gmm.Model, batch []datamodel.Datum, n int) (*DensityGrid, error) {
	if model == nil {
		return nil, fmt.Errorf("density grid: no fitted model")
	}
	if len(batch) == 0 {
		return nil, gmm.ErrNoData
	}
	dim := model.Dim()

	lo := make([]float64, dim)
	hi := make([]float64, dim)
	mean := make([]float64, dim)
	for d := 0; d < dim; d++ {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
	}
	for _, rec := range batch {
		for d, v := range rec.Metrics {
			lo[d] = math.Min(lo[d], v)
			hi[d] = math.Max(hi[d], v)
			mean[d] += v
		}
	}
	for d := range mean {
		mean[d] /= float64(len(batch))
		if lo[d] == hi[d] {
			lo[d] -= 0.5
			hi[d] += 0.5
		}
	}

	g := &DensityGrid{X: linspace(lo[0], hi[0], n)}
	x := append([]float64(nil), mean...)

	if dim == 1 {
		g.Dims = []int{0}
		row := make([]float64, n)
		for c, xv := range g.X {
			x[0] = xv
			row[c] = math.Exp(model.LogDensity(x))
		}
		g.Density = [][]float64{row}
		return g, nil
	}

	g.Dims = []int{0, 1}
	g.Y = linspace(lo[1], hi[1], n)
	if dim > 2 {
		g.Fixed = append([]float64(nil), mean[2:]...)
	}
	g.Density = make([][]float64, n)
	for r, yv := range g.Y {
		row := make([]float64, n)
		for c, xv := range g.X {
			x[0], x[1] = xv, yv
			row[c] = math.Exp(model.LogDensity(x))
		}
		g.Density[r] = row
	}
	return g, nil
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
