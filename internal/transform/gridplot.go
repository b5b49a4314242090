package transform

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// gridXYZ adapts a DensityGrid to plotter.GridXYZ.
type gridXYZ struct {
	g *DensityGrid
}

func (x gridXYZ) Dims() (c, r int)   { return len(x.g.X), len(x.g.Y) }
func (x gridXYZ) Z(c, r int) float64 { return x.g.Density[r][c] }
func (x gridXYZ) X(c int) float64    { return x.g.X[c] }
func (x gridXYZ) Y(r int) float64    { return x.g.Y[r] }

// writeGridPlot renders grid as PNG: a heat map for two dimensions, a
// density curve for one.
func writeGridPlot(w io.Writer, grid *DensityGrid) error {
	p := plot.New()
	p.Title.Text = "Mixture density"
	p.X.Label.Text = fmt.Sprintf("metric %d", grid.Dims[0])

	if len(grid.Y) == 0 {
		p.Y.Label.Text = "density"
		pts := make(plotter.XYs, len(grid.X))
		for i, x := range grid.X {
			pts[i] = plotter.XY{X: x, Y: grid.Density[0][i]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create density line: %w", err)
		}
		line.Width = vg.Points(1)
		p.Add(line)
	} else {
		p.Y.Label.Text = fmt.Sprintf("metric %d", grid.Dims[1])
		p.Add(plotter.NewHeatMap(gridXYZ{grid}, palette.Heat(12, 1)))
	}

	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render grid plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write grid plot: %w", err)
	}
	return nil
}
