// Package diagnostics renders calibration and recovery figures for
// simulation-based inference: recovery plots, simulation-based
// calibration rank histograms and model-comparison reliability curves.
//
// All inputs are row-major float64 tensors. Posterior draws are shaped
// datasets x draws x parameters, reference draws datasets x parameters.
package diagnostics

import (
	"fmt"
	"io"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	subplotWidth  = 3.5 * vg.Inch
	subplotHeight = 3 * vg.Inch
	maxGridCols   = 6
)

// Figure is a grid of subplots rendered together as one PNG image.
type Figure struct {
	plots      [][]*plot.Plot
	rows, cols int
}

// newFigure lays out n subplots on the usual grid and returns the
// figure together with the subplots in flat order.
func newFigure(n int) (*Figure, []*plot.Plot) {
	rows, cols := gridDims(n)
	flat := make([]*plot.Plot, n)
	grid := make([][]*plot.Plot, rows)
	for i := range grid {
		grid[i] = make([]*plot.Plot, cols)
	}
	for i := 0; i < n; i++ {
		p := plot.New()
		flat[i] = p
		grid[i/cols][i%cols] = p
	}
	return &Figure{plots: grid, rows: rows, cols: cols}, flat
}

// gridDims picks the subplot grid: at most six columns, rows filled
// evenly.
func gridDims(n int) (rows, cols int) {
	rows = (n + maxGridCols - 1) / maxGridCols
	cols = (n + rows - 1) / rows
	return rows, cols
}

// Plots exposes the subplot grid for further customization before
// rendering. Entries past the subplot count are nil.
func (f *Figure) Plots() [][]*plot.Plot { return f.plots }

// WriteTo renders the figure as PNG.
func (f *Figure) WriteTo(w io.Writer) (int64, error) {
	img := vgimg.New(subplotWidth*vg.Length(f.cols), subplotHeight*vg.Length(f.rows))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: f.rows,
		Cols: f.cols,
		PadX: vg.Millimeter * 2,
		PadY: vg.Millimeter * 2,
	}
	canvases := plot.Align(f.plots, tiles, dc)
	for i, row := range f.plots {
		for j, p := range row {
			if p != nil {
				p.Draw(canvases[i][j])
			}
		}
	}
	png := vgimg.PngCanvas{Canvas: img}
	return png.WriteTo(w)
}

// Save writes the rendered figure to path.
func (f *Figure) Save(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create figure file: %w", err)
	}
	if _, err := f.WriteTo(out); err != nil {
		out.Close()
		return fmt.Errorf("render figure: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close figure file: %w", err)
	}
	return nil
}
