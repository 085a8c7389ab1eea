package diag

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.ngs.io/antgrid/internal/grid"
)

const (
	plotSize   = 6 * vg.Inch
	paletteLen = 255
	// Robust colour limits ignore the tails so a few outliers do not wash
	// out the rest of the map.
	lowQuantile  = 0.02
	highQuantile = 0.98
)

var (
	errAllNaN  = errors.New("grid has no finite values")
	errNilGrid = errors.New("no grid")
)

// gridXYZ adapts a grid to plotter.GridXYZ.
type gridXYZ struct{ g *grid.Grid }

func (p gridXYZ) Dims() (c, r int)   { return p.g.Dims() }
func (p gridXYZ) Z(c, r int) float64 { return p.g.Values[r][c] }
func (p gridXYZ) X(c int) float64    { return p.g.X[c] }
func (p gridXYZ) Y(r int) float64    { return p.g.Y[r] }

// RobustRange returns the 2nd and 98th percentiles of the finite values.
func RobustRange(g *grid.Grid) (lo, hi float64, err error) {
	vals := g.Finite()
	if len(vals) == 0 {
		return 0, 0, errAllNaN
	}
	sort.Float64s(vals)
	lo = stat.Quantile(lowQuantile, stat.Empirical, vals, nil)
	hi = stat.Quantile(highQuantile, stat.Empirical, vals, nil)
	if hi <= lo {
		lo, hi = lo-0.5, lo+0.5
	}
	return lo, hi, nil
}

func newPlot(g *grid.Grid) (*plot.Plot, error) {
	if g == nil {
		return nil, errNilGrid
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	lo, hi, err := RobustRange(g)
	if err != nil {
		return nil, err
	}

	pal := moreland.SmoothBlueRed().Palette(paletteLen)
	colors := pal.Colors()
	h := plotter.NewHeatMap(gridXYZ{g}, pal)
	h.Min, h.Max = lo, hi
	h.Underflow = colors[0]
	h.Overflow = colors[len(colors)-1]
	h.NaN = color.Transparent
	h.Rasterized = true

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s [%g, %g] %s", g.Name, lo, hi, g.Units)
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(h)
	return p, nil
}

// renderPNG draws p onto w.
var renderPNG = func(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(plotSize, plotSize, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// WritePlot renders g as a PNG heat map to w. A panic inside the plotting
// library is returned as an error.
func WritePlot(w io.Writer, g *grid.Grid) (err error) {
	p, err := newPlot(g)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plot panicked: %v", r)
		}
	}()
	return renderPNG(p, w)
}

// SavePlot renders g as a PNG heat map at path.
func SavePlot(path string, g *grid.Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePlot(f, g); err != nil {
		f.Close()       //nolint:errcheck
		os.Remove(path) //nolint:errcheck
		return err
	}
	return f.Close()
}
