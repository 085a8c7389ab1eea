// Package grid provides the regular 2-D raster returned by every gridded
// dataset, with bilinear sampling and summary statistics.
package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"go.ngs.io/antgrid/internal/domain"
)

// EPSG3031 is the Antarctic polar stereographic CRS all gridded datasets use.
const EPSG3031 = "EPSG:3031"

// Grid is a regular, grid-line registered 2-D raster. Missing cells are NaN.
type Grid struct {
	Name   string      `msgpack:"name" json:"name"`
	Units  string      `msgpack:"units" json:"units,omitempty"`
	CRS    string      `msgpack:"crs" json:"crs"`
	X      []float64   `msgpack:"x" json:"x"`           // Node x coordinates, strictly increasing.
	Y      []float64   `msgpack:"y" json:"y"`           // Node y coordinates, strictly increasing.
	Values [][]float64 `msgpack:"values" json:"values"` // Values[i][j] corresponds to (X[j], Y[i]).
}

// New allocates a NaN-filled grid with nodes on region at spacing.
func New(region domain.Region, spacing float64) (*Grid, error) {
	nx, ny, err := region.Nodes(spacing)
	if err != nil {
		return nil, err
	}
	g := &Grid{
		CRS:    EPSG3031,
		X:      axis(region.XMin, region.XMax, spacing, nx),
		Y:      axis(region.YMin, region.YMax, spacing, ny),
		Values: make([][]float64, ny),
	}
	for i := range g.Values {
		row := make([]float64, nx)
		for j := range row {
			row[j] = math.NaN()
		}
		g.Values[i] = row
	}
	return g, nil
}

// axis lays out n nodes from lo to hi, pinning the last node to hi so the
// region is reproduced exactly.
func axis(lo, hi, spacing float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*spacing
	}
	out[n-1] = hi
	return out
}

// Validate checks if the grid is well formed.
func (g *Grid) Validate() error {
	if len(g.X) < 2 {
		return fmt.Errorf("grid must have at least 2 X coordinates")
	}
	if len(g.Y) < 2 {
		return fmt.Errorf("grid must have at least 2 Y coordinates")
	}
	if len(g.Values) != len(g.Y) {
		return fmt.Errorf("number of value rows (%d) must match Y coordinates (%d)", len(g.Values), len(g.Y))
	}

	for i, row := range g.Values {
		if len(row) != len(g.X) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(g.X))
		}
	}

	for i := 1; i < len(g.X); i++ {
		if g.X[i] <= g.X[i-1] {
			return fmt.Errorf("X coordinates must be strictly increasing")
		}
	}
	for i := 1; i < len(g.Y); i++ {
		if g.Y[i] <= g.Y[i-1] {
			return fmt.Errorf("Y coordinates must be strictly increasing")
		}
	}

	return nil
}

// Dims returns the number of columns and rows.
func (g *Grid) Dims() (nx, ny int) {
	return len(g.X), len(g.Y)
}

// Region returns the bounding box of the grid nodes.
func (g *Grid) Region() domain.Region {
	if len(g.X) == 0 || len(g.Y) == 0 {
		return domain.Region{}
	}
	return domain.Region{
		XMin: g.X[0],
		XMax: g.X[len(g.X)-1],
		YMin: g.Y[0],
		YMax: g.Y[len(g.Y)-1],
	}
}

// Spacing returns the node increments along x and y.
func (g *Grid) Spacing() (dx, dy float64) {
	if len(g.X) > 1 {
		dx = (g.X[len(g.X)-1] - g.X[0]) / float64(len(g.X)-1)
	}
	if len(g.Y) > 1 {
		dy = (g.Y[len(g.Y)-1] - g.Y[0]) / float64(len(g.Y)-1)
	}
	return dx, dy
}

// FillNaN replaces missing cells with v and returns the number replaced.
func (g *Grid) FillNaN(v float64) int {
	n := 0
	for _, row := range g.Values {
		for j, val := range row {
			if math.IsNaN(val) {
				row[j] = v
				n++
			}
		}
	}
	return n
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := *g
	c.X = append([]float64(nil), g.X...)
	c.Y = append([]float64(nil), g.Y...)
	c.Values = make([][]float64, len(g.Values))
	for i, row := range g.Values {
		c.Values[i] = append([]float64(nil), row...)
	}
	return &c
}

// Equal reports whether two grids have identical coordinates and values,
// treating NaN cells as equal to each other.
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.Name != o.Name || g.Units != o.Units || g.CRS != o.CRS {
		return false
	}
	if !floats.Equal(g.X, o.X) || !floats.Equal(g.Y, o.Y) || len(g.Values) != len(o.Values) {
		return false
	}
	for i := range g.Values {
		a, b := g.Values[i], o.Values[i]
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if a[j] != b[j] && !(math.IsNaN(a[j]) && math.IsNaN(b[j])) {
				return false
			}
		}
	}
	return true
}

// Finite returns all non-NaN values in row-major order.
func (g *Grid) Finite() []float64 {
	out := make([]float64, 0, len(g.X)*len(g.Y))
	for _, row := range g.Values {
		for _, v := range row {
			if !math.IsNaN(v) {
				out = append(out, v)
			}
		}
	}
	return out
}

// Stats summarises the grid values.
type Stats struct {
	Min, Max, Mean, StdDev float64
	Count, NaN             int
}

// Stats computes min, max, mean and standard deviation over finite cells.
func (g *Grid) Stats() Stats {
	vals := g.Finite()
	nx, ny := g.Dims()
	s := Stats{Count: len(vals), NaN: nx*ny - len(vals)}
	if len(vals) == 0 {
		s.Min, s.Max, s.Mean, s.StdDev = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	return s
}
