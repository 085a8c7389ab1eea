package grid

import (
	"fmt"
	"math"
	"sort"
)

// Cell is one rectangle of a regular grid with its four corner values.
type Cell struct {
	// Corner coordinates (forming a rectangle).
	X0, X1 float64
	Y0, Y1 float64

	// Values at the four corners:
	// V00: value at (X0, Y0).
	// V10: value at (X1, Y0).
	// V01: value at (X0, Y1).
	// V11: value at (X1, Y1).
	V00, V10, V01, V11 float64
}

// BilinearInterpolate performs bilinear interpolation within a grid cell.
// Formula:
//
//	f(x,y) ≈ (1-t)(1-u)f(x0,y0) + t(1-u)f(x1,y0) + (1-t)u*f(x0,y1) + tu*f(x1,y1)
//
// where:
//
//	t = (x - x0) / (x1 - x0)
//	u = (y - y0) / (y1 - y0)
//
// A NaN corner makes the result NaN.
func BilinearInterpolate(cell Cell, x, y float64) (float64, error) {
	if cell.X1 <= cell.X0 {
		return 0, fmt.Errorf("invalid grid cell: X1 must be > X0")
	}
	if cell.Y1 <= cell.Y0 {
		return 0, fmt.Errorf("invalid grid cell: Y1 must be > Y0")
	}

	// Small tolerance for floating point.
	const epsilon = 1e-9
	if x < cell.X0-epsilon || x > cell.X1+epsilon {
		return 0, fmt.Errorf("x coordinate %.6f is outside grid cell [%.6f, %.6f]", x, cell.X0, cell.X1)
	}
	if y < cell.Y0-epsilon || y > cell.Y1+epsilon {
		return 0, fmt.Errorf("y coordinate %.6f is outside grid cell [%.6f, %.6f]", y, cell.Y0, cell.Y1)
	}

	t := (x - cell.X0) / (cell.X1 - cell.X0)
	u := (y - cell.Y0) / (cell.Y1 - cell.Y0)

	t = math.Max(0, math.Min(1, t))
	u = math.Max(0, math.Min(1, u))

	// Exact hits on a node ignore NaN in the other corners.
	switch {
	case t == 0 && u == 0:
		return cell.V00, nil
	case t == 1 && u == 0:
		return cell.V10, nil
	case t == 0 && u == 1:
		return cell.V01, nil
	case t == 1 && u == 1:
		return cell.V11, nil
	}

	result := (1-t)*(1-u)*cell.V00 +
		t*(1-u)*cell.V10 +
		(1-t)*u*cell.V01 +
		t*u*cell.V11

	return result, nil
}

// InterpolateAt performs bilinear interpolation at a given point.
func (g *Grid) InterpolateAt(x, y float64) (float64, error) {
	if err := g.Validate(); err != nil {
		return 0, fmt.Errorf("invalid grid: %w", err)
	}
	return g.interpolate(x, y)
}

// interpolate skips validation; callers sampling many points validate once.
func (g *Grid) interpolate(x, y float64) (float64, error) {
	xIdx := bracket(g.X, x)
	if xIdx == -1 {
		return 0, fmt.Errorf("x coordinate %.6f is outside grid range [%.6f, %.6f]", x, g.X[0], g.X[len(g.X)-1])
	}
	yIdx := bracket(g.Y, y)
	if yIdx == -1 {
		return 0, fmt.Errorf("y coordinate %.6f is outside grid range [%.6f, %.6f]", y, g.Y[0], g.Y[len(g.Y)-1])
	}

	cell := Cell{
		X0:  g.X[xIdx],
		X1:  g.X[xIdx+1],
		Y0:  g.Y[yIdx],
		Y1:  g.Y[yIdx+1],
		V00: g.Values[yIdx][xIdx],
		V10: g.Values[yIdx][xIdx+1],
		V01: g.Values[yIdx+1][xIdx],
		V11: g.Values[yIdx+1][xIdx+1],
	}

	return BilinearInterpolate(cell, x, y)
}

// bracket returns i such that axis[i] <= v <= axis[i+1], or -1.
func bracket(axis []float64, v float64) int {
	n := len(axis)
	if n < 2 || v < axis[0] || v > axis[n-1] {
		return -1
	}
	i := sort.SearchFloat64s(axis, v)
	if i == 0 {
		return 0
	}
	if i >= n-1 {
		return n - 2
	}
	if axis[i] == v {
		return i
	}
	return i - 1
}

// Resample bilinearly samples g onto the nodes of dst, leaving nodes outside
// g as NaN.
func (g *Grid) Resample(dst *Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid source grid: %w", err)
	}
	for i, y := range dst.Y {
		for j, x := range dst.X {
			v, err := g.interpolate(x, y)
			if err != nil {
				dst.Values[i][j] = math.NaN()
				continue
			}
			dst.Values[i][j] = v
		}
	}
	return nil
}
