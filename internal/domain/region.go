package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Region is a rectangular bounding box in projected (EPSG:3031) meters.
type Region struct {
	XMin float64 `json:"xmin"`
	XMax float64 `json:"xmax"`
	YMin float64 `json:"ymin"`
	YMax float64 `json:"ymax"`
}

// spacingTolerance is the fractional slack allowed when checking that a
// region is an integer number of cells wide.
const spacingTolerance = 1e-6

// Validate checks that the region is non-degenerate.
func (r Region) Validate() error {
	for _, v := range []float64{r.XMin, r.XMax, r.YMin, r.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("region %v has non-finite bounds", r)
		}
	}
	if r.XMax <= r.XMin {
		return fmt.Errorf("region xmax (%g) must be greater than xmin (%g)", r.XMax, r.XMin)
	}
	if r.YMax <= r.YMin {
		return fmt.Errorf("region ymax (%g) must be greater than ymin (%g)", r.YMax, r.YMin)
	}
	return nil
}

// IsZero reports whether the region was left unset.
func (r Region) IsZero() bool {
	return r == Region{}
}

// Contains reports whether (x, y) lies inside the region, edges included.
func (r Region) Contains(x, y float64) bool {
	return x >= r.XMin && x <= r.XMax && y >= r.YMin && y <= r.YMax
}

// Nodes returns the number of grid-line registered nodes along x and y for
// the given spacing. The region must span a whole number of cells.
func (r Region) Nodes(spacing float64) (nx, ny int, err error) {
	if err := r.Validate(); err != nil {
		return 0, 0, err
	}
	if spacing <= 0 || math.IsNaN(spacing) || math.IsInf(spacing, 0) {
		return 0, 0, fmt.Errorf("spacing must be a positive number, got %g", spacing)
	}
	cx, err := cells(r.XMax-r.XMin, spacing)
	if err != nil {
		return 0, 0, fmt.Errorf("x range: %w", err)
	}
	cy, err := cells(r.YMax-r.YMin, spacing)
	if err != nil {
		return 0, 0, fmt.Errorf("y range: %w", err)
	}
	return cx + 1, cy + 1, nil
}

func cells(extent, spacing float64) (int, error) {
	n := extent / spacing
	rounded := math.Round(n)
	if math.Abs(n-rounded) > spacingTolerance*math.Max(1, rounded) {
		return 0, fmt.Errorf("extent %g is not a multiple of spacing %g", extent, spacing)
	}
	if rounded < 1 {
		return 0, fmt.Errorf("extent %g is smaller than spacing %g", extent, spacing)
	}
	return int(rounded), nil
}

// String formats the region the way it is accepted by ParseRegion.
func (r Region) String() string {
	return fmt.Sprintf("%g/%g/%g/%g", r.XMin, r.XMax, r.YMin, r.YMax)
}

// ParseRegion parses "xmin/xmax/ymin/ymax" (commas are also accepted).
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	sep := "/"
	if strings.Contains(s, ",") {
		sep = ","
	}
	parts := strings.Split(s, sep)
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q must have 4 values (xmin/xmax/ymin/ymax)", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Region{}, fmt.Errorf("region %q: invalid value %q: %w", s, p, err)
		}
		vals[i] = v
	}
	r := Region{XMin: vals[0], XMax: vals[1], YMin: vals[2], YMax: vals[3]}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}
	return r, nil
}
