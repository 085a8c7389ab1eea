package gridding

import (
	"fmt"
	"math"

	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/grid"
)

// GaussianFilter smooths src with a Gaussian of full width width (six
// standard deviations, truncated at width/2) and samples the result on the
// nodes of region at spacing. NaN inputs are skipped, except that an output
// node whose nearest input cell is NaN stays NaN. Nodes outside src are NaN.
func GaussianFilter(src *grid.Grid, width float64, region domain.Region, spacing float64) (*grid.Grid, error) {
	if width <= 0 {
		return nil, fmt.Errorf("filter width must be positive, got %g", width)
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source grid: %w", err)
	}
	dst, err := grid.New(region, spacing)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	dst.Name, dst.Units, dst.CRS = src.Name, src.Units, src.CRS

	half := width / 2
	sigma := width / 6
	twoSigma2 := 2 * sigma * sigma

	sx, sy := src.Dims()
	dx, dy := src.Spacing()
	rx := int(math.Floor(half / dx))
	ry := int(math.Floor(half / dy))
	x0, y0 := src.X[0], src.Y[0]

	for i, y := range dst.Y {
		ci := int(math.Round((y - y0) / dy))
		for j, x := range dst.X {
			cj := int(math.Round((x - x0) / dx))
			if ci < 0 || ci >= sy || cj < 0 || cj >= sx || math.IsNaN(src.Values[ci][cj]) {
				continue
			}

			var sum, weight float64
			for ii := max(ci-ry, 0); ii <= min(ci+ry, sy-1); ii++ {
				ddy := src.Y[ii] - y
				for jj := max(cj-rx, 0); jj <= min(cj+rx, sx-1); jj++ {
					v := src.Values[ii][jj]
					if math.IsNaN(v) {
						continue
					}
					ddx := src.X[jj] - x
					r2 := ddx*ddx + ddy*ddy
					if r2 > half*half {
						continue
					}
					w := math.Exp(-r2 / twoSigma2)
					sum += w * v
					weight += w
				}
			}
			if weight > 0 {
				dst.Values[i][j] = sum / weight
			}
		}
	}
	return dst, nil
}
