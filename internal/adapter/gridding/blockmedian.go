// Package gridding turns scattered observations into regular grids: block
// median decimation, continuous-curvature surface fitting with optional
// tension, and Gaussian filtering of dense rasters onto coarser lattices.
package gridding

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.ngs.io/antgrid/internal/domain"
)

// ErrNoData is returned when no finite observation falls inside the region.
var ErrNoData = errors.New("no data points inside region")

// Point is one planar observation.
type Point struct {
	X, Y, Z float64
}

// BlockMedian reduces pts to one point per grid node: the median x, median y
// and median z of all points whose nearest node is that block. Points
// outside region or with a NaN value are dropped. Output is ordered by
// block, row-major from the south-west corner.
func BlockMedian(pts []Point, region domain.Region, spacing float64) ([]Point, error) {
	nx, ny, err := region.Nodes(spacing)
	if err != nil {
		return nil, fmt.Errorf("blockmedian: %w", err)
	}

	blocks := make(map[int][]Point)
	for _, p := range pts {
		if math.IsNaN(p.Z) || !region.Contains(p.X, p.Y) {
			continue
		}
		j := int(math.Round((p.X - region.XMin) / spacing))
		i := int(math.Round((p.Y - region.YMin) / spacing))
		if j >= nx {
			j = nx - 1
		}
		if i >= ny {
			i = ny - 1
		}
		key := i*nx + j
		blocks[key] = append(blocks[key], p)
	}
	if len(blocks) == 0 {
		return nil, ErrNoData
	}

	keys := make([]int, 0, len(blocks))
	for k := range blocks {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]Point, 0, len(keys))
	xs, ys, zs := []float64{}, []float64{}, []float64{}
	for _, k := range keys {
		b := blocks[k]
		xs, ys, zs = xs[:0], ys[:0], zs[:0]
		for _, p := range b {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
			zs = append(zs, p.Z)
		}
		out = append(out, Point{X: median(xs), Y: median(ys), Z: median(zs)})
	}
	return out, nil
}

// median sorts v in place; even counts average the two central values.
func median(v []float64) float64 {
	sort.Float64s(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}
