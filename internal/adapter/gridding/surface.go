package gridding

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/grid"
)

// SurfaceOptions controls Surface.
type SurfaceOptions struct {
	// Tension in [0, 1]: 0 gives minimum curvature, 1 a harmonic surface.
	Tension float64
	// MaskRadius blanks nodes farther than this many cells from the nearest
	// data node. 0 keeps every node.
	MaskRadius float64
	// MaxIterations bounds the relaxation sweeps per cascade level.
	MaxIterations int
	// Relaxation is the over-relaxation factor, in (0, 2).
	Relaxation float64
	// Tolerance stops a level once the largest update falls below
	// Tolerance times the data range.
	Tolerance float64
}

// DefaultSurfaceOptions returns minimum curvature with a two-cell mask.
func DefaultSurfaceOptions() SurfaceOptions {
	return SurfaceOptions{
		Tension:       0,
		MaskRadius:    2,
		MaxIterations: 250,
		Relaxation:    1.4,
		Tolerance:     1e-5,
	}
}

func (o SurfaceOptions) validate() error {
	switch {
	case o.Tension < 0 || o.Tension > 1:
		return fmt.Errorf("tension %g outside [0, 1]", o.Tension)
	case o.MaskRadius < 0:
		return fmt.Errorf("negative mask radius %g", o.MaskRadius)
	case o.MaxIterations <= 0:
		return fmt.Errorf("max iterations must be positive, got %d", o.MaxIterations)
	case o.Relaxation <= 0 || o.Relaxation >= 2:
		return fmt.Errorf("relaxation %g outside (0, 2)", o.Relaxation)
	case o.Tolerance <= 0:
		return fmt.Errorf("tolerance must be positive, got %g", o.Tolerance)
	}
	return nil
}

// String renders every option, so equal strings mean equal surfaces.
func (o SurfaceOptions) String() string {
	return fmt.Sprintf("tension=%g mask=%g iterations=%d relaxation=%g tolerance=%g",
		o.Tension, o.MaskRadius, o.MaxIterations, o.Relaxation, o.Tolerance)
}

// cascade lists the coarse-grid factors solved before the requested spacing.
var cascade = []int{16, 8, 4, 2}

// Surface fits a continuous-curvature spline in tension through pts and
// samples it on the nodes of region at spacing. Each point constrains its
// nearest node; nodes holding several points take their mean.
func Surface(pts []Point, region domain.Region, spacing float64, opts SurfaceOptions) (*grid.Grid, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("surface: %w", err)
	}
	g, err := grid.New(region, spacing)
	if err != nil {
		return nil, fmt.Errorf("surface: %w", err)
	}

	inside := make([]Point, 0, len(pts))
	zs := make([]float64, 0, len(pts))
	for _, p := range pts {
		if math.IsNaN(p.Z) || math.IsInf(p.Z, 0) || !region.Contains(p.X, p.Y) {
			continue
		}
		inside = append(inside, p)
		zs = append(zs, p.Z)
	}
	if len(inside) == 0 {
		return nil, ErrNoData
	}

	tol := opts.Tolerance * (floats.Max(zs) - floats.Min(zs))
	if tol == 0 {
		tol = opts.Tolerance
	}

	var coarse *grid.Grid
	for _, f := range cascade {
		cg, err := grid.New(region, spacing*float64(f))
		if err != nil {
			continue
		}
		if nx, ny := cg.Dims(); nx < 4 || ny < 4 {
			continue
		}
		s := newSolver(cg, inside, opts)
		s.seed(coarse)
		s.solve(tol)
		coarse = cg
	}

	s := newSolver(g, inside, opts)
	s.seed(coarse)
	s.solve(tol)
	if opts.MaskRadius > 0 {
		s.mask(opts.MaskRadius)
	}
	return g, nil
}

type solver struct {
	g      *grid.Grid
	nx, ny int
	fixed  []bool
	opts   SurfaceOptions
}

func newSolver(g *grid.Grid, pts []Point, opts SurfaceOptions) *solver {
	nx, ny := g.Dims()
	s := &solver{g: g, nx: nx, ny: ny, fixed: make([]bool, nx*ny), opts: opts}

	region := g.Region()
	dx, dy := g.Spacing()
	sum := make(map[int]float64)
	count := make(map[int]int)
	for _, p := range pts {
		j := clampIndex(int(math.Round((p.X-region.XMin)/dx)), nx)
		i := clampIndex(int(math.Round((p.Y-region.YMin)/dy)), ny)
		k := i*nx + j
		sum[k] += p.Z
		count[k]++
	}
	for k, total := range sum {
		s.g.Values[k/nx][k%nx] = total / float64(count[k])
		s.fixed[k] = true
	}
	return s
}

// seed gives every free node a starting value: the nearest constrained
// value, refined by the coarser solution where one exists.
func (s *solver) seed(coarse *grid.Grid) {
	s.fillNearest()
	if coarse == nil {
		return
	}
	guess := s.g.Clone()
	if err := coarse.Resample(guess); err != nil {
		return
	}
	for i := 0; i < s.ny; i++ {
		for j := 0; j < s.nx; j++ {
			if s.fixed[i*s.nx+j] {
				continue
			}
			if v := guess.Values[i][j]; !math.IsNaN(v) {
				s.g.Values[i][j] = v
			}
		}
	}
}

// fillNearest is a breadth-first flood from the constrained nodes.
func (s *solver) fillNearest() {
	queue := make([]int, 0, s.nx*s.ny)
	seen := make([]bool, s.nx*s.ny)
	for k, f := range s.fixed {
		if f {
			queue = append(queue, k)
			seen[k] = true
		}
	}
	for head := 0; head < len(queue); head++ {
		k := queue[head]
		i, j := k/s.nx, k%s.nx
		v := s.g.Values[i][j]
		for _, d := range neighbours {
			ni, nj := i+d[0], j+d[1]
			if ni < 0 || ni >= s.ny || nj < 0 || nj >= s.nx {
				continue
			}
			nk := ni*s.nx + nj
			if seen[nk] {
				continue
			}
			seen[nk] = true
			s.g.Values[ni][nj] = v
			queue = append(queue, nk)
		}
	}
}

// solve minimises (1-T)·Σ(∇²z)² + T·Σ|∇z|² over the free nodes by
// over-relaxed coordinate descent and returns the number of sweeps. The
// Laplacian is only evaluated at nodes with four neighbours, so edges carry
// no artificial boundary values. Away from the edges each update is the
// usual 13-point biharmonic stencil blended with the 5-point Laplacian.
func (s *solver) solve(tol float64) int {
	t := s.opts.Tension
	omega := s.opts.Relaxation
	v := s.g.Values

	for it := 0; it < s.opts.MaxIterations; it++ {
		maxChange := 0.0
		for i := 0; i < s.ny; i++ {
			for j := 0; j < s.nx; j++ {
				if s.fixed[i*s.nx+j] {
					continue
				}

				var curv, wCurv, grad, wTens float64
				if l, ok := s.laplacian(i, j); ok {
					curv -= 4 * l
					wCurv += 16
				}
				for _, d := range neighbours {
					ni, nj := i+d[0], j+d[1]
					if ni < 0 || ni >= s.ny || nj < 0 || nj >= s.nx {
						continue
					}
					if l, ok := s.laplacian(ni, nj); ok {
						curv += l
						wCurv++
					}
					grad += v[i][j] - v[ni][nj]
					wTens++
				}

				denom := (1-t)*wCurv + t*wTens
				if denom == 0 {
					continue
				}
				step := omega * ((1-t)*curv + t*grad) / denom
				v[i][j] -= step
				if d := math.Abs(step); d > maxChange {
					maxChange = d
				}
			}
		}
		if maxChange < tol {
			return it + 1
		}
	}
	return s.opts.MaxIterations
}

var neighbours = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// laplacian is the 5-point Laplacian at an interior node.
func (s *solver) laplacian(i, j int) (float64, bool) {
	if i < 1 || i > s.ny-2 || j < 1 || j > s.nx-2 {
		return 0, false
	}
	v := s.g.Values
	return v[i-1][j] + v[i+1][j] + v[i][j-1] + v[i][j+1] - 4*v[i][j], true
}

// mask blanks nodes farther than radius cells from every constrained node.
func (s *solver) mask(radius float64) {
	r := int(math.Floor(radius))
	r2 := radius * radius
	keep := make([]bool, s.nx*s.ny)
	for k, f := range s.fixed {
		if !f {
			continue
		}
		i, j := k/s.nx, k%s.nx
		for di := -r; di <= r; di++ {
			for dj := -r; dj <= r; dj++ {
				if float64(di*di+dj*dj) > r2 {
					continue
				}
				ni, nj := i+di, j+dj
				if ni < 0 || ni >= s.ny || nj < 0 || nj >= s.nx {
					continue
				}
				keep[ni*s.nx+nj] = true
			}
		}
	}
	for k, ok := range keep {
		if !ok {
			s.g.Values[k/s.nx][k%s.nx] = math.NaN()
		}
	}
}

func clampIndex(k, n int) int {
	if k < 0 {
		return 0
	}
	if k >= n {
		return n - 1
	}
	return k
}
