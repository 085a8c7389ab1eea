package gridding

import (
	"errors"
	"math"
	"testing"

	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/grid"
)

func TestBlockMedian(t *testing.T) {
	region := domain.Region{XMin: 0, XMax: 20, YMin: 0, YMax: 10}
	pts := []Point{
		{1, 1, 10}, {-1.5, 2, 30}, {0.5, -1, 20}, // outside on x (-1.5) is dropped
		{2, 0, 20},
		{19, 9, 5}, {21, 9, 99}, // second point outside
		{10, 5, math.NaN()},
	}
	out, err := BlockMedian(pts, region, 10)
	if err != nil {
		t.Fatalf("BlockMedian: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %+v", len(out), out)
	}

	// Block (0,0) holds z = 10, 20 (y=-1 is outside) so the median averages.
	if out[0].Z != 15 || out[0].X != 1.5 || out[0].Y != 0.5 {
		t.Errorf("unexpected first block %+v", out[0])
	}
	if out[1] != (Point{19, 9, 5}) {
		t.Errorf("unexpected last block %+v", out[1])
	}

	if _, err := BlockMedian([]Point{{100, 100, 1}}, region, 10); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
	if _, err := BlockMedian(pts, region, 3); err == nil {
		t.Error("expected error for spacing that does not divide the region")
	}
}

func TestSurface_RegionAndSpacingMatchRequest(t *testing.T) {
	region := domain.Region{XMin: -40000, XMax: 40000, YMin: -20000, YMax: 30000}
	spacing := 5000.0

	var pts []Point
	for x := -40000.0; x <= 40000; x += 7000 {
		for y := -20000.0; y <= 30000; y += 6000 {
			pts = append(pts, Point{x, y, 0.001*x - 0.002*y})
		}
	}

	g, err := Surface(pts, region, spacing, DefaultSurfaceOptions())
	if err != nil {
		t.Fatalf("Surface: %v", err)
	}
	if g.Region() != region {
		t.Errorf("expected region %v, got %v", region, g.Region())
	}
	dx, dy := g.Spacing()
	if dx != spacing || dy != spacing {
		t.Errorf("expected spacing %v, got (%v, %v)", spacing, dx, dy)
	}
	if s := g.Stats(); s.NaN != 0 {
		t.Errorf("expected dense data to leave no masked nodes, got %d", s.NaN)
	}
}

func TestSurface_ConstantAndExactData(t *testing.T) {
	region := domain.Region{XMin: 0, XMax: 80, YMin: 0, YMax: 80}
	var pts []Point
	for x := 0.0; x <= 80; x += 20 {
		for y := 0.0; y <= 80; y += 20 {
			pts = append(pts, Point{x, y, 5})
		}
	}
	pts[0].Z = 5 // corner stays constrained

	opts := DefaultSurfaceOptions()
	opts.MaskRadius = 0
	g, err := Surface(pts, region, 10, opts)
	if err != nil {
		t.Fatalf("Surface: %v", err)
	}
	for i, row := range g.Values {
		for j, v := range row {
			if math.Abs(v-5) > 1e-9 {
				t.Fatalf("node (%d,%d): expected 5, got %v", i, j, v)
			}
		}
	}

	// Data on nodes are honoured exactly.
	pts = []Point{{0, 0, 1}, {40, 40, 9}, {80, 80, -3}}
	g, err = Surface(pts, region, 10, opts)
	if err != nil {
		t.Fatalf("Surface: %v", err)
	}
	if g.Values[0][0] != 1 || g.Values[4][4] != 9 || g.Values[8][8] != -3 {
		t.Errorf("constrained nodes changed: %v %v %v", g.Values[0][0], g.Values[4][4], g.Values[8][8])
	}
}

func TestSurface_Mask(t *testing.T) {
	region := domain.Region{XMin: 0, XMax: 100, YMin: 0, YMax: 100}
	pts := []Point{{0, 0, 1}, {10, 0, 2}, {0, 10, 3}}

	g, err := Surface(pts, region, 10, DefaultSurfaceOptions())
	if err != nil {
		t.Fatalf("Surface: %v", err)
	}
	if math.IsNaN(g.Values[3][0]) || math.IsNaN(g.Values[1][2]) {
		t.Error("expected nodes within two cells to be kept")
	}
	if !math.IsNaN(g.Values[4][0]) || !math.IsNaN(g.Values[10][10]) || !math.IsNaN(g.Values[2][2]) {
		t.Error("expected distant nodes to be masked")
	}
}

func TestSurface_InvalidOptions(t *testing.T) {
	region := domain.Region{XMin: 0, XMax: 10, YMin: 0, YMax: 10}
	opts := DefaultSurfaceOptions()
	opts.Tension = 1.5
	if _, err := Surface([]Point{{5, 5, 1}}, region, 5, opts); err == nil {
		t.Error("expected error for tension > 1")
	}
	if _, err := Surface(nil, region, 5, DefaultSurfaceOptions()); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestGaussianFilter(t *testing.T) {
	src, err := grid.New(domain.Region{XMin: 0, XMax: 100, YMin: 0, YMax: 100}, 5)
	if err != nil {
		t.Fatal(err)
	}
	src.Name = "bed"
	src.FillNaN(7)
	src.Values[10][10] = math.NaN() // (50, 50)
	src.Values[0][1] = math.NaN()   // (5, 0), neighbour of the (0, 0) output node

	region := domain.Region{XMin: 0, XMax: 100, YMin: 0, YMax: 100}
	out, err := GaussianFilter(src, 20, region, 25)
	if err != nil {
		t.Fatalf("GaussianFilter: %v", err)
	}
	if out.Region() != region || out.Name != "bed" {
		t.Errorf("unexpected output region %v name %q", out.Region(), out.Name)
	}
	nx, ny := out.Dims()
	if nx != 5 || ny != 5 {
		t.Fatalf("expected 5x5, got %dx%d", nx, ny)
	}
	if !math.IsNaN(out.Values[2][2]) {
		t.Errorf("expected NaN where the input is NaN, got %v", out.Values[2][2])
	}
	if math.Abs(out.Values[0][0]-7) > 1e-12 {
		t.Errorf("expected neighbour NaN to be ignored, got %v", out.Values[0][0])
	}
	if math.Abs(out.Values[4][4]-7) > 1e-12 {
		t.Errorf("expected 7, got %v", out.Values[4][4])
	}

	if _, err := GaussianFilter(src, 0, region, 25); err == nil {
		t.Error("expected error for zero width")
	}
}
