package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.ngs.io/antgrid/internal/adapter/fetch"
	"go.ngs.io/antgrid/internal/adapter/gridding"
	"go.ngs.io/antgrid/internal/adapter/raster"
	"go.ngs.io/antgrid/internal/adapter/store/gridcache"
	"go.ngs.io/antgrid/internal/catalog"
	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/grid"
)

// fakeFetcher serves fixed files per dataset.
type fakeFetcher struct {
	files map[string]string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, spec domain.DatasetSpec, layer string) (fetch.CachedFile, error) {
	f.calls++
	if f.err != nil {
		return fetch.CachedFile{}, f.err
	}
	p, ok := f.files[spec.Name+"/"+layer]
	if !ok {
		return fetch.CachedFile{}, fmt.Errorf("no fixture for %s/%s", spec.Name, layer)
	}
	return fetch.CachedFile{Path: p, Download: p, URL: spec.URL, SHA256: "sha-" + spec.Name + layer}, nil
}

func newServiceWithSurface(t *testing.T, f *fakeFetcher, cache GridCache, surface gridding.SurfaceOptions) *Service {
	t.Helper()
	svc, err := NewService(Options{Fetcher: f, Cache: cache, Surface: surface, Out: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func newService(t *testing.T, f *fakeFetcher, cache GridCache) *Service {
	t.Helper()
	svc, err := NewService(Options{Fetcher: f, Cache: cache, Out: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

// writeSurface writes a small bedmap2-like surface raster with ocean cells
// stored as missing.
func writeSurface(t *testing.T, dir string) string {
	t.Helper()
	g, err := grid.New(domain.Region{XMin: -2000, XMax: 2000, YMin: -1000, YMax: 1000}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	for i := range g.Values {
		for j := range g.Values[i] {
			if j >= 3 {
				g.Values[i][j] = 100 * float64(i+1)
			}
		}
	}
	path := filepath.Join(dir, "bedmap2_surface.nc")
	if err := raster.WriteNetCDF(path, g); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBedmap2_SurfaceFillsZero(t *testing.T) {
	dir := t.TempDir()
	surface := writeSurface(t, dir)
	f := &fakeFetcher{files: map[string]string{"bedmap2/surface": surface, "bedmap2/bed": surface}}
	svc := newService(t, f, nil)

	g, err := svc.Bedmap2(context.Background(), "surface")
	if err != nil {
		t.Fatalf("Bedmap2(surface): %v", err)
	}
	if g.Name != "bedmap2_surface" || g.Units != "m" || g.CRS != grid.EPSG3031 {
		t.Errorf("unexpected metadata %s %s %s", g.Name, g.Units, g.CRS)
	}
	if s := g.Stats(); s.NaN != 0 {
		t.Fatalf("expected no missing cells, got %d", s.NaN)
	}
	if g.Values[0][0] != 0 || g.Values[2][4] != 300 {
		t.Errorf("expected ocean 0 and ice 300, got %g and %g", g.Values[0][0], g.Values[2][4])
	}

	// Layers not flagged keep their missing cells.
	bed, err := svc.Bedmap2(context.Background(), "bed")
	if err != nil {
		t.Fatalf("Bedmap2(bed): %v", err)
	}
	if !math.IsNaN(bed.Values[0][0]) {
		t.Errorf("expected NaN in bed layer, got %g", bed.Values[0][0])
	}
}

func TestBedmap2_UnknownLayer(t *testing.T) {
	svc := newService(t, &fakeFetcher{}, nil)

	_, err := svc.Bedmap2(context.Background(), "icebergs")
	var de *domain.DatasetError
	if !errors.As(err, &de) || de.Stage != domain.StageSelect {
		t.Fatalf("expected select-stage DatasetError, got %v", err)
	}
	if !errors.Is(err, domain.ErrUnknownLayer) {
		t.Errorf("expected ErrUnknownLayer, got %v", err)
	}
}

func writeTable(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGravity_EmptyTableIsParseError(t *testing.T) {
	dir := t.TempDir()
	path := writeTable(t, dir, "ant4d.dat", "AntGG update\nunits mGal\nid lat lon FA Err DG BA\n")
	svc := newService(t, &fakeFetcher{files: map[string]string{"gravity/FA": path}}, nil)

	_, err := svc.Gravity(context.Background(), "FA", domain.Region{}, 0)
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if !errors.Is(err, domain.ErrEmptyTable) {
		t.Errorf("expected ErrEmptyTable, got %v", err)
	}
	var de *domain.DatasetError
	if !errors.As(err, &de) || de.Dataset != catalog.Gravity || de.Stage != domain.StageMaterialize {
		t.Errorf("expected materialize DatasetError for gravity, got %v", err)
	}
}

// magneticsTable writes points on two rings around the pole.
func magneticsTable(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	for _, lat := range []float64{-89.9, -89.8} {
		for lon := -180.0; lon < 180; lon += 15 {
			fmt.Fprintf(&b, "%.3f %.3f %.1f\n", lat, lon, 42.0)
		}
	}
	return writeTable(t, dir, "ant_new.dat", b.String())
}

func TestMagnetics_RegionAndSpacingMatchRequest(t *testing.T) {
	dir := t.TempDir()
	path := magneticsTable(t, dir)
	svc := newService(t, &fakeFetcher{files: map[string]string{"magnetics/nT": path}}, nil)
	region := domain.Region{XMin: -30000, XMax: 30000, YMin: -30000, YMax: 30000}

	res, err := svc.Grid(context.Background(), Request{Dataset: catalog.Magnetics, Region: region, Spacing: 5000})
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	g := res.Grid
	if g.Region() != region {
		t.Errorf("expected region %s, got %s", region, g.Region())
	}
	if dx, dy := g.Spacing(); dx != 5000 || dy != 5000 {
		t.Errorf("expected 5000 spacing, got %g %g", dx, dy)
	}
	if g.Name != "magnetics_nT" || g.Units != "nT" {
		t.Errorf("unexpected metadata %s %s", g.Name, g.Units)
	}
	// Constant input yields a constant surface where not masked.
	for _, v := range g.Finite() {
		if math.Abs(v-42) > 1e-3 {
			t.Fatalf("expected 42 everywhere, got %g", v)
		}
	}
	if len(g.Finite()) == 0 {
		t.Fatal("expected finite nodes near the data")
	}
}

func TestMagnetics_InvalidLatitudeIsProjectionError(t *testing.T) {
	dir := t.TempDir()
	path := writeTable(t, dir, "ant_new.dat", "-89.9 0 1\n-95.0 10 2\n")
	svc := newService(t, &fakeFetcher{files: map[string]string{"magnetics/nT": path}}, nil)

	_, err := svc.Magnetics(context.Background(), domain.Region{XMin: 0, XMax: 10000, YMin: 0, YMax: 10000}, 5000)
	var pe *domain.ProjectionError
	if !errors.As(err, &pe) || pe.Lat != -95 {
		t.Fatalf("expected ProjectionError for lat -95, got %v", err)
	}
}

func TestGrid_UsesGridCache(t *testing.T) {
	dir := t.TempDir()
	path := magneticsTable(t, dir)
	cache, err := gridcache.New(filepath.Join(dir, "grids"))
	if err != nil {
		t.Fatal(err)
	}
	svc := newService(t, &fakeFetcher{files: map[string]string{"magnetics/nT": path}}, cache)
	req := Request{Dataset: catalog.Magnetics, Region: domain.Region{XMin: -20000, XMax: 20000, YMin: -20000, YMax: 20000}, Spacing: 5000}

	first, err := svc.Grid(context.Background(), req)
	if err != nil || first.FromCache {
		t.Fatalf("first Grid: cached=%v err=%v", first.FromCache, err)
	}
	// The source is no longer readable, so only the cache can answer.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	second, err := svc.Grid(context.Background(), req)
	if err != nil {
		t.Fatalf("second Grid: %v", err)
	}
	if !second.FromCache || !second.Grid.Equal(first.Grid) {
		t.Errorf("expected identical grid from cache")
	}
}

func TestGrid_CacheKeyIncludesSurfaceOptions(t *testing.T) {
	dir := t.TempDir()
	path := magneticsTable(t, dir)
	cache, err := gridcache.New(filepath.Join(dir, "grids"))
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeFetcher{files: map[string]string{"magnetics/nT": path}}
	req := Request{Dataset: catalog.Magnetics, Region: domain.Region{XMin: -20000, XMax: 20000, YMin: -20000, YMax: 20000}, Spacing: 5000}

	defaults := newService(t, f, cache)
	if _, err := defaults.Grid(context.Background(), req); err != nil {
		t.Fatalf("Grid with defaults: %v", err)
	}

	tense := gridding.DefaultSurfaceOptions()
	tense.Tension = 0.35
	tense.MaskRadius = 0
	res, err := newServiceWithSurface(t, f, cache, tense).Grid(context.Background(), req)
	if err != nil {
		t.Fatalf("Grid with tension: %v", err)
	}
	if res.FromCache {
		t.Errorf("expected different surface options to miss the grid cache")
	}

	res, err = defaults.Grid(context.Background(), req)
	if err != nil {
		t.Fatalf("Grid with defaults again: %v", err)
	}
	if !res.FromCache {
		t.Errorf("expected default options to hit their own cache entry")
	}
}

func TestGrid_PathDataset(t *testing.T) {
	dir := t.TempDir()
	tif := writeTable(t, dir, "00000-20080319-092059124.tif", "not really a tiff")
	svc := newService(t, &fakeFetcher{files: map[string]string{"imagery/": tif}}, nil)

	path, err := svc.Imagery(context.Background())
	if err != nil || path != tif {
		t.Fatalf("Imagery: %q %v", path, err)
	}
	res, err := svc.Grid(context.Background(), Request{Dataset: catalog.Imagery, Info: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Grid != nil || res.File.Path != tif {
		t.Errorf("expected path-only result, got %+v", res)
	}
}

func TestGrid_FetchErrorStages(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		stage domain.Stage
	}{
		{"network", &domain.FetchError{URL: "https://example.test/a.zip", Err: errors.New("connection refused")}, domain.StageFetch},
		{"selection", &domain.SelectionError{Archive: "bedmap2_tiff.zip", Selector: domain.Selector{Index: 29, Name: "bedmap2_bed.tif"}, Reason: "archive layout changed"}, domain.StageSelect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, &fakeFetcher{err: tt.err}, nil)
			_, err := svc.Bedmap2(context.Background(), "bed")
			var de *domain.DatasetError
			if !errors.As(err, &de) {
				t.Fatalf("expected DatasetError, got %v", err)
			}
			if de.Stage != tt.stage || de.Dataset != catalog.Bedmap2 || de.Layer != "bed" {
				t.Errorf("unexpected error context %+v", de)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("expected cause in chain")
			}
		})
	}
}

func TestGrid_InfoRunsAfterMaterialize(t *testing.T) {
	dir := t.TempDir()
	surface := writeSurface(t, dir)
	var out bytes.Buffer
	svc, err := NewService(Options{Fetcher: &fakeFetcher{files: map[string]string{"bedmap2/surface": surface}}, Out: &out})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Grid(context.Background(), Request{Dataset: catalog.Bedmap2, Layer: "surface", Info: true})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Report.OK() || !strings.Contains(out.String(), "name: bedmap2_surface") {
		t.Errorf("expected summary, got %q (%v)", out.String(), res.Report.Errors)
	}
}

func TestUnknownDataset(t *testing.T) {
	svc := newService(t, &fakeFetcher{}, nil)
	if _, err := svc.Grid(context.Background(), Request{Dataset: "bedmap3"}); !errors.Is(err, domain.ErrUnknownDataset) {
		t.Errorf("expected ErrUnknownDataset, got %v", err)
	}
}
