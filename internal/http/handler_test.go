package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/vmihailenco/msgpack/v5"

	"go.ngs.io/antgrid/internal/adapter/fetch"
	"go.ngs.io/antgrid/internal/adapter/raster"
	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/grid"
	"go.ngs.io/antgrid/internal/usecase"
)

type fakeFetcher struct {
	mu    sync.Mutex
	files map[string]string
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, spec domain.DatasetSpec, layer string) (fetch.CachedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	p, ok := f.files[spec.Name+"/"+layer]
	if !ok {
		return fetch.CachedFile{}, &domain.FetchError{URL: spec.URL, Err: fmt.Errorf("404 Not Found")}
	}
	return fetch.CachedFile{Path: p, Download: p, URL: spec.URL, SHA256: "abc"}, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func setupTestRouter(t *testing.T) (*gin.Engine, *fakeFetcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	g, err := grid.New(domain.Region{XMin: -2000, XMax: 2000, YMin: -1000, YMax: 1000}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	for i := range g.Values {
		for j := range g.Values[i] {
			if j > 0 {
				g.Values[i][j] = float64(100*i + j)
			}
		}
	}
	surface := filepath.Join(dir, "bedmap2_surface.nc")
	if err := raster.WriteNetCDF(surface, g); err != nil {
		t.Fatal(err)
	}
	shp := filepath.Join(dir, "GroundingLine_Antarctica_v2.shp")
	if err := os.WriteFile(shp, []byte("shp"), 0o600); err != nil {
		t.Fatal(err)
	}

	f := &fakeFetcher{files: map[string]string{
		"bedmap2/surface": surface,
		"bedmap2/bed":     surface,
		"groundingline/":  shp,
	}}
	svc, err := usecase.NewService(usecase.Options{Fetcher: f, Out: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	return SetupRouter(NewHandler(svc, 4, nil), nil), f
}

func get(router *gin.Engine, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router, _ := setupTestRouter(t)
	w := get(router, "/health")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response %d %s", w.Code, w.Body.String())
	}
}

func TestListDatasets(t *testing.T) {
	router, _ := setupTestRouter(t)
	w := get(router, "/v1/datasets")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Datasets []DatasetInfo `json:"datasets"`
		Count    int           `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 7 || len(resp.Datasets) != 7 {
		t.Fatalf("expected 7 datasets, got %d", resp.Count)
	}
	for _, d := range resp.Datasets {
		if d.Name == "gravity" {
			if d.Mode != "scattered" || d.DefaultRegion == nil || d.DefaultSpacing != 5000 {
				t.Errorf("unexpected gravity entry %+v", d)
			}
		}
	}
}

func TestGetDataset(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := get(router, "/v1/datasets/bedmap2")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"surface"`) {
		t.Errorf("unexpected response %d %s", w.Code, w.Body.String())
	}
	if w := get(router, "/v1/datasets/bedmap3"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetGrid_JSON(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := get(router, "/v1/datasets/bedmap2/grid?layer=bed")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp GridResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Name != "bedmap2_bed" || resp.Spacing != [2]float64{1000, 1000} {
		t.Errorf("unexpected grid metadata %s %v", resp.Name, resp.Spacing)
	}
	if resp.Values[0][0] != nil {
		t.Errorf("expected null for missing cell, got %g", *resp.Values[0][0])
	}
	if v := resp.Values[2][3]; v == nil || *v != 203 {
		t.Errorf("expected 203, got %v", v)
	}

	// The surface layer maps missing cells to zero.
	w = get(router, "/v1/datasets/bedmap2/grid?layer=surface")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if v := resp.Values[0][0]; v == nil || *v != 0 {
		t.Errorf("expected 0 for ocean cell, got %v", v)
	}
}

func TestGetGrid_Formats(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := get(router, "/v1/datasets/bedmap2/grid?layer=bed&format=msgpack")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/msgpack" {
		t.Fatalf("unexpected msgpack response %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	var g grid.Grid
	dec := msgpack.NewDecoder(bytes.NewReader(w.Body.Bytes()))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&g); err != nil {
		t.Fatal(err)
	}
	if g.Name != "bedmap2_bed" || len(g.X) != 5 || len(g.Y) != 3 {
		t.Errorf("unexpected decoded grid %s %dx%d", g.Name, len(g.X), len(g.Y))
	}

	w = get(router, "/v1/datasets/bedmap2/grid?layer=bed&format=netcdf")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	path := filepath.Join(t.TempDir(), "bed.nc")
	if err := os.WriteFile(path, w.Body.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	nc, err := raster.ReadNetCDF(path)
	if err != nil {
		t.Fatalf("ReadNetCDF: %v", err)
	}
	// NetCDF carries no grid name; compare the lattice and values.
	nc.Name, nc.Units = g.Name, g.Units
	if !nc.Equal(&g) {
		t.Errorf("netcdf and msgpack grids differ")
	}

	if w := get(router, "/v1/datasets/bedmap2/grid?layer=bed&format=csv"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown format, got %d", w.Code)
	}
}

func TestGetGrid_Errors(t *testing.T) {
	router, _ := setupTestRouter(t)
	tests := []struct {
		url  string
		code int
	}{
		{"/v1/datasets/bedmap2/grid?layer=icebergs", http.StatusBadRequest},
		{"/v1/datasets/bedmap2/grid?layer=bed&spacing=-5", http.StatusBadRequest},
		{"/v1/datasets/bedmap2/grid?layer=bed&region=1/2/3", http.StatusBadRequest},
		{"/v1/datasets/groundingline/grid", http.StatusUnprocessableEntity},
		{"/v1/datasets/bedmap2/grid?layer=thickness", http.StatusBadGateway},
	}
	for _, tt := range tests {
		if w := get(router, tt.url); w.Code != tt.code {
			t.Errorf("%s: expected %d, got %d (%s)", tt.url, tt.code, w.Code, w.Body.String())
		}
	}
}

func TestGetGrid_CachesIdenticalRequests(t *testing.T) {
	router, f := setupTestRouter(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			get(router, "/v1/datasets/bedmap2/grid?layer=bed")
		}()
	}
	wg.Wait()
	get(router, "/v1/datasets/bedmap2/grid?layer=bed")

	if n := f.count(); n != 1 {
		t.Errorf("expected one pipeline run, got %d", n)
	}
}

func TestGetSample(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := get(router, "/v1/datasets/bedmap2/sample?layer=bed&x=1500&y=0")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp SampleResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	// Midway between 103 and 104 on the middle row.
	if resp.Value == nil || *resp.Value != 103.5 {
		t.Errorf("expected 103.5, got %v", resp.Value)
	}

	// The pole projects to the origin.
	w = get(router, "/v1/datasets/bedmap2/sample?layer=bed&lat=-90&lon=0")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if math.Abs(resp.X) > 1e-6 || math.Abs(resp.Y) > 1e-6 || resp.Value == nil || math.Abs(*resp.Value-102) > 1e-6 {
		t.Errorf("unexpected pole sample %+v", resp)
	}

	if w := get(router, "/v1/datasets/bedmap2/sample?layer=bed&x=9e6&y=0"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 outside grid, got %d", w.Code)
	}
	if w := get(router, "/v1/datasets/bedmap2/sample?layer=bed&x=abc"); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad x, got %d", w.Code)
	}
}

func TestGetInfoAndPlot(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := get(router, "/v1/datasets/bedmap2/info?layer=surface")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "name: bedmap2_surface") {
		t.Errorf("unexpected info %d %s", w.Code, w.Body.String())
	}

	w = get(router, "/v1/datasets/bedmap2/plot.png?layer=surface")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := png.Decode(bytes.NewReader(w.Body.Bytes())); err != nil {
		t.Errorf("expected PNG: %v", err)
	}
}

func TestGetFile(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := get(router, "/v1/datasets/groundingline/file")
	if w.Code != http.StatusOK || w.Body.String() != "shp" {
		t.Errorf("unexpected file response %d %q", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Content-SHA256"); got != "abc" {
		t.Errorf("expected hash header, got %q", got)
	}
}
