package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/ctessum/requestcache"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"go.ngs.io/antgrid/internal/adapter/proj"
	"go.ngs.io/antgrid/internal/adapter/raster"
	"go.ngs.io/antgrid/internal/diag"
	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/grid"
	"go.ngs.io/antgrid/internal/usecase"
)

// Handler handles HTTP requests for dataset grids.
type Handler struct {
	svc   *usecase.Service
	grids *requestcache.Cache
	proj  *proj.Stereographic
	log   *zap.SugaredLogger
}

// NewHandler creates a new HTTP handler. Identical concurrent grid requests
// are computed once and the last cacheSize grids are kept in memory.
func NewHandler(svc *usecase.Service, cacheSize int, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &Handler{svc: svc, proj: proj.EPSG3031(), log: logger}
	h.grids = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
		return svc.Grid(ctx, request.(usecase.Request))
	}, runtime.GOMAXPROCS(-1),
		requestcache.Deduplicate(), requestcache.Memory(cacheSize))
	return h
}

// DatasetInfo is the catalog entry returned by the API.
type DatasetInfo struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Reference      string         `json:"reference"`
	URL            string         `json:"url"`
	Mode           string         `json:"mode"`
	Layers         []string       `json:"layers,omitempty"`
	DefaultLayer   string         `json:"default_layer,omitempty"`
	Units          string         `json:"units,omitempty"`
	DefaultRegion  *domain.Region `json:"default_region,omitempty"`
	DefaultSpacing float64        `json:"default_spacing,omitempty"`
	Pinned         bool           `json:"pinned"`
}

func datasetInfo(d domain.DatasetSpec) DatasetInfo {
	info := DatasetInfo{
		Name:           d.Name,
		Description:    d.Description,
		Reference:      d.Reference,
		URL:            d.URL,
		Mode:           d.ModeName(),
		Layers:         d.LayerNames(),
		DefaultLayer:   d.DefaultLayer,
		Units:          d.Units,
		DefaultSpacing: d.DefaultSpacing,
		Pinned:         d.SHA256 != "",
	}
	if !d.DefaultRegion.IsZero() {
		r := d.DefaultRegion
		info.DefaultRegion = &r
	}
	return info
}

// ListDatasets handles GET /v1/datasets.
func (h *Handler) ListDatasets(c *gin.Context) {
	specs := h.svc.Datasets()
	response := make([]DatasetInfo, len(specs))
	for i, d := range specs {
		response[i] = datasetInfo(d)
	}

	c.JSON(http.StatusOK, gin.H{
		"datasets": response,
		"count":    len(response),
	})
}

// GetDataset handles GET /v1/datasets/:name.
func (h *Handler) GetDataset(c *gin.Context) {
	d, err := h.svc.Dataset(c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, datasetInfo(d))
}

// GetFile handles GET /v1/datasets/:name/file and streams the cached file.
func (h *Handler) GetFile(c *gin.Context) {
	cf, err := h.svc.Fetch(c.Request.Context(), c.Param("name"), c.Query("layer"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("X-Content-SHA256", cf.SHA256)
	c.FileAttachment(cf.Path, filepath.Base(cf.Path))
}

// GetGrid handles GET /v1/datasets/:name/grid.
// format=json (default), netcdf or msgpack.
func (h *Handler) GetGrid(c *gin.Context) {
	g, ok := h.grid(c)
	if !ok {
		return
	}

	switch format := c.DefaultQuery("format", "json"); format {
	case "json":
		c.JSON(http.StatusOK, gridResponse(g))
	case "msgpack":
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(g); err != nil {
			h.fail(c, err)
			return
		}
		c.Data(http.StatusOK, "application/msgpack", buf.Bytes())
	case "netcdf":
		tmp := filepath.Join(os.TempDir(), "antgrid-"+uuid.NewString()+".nc")
		defer os.Remove(tmp) //nolint:errcheck
		if err := raster.WriteNetCDF(tmp, g); err != nil {
			h.fail(c, err)
			return
		}
		c.FileAttachment(tmp, g.Name+".nc")
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown format %q (expected json, netcdf or msgpack)", format)})
	}
}

// GetInfo handles GET /v1/datasets/:name/info.
func (h *Handler) GetInfo(c *gin.Context) {
	g, ok := h.grid(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := diag.WriteInfo(&buf, g); err != nil {
		h.fail(c, &domain.RenderError{Op: "info", Err: err})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

// GetPlot handles GET /v1/datasets/:name/plot.png.
func (h *Handler) GetPlot(c *gin.Context) {
	g, ok := h.grid(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := diag.WritePlot(&buf, g); err != nil {
		h.fail(c, &domain.RenderError{Op: "plot", Err: err})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// SampleResponse is a single bilinear sample of a grid.
type SampleResponse struct {
	Dataset string   `json:"dataset"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Value   *float64 `json:"value"`
	Units   string   `json:"units,omitempty"`
}

// GetSample handles GET /v1/datasets/:name/sample.
// The point is given as x/y in EPSG:3031 metres or as lat/lon.
func (h *Handler) GetSample(c *gin.Context) {
	x, y, err := h.samplePoint(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g, ok := h.grid(c)
	if !ok {
		return
	}
	v, err := g.InterpolateAt(x, y)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := SampleResponse{Dataset: g.Name, X: x, Y: y, Units: g.Units}
	if !math.IsNaN(v) {
		resp.Value = &v
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) samplePoint(c *gin.Context) (x, y float64, err error) {
	if c.Query("lat") != "" || c.Query("lon") != "" {
		lat, err := strconv.ParseFloat(c.Query("lat"), 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid latitude: %w", err)
		}
		lon, err := strconv.ParseFloat(c.Query("lon"), 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid longitude: %w", err)
		}
		return h.proj.Forward(lat, lon)
	}
	if x, err = strconv.ParseFloat(c.Query("x"), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid x: %w", err)
	}
	if y, err = strconv.ParseFloat(c.Query("y"), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid y: %w", err)
	}
	return x, y, nil
}

// grid parses the grid query and resolves it through the request cache.
// On failure the response has been written.
func (h *Handler) grid(c *gin.Context) (*grid.Grid, bool) {
	req := usecase.Request{
		Dataset: c.Param("name"),
		Layer:   c.Query("layer"),
	}

	if s := c.Query("region"); s != "" {
		r, err := domain.ParseRegion(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		req.Region = r
	}
	if s := c.Query("spacing"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid spacing %q", s)})
			return nil, false
		}
		req.Spacing = v
	}

	result, err := h.grids.NewRequest(c.Request.Context(), req, req.String()).Result()
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	res := result.(usecase.Result)
	if res.Grid == nil {
		h.fail(c, fmt.Errorf("%w: %s", domain.ErrNotGridded, res.Dataset))
		return nil, false
	}
	return res.Grid, true
}

// fail maps pipeline errors to HTTP status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		sel   *domain.SelectionError
		fetch *domain.FetchError
		parse *domain.ParseError
		pe    *domain.ProjectionError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownDataset):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownLayer), errors.As(err, &pe):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotGridded):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &sel), errors.As(err, &fetch):
		status = http.StatusBadGateway
	case errors.As(err, &parse):
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.log.Errorw("request failed", "path", c.Request.URL.Path, "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// GridResponse is the JSON form of a grid; missing cells are null.
type GridResponse struct {
	Name    string        `json:"name"`
	Units   string        `json:"units,omitempty"`
	CRS     string        `json:"crs"`
	Region  domain.Region `json:"region"`
	Spacing [2]float64    `json:"spacing"`
	X       []float64     `json:"x"`
	Y       []float64     `json:"y"`
	Values  [][]*float64  `json:"values"`
}

func gridResponse(g *grid.Grid) GridResponse {
	dx, dy := g.Spacing()
	values := make([][]*float64, len(g.Values))
	for i, row := range g.Values {
		out := make([]*float64, len(row))
		for j := range row {
			if !math.IsNaN(row[j]) {
				out[j] = &row[j]
			}
		}
		values[i] = out
	}
	return GridResponse{
		Name:    g.Name,
		Units:   g.Units,
		CRS:     g.CRS,
		Region:  g.Region(),
		Spacing: [2]float64{dx, dy},
		X:       g.X,
		Y:       g.Y,
		Values:  values,
	}
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
