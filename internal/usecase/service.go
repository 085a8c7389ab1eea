package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"go.ngs.io/antgrid/internal/adapter/fetch"
	"go.ngs.io/antgrid/internal/adapter/gridding"
	"go.ngs.io/antgrid/internal/adapter/proj"
	"go.ngs.io/antgrid/internal/adapter/store/gridcache"
	"go.ngs.io/antgrid/internal/catalog"
	"go.ngs.io/antgrid/internal/diag"
	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/grid"
)

// Fetcher resolves a dataset layer to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, spec domain.DatasetSpec, layer string) (fetch.CachedFile, error)
}

// GridCache stores materialized grids between runs.
type GridCache interface {
	Get(key string) (*grid.Grid, bool, error)
	Put(key string, g *grid.Grid) error
}

// Request encapsulates a dataset grid request.
type Request struct {
	Dataset string
	// Layer is the archive layer (bedmap2) or value column (gravity).
	Layer string
	// Region and Spacing default to the dataset's documented extent.
	Region  domain.Region
	Spacing float64

	// Optional diagnostics run after materialization.
	Plot     bool
	PlotPath string
	Info     bool
}

// Result is a fetched file and, for gridded datasets, its grid.
type Result struct {
	Dataset string
	Layer   string
	File    fetch.CachedFile
	// Grid is nil for path-only datasets.
	Grid   *grid.Grid
	Report diag.Report
	// FromCache reports that Grid came from the grid cache.
	FromCache bool
}

// Options configures a Service.
type Options struct {
	Fetcher Fetcher
	// Cache is optional.
	Cache   GridCache
	Surface gridding.SurfaceOptions
	Logger  *zap.SugaredLogger
	// Out receives info summaries. Defaults to os.Stdout.
	Out io.Writer
}

// Service orchestrates fetch, materialize and inspect for catalog datasets.
type Service struct {
	fetcher Fetcher
	cache   GridCache
	surface gridding.SurfaceOptions
	proj    *proj.Stereographic
	log     *zap.SugaredLogger
	out     io.Writer
}

// NewService creates a new dataset service.
func NewService(opts Options) (*Service, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	surface := opts.Surface
	if surface == (gridding.SurfaceOptions{}) {
		surface = gridding.DefaultSurfaceOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		fetcher: opts.Fetcher,
		cache:   opts.Cache,
		surface: surface,
		proj:    proj.EPSG3031(),
		log:     logger,
		out:     opts.Out,
	}, nil
}

// Datasets lists the catalog.
func (s *Service) Datasets() []domain.DatasetSpec {
	return catalog.All()
}

// Dataset returns one catalog entry.
func (s *Service) Dataset(name string) (domain.DatasetSpec, error) {
	return catalog.Lookup(name)
}

// Fetch downloads (or reuses) the file behind a dataset layer.
func (s *Service) Fetch(ctx context.Context, name, layer string) (fetch.CachedFile, error) {
	spec, err := catalog.Lookup(name)
	if err != nil {
		return fetch.CachedFile{}, err
	}
	resolved, err := spec.ResolveLayer(layer)
	if err != nil {
		return fetch.CachedFile{}, &domain.DatasetError{Dataset: name, Layer: layer, Stage: domain.StageSelect, Err: err}
	}
	return s.fetch(ctx, spec, resolved)
}

func (s *Service) fetch(ctx context.Context, spec domain.DatasetSpec, layer string) (fetch.CachedFile, error) {
	cf, err := s.fetcher.Fetch(ctx, spec, layer)
	if err != nil {
		stage := domain.StageFetch
		var se *domain.SelectionError
		if errors.As(err, &se) || errors.Is(err, domain.ErrUnknownLayer) {
			stage = domain.StageSelect
		}
		return fetch.CachedFile{}, &domain.DatasetError{Dataset: spec.Name, Layer: layer, Stage: stage, Err: err}
	}
	return cf, nil
}

// Imagery returns the path of the LIMA mosaic GeoTIFF.
func (s *Service) Imagery(ctx context.Context) (string, error) {
	cf, err := s.Fetch(ctx, catalog.Imagery, "")
	return cf.Path, err
}

// GroundingLine returns the path of the grounding line shapefile.
func (s *Service) GroundingLine(ctx context.Context) (string, error) {
	cf, err := s.Fetch(ctx, catalog.GroundingLine, "")
	return cf.Path, err
}

// Basement returns the Ross Embayment basement topography grid.
func (s *Service) Basement(ctx context.Context) (*grid.Grid, error) {
	return s.grid(ctx, Request{Dataset: catalog.Basement})
}

// Bedmap2 returns one Bedmap2 layer: thickness, bed, surface or geoid2wgs.
func (s *Service) Bedmap2(ctx context.Context, layer string) (*grid.Grid, error) {
	return s.grid(ctx, Request{Dataset: catalog.Bedmap2, Layer: layer})
}

// DeepBedMap returns the DeepBedMap DEM filtered onto region at spacing.
// A zero region or spacing selects the documented default.
func (s *Service) DeepBedMap(ctx context.Context, region domain.Region, spacing float64) (*grid.Grid, error) {
	return s.grid(ctx, Request{Dataset: catalog.DeepBedMap, Region: region, Spacing: spacing})
}

// Gravity grids the free-air ("FA") or Bouguer ("BA") anomaly.
func (s *Service) Gravity(ctx context.Context, kind string, region domain.Region, spacing float64) (*grid.Grid, error) {
	return s.grid(ctx, Request{Dataset: catalog.Gravity, Layer: kind, Region: region, Spacing: spacing})
}

// Magnetics grids the ADMAP magnetic anomaly.
func (s *Service) Magnetics(ctx context.Context, region domain.Region, spacing float64) (*grid.Grid, error) {
	return s.grid(ctx, Request{Dataset: catalog.Magnetics, Region: region, Spacing: spacing})
}

func (s *Service) grid(ctx context.Context, req Request) (*grid.Grid, error) {
	res, err := s.Grid(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Grid, nil
}

// Grid runs the full pipeline for req: fetch, materialize and, when
// requested, inspect. Path-only datasets return their file with a nil grid.
func (s *Service) Grid(ctx context.Context, req Request) (Result, error) {
	spec, err := catalog.Lookup(req.Dataset)
	if err != nil {
		return Result{}, err
	}
	layer, err := spec.ResolveLayer(req.Layer)
	if err != nil {
		return Result{}, &domain.DatasetError{Dataset: spec.Name, Layer: req.Layer, Stage: domain.StageSelect, Err: err}
	}
	region, spacing := Extent(spec, req.Region, req.Spacing)
	res := Result{Dataset: spec.Name, Layer: layer}

	if res.File, err = s.fetch(ctx, spec, layer); err != nil {
		return Result{}, err
	}
	if spec.Mode == domain.ModePath {
		if req.Plot || req.Info {
			s.log.Warnw("diagnostics skipped for path-only dataset", "dataset", spec.Name)
		}
		return res, nil
	}

	key := gridcache.Key(spec.Name, layer, region.String(), strconv.FormatFloat(spacing, 'g', -1, 64),
		res.File.SHA256, s.surface.String())
	if s.cache != nil && res.File.SHA256 != "" {
		g, ok, err := s.cache.Get(key)
		if err != nil {
			s.log.Warnw("grid cache read failed", "dataset", spec.Name, "error", err)
		}
		if ok {
			res.Grid, res.FromCache = g, true
		}
	}

	if res.Grid == nil {
		g, err := s.Materialize(ctx, spec, res.File.Path, MaterializeOptions{Layer: layer, Region: region, Spacing: spacing})
		if err != nil {
			return Result{}, &domain.DatasetError{Dataset: spec.Name, Layer: layer, Stage: domain.StageMaterialize, Err: err}
		}
		res.Grid = g
		if s.cache != nil && res.File.SHA256 != "" {
			if err := s.cache.Put(key, g); err != nil {
				s.log.Warnw("grid cache write failed", "dataset", spec.Name, "error", err)
			}
		}
	}

	s.log.Infow("grid ready",
		"dataset", spec.Name,
		"layer", layer,
		"region", res.Grid.Region().String(),
		"cached", res.FromCache,
	)

	if req.Plot || req.Info {
		_, res.Report = s.Inspect(ctx, res.Grid, diag.Options{Plot: req.Plot, PlotPath: req.PlotPath, Info: req.Info})
	}
	return res, nil
}

// Inspect runs diagnostics on g. Failures are reported, never fatal.
func (s *Service) Inspect(ctx context.Context, g *grid.Grid, opts diag.Options) (*grid.Grid, diag.Report) {
	if opts.Logger == nil {
		opts.Logger = s.log
	}
	if opts.Out == nil {
		opts.Out = s.out
	}
	return diag.Inspect(ctx, g, opts)
}

// Extent applies the dataset defaults to a requested region and spacing.
// Raster datasets without a documented extent keep a zero region, meaning
// the native raster.
func Extent(spec domain.DatasetSpec, region domain.Region, spacing float64) (domain.Region, float64) {
	if region.IsZero() {
		region = spec.DefaultRegion
	}
	if spacing <= 0 {
		spacing = spec.DefaultSpacing
	}
	return region, spacing
}

// String identifies a request in logs and cache keys.
func (r Request) String() string {
	return fmt.Sprintf("%s/%s/%s/%g", r.Dataset, r.Layer, r.Region, r.Spacing)
}
