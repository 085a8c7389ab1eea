package usecase

import (
	"context"
	"fmt"

	"go.ngs.io/antgrid/internal/adapter/gridding"
	"go.ngs.io/antgrid/internal/adapter/raster"
	"go.ngs.io/antgrid/internal/adapter/table"
	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/grid"
)

// MaterializeOptions selects the layer and lattice of a materialized grid.
type MaterializeOptions struct {
	Layer   string
	Region  domain.Region
	Spacing float64
}

// Materialize turns the fetched file at path into a grid following the
// dataset's mode.
func (s *Service) Materialize(ctx context.Context, spec domain.DatasetSpec, path string, opts MaterializeOptions) (*grid.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		g   *grid.Grid
		err error
	)
	switch spec.Mode {
	case domain.ModeRaster:
		g, err = s.loadRaster(path, opts)
	case domain.ModeScattered:
		g, err = s.gridPoints(ctx, spec, path, opts)
	case domain.ModeFiltered:
		g, err = s.filterRaster(path, opts)
	default:
		return nil, fmt.Errorf("%w: %s is a %s dataset", domain.ErrNotGridded, spec.Name, spec.Mode)
	}
	if err != nil {
		return nil, err
	}

	g.Name = gridName(spec, opts.Layer)
	if spec.Units != "" {
		g.Units = spec.Units
	}
	g.CRS = grid.EPSG3031
	if spec.FillZero[opts.Layer] {
		n := g.FillNaN(0)
		s.log.Debugw("filled missing cells with zero", "dataset", spec.Name, "layer", opts.Layer, "cells", n)
	}
	return g, nil
}

func gridName(spec domain.DatasetSpec, layer string) string {
	if layer == "" {
		return spec.Name
	}
	return spec.Name + "_" + layer
}

// loadRaster reads a raster as-is, or resamples it when a region is given.
func (s *Service) loadRaster(path string, opts MaterializeOptions) (*grid.Grid, error) {
	src, err := raster.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.Region.IsZero() {
		return src, nil
	}
	spacing := opts.Spacing
	if spacing <= 0 {
		spacing, _ = src.Spacing()
	}
	dst, err := grid.New(opts.Region, spacing)
	if err != nil {
		return nil, err
	}
	if err := src.Resample(dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// filterRaster low-passes a dense raster with a Gaussian as wide as the
// output spacing before sampling it.
func (s *Service) filterRaster(path string, opts MaterializeOptions) (*grid.Grid, error) {
	src, err := raster.Load(path)
	if err != nil {
		return nil, err
	}
	return gridding.GaussianFilter(src, opts.Spacing, opts.Region, opts.Spacing)
}

// gridPoints projects a lat/lon table to polar stereographic, decimates it
// with a block median and fits a surface.
func (s *Service) gridPoints(ctx context.Context, spec domain.DatasetSpec, path string, opts MaterializeOptions) (*grid.Grid, error) {
	t, err := table.ReadFile(path, spec.Table)
	if err != nil {
		return nil, err
	}
	lats, err := t.Values(spec.Table.Lat)
	if err != nil {
		return nil, &domain.ParseError{Path: path, Err: err}
	}
	lons, err := t.Values(spec.Table.Lon)
	if err != nil {
		return nil, &domain.ParseError{Path: path, Err: err}
	}
	zs, err := t.Values(opts.Layer)
	if err != nil {
		return nil, &domain.ParseError{Path: path, Err: err}
	}
	xs, ys, err := s.proj.ForwardAll(lats, lons)
	if err != nil {
		return nil, err
	}

	pts := make([]gridding.Point, len(zs))
	for i := range zs {
		pts[i] = gridding.Point{X: xs[i], Y: ys[i], Z: zs[i]}
	}

	blocks, err := gridding.BlockMedian(pts, opts.Region, opts.Spacing)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.log.Debugw("block median",
		"dataset", spec.Name,
		"points", len(pts),
		"blocks", len(blocks),
	)
	return gridding.Surface(blocks, opts.Region, opts.Spacing, s.surface)
}
