// Package raster reads GeoTIFF and NetCDF rasters into grids and writes grids
// back out as NetCDF.
package raster

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.ngs.io/antgrid/internal/grid"
)

// Load reads path as a grid, choosing the decoder by file extension.
func Load(path string) (*grid.Grid, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".tif", ".tiff":
		return ReadGeoTIFF(path)
	case ".nc", ".grd", ".cdf":
		return ReadNetCDF(path)
	default:
		return nil, fmt.Errorf("unsupported raster format %q: %s", ext, path)
	}
}
