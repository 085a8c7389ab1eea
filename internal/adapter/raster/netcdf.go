package raster

import (
	"fmt"
	"math"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/antgrid/internal/grid"
)

var (
	xVarNames    = []string{"x", "easting", "lon", "longitude"}
	yVarNames    = []string{"y", "northing", "lat", "latitude"}
	dataVarNames = []string{"z", "Band1", "elevation", "topo", "data"}
)

// ReadNetCDF loads the first 2-D data variable of a COARDS/CF grid. Degenerate
// dimensions (band, time) of length 1 are squeezed and fill values become NaN.
//
//nolint:gocyclo // Variable-name fallbacks and dimension ordering.
func ReadNetCDF(path string) (*grid.Grid, error) {
	//nolint:gosec // G304: path comes from the dataset cache.
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	xs, err := readAxis(nc, xVarNames)
	if err != nil {
		return nil, fmt.Errorf("x coordinate: %w", err)
	}
	ys, err := readAxis(nc, yVarNames)
	if err != nil {
		return nil, fmt.Errorf("y coordinate: %w", err)
	}

	var dataVar netcdf.Var
	found := false
	for _, name := range dataVarNames {
		if v, err := nc.Var(name); err == nil {
			dataVar = v
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("data variable not found (tried: %v)", dataVarNames)
	}

	dims, err := dataVar.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	shape := make([]uint64, 0, 2)
	for _, d := range dims {
		n, err := d.Len()
		if err != nil {
			return nil, fmt.Errorf("failed to get dimension length: %w", err)
		}
		if n > 1 {
			shape = append(shape, n)
		}
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("expected 2D data after squeezing, got shape %v", shape)
	}

	nx, ny := len(xs), len(ys)
	flat, err := readFloat64s(dataVar, nx*ny)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}

	var values [][]float64
	switch {
	case shape[0] == uint64(ny) && shape[1] == uint64(nx):
		values = reshape(flat, ny, nx)
	case shape[0] == uint64(nx) && shape[1] == uint64(ny):
		values = transpose2D(reshape(flat, nx, ny))
	default:
		return nil, fmt.Errorf("dimension mismatch: data is %v, expected [%d, %d] or [%d, %d]", shape, ny, nx, nx, ny)
	}

	scale, offset := 1.0, 0.0
	if v, ok := floatAttr(dataVar, "scale_factor"); ok {
		scale = v
	}
	if v, ok := floatAttr(dataVar, "add_offset"); ok {
		offset = v
	}
	fill, hasFill := fillValue(dataVar)
	for i := range values {
		for j, v := range values[i] {
			if hasFill && v == fill {
				values[i][j] = math.NaN()
				continue
			}
			values[i][j] = v*scale + offset
		}
	}

	g := &grid.Grid{CRS: grid.EPSG3031, X: xs, Y: ys, Values: values}
	orientAscending(g)
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	return g, nil
}

// WriteNetCDF stores g as a COARDS grid (x, y, z) readable by GMT and GDAL.
func WriteNetCDF(path string, g *grid.Grid) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid grid: %w", err)
	}

	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = ds.Close() }()

	nx, ny := g.Dims()
	xDim, err := ds.AddDim("x", uint64(nx))
	if err != nil {
		return err
	}
	yDim, err := ds.AddDim("y", uint64(ny))
	if err != nil {
		return err
	}

	xVar, err := ds.AddVar("x", netcdf.DOUBLE, []netcdf.Dim{xDim})
	if err != nil {
		return err
	}
	yVar, err := ds.AddVar("y", netcdf.DOUBLE, []netcdf.Dim{yDim})
	if err != nil {
		return err
	}
	zVar, err := ds.AddVar("z", netcdf.DOUBLE, []netcdf.Dim{yDim, xDim})
	if err != nil {
		return err
	}

	attrs := []struct {
		attr  netcdf.Attr
		value string
	}{
		{xVar.Attr("units"), "m"},
		{yVar.Attr("units"), "m"},
		{zVar.Attr("long_name"), g.Name},
		{zVar.Attr("units"), g.Units},
		{ds.Attr("Conventions"), "CF-1.7"},
		{ds.Attr("crs"), g.CRS},
	}
	for _, a := range attrs {
		if a.value == "" {
			continue
		}
		if err := a.attr.WriteBytes([]byte(a.value)); err != nil {
			return fmt.Errorf("failed to write attribute: %w", err)
		}
	}
	if err := zVar.Attr("_FillValue").WriteFloat64s([]float64{math.NaN()}); err != nil {
		return fmt.Errorf("failed to write fill value: %w", err)
	}

	if err := ds.EndDef(); err != nil {
		return fmt.Errorf("failed to end define mode: %w", err)
	}

	if err := xVar.WriteFloat64s(g.X); err != nil {
		return fmt.Errorf("failed to write x: %w", err)
	}
	if err := yVar.WriteFloat64s(g.Y); err != nil {
		return fmt.Errorf("failed to write y: %w", err)
	}
	flat := make([]float64, 0, nx*ny)
	for _, row := range g.Values {
		flat = append(flat, row...)
	}
	if err := zVar.WriteFloat64s(flat); err != nil {
		return fmt.Errorf("failed to write z: %w", err)
	}
	return nil
}

func readAxis(nc netcdf.Dataset, names []string) ([]float64, error) {
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		dims, err := v.Dims()
		if err != nil || len(dims) != 1 {
			continue
		}
		n, err := dims[0].Len()
		if err != nil {
			return nil, err
		}
		return readFloat64s(v, int(n))
	}
	return nil, fmt.Errorf("variable not found (tried: %v)", names)
}

// readFloat64s reads n values of any numeric NetCDF type as float64.
func readFloat64s(v netcdf.Var, n int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}

	out := make([]float64, n)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
	return out, nil
}

func floatAttr(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	if n, err := a.Len(); err != nil || n == 0 {
		return 0, false
	}
	buf64 := make([]float64, 1)
	if err := a.ReadFloat64s(buf64); err == nil {
		return buf64[0], true
	}
	buf32 := make([]float32, 1)
	if err := a.ReadFloat32s(buf32); err == nil {
		return float64(buf32[0]), true
	}
	bufi := make([]int32, 1)
	if err := a.ReadInt32s(bufi); err == nil {
		return float64(bufi[0]), true
	}
	bufs := make([]int16, 1)
	if err := a.ReadInt16s(bufs); err == nil {
		return float64(bufs[0]), true
	}
	return 0, false
}

// fillValue returns the _FillValue or missing_value attribute if present.
func fillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		if fv, ok := floatAttr(v, name); ok && !math.IsNaN(fv) {
			return fv, true
		}
	}
	return 0, false
}

func reshape(flat []float64, rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = flat[i*cols : (i+1)*cols]
	}
	return out
}

func transpose2D(data [][]float64) [][]float64 {
	if len(data) == 0 {
		return data
	}
	nRows, nCols := len(data), len(data[0])
	out := make([][]float64, nCols)
	for i := range out {
		out[i] = make([]float64, nRows)
		for j := 0; j < nRows; j++ {
			out[i][j] = data[j][i]
		}
	}
	return out
}

// orientAscending flips axes stored in decreasing order.
func orientAscending(g *grid.Grid) {
	if len(g.Y) > 1 && g.Y[0] > g.Y[len(g.Y)-1] {
		for i, j := 0, len(g.Y)-1; i < j; i, j = i+1, j-1 {
			g.Y[i], g.Y[j] = g.Y[j], g.Y[i]
			g.Values[i], g.Values[j] = g.Values[j], g.Values[i]
		}
	}
	if len(g.X) > 1 && g.X[0] > g.X[len(g.X)-1] {
		for i, j := 0, len(g.X)-1; i < j; i, j = i+1, j-1 {
			g.X[i], g.X[j] = g.X[j], g.X[i]
		}
		for _, row := range g.Values {
			for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
				row[i], row[j] = row[j], row[i]
			}
		}
	}
}
