package raster

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/grid"
)

// createBasementNC writes a 3x2 grid with a descending y axis, a leading band
// dimension of length 1 and a float fill value.
func createBasementNC(t *testing.T, path string) {
	t.Helper()
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	defer f.Close()

	bandDim, _ := f.AddDim("band", 1)
	yDim, _ := f.AddDim("y", 2)
	xDim, _ := f.AddDim("x", 3)
	vx, _ := f.AddVar("x", netcdf.DOUBLE, []netcdf.Dim{xDim})
	vy, _ := f.AddVar("y", netcdf.DOUBLE, []netcdf.Dim{yDim})
	vz, _ := f.AddVar("z", netcdf.FLOAT, []netcdf.Dim{bandDim, yDim, xDim})
	if err := vz.Attr("_FillValue").WriteFloat32s([]float32{-32767}); err != nil {
		t.Fatalf("fill attr: %v", err)
	}

	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}

	if err := vx.WriteFloat64s([]float64{-500000, -495000, -490000}); err != nil {
		t.Fatalf("write x: %v", err)
	}
	if err := vy.WriteFloat64s([]float64{-1000000, -1005000}); err != nil {
		t.Fatalf("write y: %v", err)
	}
	if err := vz.WriteFloat32s([]float32{
		-100, -200, -32767, // y = -1000000
		-400, -500, -600, // y = -1005000
	}); err != nil {
		t.Fatalf("write z: %v", err)
	}
}

func TestReadNetCDF_SqueezeFlipAndFill(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Ross_Embayment_basement_filt.nc")
	createBasementNC(t, path)

	g, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if g.Y[0] != -1005000 || g.Y[1] != -1000000 {
		t.Fatalf("expected ascending y, got %v", g.Y)
	}
	if g.Values[0][0] != -400 || g.Values[1][1] != -200 {
		t.Errorf("unexpected values %v", g.Values)
	}
	if !math.IsNaN(g.Values[1][2]) {
		t.Errorf("expected fill value as NaN, got %v", g.Values[1][2])
	}
	if g.CRS != grid.EPSG3031 {
		t.Errorf("unexpected CRS %q", g.CRS)
	}
}

func TestWriteNetCDF_RoundTrip(t *testing.T) {
	src, err := grid.New(domain.Region{XMin: 0, XMax: 20, YMin: 0, YMax: 10}, 10)
	if err != nil {
		t.Fatal(err)
	}
	src.Name = "bed"
	src.Units = "m"
	src.Values[0][0] = 1.5
	src.Values[0][1] = -2
	src.Values[1][2] = 3e3

	path := filepath.Join(t.TempDir(), "bed.nc")
	if err := WriteNetCDF(path, src); err != nil {
		t.Fatalf("WriteNetCDF: %v", err)
	}

	got, err := ReadNetCDF(path)
	if err != nil {
		t.Fatalf("ReadNetCDF: %v", err)
	}
	got.Name, got.Units = src.Name, src.Units
	if !got.Equal(src) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", src, got)
	}

	if err := WriteNetCDF(path, &grid.Grid{}); err == nil {
		t.Error("expected error for invalid grid")
	}
}
