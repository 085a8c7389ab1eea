// Package catalog lists the supported Antarctic datasets: where each is
// hosted, which archive member holds which layer, and the extent a grid
// defaults to.
package catalog

import (
	"fmt"
	"sort"

	"go.ngs.io/antgrid/internal/domain"
)

// Dataset names.
const (
	Imagery       = "imagery"
	GroundingLine = "groundingline"
	Basement      = "basement"
	Bedmap2       = "bedmap2"
	DeepBedMap    = "deepbedmap"
	Gravity       = "gravity"
	Magnetics     = "magnetics"
)

var (
	// continent covers the gravity and magnetics compilations.
	continent = domain.Region{XMin: -3330000, XMax: 3330000, YMin: -3330000, YMax: 3330000}
	// deepBedMapExtent is the documented DeepBedMap DEM extent.
	deepBedMapExtent = domain.Region{XMin: -2700000, XMax: 2800000, YMin: -2200000, YMax: 2300000}
)

var datasets = map[string]domain.DatasetSpec{
	Imagery: {
		Name:        Imagery,
		Description: "LIMA 90% cloud-free Landsat image mosaic of Antarctica",
		Reference:   "https://lima.usgs.gov/fullcontinent.php",
		URL:         "https://lima.usgs.gov/tiff_90pct.zip",
		Archive:     true,
		Mode:        domain.ModePath,
		Select:      domain.Selector{Index: 0},
	},
	GroundingLine: {
		Name:        GroundingLine,
		Description: "Antarctic grounding line shapefile (Depoorter et al. 2013)",
		Reference:   "https://doi.pangaea.de/10.1594/PANGAEA.819147",
		URL:         "https://doi.pangaea.de/10013/epic.42133.d001",
		Archive:     true,
		Mode:        domain.ModePath,
		Select:      domain.Selector{Index: 3, Suffix: ".shp"},
	},
	Basement: {
		Name:           Basement,
		Description:    "Offshore and sub-Ross Ice Shelf basement topography (Tankersley et al. 2022)",
		Reference:      "https://doi.org/10.1029/2021GL097371",
		URL:            "https://download.pangaea.de/dataset/941238/files/Ross_Embayment_basement_filt.nc",
		Mode:           domain.ModeRaster,
		Select:         domain.Selector{Index: domain.NoIndex},
		Units:          "m",
		DefaultSpacing: 0,
	},
	Bedmap2: {
		Name:        Bedmap2,
		Description: "Bedmap2 ice thickness, bed and surface elevation (Fretwell et al. 2013)",
		Reference:   "https://doi.org/10.5194/tc-7-375-2013",
		URL:         "https://secure.antarctica.ac.uk/data/bedmap2/bedmap2_tiff.zip",
		Archive:     true,
		Mode:        domain.ModeRaster,
		Layers: map[string]domain.Selector{
			"thickness": {Index: 11, Name: "bedmap2_thickness.tif"},
			"geoid2wgs": {Index: 26, Suffix: "_to_WGS84.tif"},
			"bed":       {Index: 29, Name: "bedmap2_bed.tif"},
			"surface":   {Index: 39, Name: "bedmap2_surface.tif"},
		},
		// Ocean cells of the surface layer are stored as no-data; downstream
		// users treat them as sea level.
		FillZero: map[string]bool{"surface": true},
		Units:    "m",
	},
	DeepBedMap: {
		Name:           DeepBedMap,
		Description:    "DeepBedMap super-resolved bed elevation (Leong and Horgan 2020)",
		Reference:      "https://doi.org/10.5194/tc-14-3687-2020",
		URL:            "https://zenodo.org/record/4054246/files/deepbedmap_dem.tif?download=1",
		Mode:           domain.ModeFiltered,
		Select:         domain.Selector{Index: domain.NoIndex},
		DefaultRegion:  deepBedMapExtent,
		DefaultSpacing: 10e3,
		Units:          "m",
	},
	Gravity: {
		Name:        Gravity,
		Description: "Preliminary AntGG gravity compilation update (free-air and Bouguer anomalies)",
		Reference:   "https://ftp.space.dtu.dk/pub/RF/4D-ANTARCTICA/",
		URL:         "https://ftp.space.dtu.dk/pub/RF/4D-ANTARCTICA/ant4d_gravity.zip",
		Archive:     true,
		Mode:        domain.ModeScattered,
		// TODO: pin the member name once the AntGG archive listing is confirmed.
		Select: domain.Selector{Index: 5},
		Table: domain.TableSpec{
			SkipRows: 3,
			Columns:  []string{"id", "lat", "lon", "FA", "Err", "DG", "BA"},
			Lat:      "lat",
			Lon:      "lon",
		},
		ValueColumns:   []string{"FA", "BA"},
		DefaultLayer:   "FA",
		DefaultRegion:  continent,
		DefaultSpacing: 5e3,
		Units:          "mGal",
	},
	Magnetics: {
		Name:        Magnetics,
		Description: "ADMAP-2001 magnetic anomaly compilation of Antarctica",
		Reference:   "https://admap.kongju.ac.kr/databases.html",
		URL:         "https://admap.kongju.ac.kr/admapdata/ant_new.zip",
		Archive:     true,
		Mode:        domain.ModeScattered,
		Select:      domain.Selector{Index: 0},
		Table: domain.TableSpec{
			Columns: []string{"lat", "lon", "nT"},
			Lat:     "lat",
			Lon:     "lon",
		},
		ValueColumns:   []string{"nT"},
		DefaultLayer:   "nT",
		DefaultRegion:  continent,
		DefaultSpacing: 5e3,
		Units:          "nT",
	},
}

// Lookup returns the spec for name.
func Lookup(name string) (domain.DatasetSpec, error) {
	d, ok := datasets[name]
	if !ok {
		return domain.DatasetSpec{}, fmt.Errorf("%w: %q (available: %v)", domain.ErrUnknownDataset, name, Names())
	}
	return d, nil
}

// Names returns the dataset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every dataset spec sorted by name.
func All() []domain.DatasetSpec {
	out := make([]domain.DatasetSpec, 0, len(datasets))
	for _, name := range Names() {
		out = append(out, datasets[name])
	}
	return out
}
