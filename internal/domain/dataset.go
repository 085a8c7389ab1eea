// Package domain holds the dataset catalog types, bounding regions and the
// error taxonomy shared by the fetch-and-grid pipeline.
package domain

import (
	"fmt"
	"sort"
)

// Mode selects how a fetched file becomes a grid.
type Mode int

const (
	// ModePath returns the fetched file path without gridding (imagery, shapefiles).
	ModePath Mode = iota
	// ModeRaster loads an existing raster (GeoTIFF or NetCDF).
	ModeRaster
	// ModeScattered grids point observations with block-median and surface.
	ModeScattered
	// ModeFiltered loads a raster and Gaussian-filters it onto a coarser lattice.
	ModeFiltered
)

func (m Mode) String() string {
	switch m {
	case ModePath:
		return "path"
	case ModeRaster:
		return "raster"
	case ModeScattered:
		return "scattered"
	case ModeFiltered:
		return "filtered"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// NoIndex marks a selector without a documented archive offset.
const NoIndex = -1

// Selector identifies one member of an extracted archive.
//
// Name and Suffix select by file name, so a reordered upstream archive still
// yields the right file and a renamed one fails. Index is the member's
// documented position among the archive's files; it selects on its own only
// when no name is known, and otherwise breaks ties between several matches.
type Selector struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Suffix string `json:"suffix,omitempty"`
}

func (s Selector) String() string {
	switch {
	case s.Name != "" && s.Index != NoIndex:
		return fmt.Sprintf("%s@%d", s.Name, s.Index)
	case s.Name != "":
		return s.Name
	case s.Suffix != "":
		return "*" + s.Suffix
	default:
		return fmt.Sprintf("#%d", s.Index)
	}
}

// TableSpec describes a whitespace-delimited point file.
type TableSpec struct {
	SkipRows int      `json:"skip_rows"`
	Columns  []string `json:"columns"`
	// Lat and Lon name the coordinate columns.
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// DatasetSpec is the immutable description of one supported dataset.
type DatasetSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
	URL         string `json:"url"`
	// SHA256 pins the downloaded file. Empty means trust-on-first-use.
	SHA256  string `json:"sha256,omitempty"`
	Archive bool   `json:"archive"`
	Mode    Mode   `json:"-"`

	// Select is the archive member of single-member datasets.
	Select Selector `json:"select"`
	// Layers maps a layer name to the archive member holding it.
	Layers map[string]Selector `json:"layers,omitempty"`
	// DefaultLayer is used when the caller names no layer. For scattered
	// datasets the layer is the value column.
	DefaultLayer string `json:"default_layer,omitempty"`
	// FillZero lists layers whose missing cells mean zero, not undefined.
	FillZero map[string]bool `json:"fill_zero,omitempty"`

	Table TableSpec `json:"table"`
	// ValueColumns lists the columns a caller may grid (scattered mode).
	ValueColumns []string `json:"value_columns,omitempty"`

	DefaultRegion  Region  `json:"default_region"`
	DefaultSpacing float64 `json:"default_spacing"`
	Units          string  `json:"units,omitempty"`
}

// ModeName is the JSON-friendly mode label.
func (d DatasetSpec) ModeName() string {
	return d.Mode.String()
}

// LayerNames lists the selectable layers in a stable order.
func (d DatasetSpec) LayerNames() []string {
	if len(d.ValueColumns) > 0 {
		names := append([]string(nil), d.ValueColumns...)
		sort.Strings(names)
		return names
	}
	names := make([]string, 0, len(d.Layers))
	for name := range d.Layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveLayer applies the default layer and checks that layer exists.
func (d DatasetSpec) ResolveLayer(layer string) (string, error) {
	if layer == "" {
		layer = d.DefaultLayer
	}
	if len(d.ValueColumns) > 0 {
		if !d.IsValueColumn(layer) {
			return "", fmt.Errorf("%w: %q for dataset %s (available: %v)", ErrUnknownLayer, layer, d.Name, d.LayerNames())
		}
		return layer, nil
	}
	if len(d.Layers) == 0 {
		if layer != "" {
			return "", fmt.Errorf("%w: dataset %s has no layers, got %q", ErrUnknownLayer, d.Name, layer)
		}
		return "", nil
	}
	if _, ok := d.Layers[layer]; !ok {
		return "", fmt.Errorf("%w: %q for dataset %s (available: %v)", ErrUnknownLayer, layer, d.Name, d.LayerNames())
	}
	return layer, nil
}

// Member resolves the archive selector for layer; an empty layer picks the
// dataset default.
func (d DatasetSpec) Member(layer string) (Selector, error) {
	if len(d.Layers) == 0 {
		return d.Select, nil
	}
	if layer == "" {
		layer = d.DefaultLayer
	}
	sel, ok := d.Layers[layer]
	if !ok {
		return Selector{}, fmt.Errorf("%w: %q for dataset %s (available: %v)", ErrUnknownLayer, layer, d.Name, d.LayerNames())
	}
	return sel, nil
}

// IsValueColumn reports whether col can be gridded for this dataset.
func (d DatasetSpec) IsValueColumn(col string) bool {
	for _, c := range d.ValueColumns {
		if c == col {
			return true
		}
	}
	return false
}
