package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDataset is returned for names missing from the catalog.
	ErrUnknownDataset = errors.New("unknown dataset")
	// ErrUnknownLayer is returned for layer or value-column names a dataset does not offer.
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrHashMismatch means downloaded content did not match its pinned SHA-256.
	ErrHashMismatch = errors.New("content hash mismatch")
	// ErrHashRequired means a dataset has no pinned hash while pins are mandatory.
	ErrHashRequired = errors.New("content hash required")
	// ErrEmptyTable means a point table held no data rows.
	ErrEmptyTable = errors.New("point table is empty")
	// ErrNotGridded is returned when a path-only dataset is asked for a grid.
	ErrNotGridded = errors.New("dataset is not gridded")
	// ErrCacheUnavailable means the local cache directory or its registry cannot be used.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// Stage names a step of the dataset pipeline.
type Stage string

const (
	StageFetch       Stage = "fetch"
	StageSelect      Stage = "select"
	StageMaterialize Stage = "materialize"
	StageInspect     Stage = "inspect"
)

// FetchError reports a network, cache or integrity failure.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SelectionError reports an archive member that could not be located or did
// not match its manifest entry.
type SelectionError struct {
	Archive  string
	Selector Selector
	Reason   string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("select %s in %s: %s", e.Selector, e.Archive, e.Reason)
}

// ParseError reports malformed tabular input.
type ParseError struct {
	Path string
	Line int // 1-based; 0 when the error is not tied to a line
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProjectionError reports coordinates that cannot be projected.
type ProjectionError struct {
	Lat, Lon float64
	Err      error
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("project (lat=%g, lon=%g): %v", e.Lat, e.Lon, e.Err)
}

func (e *ProjectionError) Unwrap() error { return e.Err }

// RenderError reports a failed plot or summary. It never discards a grid.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// DatasetError carries the dataset and pipeline stage that failed.
type DatasetError struct {
	Dataset string
	Layer   string
	Stage   Stage
	Err     error
}

func (e *DatasetError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Dataset, e.Layer, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Dataset, e.Stage, e.Err)
}

func (e *DatasetError) Unwrap() error { return e.Err }
