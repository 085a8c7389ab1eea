// Package table reads whitespace-delimited point files such as the gravity
// and magnetics compilations.
package table

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.ngs.io/antgrid/internal/domain"
)

// PointTable holds numeric rows in file order.
type PointTable struct {
	Columns []string
	Rows    [][]float64
}

// Len returns the number of rows.
func (t *PointTable) Len() int {
	return len(t.Rows)
}

// Column returns the index of name, or -1.
func (t *PointTable) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Values returns a copy of one column.
func (t *PointTable) Values(name string) ([]float64, error) {
	idx := t.Column(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not in table (have %v)", name, t.Columns)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// ReadFile parses path according to spec.
func ReadFile(path string, spec domain.TableSpec) (*PointTable, error) {
	//nolint:gosec // G304: path comes from the dataset cache.
	file, err := os.Open(path)
	if err != nil {
		return nil, &domain.ParseError{Path: path, Err: err}
	}
	defer func() { _ = file.Close() }()

	return Read(file, path, spec)
}

// Read parses rows from r. name labels errors.
func Read(r io.Reader, name string, spec domain.TableSpec) (*PointTable, error) {
	if len(spec.Columns) == 0 {
		return nil, &domain.ParseError{Path: name, Err: errors.New("table spec has no columns")}
	}
	for _, col := range []string{spec.Lat, spec.Lon} {
		if !contains(spec.Columns, col) {
			return nil, &domain.ParseError{Path: name, Err: fmt.Errorf("coordinate column %q not in %v", col, spec.Columns)}
		}
	}

	t := &PointTable{Columns: append([]string(nil), spec.Columns...)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if line <= spec.SkipRows {
			continue
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != len(spec.Columns) {
			return nil, &domain.ParseError{
				Path: name,
				Line: line,
				Err:  fmt.Errorf("expected %d columns, got %d", len(spec.Columns), len(fields)),
			}
		}

		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, &domain.ParseError{
					Path: name,
					Line: line,
					Err:  fmt.Errorf("invalid %s value %q: %w", spec.Columns[i], f, err),
				}
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, &domain.ParseError{Path: name, Line: line, Err: err}
	}

	if len(t.Rows) == 0 {
		return nil, &domain.ParseError{Path: name, Err: domain.ErrEmptyTable}
	}

	return t, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
