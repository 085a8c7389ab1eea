// Package diag renders optional diagnostics for a materialized grid: a
// text summary and a robust-scaled heat map. Diagnostics never alter the
// grid and their failures never discard it.
package diag

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/grid"
)

// Options selects which diagnostics Inspect produces.
type Options struct {
	Plot bool
	Info bool
	// PlotPath is the PNG destination. Defaults to "<grid name>.png".
	PlotPath string
	// Out receives the summary. Defaults to os.Stdout.
	Out    io.Writer
	Logger *zap.SugaredLogger
}

// Report lists what Inspect produced and what failed.
type Report struct {
	PlotPath string
	Errors   []*domain.RenderError
}

// OK reports whether every requested diagnostic succeeded.
func (r Report) OK() bool { return len(r.Errors) == 0 }

// Inspect prints and plots g as requested and returns g unchanged.
func Inspect(ctx context.Context, g *grid.Grid, opts Options) (*grid.Grid, Report) {
	var rep Report
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	name := ""
	if g != nil {
		name = g.Name
	}
	fail := func(op string, err error) {
		rerr := &domain.RenderError{Op: op, Err: err}
		logger.Warnw("diagnostic failed", "grid", name, "op", op, "error", err)
		rep.Errors = append(rep.Errors, rerr)
	}

	if opts.Info {
		out := opts.Out
		if out == nil {
			out = os.Stdout
		}
		if err := WriteInfo(out, g); err != nil {
			fail("info", err)
		}
	}

	if opts.Plot {
		if err := ctx.Err(); err != nil {
			fail("plot", err)
			return g, rep
		}
		path := opts.PlotPath
		if path == "" {
			path = plotName(g)
		}
		if err := SavePlot(path, g); err != nil {
			fail("plot", err)
		} else {
			rep.PlotPath = path
		}
	}
	return g, rep
}

// WriteInfo writes a one-screen summary of g.
func WriteInfo(w io.Writer, g *grid.Grid) error {
	if g == nil {
		return errNilGrid
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("invalid grid: %w", err)
	}
	r := g.Region()
	dx, dy := g.Spacing()
	nx, ny := g.Dims()
	s := g.Stats()
	_, err := fmt.Fprintf(w,
		"name: %s\nunits: %s\ncrs: %s\nregion: %s\nspacing: %g %g\nnodes: %d x %d\nmin: %g max: %g\nmean: %g stddev: %g\nnan: %d of %d\n",
		g.Name, g.Units, g.CRS, r, dx, dy, nx, ny, s.Min, s.Max, s.Mean, s.StdDev, s.NaN, nx*ny)
	return err
}

func plotName(g *grid.Grid) string {
	if g == nil || g.Name == "" {
		return "grid.png"
	}
	return g.Name + ".png"
}
