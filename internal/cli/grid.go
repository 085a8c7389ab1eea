package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"go.ngs.io/antgrid/internal/adapter/raster"
	"go.ngs.io/antgrid/internal/diag"
	"go.ngs.io/antgrid/internal/usecase"
)

func gridCmd(e *env) *cobra.Command {
	var (
		gf   gridFlags
		out  string
		plot string
		info bool
	)
	cmd := &cobra.Command{
		Use:   "grid <dataset>",
		Short: "Materialize a dataset as a grid",
		Long: `grid fetches a dataset and turns it into a regular EPSG:3031 grid. Raster
datasets are read as-is, scattered point compilations are block-median
decimated and surface-interpolated, and DeepBedMap is Gaussian-filtered onto
the requested spacing.`,
		Example: `  antgrid grid bedmap2 --layer bed --out bed.nc
  antgrid grid gravity --layer BA --spacing 10000 --info --plot ba.png`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: e.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			region, err := gf.region3031()
			if err != nil {
				return err
			}
			res, err := e.app.Service.Grid(ctx, usecase.Request{
				Dataset: args[0],
				Layer:   gf.layer,
				Region:  region,
				Spacing: gf.spacing,
			})
			if err != nil {
				return err
			}
			if res.Grid == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not gridded; file: %s\n", res.Dataset, res.File.Path)
				return nil
			}

			if out != "" {
				if err := raster.WriteNetCDF(out, res.Grid); err != nil {
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			}

			if info || plot != "" {
				_, rep := e.app.Service.Inspect(ctx, res.Grid, diag.Options{
					Info:     info,
					Plot:     plot != "",
					PlotPath: plot,
					Out:      cmd.OutOrStdout(),
				})
				if rep.PlotPath != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", rep.PlotPath)
				}
				for _, rerr := range rep.Errors {
					cmd.PrintErrf("warning: %v\n", rerr)
				}
			}
			return nil
		}),
		DisableAutoGenTag: true,
	}
	gf.register(cmd.Flags())
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the grid to this NetCDF file")
	cmd.Flags().StringVar(&plot, "plot", "", "render a heat map PNG to this file")
	cmd.Flags().BoolVar(&info, "info", false, "print a grid summary")
	return cmd
}

func infoCmd(e *env) *cobra.Command {
	var gf gridFlags
	cmd := &cobra.Command{
		Use:   "info <dataset>",
		Short: "Print a summary of a dataset grid",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: e.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			region, err := gf.region3031()
			if err != nil {
				return err
			}
			res, err := e.app.Service.Grid(ctx, usecase.Request{
				Dataset: args[0],
				Layer:   gf.layer,
				Region:  region,
				Spacing: gf.spacing,
			})
			if err != nil {
				return err
			}
			if res.Grid == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "name: %s\nfile: %s\nsha256: %s\nsize: %d\n", res.Dataset, res.File.Path, res.File.SHA256, res.File.Size)
				return nil
			}
			return diag.WriteInfo(cmd.OutOrStdout(), res.Grid)
		}),
		DisableAutoGenTag: true,
	}
	gf.register(cmd.Flags())
	return cmd
}
