package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go.ngs.io/antgrid/internal/adapter/fetch"
	"go.ngs.io/antgrid/internal/catalog"
)

func cacheCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "cache",
		Short:             "Inspect or prune the dataset cache",
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(cacheListCmd(e), cachePruneCmd(e))
	return cmd
}

// datasetByURL maps catalog URLs to dataset names.
func datasetByURL() map[string]string {
	m := make(map[string]string)
	for _, d := range catalog.All() {
		m[d.URL] = d.Name
	}
	return m
}

func cacheListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached downloads",
		Args:  usageArgs(cobra.NoArgs),
		RunE: e.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			entries, err := e.app.Registry.List(ctx)
			if err != nil {
				return err
			}
			names := datasetByURL()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATASET\tSIZE\tSHA256\tFETCHED\tPRESENT\tURL")
			for _, en := range entries {
				name := names[en.URL]
				if name == "" {
					name = "-"
				}
				_, statErr := os.Stat(en.Path)
				sum := en.SHA256
				if len(sum) > 12 {
					sum = sum[:12]
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%t\t%s\n",
					name, en.Size, sum, en.FetchedAt.Format("2006-01-02T15:04:05Z"), statErr == nil, en.URL)
			}
			return w.Flush()
		}),
		DisableAutoGenTag: true,
	}
}

func cachePruneCmd(e *env) *cobra.Command {
	var forget bool
	cmd := &cobra.Command{
		Use:   "prune [dataset...]",
		Short: "Remove cached downloads and grids",
		Long: `prune deletes cached downloads of the named datasets, or of every dataset
when none is named, together with the materialized grid cache. Recorded
hashes are kept so a re-download must match the first one seen; use
--forget to drop them as well.`,
		RunE: e.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			urls := make(map[string]bool)
			for _, name := range args {
				d, err := catalog.Lookup(name)
				if err != nil {
					return err
				}
				urls[d.URL] = true
			}

			entries, err := e.app.Registry.List(ctx)
			if err != nil {
				return err
			}
			removed := 0
			for _, en := range entries {
				if len(urls) > 0 && !urls[en.URL] {
					continue
				}
				dir := filepath.Join(e.cfg.CacheDir, fetch.CacheKey(en.URL))
				if err := os.RemoveAll(dir); err != nil {
					return fmt.Errorf("failed to remove %s: %w", dir, err)
				}
				if forget {
					if err := e.app.Registry.Delete(ctx, en.URL); err != nil {
						return err
					}
				}
				removed++
			}

			grids, err := e.app.Grids.Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d downloads and %d grids\n", removed, grids)
			return nil
		}),
		DisableAutoGenTag: true,
	}
	cmd.Flags().BoolVar(&forget, "forget", false, "also forget recorded hashes")
	return cmd
}
