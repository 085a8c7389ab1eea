package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func fetchCmd(e *env) *cobra.Command {
	var (
		layer  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "fetch <dataset>",
		Short: "Download a dataset into the cache and print its path",
		Long: `fetch downloads a dataset (or reuses the cached copy), verifies its
SHA-256, extracts archives and prints the path of the selected file.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: e.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			cf, err := e.app.Service.Fetch(ctx, args[0], layer)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cf)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cf.Path)
			return nil
		}),
		DisableAutoGenTag: true,
	}
	cmd.Flags().StringVarP(&layer, "layer", "l", "", "archive layer (bedmap2: bed, surface, thickness, geoid2wgs)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the cache record as JSON")
	return cmd
}
