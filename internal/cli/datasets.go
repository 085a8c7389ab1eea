package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go.ngs.io/antgrid/internal/catalog"
)

func datasetsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List the supported datasets",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := catalog.All()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(specs)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMODE\tLAYERS\tUNITS\tDESCRIPTION")
			for _, d := range specs {
				layers := strings.Join(d.LayerNames(), ",")
				if layers == "" {
					layers = "-"
				}
				units := d.Units
				if units == "" {
					units = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.Mode, layers, units, d.Description)
			}
			return w.Flush()
		},
		DisableAutoGenTag: true,
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full catalog as JSON")
	return cmd
}
