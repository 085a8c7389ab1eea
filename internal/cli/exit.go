package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"go.ngs.io/antgrid/internal/exitcode"
)

// Execute runs root and returns the process exit code, printing any error.
func Execute(ctx context.Context, root *cobra.Command) int {
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitcode.Success
	}
	fmt.Fprintf(root.ErrOrStderr(), "antgrid: %v\n", err)
	if errors.Is(err, ErrUsage) {
		return exitcode.ConfigError
	}
	return exitcode.For(err)
}
