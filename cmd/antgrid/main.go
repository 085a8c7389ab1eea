// Package main provides the antgrid command line tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.ngs.io/antgrid/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.NewRootCmd())
	cancel()
	os.Exit(code)
}
