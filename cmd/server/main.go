// Package main provides the antgrid HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.ngs.io/antgrid/internal/app"
	"go.ngs.io/antgrid/internal/config"
	"go.ngs.io/antgrid/internal/exitcode"
	httpHandler "go.ngs.io/antgrid/internal/http"
	"go.ngs.io/antgrid/internal/log"
)

const version = "0.1.0"

// gridCacheSize is the number of materialized grids kept in memory.
const gridCacheSize = 8

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("antgrid-server version %s\n", version)
		return
	}

	// Load configuration from environment.
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(exitcode.ConfigError)
	}

	if err := log.Init(cfg.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(exitcode.ConfigError)
	}
	defer log.Sync()
	logger := log.GetSugaredLogger()

	logger.Infow("starting antgrid server",
		"version", version,
		"port", cfg.Port,
		"cache_dir", cfg.CacheDir,
		"require_hash", cfg.RequireHash,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Errorw("failed to initialize", "error", err)
		log.Sync()
		os.Exit(exitcode.For(err)) //nolint:gocritic // exitAfterDefer: logs are synced above
	}
	defer func() { _ = a.Close() }()

	// Setup router.
	router := httpHandler.SetupRouter(httpHandler.NewHandler(a.Service, gridCacheSize, logger), cfg.CORSAllowedOrigins)

	// Start server.
	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Infow("server listening", "addr", addr, "health", fmt.Sprintf("http://localhost:%s/health", cfg.Port))

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("antgrid server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  antgrid-server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                        Server port (default: 8080)")
	fmt.Println("  ANTGRID_CACHE_DIR           Dataset cache directory (default: user cache dir/antgrid)")
	fmt.Println("  ANTGRID_REQUIRE_HASH        Refuse datasets without a pinned SHA-256 (default: false)")
	fmt.Println("  ANTGRID_HTTP_TIMEOUT        Download timeout (default: 30m)")
	fmt.Println("  ANTGRID_MAX_RETRIES         Retries of transient download failures (default: 5)")
	fmt.Println("  ANTGRID_BASE_URL_OVERRIDE   Fetch catalog files from this host instead")
	fmt.Println("  ANTGRID_MIRROR_ENDPOINT     MinIO endpoint for the shared cache mirror (optional)")
	fmt.Println("  ANTGRID_MIRROR_ACCESS_KEY   MinIO access key (required with endpoint)")
	fmt.Println("  ANTGRID_MIRROR_SECRET_KEY   MinIO secret key (required with endpoint)")
	fmt.Println("  ANTGRID_MIRROR_BUCKET       MinIO bucket (default: antgrid-cache)")
	fmt.Println("  ANTGRID_MIRROR_USE_SSL      Use TLS for MinIO (default: false)")
	fmt.Println("  ANTGRID_DEBUG               Development logging (default: false)")
	fmt.Println("  CORS_ALLOWED_ORIGINS        Comma-separated list of allowed origins (default: all origins)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start server with default settings")
	fmt.Println("  antgrid-server")
	fmt.Println()
	fmt.Println("  # Start server on custom port")
	fmt.Println("  PORT=3000 antgrid-server")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /health                          Health check")
	fmt.Println("  GET /v1/datasets                     List datasets")
	fmt.Println("  GET /v1/datasets/:name               Dataset details")
	fmt.Println("  GET /v1/datasets/:name/file          Download the cached dataset file")
	fmt.Println("  GET /v1/datasets/:name/grid          Grid as JSON, NetCDF or msgpack (format=)")
	fmt.Println("  GET /v1/datasets/:name/info          Grid summary")
	fmt.Println("  GET /v1/datasets/:name/plot.png      Heat map")
	fmt.Println("  GET /v1/datasets/:name/sample        Bilinear sample at x/y or lat/lon")
	fmt.Println()
}
