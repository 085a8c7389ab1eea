// Package app wires configuration into the dataset service shared by the
// server and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"go.ngs.io/antgrid/internal/adapter/fetch"
	"go.ngs.io/antgrid/internal/adapter/store/gridcache"
	"go.ngs.io/antgrid/internal/adapter/store/mirror"
	"go.ngs.io/antgrid/internal/adapter/store/registry"
	"go.ngs.io/antgrid/internal/config"
	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/usecase"
)

const (
	registryFile = "registry.db"
	gridsDir     = "grids"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Registry *registry.Registry
	Grids    *gridcache.Cache
	Fetcher  *fetch.Fetcher
	Service  *usecase.Service
}

// New opens the cache registry, connects the optional mirror and builds the
// service.
func New(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	reg, err := registry.Open(filepath.Join(cfg.CacheDir, registryFile))
	if err != nil {
		return nil, fmt.Errorf("%w: registry: %v", domain.ErrCacheUnavailable, err)
	}

	fetchOpts := fetch.Options{
		CacheDir:        cfg.CacheDir,
		Client:          &http.Client{Timeout: cfg.HTTPTimeout},
		MaxRetries:      cfg.MaxRetries,
		RequireHash:     cfg.RequireHash,
		BaseURLOverride: cfg.BaseURLOverride,
		Registry:        reg,
		Logger:          logger,
	}

	if m := cfg.Mirror; m != nil {
		client, err := mirror.New(ctx, mirror.Config{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		})
		if err != nil {
			// The mirror only saves bandwidth; run without it.
			logger.Warnw("mirror unavailable", "endpoint", m.Endpoint, "error", err)
		} else {
			fetchOpts.Mirror = client
			logger.Infow("mirror enabled", "endpoint", m.Endpoint, "bucket", m.Bucket)
		}
	}

	fetcher, err := fetch.New(fetchOpts)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	grids, err := gridcache.New(filepath.Join(cfg.CacheDir, gridsDir))
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("%w: grid cache: %v", domain.ErrCacheUnavailable, err)
	}

	svc, err := usecase.NewService(usecase.Options{
		Fetcher: fetcher,
		Cache:   grids,
		Logger:  logger,
	})
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Registry: reg,
		Grids:    grids,
		Fetcher:  fetcher,
		Service:  svc,
	}, nil
}

// Close releases the registry.
func (a *App) Close() error {
	if a.Registry == nil {
		return nil
	}
	return a.Registry.Close()
}
