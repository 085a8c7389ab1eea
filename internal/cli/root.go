// Package cli implements the antgrid command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"go.ngs.io/antgrid/internal/app"
	"go.ngs.io/antgrid/internal/config"
	"go.ngs.io/antgrid/internal/domain"
	"go.ngs.io/antgrid/internal/log"
)

// Version is the CLI version.
const Version = "0.1.0"

// ErrUsage marks invalid arguments or flags.
var ErrUsage = errors.New("usage")

// env holds state shared by the subcommands of one invocation.
type env struct {
	dotenv  []string
	cfg     *config.Config
	app     *app.App
	logger  *zap.SugaredLogger
	flags   *pflag.FlagSet
	timeout time.Duration
}

// NewRootCmd builds the command tree. dotenv names .env files loaded before
// the environment is read; none means ./.env.
func NewRootCmd(dotenv ...string) *cobra.Command {
	e := &env{dotenv: dotenv}

	root := &cobra.Command{
		Use:   "antgrid",
		Short: "Fetch, cache and grid Antarctic geophysical datasets.",
		Long: `antgrid downloads public Antarctic datasets (imagery, grounding line,
basement, Bedmap2, DeepBedMap, gravity and magnetics), caches them with
integrity checks and turns them into regular EPSG:3031 grids.

Configuration is read from ANTGRID_* environment variables (and an optional
.env file); flags override the environment.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	pf := root.PersistentFlags()
	pf.String("cache-dir", "", "dataset cache directory (env ANTGRID_CACHE_DIR)")
	pf.Bool("require-hash", false, "refuse datasets without a pinned SHA-256 (env ANTGRID_REQUIRE_HASH)")
	pf.String("base-url", "", "fetch catalog files from this host (env ANTGRID_BASE_URL_OVERRIDE)")
	pf.Uint64("retries", 0, "retries of transient download failures (env ANTGRID_MAX_RETRIES)")
	pf.Bool("debug", false, "development logging (env ANTGRID_DEBUG)")
	pf.DurationVar(&e.timeout, "timeout", 0, "overall command timeout; 0 means none")
	e.flags = pf
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	root.AddCommand(
		versionCmd(),
		datasetsCmd(),
		fetchCmd(e),
		gridCmd(e),
		infoCmd(e),
		cacheCmd(e),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "antgrid v%s\n", Version)
		},
		DisableAutoGenTag: true,
	}
}

// usageArgs tags argument validation failures as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		return nil
	}
}

// setup loads configuration, applies flag overrides and wires the service.
func (e *env) setup(ctx context.Context) error {
	config.LoadDotEnv(e.dotenv...)
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if f := e.flags.Lookup("cache-dir"); f.Changed {
		cfg.CacheDir = f.Value.String()
	}
	if f := e.flags.Lookup("base-url"); f.Changed {
		cfg.BaseURLOverride = f.Value.String()
	}
	if e.flags.Changed("require-hash") {
		cfg.RequireHash, _ = e.flags.GetBool("require-hash")
	}
	if e.flags.Changed("retries") {
		cfg.MaxRetries, _ = e.flags.GetUint64("retries")
	}
	if e.flags.Changed("debug") {
		cfg.Debug, _ = e.flags.GetBool("debug")
	}
	e.cfg = cfg

	if err := log.Init(cfg.Debug); err != nil {
		return err
	}
	e.logger = log.GetSugaredLogger()

	a, err := app.New(ctx, cfg, e.logger)
	if err != nil {
		return err
	}
	e.app = a
	return nil
}

func (e *env) close() {
	if e.app != nil {
		_ = e.app.Close()
	}
	log.Sync()
}

// run wraps a subcommand body with setup, timeout and teardown.
func (e *env) run(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		if err := e.setup(ctx); err != nil {
			return err
		}
		defer e.close()
		return fn(ctx, cmd, args)
	}
}

// gridFlags are shared by grid and info.
type gridFlags struct {
	layer   string
	region  string
	spacing float64
}

func (g *gridFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&g.layer, "layer", "l", "", "layer or value column (bedmap2: bed, surface, thickness, geoid2wgs; gravity: FA, BA)")
	fs.StringVarP(&g.region, "region", "R", "", "xmin/xmax/ymin/ymax in EPSG:3031 metres (default: dataset extent)")
	fs.Float64VarP(&g.spacing, "spacing", "I", 0, "grid spacing in metres (default: dataset spacing)")
}

func (g *gridFlags) region3031() (domain.Region, error) {
	if g.region == "" {
		return domain.Region{}, nil
	}
	r, err := domain.ParseRegion(g.region)
	if err != nil {
		return domain.Region{}, fmt.Errorf("%w: --region: %v", ErrUsage, err)
	}
	return r, nil
}
