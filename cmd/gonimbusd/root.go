// Command gonimbusd is the cobra CLI entrypoint: the external-caller
// stand-in for the GUI, exercising internal/core's full operation
// surface end to end. Each subcommand file registers its commands with
// the parent from its own init() (index.go, index_watch.go).
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/3leaps/gonimbus/internal/config"
	"github.com/3leaps/gonimbus/internal/core"
	"github.com/3leaps/gonimbus/internal/observability"
	"github.com/3leaps/gonimbus/pkg/handlecache"
	"github.com/3leaps/gonimbus/pkg/indexdriver"
	"github.com/3leaps/gonimbus/pkg/metricsstore"
)

// versionInfo is populated by SetVersionInfo; until that is called it
// holds the "dev" defaults below.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{Version: "dev", Commit: "HEAD", BuildDate: "unknown"}

// SetVersionInfo records the build-time version stamp. Exposed as a
// function, rather than letting callers poke the struct directly, so
// tests can exercise it too.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gonimbusd",
	Short: "Local metadata index and cache-coherence daemon for S3-compatible storage",
	Long: `gonimbusd indexes S3-compatible buckets into a local per-profile
SQLite index, serves navigation-time listings from that index when it is
complete, and reconciles it against live S3 responses otherwise.

It is the external-caller stand-in for the desktop GUI this core was
built for: every subcommand drives internal/core's operation surface
the same way the GUI's IPC layer would.`,
	SilenceUsage:      true,
	PersistentPreRunE: persistentPreRun,
}

// appCore is the process-wide Core every subcommand dispatches against,
// constructed once in persistentPreRun.
var appCore *core.Core

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gonimbus.yaml or $GONIMBUS_CONFIG_FILE)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		_ = os.Setenv("GONIMBUS_CONFIG_FILE", cfgFile)
	}
}

func persistentPreRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if level := cfg.Logging.Level; level != "" {
		if err := observability.SetLevel(level, !strings.EqualFold(cfg.Logging.Profile, "structured")); err != nil {
			return fmt.Errorf("configure logging: %w", err)
		}
	}

	c, err := core.New(ctx, core.Options{
		DataDir:  cfg.DataDir,
		Resolver: envProfileResolver{},
		CacheConfig: handlecache.Config{
			MaxEntries:  cfg.Cache.MaxEntries,
			IdleTimeout: cfg.Cache.IdleTimeout(),
			TTL:         cfg.Cache.TTL(),
		},
		DriverConfig: indexdriver.Config{
			MaxInitialRequests: cfg.IndexDefaults.MaxInitialRequests,
			BatchSize:          cfg.IndexDefaults.BatchSize,
			StaleTTLHours:      cfg.IndexDefaults.StaleTTLHours,
			RequestsPerSecond:  cfg.IndexDefaults.RequestsPerSecond,
		},
		Pricing: metricsstore.Pricing{
			GetPerThousand:    cfg.Pricing.GetPerThousand,
			PutPerThousand:    cfg.Pricing.PutPerThousand,
			ListPerThousand:   cfg.Pricing.ListPerThousand,
			DeletePerThousand: cfg.Pricing.DeletePerThousand,
		},
	})
	if err != nil {
		return fmt.Errorf("initialize core: %w", err)
	}
	appCore = c
	return nil
}

// Execute runs the root command, returning the error cobra produced
// (if any) so main can set the process exit code.
func Execute() error {
	defer func() {
		if appCore != nil {
			_ = appCore.Shutdown(context.Background())
		}
		observability.Sync()
	}()
	return rootCmd.Execute()
}
