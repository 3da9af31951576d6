// Command serve starts the HTTP operation surface (internal/server) bound
// to the process-wide Core constructed in persistentPreRun, following the
// teacher's serve_test.go-observed shape: a health manager seeded with
// named dependency checkers before the router is wired, and a graceful
// shutdown on SIGINT/SIGTERM bounded by a configured timeout.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/3leaps/gonimbus/internal/config"
	"github.com/3leaps/gonimbus/internal/observability"
	"github.com/3leaps/gonimbus/internal/server"
	"github.com/3leaps/gonimbus/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP operation surface",
	Long: `serve starts the daemon's HTTP API: indexing, listing, search,
and cache-management endpoints backed by the process-wide Core, plus
health/readiness probes and a /version route.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// coreHealthChecker reports healthy once the process-wide Core has been
// constructed; it never touches the network itself, mirroring the
// teacher's signalHealthChecker's always-nil shape for a dependency that
// is either present at process start or not present at all.
type coreHealthChecker struct{}

func (coreHealthChecker) CheckHealth(context.Context) error {
	if appCore == nil {
		return errors.New("core not initialized")
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.GetConfig()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}

	handlers.InitHealthManager(versionInfo.Version)
	handlers.GetHealthManager().RegisterChecker("core", coreHealthChecker{})

	server.SetCore(appCore)
	server.Version = versionInfo.Version
	srv := server.New(cfg.Server.Host, cfg.Server.Port)

	httpServer := &http.Server{
		Addr:         srv.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		observability.Logger().Sugar().Infow("serving", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	observability.Logger().Sugar().Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
