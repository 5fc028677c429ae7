package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/markasorgu/api/schemas"
	"github.com/xkilldash9x/markasorgu/internal/api"
	"github.com/xkilldash9x/markasorgu/internal/config"
	"github.com/xkilldash9x/markasorgu/internal/observability"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Opens the session pool and serves the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runServe(ctx, cfg, observability.GetLogger())
		},
	}

	serveCmd.Flags().String("addr", config.DefaultServerAddr, "HTTP listen address. (Overrides config/env)")
	serveCmd.Flags().IntP("concurrency", "j", 5, "Number of browser sessions in the pool. (Overrides config/env)")
	serveCmd.Flags().Bool("headless", true, "Run the browser without a window. (Overrides config/env)")
	serveCmd.Flags().String("target-url", "", "Research page to drive. (Overrides config/env)")
	return serveCmd
}

// runServe keeps the API up until ctx is cancelled. A pool that cannot be opened is fatal.
func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting markasorgu API",
		zap.String("version", Version),
		zap.String("addr", cfg.Server.Addr),
		zap.Int("sessions", cfg.Engine.WorkerConcurrency),
		zap.Strings("blocked_resources", cfg.Browser.BlockedResources),
	)

	comps, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, schemas.ErrPoolUnavailable) {
			logger.Error("Session pool could not be opened", zap.Error(err))
		}
		return err
	}
	defer comps.Shutdown(cfg.Server.ShutdownTimeout)

	srv := api.NewServer(cfg.Server, comps.Engine, comps.Cache, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}
	logger.Info("Shutdown signal received, draining session pool")
	return ctx.Err()
}
