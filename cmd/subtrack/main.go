package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/subtrackhq/subtrack/internal/app"
	"github.com/subtrackhq/subtrack/pkg/config"
	"github.com/subtrackhq/subtrack/pkg/observability"
)

var rootCmd = &cobra.Command{
	Use:   "subtrack",
	Short: "SubTrack - subscription lifecycle service",
	Long: `SubTrack manages subscription lifecycles: user accounts, a plan
catalog, and subscriptions that move through active, cancelled, and
expired states with automatic expiration sweeps.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.LoggerFromEnv()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		}()

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer container.Close()

		if cfg.OutboxProcessorEnabled {
			container.OutboxProcessor.Start(ctx)
		} else {
			logger.Info("outbox processor disabled")
		}

		if cfg.SweeperEnabled {
			container.Sweeper.Start(ctx)
		} else {
			logger.Info("expiration sweeper disabled")
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- container.Server.Start()
		}()

		logger.Info("server started", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := container.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info("server stopped")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.LoggerFromEnv()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Container construction runs migrations as part of startup.
		container, err := app.NewContainer(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		container.Close()

		logger.Info("migrations applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the plan catalog with default plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.LoggerFromEnv()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		container, err := app.NewContainer(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer container.Close()

		if err := container.Catalog.Seed(cmd.Context()); err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}

		logger.Info("plan catalog seeded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
