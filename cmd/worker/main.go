// The worker runs the background side of SubTrack: the expiration sweeper,
// the outbox processor, and periodic outbox cleanup, with a small health
// endpoint for orchestrators.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subtrackhq/subtrack/internal/app"
	"github.com/subtrackhq/subtrack/pkg/config"
	"github.com/subtrackhq/subtrack/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	logger.Info("starting subtrack worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
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

	// Published outbox rows are kept for a retention window so event
	// delivery can be audited, then removed in bulk.
	cleanupTicker := time.NewTicker(cfg.OutboxCleanupInterval)
	defer cleanupTicker.Stop()
	go func() {
		retention := time.Duration(cfg.OutboxRetentionDays) * 24 * time.Hour
		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanupTicker.C:
				deleted, err := observability.TimeOperationResult(ctx, logger, container.Metrics, "outbox.cleanup", func() (int64, error) {
					return container.OutboxRepo.DeleteOld(ctx, retention)
				})
				if err != nil {
					continue
				}
				if deleted > 0 {
					logger.Info("outbox cleanup completed",
						"deleted", deleted,
						"retention_days", cfg.OutboxRetentionDays,
					)
				}
			}
		}
	}()

	if cfg.WorkerHealthAddr != "" {
		startHealthServer(ctx, container, cfg.WorkerHealthAddr, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
}

// startHealthServer exposes /healthz and /readyz on the given address and
// shuts down with the worker.
func startHealthServer(ctx context.Context, container *app.Container, addr string, logger *slog.Logger) {
	registry := container.NewHealthRegistry()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		health := registry.GetOverallHealth(checkCtx)
		body, err := health.ToJSON()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == observability.HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write(body)
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := container.PingDatabase(checkCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not_ready"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	healthSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("health server starting", "addr", addr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()
}
