package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/app"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/commands"
	"github.com/felixgeelhaar/studyflow/internal/rebalance/application/queries"
	"github.com/felixgeelhaar/studyflow/pkg/config"
	"github.com/felixgeelhaar/studyflow/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	logger.Info("starting studyflow worker")

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
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	// Relay domain events to the broker
	if cfg.OutboxProcessorEnabled {
		if err := container.OutboxProcessor.Start(ctx); err != nil {
			logger.Error("failed to start outbox processor", "error", err)
			os.Exit(1)
		}
		defer container.OutboxProcessor.Stop()
		logger.Info("outbox processor started",
			"poll_interval", cfg.OutboxPollInterval,
			"batch_size", cfg.OutboxBatchSize,
		)
	}

	// Prune published outbox rows
	go runEvery(ctx, cfg.OutboxCleanupInterval, func(now time.Time) {
		deleted, err := container.OutboxRepo.DeleteOld(ctx, cfg.OutboxRetentionDays)
		if err != nil {
			logger.Error("outbox cleanup failed", "error", err)
			return
		}
		if deleted > 0 {
			logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
		}
	})

	// Expire proposals nobody confirmed
	go runEvery(ctx, cfg.ExpirySweepInterval, func(now time.Time) {
		result, err := container.ExpireProposalsHandler.Handle(ctx, commands.ExpireProposalsCommand{
			TTL: cfg.ProposalTTL,
			Now: now,
		})
		if err != nil {
			logger.Error("expiry sweep failed", "error", err)
			return
		}
		if result.Expired > 0 {
			logger.Info("expired stale proposals", "count", result.Expired)
		}
	})

	// Whole-population refresh once a day
	go runDaily(ctx, cfg.DailyRefreshHour, func(now time.Time) {
		logger.Info("daily refresh starting")
		result, err := container.DailyRefreshHandler.Handle(ctx, commands.DailyRefreshCommand{
			HorizonDays: cfg.RefreshHorizonDays,
			Now:         now,
		})
		if err != nil {
			logger.Error("daily refresh failed", "error", err)
			return
		}
		logger.Info("daily refresh completed",
			"users_processed", result.UsersProcessed,
			"users_failed", result.UsersFailed,
			"moves_proposed", result.MovesProposed,
		)
	})

	if cfg.WorkerHealthAddr != "" {
		startHealthServer(ctx, cfg.WorkerHealthAddr, container, logger)
	}

	<-ctx.Done()
	logger.Info("studyflow worker stopped")
}

// runEvery invokes fn on a fixed interval until the context ends.
func runEvery(ctx context.Context, interval time.Duration, fn func(now time.Time)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}

// runDaily invokes fn at the given local hour, once per day.
func runDaily(ctx context.Context, hour int, fn func(now time.Time)) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			fn(time.Now().UTC())
		}
	}
}

func startHealthServer(ctx context.Context, addr string, container *app.Container, logger *slog.Logger) {
	registry := observability.NewHealthRegistry()

	registry.Register("database", func(ctx context.Context) observability.CheckResult {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		var err error
		if container.Pool != nil {
			err = container.Pool.Ping(checkCtx)
		} else if container.SQLiteDB != nil {
			err = container.SQLiteDB.PingContext(checkCtx)
		}
		if err != nil {
			return observability.CheckResult{Status: observability.CheckStatusUnhealthy, Message: err.Error()}
		}
		return observability.CheckResult{Status: observability.CheckStatusHealthy}
	})

	registry.Register("engine", func(ctx context.Context) observability.CheckResult {
		view, err := container.EngineHealthHandler.Handle(ctx, queries.EngineHealthQuery{})
		if err != nil {
			return observability.CheckResult{Status: observability.CheckStatusUnhealthy, Message: err.Error()}
		}
		status := observability.CheckStatusHealthy
		switch view.Status {
		case queries.HealthDown:
			status = observability.CheckStatusUnhealthy
		case queries.HealthDegraded:
			status = observability.CheckStatusDegraded
		}
		return observability.CheckResult{
			Status: status,
			Details: map[string]any{
				"generated_24h":   view.Generated24h,
				"applied_24h":     view.Applied24h,
				"undone_24h":      view.Undone24h,
				"acceptance_rate": view.AcceptanceRate,
				"undo_rate":       view.UndoRate,
			},
		}
	})

	mux := http.NewServeMux()
	mux.Handle("/healthz", registry.Handler())

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
