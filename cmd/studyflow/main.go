package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/studyflow/adapter/cli"
	"github.com/felixgeelhaar/studyflow/internal/app"
	"github.com/felixgeelhaar/studyflow/pkg/config"
	"github.com/felixgeelhaar/studyflow/pkg/observability"
	"github.com/google/uuid"
)

func main() {
	logger := observability.LoggerFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		// In development without .env, use defaults
		logger.Warn("failed to load config, using development mode", "error", err)
		cfg = &config.Config{AppEnv: "development"}
	}
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("failed to initialize container, running in limited mode", "error", err)
		} else {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
	} else {
		defer container.Close()

		if cfg.OutboxProcessorEnabled {
			if err := container.OutboxProcessor.Start(ctx); err != nil {
				logger.Warn("failed to start outbox processor", "error", err)
			}
			defer container.OutboxProcessor.Stop()
		}

		cliApp := cli.NewApp(
			container.GenerateProposalHandler,
			container.ApplyProposalHandler,
			container.UndoProposalHandler,
			container.CancelProposalHandler,
			container.ReportEnergyHandler,
			container.GetProposalHandler,
			container.EngineHealthHandler,
		)
		if userID, err := uuid.Parse(cfg.UserID); err == nil {
			cliApp.SetCurrentUserID(userID)
		} else {
			logger.Warn("invalid STUDYFLOW_USER_ID", "value", cfg.UserID, "error", err)
		}
		cli.SetApp(cliApp)
	}

	cli.Execute()
}
