package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/tempo/internal/app"
	mcpinternal "github.com/felixgeelhaar/tempo/internal/mcp"
	"github.com/felixgeelhaar/tempo/pkg/config"
	"github.com/felixgeelhaar/tempo/pkg/observability"
)

func main() {
	logCfg := observability.DefaultLogConfig()
	logCfg.ServiceName = "tempo-mcp"
	logger := observability.NewLogger(logCfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch {
	case cfg.AppEnv == "production":
		logCfg = observability.ProductionLogConfig()
		logCfg.ServiceName = "tempo-mcp"
		logger = observability.NewLogger(logCfg)
	case cfg.IsDevelopment():
		logCfg.Level = observability.LogLevelDebug
		logger = observability.NewLogger(logCfg)
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	if cfg.OutboxProcessorEnabled {
		processor := container.OutboxProcessor()
		if err := processor.Start(ctx); err != nil {
			logger.Warn("failed to start outbox processor", "error", err)
		} else {
			defer processor.Stop()
		}
	}

	cliApp := mcpinternal.NewCLIApp(container, container.UserID)

	if err := mcpinternal.Serve(ctx, cfg, cliApp, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
