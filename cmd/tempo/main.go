package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/tempo/adapter/cli"
	"github.com/felixgeelhaar/tempo/adapter/cli/mcp"
	"github.com/felixgeelhaar/tempo/internal/app"
	mcpinternal "github.com/felixgeelhaar/tempo/internal/mcp"
	"github.com/felixgeelhaar/tempo/pkg/config"
	"github.com/felixgeelhaar/tempo/pkg/observability"
)

func main() {
	// Setup logger
	logCfg := observability.DefaultLogConfig()
	logCfg.Level = observability.LogLevelWarn
	logCfg.ServiceVersion = cli.Version
	logger := observability.NewLogger(logCfg)

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Update logger level based on config
	switch {
	case cfg.LogLevel != "":
		logCfg.Level = observability.LogLevel(cfg.LogLevel)
		logger = observability.NewLogger(logCfg)
	case cfg.IsDevelopment():
		logCfg.Level = observability.LogLevelDebug
		logger = observability.NewLogger(logCfg)
	}
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}

	// The CLI relays its own events unless a worker does it.
	if cfg.OutboxProcessorEnabled {
		processor := container.OutboxProcessor()
		if err := processor.Start(ctx); err != nil {
			logger.Warn("failed to start outbox processor", "error", err)
		} else {
			defer processor.Stop()
		}
	} else {
		logger.Debug("outbox processor disabled in CLI")
	}

	cliApp := mcpinternal.NewCLIApp(container, container.UserID)
	cli.SetApp(cliApp)
	cli.AddCommand(mcp.Cmd)

	code := 0
	if err := cli.Execute(ctx); err != nil {
		code = 1
	}
	container.Close()
	os.Exit(code)
}
