package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/tempo/internal/app"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/tempo/pkg/config"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Setup logger
	logCfg := observability.DefaultLogConfig()
	logCfg.ServiceName = "tempo-worker"
	logger := observability.NewLogger(logCfg)

	logger.Info("starting tempo worker")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Update logger level based on config
	switch {
	case cfg.AppEnv == "production":
		logCfg = observability.ProductionLogConfig()
		logCfg.ServiceName = "tempo-worker"
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
	logger.Info("connected to storage", "driver", container.DB.Driver())

	// Create outbox processor
	processor := container.OutboxProcessor()
	logger.Info("starting outbox processor",
		"poll_interval", cfg.OutboxPollInterval,
		"batch_size", cfg.OutboxBatchSize,
		"max_retries", cfg.OutboxMaxRetries,
	)
	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start outbox processor", "error", err)
		os.Exit(1)
	}

	// Notifications published to RabbitMQ come back through the consumer.
	// Without a broker the local bus has already dispatched them.
	if cfg.RabbitMQURL != "" {
		consumer, err := eventbus.NewRabbitMQConsumer(cfg.RabbitMQURL, eventbus.DefaultQueueName, container.EventRegistry, logger)
		if err != nil {
			logger.Error("failed to start RabbitMQ consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped", "error", err)
				cancel()
			}
		}()
		logger.Info("event consumer started", "queue", eventbus.DefaultQueueName)
	}

	cleanupTicker := time.NewTicker(cfg.OutboxCleanupInterval)
	defer cleanupTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanupTicker.C:
				deleted, err := container.OutboxRepo.DeleteOld(ctx, cfg.OutboxRetentionDays)
				if err != nil {
					logger.Error("outbox cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
				}
			}
		}
	}()

	if cfg.WorkerHealthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			stats := processor.GetStats()
			response := map[string]any{
				"status":            "ok",
				"running":           stats.IsRunning,
				"published":         stats.PublishedCount,
				"failed":            stats.FailedCount,
				"dead":              stats.DeadCount,
				"lag_seconds":       stats.LagSeconds,
				"last_processed_at": stats.LastProcessedAt,
				"last_error_at":     stats.LastErrorAt,
				"last_error":        stats.LastError,
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(response)
		})

		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			report := container.Health.Check(checkCtx)
			w.Header().Set("Content-Type", "application/json")
			if report.Status == observability.HealthStatusUnhealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			_ = json.NewEncoder(w).Encode(report)
		})

		mux.Handle("/metrics", promhttp.HandlerFor(container.Registry, promhttp.HandlerOpts{}))

		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
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

	statsTicker := time.NewTicker(cfg.OutboxStatsInterval)
	defer statsTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				stats := processor.GetStats()
				logger.Info("outbox stats",
					"running", stats.IsRunning,
					"published", stats.PublishedCount,
					"failed", stats.FailedCount,
					"dead", stats.DeadCount,
					"lag_seconds", stats.LagSeconds,
					"last_processed_at", stats.LastProcessedAt,
					"last_error_at", stats.LastErrorAt,
					"last_error", stats.LastError,
				)
			}
		}
	}()

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("shutting down worker")

	processor.Stop()
	logger.Info("worker stopped")
}
