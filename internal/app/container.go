// Package app wires tempo's dependencies for the CLI, MCP server and worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	calendarApp "github.com/felixgeelhaar/tempo/internal/calendar/application"
	"github.com/felixgeelhaar/tempo/internal/calendar/infrastructure/caldav"
	"github.com/felixgeelhaar/tempo/internal/calendar/infrastructure/google"
	notificationApp "github.com/felixgeelhaar/tempo/internal/notification/application"
	logNotifier "github.com/felixgeelhaar/tempo/internal/notification/infrastructure/logging"
	"github.com/felixgeelhaar/tempo/internal/notification/infrastructure/sendgrid"
	"github.com/felixgeelhaar/tempo/internal/planning/application/commands"
	"github.com/felixgeelhaar/tempo/internal/planning/application/queries"
	"github.com/felixgeelhaar/tempo/internal/planning/application/services"
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/internal/planning/infrastructure/advisory"
	"github.com/felixgeelhaar/tempo/internal/planning/infrastructure/persistence"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/cache"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/tempo/internal/shared/infrastructure/database/postgres"
	_ "github.com/felixgeelhaar/tempo/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/outbox"
	tasksyncApp "github.com/felixgeelhaar/tempo/internal/tasksync/application"
	"github.com/felixgeelhaar/tempo/internal/tasksync/infrastructure/todoist"
	"github.com/felixgeelhaar/tempo/pkg/config"
	"github.com/felixgeelhaar/tempo/pkg/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config   *config.Config
	Engine   config.EngineConfig
	Logger   *slog.Logger
	UserID   uuid.UUID
	Location *time.Location

	// Infrastructure
	DB          database.Connection
	RedisClient *redis.Client
	Registry    *prometheus.Registry
	Metrics     observability.Metrics
	Health      *observability.HealthRegistry

	// Repositories
	PlanRepo      domain.PlanRepository
	HistoryRepo   domain.HistoryRepository
	RescheduleLog domain.RescheduleLogRepository
	OutboxRepo    outbox.Repository
	UnitOfWork    *database.UnitOfWork
	Locker        lock.Locker

	// Events
	EventRegistry  *eventbus.Registry
	EventPublisher eventbus.Publisher

	// Integrations. Each is nil when not configured.
	Advisor        services.Advisor
	Breaker        *advisory.BreakerAdvisor
	CalendarMirror *calendarApp.Mirror
	TaskSource     tasksyncApp.Source
	Dispatcher     *notificationApp.Dispatcher

	// Planning services
	Profiles         *services.ProfileLoader
	PlanBuilder      *services.PlanBuilder
	RescheduleEngine *services.RescheduleEngine

	// Command handlers
	GeneratePlanHandler      *commands.GeneratePlanHandler
	RecordProgressHandler    *commands.RecordProgressHandler
	RescheduleHandler        *commands.RescheduleHandler
	ReconcileExternalHandler *commands.ReconcileExternalHandler

	// Query handlers
	GetPlanHandler     *queries.GetPlanHandler
	GetProgressHandler *queries.GetProgressHandler
	GetInsightsHandler *queries.GetInsightsHandler

	closers []func() error
}

// NewContainer creates and wires all dependencies. An empty DatabaseURL
// runs against the local SQLite file.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	userID, err := uuid.Parse(cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid TEMPO_USER_ID: %w", err)
	}
	engineCfg, err := config.LoadEngineConfig(cfg.EngineConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load engine config: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Engine:   engineCfg,
		Logger:   logger,
		UserID:   userID,
		Location: cfg.Location(),
		Registry: prometheus.NewRegistry(),
		Health:   observability.NewHealthRegistry(),
	}
	c.Metrics = observability.NewPrometheusMetrics(c.Registry)

	if err := c.initStorage(ctx); err != nil {
		c.Close()
		return nil, err
	}
	c.initRedis(ctx)
	if err := c.initRepositories(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initEvents(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initIntegrations(); err != nil {
		c.Close()
		return nil, err
	}
	c.initHandlers()
	c.registerHealthChecks()

	logger.Info("container initialized",
		"driver", c.DB.Driver().String(),
		"redis", c.RedisClient != nil,
		"advisory", c.Advisor != nil,
		"calendar", cfg.CalendarProvider,
		"task_source", c.TaskSource != nil,
	)
	return c, nil
}

func (c *Container) initStorage(ctx context.Context) error {
	cfg := c.Config
	dbCfg := database.Config{URL: cfg.DatabaseURL, MaxConns: 10}
	if cfg.DatabaseURL == "" {
		dbCfg.Driver = database.DriverSQLite
		dbCfg.SQLitePath = cfg.SQLitePath
		if dbCfg.SQLitePath == "" {
			dbCfg.SQLitePath = database.DefaultSQLitePath()
		}
	}

	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = conn
	c.closers = append(c.closers, conn.Close)

	c.Logger.Info("running migrations", "driver", conn.Driver().String())
	if err := migrations.Run(ctx, conn); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// initRedis connects to Redis when configured. Outside production a
// missing Redis falls back to the in-process lock and an uncached store.
func (c *Container) initRedis(ctx context.Context) {
	if c.Config.RedisURL == "" {
		return
	}
	client, err := cache.NewClient(c.Config.RedisURL)
	if err != nil {
		c.Logger.Warn("invalid Redis URL, plan cache disabled", "error", err)
		return
	}
	if err := client.Ping(ctx).Err(); err != nil {
		c.Logger.Warn("Redis not available, plan cache disabled", "error", err)
		_ = client.Close()
		return
	}
	c.RedisClient = client
	c.closers = append(c.closers, client.Close)
	c.Logger.Info("connected to Redis")
}

func (c *Container) initRepositories(ctx context.Context) error {
	factory := NewRepositoryFactory(c.DB, c.Config.DatabaseURL)

	store, err := factory.PlanStore()
	if err != nil {
		return fmt.Errorf("failed to create plan store: %w", err)
	}
	c.HistoryRepo = store
	c.PlanRepo = store
	if c.RedisClient != nil {
		c.PlanRepo = persistence.NewCachedPlanRepository(
			store,
			cache.NewRedisCache(c.RedisClient, "tempo:plan"),
			c.Config.PlanCacheTTL,
			c.Logger,
		)
	}

	logRepo, closeLog, err := factory.RescheduleLog(ctx)
	if err != nil {
		return fmt.Errorf("failed to create reschedule log: %w", err)
	}
	c.RescheduleLog = logRepo
	c.closers = append(c.closers, closeLog)

	c.OutboxRepo, err = factory.OutboxRepository()
	if err != nil {
		return fmt.Errorf("failed to create outbox repository: %w", err)
	}
	c.UnitOfWork = database.NewUnitOfWork(c.DB)

	if c.RedisClient != nil {
		c.Locker = lock.NewRedisLocker(c.RedisClient, c.Config.LockTTL, c.Config.LockWait, c.Logger)
	} else {
		c.Locker = lock.NewLocalLocker(c.Config.LockWait)
	}
	return nil
}

// initEvents builds the handler registry and the publisher the outbox
// relays to. Without RabbitMQ events are dispatched in-process.
func (c *Container) initEvents() error {
	var notifiers []notificationApp.Notifier
	notifiers = append(notifiers, logNotifier.NewNotifier(c.Logger))
	if c.Config.SendGridAPIKey != "" {
		sg, err := sendgrid.NewNotifier(sendgrid.Config{
			APIKey: c.Config.SendGridAPIKey,
			From:   c.Config.NotifyFrom,
			To:     c.Config.NotifyTo,
		})
		if err != nil {
			return fmt.Errorf("failed to configure SendGrid: %w", err)
		}
		notifiers = append(notifiers, sg)
	}
	c.Dispatcher = notificationApp.NewDispatcher(c.Logger, c.Metrics, notifiers...)

	c.EventRegistry = eventbus.NewRegistry(c.Logger)
	c.EventRegistry.Register(notificationApp.NewCheckInHandler(c.PlanRepo, c.Dispatcher, c.Location, c.Logger))
	c.EventRegistry.Register(notificationApp.NewRescheduleNoticeHandler(c.Dispatcher, c.Logger))

	if c.Config.RabbitMQURL == "" {
		c.EventPublisher = eventbus.NewLocalBus(c.EventRegistry, c.Logger)
		return nil
	}
	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, dispatching events in-process", "error", err)
		c.EventPublisher = eventbus.NewLocalBus(c.EventRegistry, c.Logger)
		return nil
	}
	c.EventPublisher = publisher
	c.closers = append(c.closers, publisher.Close)
	return nil
}

func (c *Container) initIntegrations() error {
	cfg := c.Config

	if cfg.AdvisoryEnabled() {
		client, err := advisory.NewClient(advisory.Config{
			Provider: cfg.AdvisoryProvider,
			Model:    cfg.AdvisoryModel,
			APIKey:   cfg.AdvisoryAPIKey,
			BaseURL:  cfg.AdvisoryBaseURL,
			Timeout:  cfg.AdvisoryTimeout,
		}, nil)
		if err != nil {
			return fmt.Errorf("failed to configure advisory model: %w", err)
		}
		c.Breaker = advisory.NewBreakerAdvisor(client, advisory.DefaultBreakerConfig(), c.Logger)
		c.Advisor = c.Breaker
	}

	var syncer calendarApp.Syncer
	switch cfg.CalendarProvider {
	case "google":
		if cfg.GoogleAccessToken == "" {
			return errors.New("CALENDAR_PROVIDER=google requires GOOGLE_ACCESS_TOKEN")
		}
		syncer = google.NewSyncer(google.StaticTokenSource(cfg.GoogleAccessToken), c.Logger).
			WithCalendarID(cfg.CalendarID).
			WithDeleteMissing(cfg.CalendarDeleteMissing)
	case "caldav":
		if cfg.CalDAVURL == "" {
			return errors.New("CALENDAR_PROVIDER=caldav requires CALDAV_URL")
		}
		syncer = caldav.NewSyncer(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, c.Logger).
			WithDeleteMissing(cfg.CalendarDeleteMissing)
	}
	if syncer != nil {
		c.CalendarMirror = calendarApp.NewMirror(syncer, calendarApp.DefaultMirrorTimeout, c.Logger, c.Metrics)
	}

	if cfg.TodoistToken != "" {
		c.TaskSource = todoist.NewSource(todoist.NewTokenSource(cfg.TodoistToken), cfg.TodoistBaseURL, c.Logger)
	}
	return nil
}

func (c *Container) initHandlers() {
	c.Profiles = services.NewProfileLoader(c.HistoryRepo, c.PlanRepo, c.Engine)
	c.PlanBuilder = services.NewPlanBuilder(services.BuilderConfigFrom(c.Engine))
	c.RescheduleEngine = services.NewRescheduleEngine(services.RescheduleConfigFrom(c.Engine), c.Advisor, c.Logger, c.Metrics)

	// Interface values stay nil when an integration is off.
	var mirror commands.CalendarMirror
	if c.CalendarMirror != nil {
		mirror = c.CalendarMirror
	}

	c.GeneratePlanHandler = commands.NewGeneratePlanHandler(
		c.PlanRepo, c.Profiles, c.PlanBuilder, c.OutboxRepo, c.UnitOfWork, c.Locker,
		c.TaskSource, mirror, c.Logger, c.Metrics, nil,
	)
	c.RecordProgressHandler = commands.NewRecordProgressHandler(
		c.PlanRepo, c.OutboxRepo, c.UnitOfWork, c.Locker, c.Logger, c.Metrics, nil,
	)
	c.RescheduleHandler = commands.NewRescheduleHandler(
		c.PlanRepo, c.RescheduleLog, c.Profiles, c.RescheduleEngine, c.OutboxRepo, c.UnitOfWork, c.Locker,
		c.Dispatcher, mirror, c.Logger, c.Metrics, nil,
	)
	c.ReconcileExternalHandler = commands.NewReconcileExternalHandler(
		c.PlanRepo, c.TaskSource, c.OutboxRepo, c.UnitOfWork, c.Locker, c.Logger, c.Metrics, nil,
	)

	c.GetPlanHandler = queries.NewGetPlanHandler(c.PlanRepo)
	c.GetProgressHandler = queries.NewGetProgressHandler(c.PlanRepo, c.Profiles, c.RescheduleEngine)
	c.GetInsightsHandler = queries.NewGetInsightsHandler(c.Profiles)
}

func (c *Container) registerHealthChecks() {
	c.Health.Register("database", observability.PingChecker("database", observability.HealthStatusUnhealthy, c.DB.Ping))
	if c.RedisClient != nil {
		c.Health.Register("redis", observability.PingChecker("redis", observability.HealthStatusDegraded, func(ctx context.Context) error {
			return c.RedisClient.Ping(ctx).Err()
		}))
	}
	if p, ok := c.EventPublisher.(interface{ Ping(context.Context) error }); ok {
		c.Health.Register("rabbitmq", observability.PingChecker("rabbitmq", observability.HealthStatusDegraded, p.Ping))
	}
	if c.Breaker != nil {
		c.Health.Register("advisory", func(context.Context) observability.HealthCheckResult {
			state := c.Breaker.State()
			status := observability.HealthStatusHealthy
			if state != "closed" {
				status = observability.HealthStatusDegraded
			}
			return observability.HealthCheckResult{Status: status, Message: "circuit " + state}
		})
	}
}

// OutboxProcessor builds the relay from the outbox to the event publisher.
func (c *Container) OutboxProcessor() *outbox.Processor {
	pcfg := outbox.DefaultProcessorConfig()
	pcfg.PollInterval = c.Config.OutboxPollInterval
	pcfg.BatchSize = c.Config.OutboxBatchSize
	pcfg.MaxRetries = c.Config.OutboxMaxRetries
	return outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, pcfg, c.Logger, c.Metrics)
}

// Close releases all resources in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("error during shutdown", "error", err)
		}
	}
	c.closers = nil
}
