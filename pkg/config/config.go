// Package config loads tempo settings from the environment and the engine
// tuning file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration read from the environment.
type Config struct {
	AppEnv   string
	LogLevel string
	UserID   string
	Timezone string

	// Storage. An empty DatabaseURL selects the local SQLite file.
	DatabaseURL string
	SQLitePath  string

	RedisURL     string
	PlanCacheTTL time.Duration
	LockWait     time.Duration
	LockTTL      time.Duration

	RabbitMQURL string

	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxStatsInterval    time.Duration
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	WorkerHealthAddr string

	// Advisory scheduling model. Empty provider disables it.
	AdvisoryProvider string
	AdvisoryModel    string
	AdvisoryAPIKey   string
	AdvisoryBaseURL  string
	AdvisoryTimeout  time.Duration

	// Calendar mirror: "google", "caldav" or empty.
	CalendarProvider      string
	CalendarID            string
	CalendarDeleteMissing bool
	GoogleAccessToken     string
	CalDAVURL             string
	CalDAVUsername        string
	CalDAVPassword        string

	TodoistToken   string
	TodoistBaseURL string

	SendGridAPIKey string
	NotifyFrom     string
	NotifyTo       string

	MCPAddr      string
	MCPAuthToken string

	EngineConfigPath string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		UserID:   getEnv("TEMPO_USER_ID", "00000000-0000-0000-0000-000000000001"),
		Timezone: getEnv("TEMPO_TIMEZONE", "Local"),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SQLitePath:   getEnv("SQLITE_PATH", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		PlanCacheTTL: getDurationEnv("PLAN_CACHE_TTL", 5*time.Minute),
		LockWait:     getDurationEnv("LOCK_WAIT", 5*time.Second),
		LockTTL:      getDurationEnv("LOCK_TTL", 30*time.Second),

		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxStatsInterval:    getDurationEnv("OUTBOX_STATS_INTERVAL", 30*time.Second),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),

		AdvisoryProvider: strings.ToLower(getEnv("ADVISORY_PROVIDER", "")),
		AdvisoryModel:    getEnv("ADVISORY_MODEL", ""),
		AdvisoryAPIKey:   getEnv("ADVISORY_API_KEY", ""),
		AdvisoryBaseURL:  getEnv("ADVISORY_BASE_URL", ""),
		AdvisoryTimeout:  getDurationEnv("ADVISORY_TIMEOUT", 10*time.Second),

		CalendarProvider:      strings.ToLower(getEnv("CALENDAR_PROVIDER", "")),
		CalendarID:            getEnv("CALENDAR_ID", "primary"),
		CalendarDeleteMissing: getBoolEnv("CALENDAR_DELETE_MISSING", false),
		GoogleAccessToken:     getEnv("GOOGLE_ACCESS_TOKEN", ""),
		CalDAVURL:             getEnv("CALDAV_URL", ""),
		CalDAVUsername:        getEnv("CALDAV_USERNAME", ""),
		CalDAVPassword:        getEnv("CALDAV_PASSWORD", ""),

		TodoistToken:   getEnv("TODOIST_TOKEN", ""),
		TodoistBaseURL: getEnv("TODOIST_BASE_URL", "https://api.todoist.com/rest/v2"),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		NotifyFrom:     getEnv("NOTIFY_FROM", "tempo@localhost"),
		NotifyTo:       getEnv("NOTIFY_TO", ""),

		MCPAddr:      getEnv("MCP_ADDR", "127.0.0.1:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),

		EngineConfigPath: getEnv("ENGINE_CONFIG_PATH", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.AdvisoryProvider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("ADVISORY_PROVIDER must be openai or anthropic, got %q", c.AdvisoryProvider)
	}
	switch c.CalendarProvider {
	case "", "google", "caldav":
	default:
		return fmt.Errorf("CALENDAR_PROVIDER must be google or caldav, got %q", c.CalendarProvider)
	}
	if c.AdvisoryTimeout <= 0 {
		return fmt.Errorf("ADVISORY_TIMEOUT must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TEMPO_TIMEZONE: %w", err)
	}
	return nil
}

// Location resolves Timezone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AdvisoryEnabled reports whether an advisory model is configured.
func (c *Config) AdvisoryEnabled() bool {
	return c.AdvisoryProvider != "" && c.AdvisoryAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
