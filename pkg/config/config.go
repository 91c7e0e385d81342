package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/billforge/billforge/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Billing configuration
	Billing BillingConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Admin job-trigger endpoints require this token
	AdminToken string

	// Redis used by the rate limiter; empty disables rate limiting
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// BillingConfig holds billing and dunning policy settings
type BillingConfig struct {
	// Secret for verifying inbound payment-outcome event signatures
	WebhookSecret string

	// Dunning policy
	DunningCooldown     time.Duration
	DunningMaxReminders int
	GraceDays           int

	// Max queued background job triggers
	JobQueueSize int
}

// SchedulerConfig holds cron schedules for the batch binaries
type SchedulerConfig struct {
	BillingSchedule string
	DunningSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Billing:       loadBillingConfig(),
		Scheduler:     loadSchedulerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("BILLFORGE_HOST", "0.0.0.0"),
		Port:            getEnv("BILLFORGE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("BILLFORGE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BILLFORGE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("BILLFORGE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BILLFORGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		AdminToken:      getEnv("BILLFORGE_ADMIN_TOKEN", ""),
		RedisAddr:       getEnv("BILLFORGE_REDIS_ADDR", ""),
		RedisPassword:   getEnv("BILLFORGE_REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("BILLFORGE_REDIS_DB", 0),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("BILLFORGE_DATABASE_URL", "postgres://localhost/billforge?sslmode=disable"),
		MaxOpenConns: getEnvInt("BILLFORGE_DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns: getEnvInt("BILLFORGE_DB_MAX_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("BILLFORGE_DB_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadBillingConfig loads billing configuration from environment
func loadBillingConfig() BillingConfig {
	return BillingConfig{
		WebhookSecret:       getEnv("BILLFORGE_WEBHOOK_SECRET", ""),
		DunningCooldown:     getEnvDuration("BILLFORGE_DUNNING_COOLDOWN", 72*time.Hour),
		DunningMaxReminders: getEnvInt("BILLFORGE_DUNNING_MAX_REMINDERS", 3),
		GraceDays:           getEnvInt("BILLFORGE_GRACE_DAYS", 7),
		JobQueueSize:        getEnvInt("BILLFORGE_JOB_QUEUE_SIZE", 16),
	}
}

// loadSchedulerConfig loads scheduler configuration from environment
func loadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BillingSchedule: getEnv("BILLFORGE_BILLING_SCHEDULE", "0 2 * * *"),
		DunningSchedule: getEnv("BILLFORGE_DUNNING_SCHEDULE", "30 2 * * *"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("BILLFORGE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("BILLFORGE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Billing.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required")
	}
	if c.Billing.DunningCooldown <= 0 {
		return fmt.Errorf("dunning cooldown must be positive")
	}
	if c.Billing.DunningMaxReminders < 1 {
		return fmt.Errorf("dunning max reminders must be at least 1")
	}
	if c.Billing.GraceDays < 1 {
		return fmt.Errorf("grace days must be at least 1")
	}
	if c.Billing.JobQueueSize < 1 {
		return fmt.Errorf("job queue size must be at least 1")
	}
	return nil
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as duration or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
