// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings except secrets.
//
// # Configuration Structure
//
// Server settings:
//
//	BILLFORGE_HOST="0.0.0.0"
//	BILLFORGE_PORT="8080"
//	BILLFORGE_READ_TIMEOUT="15s"
//	BILLFORGE_WRITE_TIMEOUT="15s"
//	BILLFORGE_ADMIN_TOKEN="..."
//	BILLFORGE_REDIS_ADDR="localhost:6379"   # empty disables rate limiting
//
// Database settings:
//
//	BILLFORGE_DATABASE_URL="postgres://localhost/billforge?sslmode=disable"
//	BILLFORGE_DB_MAX_OPEN_CONNS="20"
//
// Billing settings:
//
//	BILLFORGE_WEBHOOK_SECRET="..."          # required
//	BILLFORGE_DUNNING_COOLDOWN="72h"
//	BILLFORGE_DUNNING_MAX_REMINDERS="3"
//	BILLFORGE_GRACE_DAYS="7"
//
// Scheduler settings (cron expressions):
//
//	BILLFORGE_BILLING_SCHEDULE="0 2 * * *"
//	BILLFORGE_DUNNING_SCHEDULE="30 2 * * *"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/billing: Uses the dunning policy settings
//   - pkg/observability: Uses the log level setting
package config
