// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings except the PostgreSQL URL and the JWT secret,
// which are required.
//
// # Configuration Structure
//
// Server settings:
//
//	SKILLGATE_HOST="0.0.0.0"
//	SKILLGATE_PORT="8080"
//	SKILLGATE_HEALTH_PORT="9090"
//	SKILLGATE_READ_TIMEOUT="15s"
//	SKILLGATE_WRITE_TIMEOUT="15s"
//	SKILLGATE_CORS_ORIGINS="https://app.example.com"
//
// Database settings:
//
//	SKILLGATE_POSTGRES_URL="postgres://localhost/skillgate"
//	SKILLGATE_POSTGRES_MAX_CONNS="25"
//	SKILLGATE_REDIS_URL="redis://localhost:6379/0"
//
// Auth settings:
//
//	SKILLGATE_JWT_SECRET="<at least 32 bytes>"
//	SKILLGATE_TOKEN_ISSUER="skillgate"
//	SKILLGATE_ACCESS_TOKEN_TTL="15m"
//	SKILLGATE_REFRESH_TOKEN_TTL="168h"
//	SKILLGATE_LOGIN_RATE_LIMIT="10"
//	SKILLGATE_LOGIN_RATE_WINDOW="1m"
//	SKILLGATE_SESSION_SWEEP_SCHEDULE="0 * * * *"
//
// Observability settings:
//
//	SKILLGATE_LOG_LEVEL="info"  # debug, info, warn, error
//	SKILLGATE_METRICS_ENABLED="true"
//	SKILLGATE_OTEL_ENABLED="true"
//	SKILLGATE_OTEL_ENDPOINT="otel-collector:4317"
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
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage: Uses database and Redis configuration
//   - pkg/observability: Uses observability configuration
package config
