package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/skillgate/skillgate/pkg/observability"
	"github.com/skillgate/skillgate/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database storage.Config

	// Redis configuration (rate limiter)
	Redis storage.RedisConfig

	// Auth configuration
	Auth AuthConfig

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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Allowed CORS origins, comma separated
	CORSOrigins []string
}

// AuthConfig holds credential and session settings
type AuthConfig struct {
	// JWTSecret signs access and refresh tokens. Required.
	JWTSecret string

	// TokenIssuer is the iss claim on minted tokens.
	TokenIssuer string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Login rate limiting per client address.
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// Cron schedule for the expired-session sweeper.
	SessionSweepSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
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
		Host:            getEnv("SKILLGATE_HOST", "0.0.0.0"),
		Port:            getEnv("SKILLGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SKILLGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SKILLGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SKILLGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SKILLGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SKILLGATE_HEALTH_PORT", "9090"),
		CORSOrigins:     splitAndTrim(getEnv("SKILLGATE_CORS_ORIGINS", "*")),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() storage.Config {
	cfg := storage.DefaultConfig(getEnv("SKILLGATE_POSTGRES_URL", ""))

	if maxConns := getEnvInt("SKILLGATE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("SKILLGATE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("SKILLGATE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	return cfg
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        getEnv("SKILLGATE_REDIS_URL", "redis://localhost:6379/0"),
		Password:   getEnv("SKILLGATE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("SKILLGATE_REDIS_DB", 0),
		MaxRetries: getEnvInt("SKILLGATE_REDIS_MAX_RETRIES", 0),
		PoolSize:   getEnvInt("SKILLGATE_REDIS_POOL_SIZE", 0),
	}
}

// loadAuthConfig loads credential settings from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:            getEnv("SKILLGATE_JWT_SECRET", ""),
		TokenIssuer:          getEnv("SKILLGATE_TOKEN_ISSUER", "skillgate"),
		AccessTokenTTL:       getEnvDuration("SKILLGATE_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:      getEnvDuration("SKILLGATE_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		LoginRateLimit:       getEnvInt("SKILLGATE_LOGIN_RATE_LIMIT", 10),
		LoginRateWindow:      getEnvDuration("SKILLGATE_LOGIN_RATE_WINDOW", time.Minute),
		SessionSweepSchedule: getEnv("SKILLGATE_SESSION_SWEEP_SCHEDULE", "0 * * * *"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("SKILLGATE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("SKILLGATE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("SKILLGATE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("SKILLGATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("SKILLGATE_OTEL_SERVICE_NAME", "skillgate"),
		OTelServiceVersion: getEnv("SKILLGATE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("SKILLGATE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		return fmt.Errorf("refresh token TTL must exceed access token TTL")
	}
	if c.Auth.LoginRateLimit <= 0 {
		return fmt.Errorf("login rate limit must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// splitAndTrim splits a comma-separated list, dropping empty entries
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
