package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"flower-storefront/internal/utils"
)

// Config holds all configuration for the storefront gateway
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	LogFormat   string

	BackendURL             string
	BackendTimeout         time.Duration
	BackendBreakerEnabled  bool
	BackendBreakerFailures int
	BackendBreakerCooldown time.Duration

	TelegramBotToken         string
	InitDataMaxAge           time.Duration
	AnonymousFallbackEnabled bool
	AnonymousTelegramID      int64

	SessionSecret          string
	SessionTTL             time.Duration
	SessionMaxLifetime     time.Duration
	SessionCleanupInterval time.Duration
	CatalogTTL             time.Duration

	DataDir       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LocalStateTTL time.Duration

	KafkaBrokers     []string
	KafkaOrdersTopic string

	RateLimitEnabled                bool
	RateLimitRequestsPerMinute      int
	RateLimitSessionStartsPerMinute int

	OperatorHandle     string
	CORSAllowedOrigins []string
	MetricsExporter    string
}

// LoadConfig loads configuration from .env file and environment variables.
// It fails when the result is unsafe to run with.
func LoadConfig() (*Config, error) {
	// Does not override variables already present in the environment
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with system environment variables only", "error", err)
	} else {
		slog.Info("Successfully loaded .env file")
	}

	cfg := FromEnv()

	utils.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Configuration loaded",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"log_level", cfg.LogLevel,
		"backend_url", cfg.BackendURL,
		"backend_timeout", cfg.BackendTimeout.String(),
		"backend_breaker_enabled", cfg.BackendBreakerEnabled,
		"init_data_validation", cfg.TelegramBotToken != "",
		"anonymous_fallback_enabled", cfg.AnonymousFallbackEnabled,
		"session_ttl", cfg.SessionTTL.String(),
		"catalog_ttl", cfg.CatalogTTL.String(),
		"data_dir", cfg.DataDir,
		"redis_enabled", cfg.RedisAddr != "",
		"kafka_enabled", len(cfg.KafkaBrokers) > 0,
		"rate_limit_enabled", cfg.RateLimitEnabled,
		"metrics_exporter", cfg.MetricsExporter)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == defaultSessionSecret {
		slog.Warn("SESSION_SECRET is not set, session tokens are signed with the development secret")
	}

	return cfg, nil
}

const defaultSessionSecret = "storefront-dev-secret"

// ErrDefaultSessionSecret is returned when production would sign tokens with the development secret
var ErrDefaultSessionSecret = errors.New("SESSION_SECRET must be set in production")

// Validate rejects settings that must not reach production
func (c *Config) Validate() error {
	if c.IsProduction() && (c.SessionSecret == "" || c.SessionSecret == defaultSessionSecret) {
		return ErrDefaultSessionSecret
	}
	return nil
}

// FromEnv builds a Config from the current environment without touching .env or logging
func FromEnv() *Config {
	return &Config{
		Port:        getEnvWithDefault("PORT", "8080"),
		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat:   getEnvWithDefault("LOG_FORMAT", "text"),

		BackendURL:             strings.TrimRight(getEnvWithDefault("BACKEND_URL", "http://localhost:5001"), "/"),
		BackendTimeout:         getEnvAsDuration("BACKEND_TIMEOUT", 0),
		BackendBreakerEnabled:  getEnvAsBool("BACKEND_BREAKER_ENABLED", true),
		BackendBreakerFailures: getEnvAsInt("BACKEND_BREAKER_FAILURES", 5),
		BackendBreakerCooldown: getEnvAsDuration("BACKEND_BREAKER_COOLDOWN", 30*time.Second),

		TelegramBotToken:         os.Getenv("TELEGRAM_BOT_TOKEN"),
		InitDataMaxAge:           getEnvAsDuration("INIT_DATA_MAX_AGE", 24*time.Hour),
		AnonymousFallbackEnabled: getEnvAsBool("ANONYMOUS_FALLBACK_ENABLED", true),
		AnonymousTelegramID:      getEnvAsInt64("ANONYMOUS_TELEGRAM_ID", 123456789),

		SessionSecret:          getEnvWithDefault("SESSION_SECRET", defaultSessionSecret),
		SessionTTL:             getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		SessionMaxLifetime:     getEnvAsDuration("SESSION_MAX_LIFETIME", 24*time.Hour),
		SessionCleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", time.Minute),
		CatalogTTL:             getEnvAsDuration("CATALOG_TTL", 5*time.Minute),

		DataDir:       getEnvWithDefault("DATA_DIR", "./data"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		LocalStateTTL: getEnvAsDuration("LOCAL_STATE_TTL", 30*24*time.Hour),

		KafkaBrokers:     getEnvAsList("KAFKA_BROKERS"),
		KafkaOrdersTopic: getEnvWithDefault("KAFKA_ORDERS_TOPIC", "storefront.orders"),

		RateLimitEnabled:                getEnvAsBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequestsPerMinute:      getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 300),
		RateLimitSessionStartsPerMinute: getEnvAsInt("RATE_LIMIT_SESSION_STARTS_PER_MINUTE", 20),

		OperatorHandle:     getEnvWithDefault("OPERATOR_HANDLE", "@flowery_b1oom"),
		CORSAllowedOrigins: getEnvAsListWithDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		MetricsExporter:    getEnvWithDefault("METRICS_EXPORTER", "scraper"),
	}
}

// getEnvWithDefault gets an environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		slog.Warn("Invalid boolean in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	return getEnvAsListWithDefault(key, nil)
}

func getEnvAsListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
