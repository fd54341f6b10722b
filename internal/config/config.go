// Package config loads the stats engine configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	// HTTP server
	Port string

	// Stats store (PostgreSQL); empty selects the in-memory store.
	DatabaseURL string

	// Primary ledger (blockscout, read-only); empty enables only the mock chart.
	BlockscoutDatabaseURL string
	BlockscoutSchema      string
	AllowedSchemas        []string

	// Redis read-through cache; empty disables it.
	RedisURL string
	RedisTTL time.Duration

	// Scheduler
	UpdateInterval     time.Duration
	UpdateConcurrency  int
	UpdateTimeout      time.Duration
	ForceUpdateOnStart bool

	// Charts to register; empty registers all ledger charts.
	EnabledCharts []string

	LogLevel slog.Level
}

// Load reads the configuration. It never fails; call Validate.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		BlockscoutDatabaseURL: getEnv("BLOCKSCOUT_DATABASE_URL", ""),
		BlockscoutSchema:      getEnv("BLOCKSCOUT_SCHEMA", "public"),
		AllowedSchemas:        getEnvList("ALLOWED_SCHEMAS", []string{"public"}),

		RedisURL: getEnv("REDIS_URL", ""),
		RedisTTL: getEnvDuration("REDIS_TTL", 30*time.Second),

		UpdateInterval:     getEnvDuration("UPDATE_INTERVAL", 10*time.Minute),
		UpdateConcurrency:  getEnvInt("UPDATE_CONCURRENCY", 4),
		UpdateTimeout:      getEnvDuration("UPDATE_TIMEOUT", 30*time.Minute),
		ForceUpdateOnStart: getEnvBool("FORCE_UPDATE_ON_START", false),

		EnabledCharts: getEnvList("ENABLED_CHARTS", nil),

		LogLevel: getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is empty"))
	}
	if c.UpdateInterval <= 0 {
		errs = append(errs, fmt.Errorf("UPDATE_INTERVAL must be positive, got %s", c.UpdateInterval))
	}
	if c.UpdateTimeout <= 0 {
		errs = append(errs, fmt.Errorf("UPDATE_TIMEOUT must be positive, got %s", c.UpdateTimeout))
	}
	if c.UpdateConcurrency < 1 {
		errs = append(errs, fmt.Errorf("UPDATE_CONCURRENCY must be at least 1, got %d", c.UpdateConcurrency))
	}
	if c.RedisURL != "" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("REDIS_URL requires DATABASE_URL"))
	}
	if !contains(c.AllowedSchemas, c.BlockscoutSchema) {
		errs = append(errs, fmt.Errorf("BLOCKSCOUT_SCHEMA %q is not in ALLOWED_SCHEMAS", c.BlockscoutSchema))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		slog.Warn("invalid boolean in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvLevel(key string, defaultValue slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		slog.Warn("invalid log level in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return level
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
