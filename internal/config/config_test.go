package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DATABASE_URL", "BLOCKSCOUT_DATABASE_URL", "BLOCKSCOUT_SCHEMA",
		"ALLOWED_SCHEMAS", "REDIS_URL", "REDIS_TTL", "UPDATE_INTERVAL",
		"UPDATE_CONCURRENCY", "UPDATE_TIMEOUT", "FORCE_UPDATE_ON_START", "ENABLED_CHARTS", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.BlockscoutSchema != "public" {
		t.Errorf("expected default schema public, got %s", cfg.BlockscoutSchema)
	}
	if cfg.UpdateInterval != 10*time.Minute {
		t.Errorf("expected default interval 10m, got %s", cfg.UpdateInterval)
	}
	if cfg.UpdateTimeout != 30*time.Minute {
		t.Errorf("expected default update timeout 30m, got %s", cfg.UpdateTimeout)
	}
	if cfg.EnabledCharts != nil {
		t.Errorf("expected all charts enabled by default, got %v", cfg.EnabledCharts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BLOCKSCOUT_SCHEMA", "sgd1")
	t.Setenv("ALLOWED_SCHEMAS", "public, sgd1")
	t.Setenv("UPDATE_INTERVAL", "30s")
	t.Setenv("UPDATE_CONCURRENCY", "8")
	t.Setenv("FORCE_UPDATE_ON_START", "true")
	t.Setenv("ENABLED_CHARTS", "newTxns,totalBlocks,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.Port != "9090" || cfg.BlockscoutSchema != "sgd1" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.AllowedSchemas) != 2 || cfg.AllowedSchemas[1] != "sgd1" {
		t.Errorf("unexpected allowed schemas: %v", cfg.AllowedSchemas)
	}
	if cfg.UpdateInterval != 30*time.Second || cfg.UpdateConcurrency != 8 || !cfg.ForceUpdateOnStart {
		t.Errorf("unexpected scheduler config: %+v", cfg)
	}
	if len(cfg.EnabledCharts) != 2 || cfg.EnabledCharts[1] != "totalBlocks" {
		t.Errorf("unexpected charts: %v", cfg.EnabledCharts)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %s", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("UPDATE_INTERVAL", "soon")
	t.Setenv("UPDATE_CONCURRENCY", "many")
	t.Setenv("FORCE_UPDATE_ON_START", "maybe")

	cfg := Load()
	if cfg.UpdateInterval != 10*time.Minute || cfg.UpdateConcurrency != 4 || cfg.ForceUpdateOnStart {
		t.Errorf("invalid values should fall back to defaults: %+v", cfg)
	}
}

func TestValidate_SchemaNotAllowed(t *testing.T) {
	t.Setenv("BLOCKSCOUT_SCHEMA", "other")
	t.Setenv("ALLOWED_SCHEMAS", "public")

	err := Load().Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate_RedisNeedsDatabase(t *testing.T) {
	cfg := &Config{
		Port:              "8080",
		BlockscoutSchema:  "public",
		AllowedSchemas:    []string{"public"},
		RedisURL:          "redis://localhost:6379",
		UpdateInterval:    time.Minute,
		UpdateTimeout:     time.Minute,
		UpdateConcurrency: 1,
	}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate_UpdateTimeout(t *testing.T) {
	t.Setenv("UPDATE_TIMEOUT", "-1s")
	cfg := Load()
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
