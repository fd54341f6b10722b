package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/chainstats/stats-engine/internal/api"
	"github.com/chainstats/stats-engine/internal/charts"
	"github.com/chainstats/stats-engine/internal/config"
	"github.com/chainstats/stats-engine/internal/ledger"
	"github.com/chainstats/stats-engine/internal/metrics"
	"github.com/chainstats/stats-engine/internal/scheduler"
	"github.com/chainstats/stats-engine/internal/store"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Initialize stats store ---
	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to stats PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.RedisTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.RedisTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Chart definitions ---
	defs, err := chartDefinitions(ctx, cfg, &cleanup)
	if err != nil {
		slog.Error("failed to build charts", "err", err)
		os.Exit(1)
	}

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	// --- Registry ---
	registry, err := charts.NewRegistry(st, defs,
		charts.WithConcurrency(cfg.UpdateConcurrency),
		charts.WithUpdateTimeout(cfg.UpdateTimeout),
		charts.WithObserver(wsHub.Observe),
	)
	if err != nil {
		slog.Error("failed to register charts", "err", err)
		os.Exit(1)
	}
	if err := registry.Init(ctx); err != nil {
		slog.Error("failed to initialize charts", "err", err)
		os.Exit(1)
	}
	slog.Info("charts registered", "charts", len(defs))

	// --- Scheduler ---
	sched := scheduler.NewScheduler(scheduler.Config{
		Interval:     cfg.UpdateInterval,
		ForceOnStart: cfg.ForceUpdateOnStart,
	}, registry)
	go sched.Start(ctx)

	// --- HTTP router ---
	svc := api.NewService(registry, st)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"stats-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		svc.Routes(r, wsHub)
	})

	// --- Server ---
	// No write timeout: forced full updates of large charts can run for
	// minutes and the WebSocket endpoint is long-lived.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("stats-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down stats-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("stats-engine stopped")
}

// chartDefinitions connects to the ledger and builds the enabled charts.
// Without a ledger only the mock chart is available.
func chartDefinitions(ctx context.Context, cfg *config.Config, cleanup *[]func()) ([]charts.Definition, error) {
	if cfg.BlockscoutDatabaseURL == "" {
		slog.Warn("BLOCKSCOUT_DATABASE_URL not set, serving the mock chart only")
		return ledger.Definitions(nil, ledger.Schema{}, []string{ledger.MockName})
	}

	schema, err := ledger.NewSchema(cfg.BlockscoutSchema, cfg.AllowedSchemas)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.BlockscoutDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("ledger connection failed: %w", err)
	}
	*cleanup = append(*cleanup, pool.Close)
	slog.Info("connected to ledger PostgreSQL", "schema", schema.Name())

	return ledger.Definitions(pool, schema, cfg.EnabledCharts)
}
