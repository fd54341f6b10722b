package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chainstats/stats-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for series reads.
//
// Cached series are keyed by a per-chart version that every write bumps
// after committing, so a read that raced a write can only fill a key no
// reader will look up again. LastDate is never cached: the checkpoint
// decides which dates get fetched, and a stale one would skip them for good.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, bump version) ---

func (s *CachedStore) EnsureChart(ctx context.Context, info model.ChartInfo) error {
	return s.primary.EnsureChart(ctx, info)
}

func (s *CachedStore) Upsert(ctx context.Context, chart string, values []model.DateValue) error {
	if err := s.primary.Upsert(ctx, chart, values); err != nil {
		return err
	}
	s.invalidate(ctx, chart)
	return nil
}

func (s *CachedStore) Replace(ctx context.Context, chart string, values []model.DateValue) error {
	if err := s.primary.Replace(ctx, chart, values); err != nil {
		return err
	}
	s.invalidate(ctx, chart)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Series(ctx context.Context, chart string) ([]model.DateValue, error) {
	version, err := s.rdb.Get(ctx, versionKey(chart)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		version = "0"
	case err != nil:
		// Without a version nothing can be cached safely.
		return s.primary.Series(ctx, chart)
	}
	key := seriesKey(chart, version)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var values []model.DateValue
		if json.Unmarshal(data, &values) == nil {
			return values, nil
		}
	}

	values, err := s.primary.Series(ctx, chart)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(values); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return values, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) LastDate(ctx context.Context, chart string) (model.Checkpoint, error) {
	return s.primary.LastDate(ctx, chart)
}

func (s *CachedStore) ListCharts(ctx context.Context) ([]model.ChartInfo, error) {
	return s.primary.ListCharts(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) invalidate(ctx context.Context, chart string) {
	// The primary write already committed; a failed INCR only leaves the
	// previous series readable until it expires after ttl.
	if err := s.rdb.Incr(ctx, versionKey(chart)).Err(); err != nil {
		slog.Warn("chart cache invalidation failed", "chart", chart, "err", err)
	}
}

func versionKey(chart string) string { return fmt.Sprintf("chart:version:%s", chart) }

func seriesKey(chart, version string) string {
	return fmt.Sprintf("chart:series:%s:%s", chart, version)
}
