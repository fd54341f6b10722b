// Package store defines the persistence interface for derived chart series.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"

	"github.com/chainstats/stats-engine/internal/model"
)

// ErrChartNotFound is returned when writing to a chart that was never
// registered with EnsureChart.
var ErrChartNotFound = errors.New("store: chart not found")

// Store is the persistence interface. Rows are keyed by (chart name, date);
// every write is atomic as a unit.
type Store interface {
	// --- Chart metadata ---

	// EnsureChart registers a chart if it does not exist yet.
	EnsureChart(ctx context.Context, info model.ChartInfo) error

	// ListCharts returns all registered charts ordered by name.
	ListCharts(ctx context.Context) ([]model.ChartInfo, error)

	// --- Series ---

	// LastDate returns the newest persisted date of a chart, or an
	// invalid Checkpoint if the chart has no rows.
	LastDate(ctx context.Context, chart string) (model.Checkpoint, error)

	// Upsert inserts each value or overwrites the value stored for its
	// date. Either all rows are persisted or none are.
	Upsert(ctx context.Context, chart string, values []model.DateValue) error

	// Replace swaps the whole series of a chart for values. Readers see
	// either the old or the new series, never an empty one in between.
	Replace(ctx context.Context, chart string, values []model.DateValue) error

	// Series returns the persisted series in ascending date order.
	Series(ctx context.Context, chart string) ([]model.DateValue, error)
}
