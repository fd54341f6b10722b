// Package charts implements the incremental chart update engine: every chart
// shares one checkpoint-driven update algorithm and differs only in the
// DataSource that aggregates its ledger rows.
package charts

import (
	"context"

	"github.com/chainstats/stats-engine/internal/model"
)

// DataSource produces new values for one chart from the primary ledger.
//
// ReadValues returns values dated strictly after checkpoint, or the whole
// history when checkpoint is not valid, with at most one value per date.
// Dates without activity are omitted.
type DataSource interface {
	ReadValues(ctx context.Context, checkpoint model.Checkpoint) ([]model.DateValue, error)
}

// Definition is one chart metric: its metadata and its data source.
type Definition interface {
	DataSource
	Name() string
	Kind() model.Kind
}

// Chart is a registered chart bound to its updater.
type Chart struct {
	def     Definition
	updater *Updater
}

func (c *Chart) Name() string     { return c.def.Name() }
func (c *Chart) Kind() model.Kind { return c.def.Kind() }

// Info returns the chart metadata row.
func (c *Chart) Info() model.ChartInfo {
	return model.ChartInfo{Name: c.Name(), Kind: c.Kind()}
}

// Update refreshes the chart's persisted series. See Updater.Update.
func (c *Chart) Update(ctx context.Context, forceFull bool) (Result, error) {
	return c.updater.Update(ctx, forceFull)
}
