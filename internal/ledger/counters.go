package ledger

import (
	"context"
	"fmt"

	"github.com/chainstats/stats-engine/internal/model"
)

// Counters report one running total dated at the newest consensus block.
// HAVING drops the row on an empty ledger instead of returning a NULL date.

// TotalBlocks counts all consensus blocks.
type TotalBlocks struct {
	db     Querier
	schema Schema
}

func NewTotalBlocks(db Querier, schema Schema) *TotalBlocks {
	return &TotalBlocks{db: db, schema: schema}
}

func (c *TotalBlocks) Name() string     { return "totalBlocks" }
func (c *TotalBlocks) Kind() model.Kind { return model.KindCounter }

func (c *TotalBlocks) ReadValues(ctx context.Context, cp model.Checkpoint) ([]model.DateValue, error) {
	blocks, err := c.schema.table("blocks")
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf(`
		SELECT date(MAX(b.timestamp)) AS date, COUNT(*)::TEXT AS value
		FROM %s b
		WHERE b.consensus = $1
		HAVING COUNT(*) > 0`, blocks)

	values, err := query(ctx, c.db, sql, true)
	if err != nil {
		return nil, err
	}
	return cp.After(values), nil
}

// TotalTxns counts all transactions included in consensus blocks.
type TotalTxns struct {
	db     Querier
	schema Schema
}

func NewTotalTxns(db Querier, schema Schema) *TotalTxns {
	return &TotalTxns{db: db, schema: schema}
}

func (c *TotalTxns) Name() string     { return "totalTxns" }
func (c *TotalTxns) Kind() model.Kind { return model.KindCounter }

func (c *TotalTxns) ReadValues(ctx context.Context, cp model.Checkpoint) ([]model.DateValue, error) {
	txs, err := c.schema.table("transactions")
	if err != nil {
		return nil, err
	}
	blocks, err := c.schema.table("blocks")
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf(`
		SELECT date(MAX(b.timestamp)) AS date, COUNT(*)::TEXT AS value
		FROM %s t
		JOIN %s b ON t.block_hash = b.hash
		WHERE b.consensus = $1
		HAVING COUNT(*) > 0`, txs, blocks)

	values, err := query(ctx, c.db, sql, true)
	if err != nil {
		return nil, err
	}
	return cp.After(values), nil
}
