package ledger

import (
	"context"
	"fmt"

	"github.com/chainstats/stats-engine/internal/model"
)

// NewTxns counts consensus transactions per day.
type NewTxns struct {
	db     Querier
	schema Schema
}

func NewNewTxns(db Querier, schema Schema) *NewTxns {
	return &NewTxns{db: db, schema: schema}
}

func (c *NewTxns) Name() string     { return "newTxns" }
func (c *NewTxns) Kind() model.Kind { return model.KindLine }

func (c *NewTxns) ReadValues(ctx context.Context, cp model.Checkpoint) ([]model.DateValue, error) {
	sql, args, err := newTxnsQuery(c.schema, cp)
	if err != nil {
		return nil, err
	}
	return query(ctx, c.db, sql, args...)
}

func newTxnsQuery(schema Schema, cp model.Checkpoint) (string, []any, error) {
	txs, err := schema.table("transactions")
	if err != nil {
		return "", nil, err
	}
	blocks, err := schema.table("blocks")
	if err != nil {
		return "", nil, err
	}

	where, args := consensusAfter("b", cp)
	sql := fmt.Sprintf(`
		SELECT date(b.timestamp) AS date, COUNT(*)::TEXT AS value
		FROM %s t
		JOIN %s b ON t.block_hash = b.hash
		WHERE %s
		GROUP BY 1
		ORDER BY 1`, txs, blocks, where)
	return sql, args, nil
}

// NewBlocks counts consensus blocks per day.
type NewBlocks struct {
	db     Querier
	schema Schema
}

func NewNewBlocks(db Querier, schema Schema) *NewBlocks {
	return &NewBlocks{db: db, schema: schema}
}

func (c *NewBlocks) Name() string     { return "newBlocks" }
func (c *NewBlocks) Kind() model.Kind { return model.KindLine }

func (c *NewBlocks) ReadValues(ctx context.Context, cp model.Checkpoint) ([]model.DateValue, error) {
	sql, args, err := newBlocksQuery(c.schema, cp)
	if err != nil {
		return nil, err
	}
	return query(ctx, c.db, sql, args...)
}

func newBlocksQuery(schema Schema, cp model.Checkpoint) (string, []any, error) {
	blocks, err := schema.table("blocks")
	if err != nil {
		return "", nil, err
	}

	where, args := consensusAfter("b", cp)
	sql := fmt.Sprintf(`
		SELECT date(b.timestamp) AS date, COUNT(*)::TEXT AS value
		FROM %s b
		WHERE %s
		GROUP BY 1
		ORDER BY 1`, blocks, where)
	return sql, args, nil
}

// consensusAfter builds the WHERE clause shared by line charts: consensus
// blocks only, and days after the checkpoint when there is one.
func consensusAfter(alias string, cp model.Checkpoint) (string, []any) {
	where := alias + ".consensus = $1"
	args := []any{true}
	if cp.Valid {
		where += fmt.Sprintf(" AND date(%s.timestamp) > $2", alias)
		args = append(args, cp.Date)
	}
	return where, args
}
