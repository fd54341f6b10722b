// Package ledger implements chart data sources over the read-only
// blockscout ledger database. Every query binds its literal filters as
// parameters; the only dynamic identifier, the schema name, is checked
// against an allow-list and quoted with pgx.Identifier.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"

	"github.com/chainstats/stats-engine/internal/charts"
	"github.com/chainstats/stats-engine/internal/model"
)

// DefaultSchema is the schema blockscout creates its tables in.
const DefaultSchema = "public"

// ErrInvalidSchema is returned for schema names that are malformed or not
// allow-listed. It is an internal (non-retryable) error.
var ErrInvalidSchema = fmt.Errorf("%w: ledger schema not allowed", charts.ErrInternal)

var schemaPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Schema is a validated ledger schema name.
type Schema struct {
	name string
}

// NewSchema validates name against the identifier pattern and allowed.
// An empty allowed list permits only DefaultSchema.
func NewSchema(name string, allowed []string) (Schema, error) {
	if !schemaPattern.MatchString(name) {
		return Schema{}, fmt.Errorf("%w: %q", ErrInvalidSchema, name)
	}
	if len(allowed) == 0 {
		allowed = []string{DefaultSchema}
	}
	for _, a := range allowed {
		if a == name {
			return Schema{name: name}, nil
		}
	}
	return Schema{}, fmt.Errorf("%w: %q", ErrInvalidSchema, name)
}

// Name returns the raw schema name.
func (s Schema) Name() string { return s.name }

// table returns the quoted, schema-qualified table name.
func (s Schema) table(name string) (string, error) {
	if s.name == "" {
		return "", fmt.Errorf("%w: schema not initialised", ErrInvalidSchema)
	}
	return pgx.Identifier{s.name, name}.Sanitize(), nil
}

// query runs sql and scans (date, value::TEXT) rows. Failures reaching the
// database are returned as is; the chart updater classifies them.
func query(ctx context.Context, db Querier, sql string, args ...any) ([]model.DateValue, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger query: %w", err)
	}
	defer rows.Close()

	values, err := model.ScanDateValues(rows)
	if err != nil {
		return nil, fmt.Errorf("ledger scan: %w", err)
	}
	return values, nil
}

// ErrUnknownChart is returned by Definitions for names it cannot build.
var ErrUnknownChart = errors.New("ledger: unknown chart")

// Names lists the charts Definitions can build, in registration order.
var Names = []string{"newBlocks", "newTxns", "totalBlocks", "totalTxns"}

// Definitions builds the named ledger charts. An empty names list builds
// all of them; the mock chart is only built when named.
func Definitions(db Querier, schema Schema, names []string) ([]charts.Definition, error) {
	if len(names) == 0 {
		names = Names
	}
	defs := make([]charts.Definition, 0, len(names))
	for _, name := range names {
		switch name {
		case "newBlocks":
			defs = append(defs, NewNewBlocks(db, schema))
		case "newTxns":
			defs = append(defs, NewNewTxns(db, schema))
		case "totalBlocks":
			defs = append(defs, NewTotalBlocks(db, schema))
		case "totalTxns":
			defs = append(defs, NewTotalTxns(db, schema))
		case MockName:
			defs = append(defs, NewMock(MockName, model.KindLine, MockStart, nil))
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownChart, name)
		}
	}
	return defs, nil
}
