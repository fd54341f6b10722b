package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainstats/stats-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Values are stored as NUMERIC for exact decimal precision.
//
// Expected schema:
//
//	charts     (id BIGSERIAL PRIMARY KEY, name TEXT UNIQUE NOT NULL, chart_type TEXT NOT NULL)
//	chart_data (chart_id BIGINT REFERENCES charts(id), date DATE NOT NULL,
//	            value NUMERIC NOT NULL, PRIMARY KEY (chart_id, date))
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureChart(ctx context.Context, info model.ChartInfo) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO charts (name, chart_type) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`,
		info.Name, string(info.Kind),
	)
	if err != nil {
		return fmt.Errorf("ensure chart %s: %w", info.Name, err)
	}
	return nil
}

func (s *PostgresStore) ListCharts(ctx context.Context) ([]model.ChartInfo, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, chart_type FROM charts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}
	defer rows.Close()

	var infos []model.ChartInfo
	for rows.Next() {
		var info model.ChartInfo
		var kind string
		if err := rows.Scan(&info.Name, &kind); err != nil {
			return nil, err
		}
		info.Kind = model.Kind(kind)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *PostgresStore) LastDate(ctx context.Context, chart string) (model.Checkpoint, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(d.date)
		 FROM chart_data d
		 JOIN charts c ON c.id = d.chart_id
		 WHERE c.name = $1`, chart).Scan(&last)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("last date %s: %w", chart, err)
	}
	if last == nil {
		return model.Checkpoint{}, nil
	}
	return model.CheckpointAt(*last), nil
}

func (s *PostgresStore) Upsert(ctx context.Context, chart string, values []model.DateValue) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		id, err := chartID(ctx, tx, chart)
		if err != nil {
			return err
		}
		return insertValues(ctx, tx, id, values)
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", chart, err)
	}
	return nil
}

func (s *PostgresStore) Replace(ctx context.Context, chart string, values []model.DateValue) error {
	// Delete and insert share one transaction; concurrent readers keep
	// seeing the old rows until commit.
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		id, err := chartID(ctx, tx, chart)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM chart_data WHERE chart_id = $1`, id); err != nil {
			return err
		}
		return insertValues(ctx, tx, id, values)
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", chart, err)
	}
	return nil
}

func (s *PostgresStore) Series(ctx context.Context, chart string) ([]model.DateValue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT d.date, d.value::TEXT
		 FROM chart_data d
		 JOIN charts c ON c.id = d.chart_id
		 WHERE c.name = $1
		 ORDER BY d.date`, chart)
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", chart, err)
	}
	defer rows.Close()

	return model.ScanDateValues(rows)
}

func chartID(ctx context.Context, tx pgx.Tx, chart string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM charts WHERE name = $1`, chart).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrChartNotFound
	}
	return id, err
}

func insertValues(ctx context.Context, tx pgx.Tx, id int64, values []model.DateValue) error {
	if len(values) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, v := range values {
		batch.Queue(
			`INSERT INTO chart_data (chart_id, date, value)
			 VALUES ($1, $2, $3::NUMERIC)
			 ON CONFLICT (chart_id, date) DO UPDATE SET value = EXCLUDED.value`,
			id, model.Day(v.Date), v.Value.String(),
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}
