package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chainstats/stats-engine/internal/charts"
	"github.com/chainstats/stats-engine/internal/model"
)

// fakeRows replays (date, value) pairs through the pgx.Rows interface.
type fakeRows struct {
	rows [][2]any
	i    int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	*dest[0].(*time.Time) = row[0].(time.Time)
	*dest[1].(*string) = row[1].(string)
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	row := r.rows[r.i-1]
	return []any{row[0], row[1]}, nil
}

// fakeDB records the last query and serves canned rows.
type fakeDB struct {
	sql  string
	args []any
	rows [][2]any
	err  error
}

func (db *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.sql, db.args = sql, args
	if db.err != nil {
		return nil, db.err
	}
	return &fakeRows{rows: db.rows}, nil
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func publicSchema(t *testing.T) Schema {
	t.Helper()
	s, err := NewSchema("public", nil)
	if err != nil {
		t.Fatalf("public schema rejected: %v", err)
	}
	return s
}

// --- Schema validation ---

func TestNewSchema_AllowList(t *testing.T) {
	s, err := NewSchema("sgd1", []string{"public", "sgd1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "sgd1" {
		t.Errorf("expected sgd1, got %s", s.Name())
	}

	if _, err := NewSchema("sgd2", []string{"public", "sgd1"}); !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema for non-allow-listed schema, got %v", err)
	}
	if _, err := NewSchema("sgd1", nil); !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("empty allow-list should only permit public, got %v", err)
	}
}

func TestNewSchema_RejectsInjection(t *testing.T) {
	bad := []string{
		"",
		"public; DROP TABLE blocks",
		`public"`,
		"Public",
		"1abc",
		strings.Repeat("a", 64),
	}
	for _, name := range bad {
		_, err := NewSchema(name, []string{name})
		if !errors.Is(err, ErrInvalidSchema) {
			t.Errorf("expected ErrInvalidSchema for %q, got %v", name, err)
		}
		if !errors.Is(err, charts.ErrInternal) {
			t.Errorf("schema errors must be internal errors, got %v", err)
		}
	}
}

func TestZeroSchemaFails(t *testing.T) {
	_, err := NewNewTxns(&fakeDB{}, Schema{}).ReadValues(context.Background(), model.Checkpoint{})
	if !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("expected ErrInvalidSchema, got %v", err)
	}
}

// --- Query construction ---

func TestNewTxnsQuery_WithoutCheckpoint(t *testing.T) {
	sql, args, err := newTxnsQuery(publicSchema(t), model.Checkpoint{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, `FROM "public"."transactions" t`) || !strings.Contains(sql, `JOIN "public"."blocks" b`) {
		t.Errorf("expected quoted schema-qualified tables, got %s", sql)
	}
	if strings.Contains(sql, "$2") {
		t.Errorf("no checkpoint filter expected, got %s", sql)
	}
	if len(args) != 1 || args[0] != true {
		t.Errorf("expected consensus bound as parameter, got %v", args)
	}
}

func TestNewTxnsQuery_WithCheckpoint(t *testing.T) {
	cp := model.CheckpointAt(day(t, "2022-11-10"))
	sql, args, err := newTxnsQuery(publicSchema(t), cp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, "date(b.timestamp) > $2") {
		t.Errorf("expected checkpoint filter, got %s", sql)
	}
	if strings.Contains(sql, "2022-11-10") {
		t.Error("checkpoint must be bound, not interpolated")
	}
	if len(args) != 2 || !args[1].(time.Time).Equal(cp.Date) {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestNewBlocksQuery(t *testing.T) {
	sql, args, err := newBlocksQuery(publicSchema(t), model.CheckpointAt(day(t, "2022-11-10")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, `FROM "public"."blocks" b`) || strings.Contains(sql, "transactions") {
		t.Errorf("unexpected query: %s", sql)
	}
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %v", args)
	}
}

// --- Reading ---

func TestNewTxns_ReadValues(t *testing.T) {
	db := &fakeDB{rows: [][2]any{
		{day(t, "2022-11-09"), "3"},
		{day(t, "2022-11-10"), "6"},
		{day(t, "2022-11-11"), "6"},
		{day(t, "2022-11-12"), "1"},
	}}
	src := NewNewTxns(db, publicSchema(t))

	values, err := src.ReadValues(context.Background(), model.Checkpoint{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 4 {
		t.Fatalf("expected 4 values, got %d", len(values))
	}
	if values[3].Date.Format(model.DateLayout) != "2022-11-12" || values[3].Value.String() != "1" {
		t.Errorf("unexpected last value: %+v", values[3])
	}
	if src.Name() != "newTxns" || src.Kind() != model.KindLine {
		t.Errorf("unexpected metadata: %s %s", src.Name(), src.Kind())
	}
}

func TestReadValues_DatabaseError(t *testing.T) {
	dbErr := errors.New("connection refused")
	src := NewNewBlocks(&fakeDB{err: dbErr}, publicSchema(t))

	_, err := src.ReadValues(context.Background(), model.Checkpoint{})
	if !errors.Is(err, dbErr) {
		t.Errorf("expected database error to propagate, got %v", err)
	}
}

func TestReadValues_BadValue(t *testing.T) {
	db := &fakeDB{rows: [][2]any{{day(t, "2022-11-09"), "three"}}}
	_, err := NewNewBlocks(db, publicSchema(t)).ReadValues(context.Background(), model.Checkpoint{})
	if err == nil {
		t.Error("expected parse error for non-decimal value")
	}
}

func TestTotalBlocks_ReadValues(t *testing.T) {
	db := &fakeDB{rows: [][2]any{{day(t, "2022-11-12"), "12345678901234567890"}}}
	src := NewTotalBlocks(db, publicSchema(t))

	values, err := src.ReadValues(context.Background(), model.Checkpoint{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 1 || values[0].Value.String() != "12345678901234567890" {
		t.Errorf("counter must keep full precision, got %v", values)
	}
	if !strings.Contains(db.sql, "HAVING COUNT(*) > 0") {
		t.Errorf("expected empty-ledger guard, got %s", db.sql)
	}
	if src.Kind() != model.KindCounter {
		t.Errorf("expected counter kind, got %s", src.Kind())
	}
}

func TestTotalTxns_RespectsCheckpoint(t *testing.T) {
	db := &fakeDB{rows: [][2]any{{day(t, "2022-11-12"), "16"}}}
	src := NewTotalTxns(db, publicSchema(t))

	values, err := src.ReadValues(context.Background(), model.CheckpointAt(day(t, "2022-11-12")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("expected nothing after checkpoint, got %v", values)
	}
}

// --- Catalog ---

func TestDefinitions(t *testing.T) {
	defs, err := Definitions(&fakeDB{}, publicSchema(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != len(Names) {
		t.Fatalf("expected %d charts, got %d", len(Names), len(defs))
	}
	for i, def := range defs {
		if def.Name() != Names[i] {
			t.Errorf("chart %d: expected %s, got %s", i, Names[i], def.Name())
		}
	}

	defs, err = Definitions(&fakeDB{}, publicSchema(t), []string{"newTxns", MockName})
	if err != nil || len(defs) != 2 || defs[1].Name() != MockName {
		t.Errorf("unexpected selection: %v, %v", defs, err)
	}

	if _, err := Definitions(&fakeDB{}, publicSchema(t), []string{"gasPrices"}); !errors.Is(err, ErrUnknownChart) {
		t.Errorf("expected ErrUnknownChart, got %v", err)
	}
}

// --- Mock ---

func TestMock_DeterministicAndIncremental(t *testing.T) {
	now := func() time.Time { return time.Date(2022, 11, 12, 15, 0, 0, 0, time.UTC) }
	m := NewMock("mock", model.KindLine, day(t, "2022-11-09"), now)

	all, err := m.ReadValues(context.Background(), model.Checkpoint{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 days, got %d", len(all))
	}

	again, _ := m.ReadValues(context.Background(), model.Checkpoint{})
	for i := range all {
		if !all[i].Value.Equal(again[i].Value) {
			t.Errorf("day %d not deterministic: %s vs %s", i, all[i].Value, again[i].Value)
		}
	}

	tail, _ := m.ReadValues(context.Background(), model.CheckpointAt(day(t, "2022-11-10")))
	if len(tail) != 2 || tail[0].Date.Format(model.DateLayout) != "2022-11-11" {
		t.Errorf("unexpected incremental read: %v", tail)
	}
}

func TestMock_Counter(t *testing.T) {
	now := func() time.Time { return time.Date(2022, 11, 12, 0, 0, 0, 0, time.UTC) }
	m := NewMock("mockCounter", model.KindCounter, day(t, "2022-11-01"), now)

	values, _ := m.ReadValues(context.Background(), model.Checkpoint{})
	if len(values) != 1 || values[0].Date.Format(model.DateLayout) != "2022-11-12" {
		t.Errorf("counter mock should report today only, got %v", values)
	}
}
