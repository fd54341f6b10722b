package ledger

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainstats/stats-engine/internal/model"
)

// MockName is the chart name of the development mock.
const MockName = "mock"

// MockStart is the first day the default mock reports.
var MockStart = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

// Mock is a deterministic synthetic source for development without a
// ledger. It reports one value for every day from start through today;
// the value depends only on the chart name and the day.
type Mock struct {
	name  string
	kind  model.Kind
	start time.Time
	now   func() time.Time
}

// NewMock returns a mock source. A nil now uses the wall clock.
func NewMock(name string, kind model.Kind, start time.Time, now func() time.Time) *Mock {
	if now == nil {
		now = time.Now
	}
	return &Mock{name: name, kind: kind, start: model.Day(start), now: now}
}

func (m *Mock) Name() string     { return m.name }
func (m *Mock) Kind() model.Kind { return m.kind }

func (m *Mock) ReadValues(ctx context.Context, cp model.Checkpoint) ([]model.DateValue, error) {
	today := model.Day(m.now())
	from := m.start
	if cp.Valid && !cp.Date.Before(from) {
		from = cp.Date.AddDate(0, 0, 1)
	}

	var values []model.DateValue
	for d := from; !d.After(today); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values = append(values, model.DateValue{Date: d, Value: m.valueAt(d)})
	}
	if m.kind == model.KindCounter && len(values) > 0 {
		return values[len(values)-1:], nil
	}
	return values, nil
}

func (m *Mock) valueAt(d time.Time) decimal.Decimal {
	h := fnv.New32a()
	h.Write([]byte(m.name))
	h.Write([]byte(d.Format(model.DateLayout)))
	return decimal.NewFromInt(int64(h.Sum32()%1000) + 1)
}
