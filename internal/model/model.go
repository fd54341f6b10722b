// Package model defines the core domain types shared across the stats engine.
// All series values use shopspring/decimal and travel as text, never float64
// for counters.
//
// Series are sparse: a date appears only if the ledger had at least one
// qualifying row that day. Consumers that need a dense axis fill gaps
// themselves.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used in logs, JSON and tests.
const DateLayout = "2006-01-02"

// Kind is the presentation type of a chart.
type Kind string

const (
	KindLine    Kind = "LINE"
	KindCounter Kind = "COUNTER"
)

// Valid reports whether k is a known chart kind.
func (k Kind) Valid() bool {
	return k == KindLine || k == KindCounter
}

// DateValue is one point of a chart series. Date is a calendar day at
// midnight UTC; within one chart's series it is unique.
type DateValue struct {
	Date  time.Time       `json:"date" db:"date"`
	Value decimal.Decimal `json:"value" db:"value"`
}

// MarshalJSON renders the date without a time component.
func (v DateValue) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"date":%q,"value":%q}`, v.Date.Format(DateLayout), v.Value.String())), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *DateValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewDateValue(raw.Date, raw.Value)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a calendar day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("model: invalid date %q: %w", s, err)
	}
	return t, nil
}

// NewDateValue builds a DateValue from its text form, as returned by
// `COUNT(*)::TEXT` style queries.
func NewDateValue(date, value string) (DateValue, error) {
	d, err := ParseDate(date)
	if err != nil {
		return DateValue{}, err
	}
	v, err := decimal.NewFromString(value)
	if err != nil {
		return DateValue{}, fmt.Errorf("model: invalid value %q for %s: %w", value, date, err)
	}
	return DateValue{Date: d, Value: v}, nil
}

// Checkpoint is the date of the newest persisted value of a chart. The zero
// Checkpoint means the chart has no stored data yet.
type Checkpoint struct {
	Date  time.Time
	Valid bool
}

// CheckpointAt returns a present checkpoint for the given day.
func CheckpointAt(t time.Time) Checkpoint {
	return Checkpoint{Date: Day(t), Valid: true}
}

func (c Checkpoint) String() string {
	if !c.Valid {
		return "none"
	}
	return c.Date.Format(DateLayout)
}

// After keeps only values dated strictly after the checkpoint.
func (c Checkpoint) After(values []DateValue) []DateValue {
	if !c.Valid {
		return values
	}
	out := make([]DateValue, 0, len(values))
	for _, v := range values {
		if v.Date.After(c.Date) {
			out = append(out, v)
		}
	}
	return out
}

// ChartInfo is the metadata row of a registered chart.
type ChartInfo struct {
	Name string `json:"name" db:"name"`
	Kind Kind   `json:"kind" db:"chart_type"`
}

// Rows is the subset of pgx.Rows needed to scan series rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// ScanDateValues reads (date, value::TEXT) rows into DateValues.
func ScanDateValues(rows Rows) ([]DateValue, error) {
	var values []DateValue
	for rows.Next() {
		var date time.Time
		var valueS string
		if err := rows.Scan(&date, &valueS); err != nil {
			return nil, err
		}
		value, err := decimal.NewFromString(valueS)
		if err != nil {
			return nil, fmt.Errorf("model: parse value %q: %w", valueS, err)
		}
		values = append(values, DateValue{Date: Day(date), Value: value})
	}
	return values, rows.Err()
}
