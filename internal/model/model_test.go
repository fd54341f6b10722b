package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValue_JSON(t *testing.T) {
	v, err := NewDateValue("2022-11-09", "3")
	if err != nil {
		t.Fatalf("NewDateValue: %v", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"date":"2022-11-09","value":"3"}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var back DateValue
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Date.Equal(v.Date) || !back.Value.Equal(v.Value) {
		t.Errorf("round trip mismatch: %+v vs %+v", back, v)
	}
}

func TestNewDateValue_Invalid(t *testing.T) {
	if _, err := NewDateValue("2022-13-01", "1"); err == nil {
		t.Error("expected error for bad month")
	}
	if _, err := NewDateValue("2022-11-09", "three"); err == nil {
		t.Error("expected error for non-numeric value")
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	got := Day(time.Date(2022, 11, 10, 1, 30, 0, 0, loc))
	want := time.Date(2022, 11, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day() = %v, want %v", got, want)
	}
}

func TestCheckpoint_After(t *testing.T) {
	values := []DateValue{
		{Date: time.Date(2022, 11, 9, 0, 0, 0, 0, time.UTC), Value: decimal.NewFromInt(3)},
		{Date: time.Date(2022, 11, 10, 0, 0, 0, 0, time.UTC), Value: decimal.NewFromInt(6)},
		{Date: time.Date(2022, 11, 11, 0, 0, 0, 0, time.UTC), Value: decimal.NewFromInt(6)},
	}

	if got := (Checkpoint{}).After(values); len(got) != 3 {
		t.Errorf("absent checkpoint should keep everything, got %d", len(got))
	}

	got := CheckpointAt(values[1].Date).After(values)
	if len(got) != 1 || !got[0].Date.Equal(values[2].Date) {
		t.Errorf("expected only 2022-11-11, got %v", got)
	}
}

func TestCheckpoint_String(t *testing.T) {
	if s := (Checkpoint{}).String(); s != "none" {
		t.Errorf("expected none, got %q", s)
	}
	if s := CheckpointAt(time.Date(2022, 11, 12, 18, 0, 0, 0, time.UTC)).String(); s != "2022-11-12" {
		t.Errorf("expected 2022-11-12, got %q", s)
	}
}

func TestKind_Valid(t *testing.T) {
	if !KindLine.Valid() || !KindCounter.Valid() {
		t.Error("known kinds must be valid")
	}
	if Kind("PIE").Valid() {
		t.Error("unknown kind must be invalid")
	}
}
