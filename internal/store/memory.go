package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chainstats/stats-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	charts map[string]*memChart
}

type memChart struct {
	kind model.Kind
	rows map[time.Time]model.DateValue
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		charts: make(map[string]*memChart),
	}
}

func (s *MemoryStore) EnsureChart(_ context.Context, info model.ChartInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.charts[info.Name]; ok {
		return nil
	}
	s.charts[info.Name] = &memChart{
		kind: info.Kind,
		rows: make(map[time.Time]model.DateValue),
	}
	return nil
}

func (s *MemoryStore) ListCharts(_ context.Context) ([]model.ChartInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]model.ChartInfo, 0, len(s.charts))
	for name, c := range s.charts {
		infos = append(infos, model.ChartInfo{Name: name, Kind: c.kind})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (s *MemoryStore) LastDate(_ context.Context, chart string) (model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cp model.Checkpoint
	c, ok := s.charts[chart]
	if !ok {
		return cp, nil
	}
	for d := range c.rows {
		if !cp.Valid || d.After(cp.Date) {
			cp = model.CheckpointAt(d)
		}
	}
	return cp, nil
}

func (s *MemoryStore) Upsert(_ context.Context, chart string, values []model.DateValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.charts[chart]
	if !ok {
		return fmt.Errorf("upsert %s: %w", chart, ErrChartNotFound)
	}
	for _, v := range values {
		d := model.Day(v.Date)
		c.rows[d] = model.DateValue{Date: d, Value: v.Value}
	}
	return nil
}

func (s *MemoryStore) Replace(_ context.Context, chart string, values []model.DateValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.charts[chart]
	if !ok {
		return fmt.Errorf("replace %s: %w", chart, ErrChartNotFound)
	}
	rows := make(map[time.Time]model.DateValue, len(values))
	for _, v := range values {
		d := model.Day(v.Date)
		rows[d] = model.DateValue{Date: d, Value: v.Value}
	}
	// Swapped under the write lock: readers never see a partial series.
	c.rows = rows
	return nil
}

func (s *MemoryStore) Series(_ context.Context, chart string) ([]model.DateValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.charts[chart]
	if !ok {
		return nil, nil
	}
	values := make([]model.DateValue, 0, len(c.rows))
	for _, v := range c.rows {
		values = append(values, v)
	}
	sortByDate(values)
	return values, nil
}

// sortByDate orders values ascending by date, in place.
func sortByDate(values []model.DateValue) {
	sort.Slice(values, func(i, j int) bool { return values[i].Date.Before(values[j].Date) })
}
