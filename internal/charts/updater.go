package charts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chainstats/stats-engine/internal/cache"
	"github.com/chainstats/stats-engine/internal/metrics"
	"github.com/chainstats/stats-engine/internal/model"
	"github.com/chainstats/stats-engine/internal/store"
)

// Result describes one completed update computation. Callers that joined an
// in-flight update receive the Result of that computation.
type Result struct {
	RunID      string           `json:"run_id"`
	Chart      string           `json:"chart"`
	Full       bool             `json:"force_full"`
	Checkpoint model.Checkpoint `json:"-"`    // checkpoint the fetch started from
	LastDate   model.Checkpoint `json:"-"`    // newest persisted date afterwards
	Rows       int              `json:"rows"` // rows written
	FinishedAt time.Time        `json:"finished_at"`
}

// Event is published once per update computation, successful or not.
type Event struct {
	Result
	Err error
}

// Observer receives update events. It must not block.
type Observer func(Event)

// Updater runs the incremental update algorithm for one chart:
//
//  1. resolve the checkpoint from the store (absent on force-full and for
//     counters),
//  2. read values after it from the DataSource,
//  3. upsert them, or replace the series on force-full. Counters only
//     ever produce today's value, so they upsert in both modes and keep
//     their per-day history.
//
// The whole pipeline runs inside the chart's single-flight Cache, so
// concurrent updates of one chart never persist overlapping checkpoints;
// later callers share the in-flight outcome. Nothing is written when any
// step fails, so the next call retries from the same checkpoint.
//
// A computation is not cancelled by the caller that started it; it is
// bounded by timeout instead.
type Updater struct {
	def      Definition
	store    store.Store
	cache    *cache.Cache[Result]
	observer Observer
	timeout  time.Duration
}

// DefaultUpdateTimeout bounds a single update computation.
const DefaultUpdateTimeout = 30 * time.Minute

// NewUpdater binds a chart definition to a store and its own cache. A
// non-positive timeout selects DefaultUpdateTimeout.
func NewUpdater(def Definition, st store.Store, c *cache.Cache[Result], observer Observer, timeout time.Duration) *Updater {
	if timeout <= 0 {
		timeout = DefaultUpdateTimeout
	}
	return &Updater{def: def, store: st, cache: c, observer: observer, timeout: timeout}
}

// Update refreshes the chart. With forceFull the stored checkpoint is
// ignored and the whole series is regenerated and atomically replaced.
func (u *Updater) Update(ctx context.Context, forceFull bool) (Result, error) {
	name := u.def.Name()
	mode := modeLabel(forceFull)
	start := time.Now()

	// A new update cycle starts from a reset cache: only a computation still
	// in flight is shared. This also drops an outcome nobody invalidated
	// because its caller stopped waiting.
	u.cache.Invalidate()

	var ran atomic.Bool
	res, err := u.cache.GetOrCompute(ctx, forceFull, func(ctx context.Context) (Result, error) {
		ran.Store(true)
		ctx, cancel := context.WithTimeout(ctx, u.timeout)
		defer cancel()
		return u.run(ctx, forceFull)
	})
	metrics.ChartUpdateDuration.WithLabelValues(name, mode).Observe(time.Since(start).Seconds())

	if err != nil {
		var ue *UpdateError
		switch {
		case errors.As(err, &ue):
		case errors.Is(err, cache.ErrPanicked):
			err = internalError(name, err)
		default:
			// The caller's ctx ended before the computation finished. The
			// computation carries on and publishes its own outcome.
			metrics.ChartUpdatesTotal.WithLabelValues(name, mode, "abandoned").Inc()
			return res, canceledError(name, err)
		}
		if !ran.Load() {
			metrics.ChartSharedUpdates.WithLabelValues(name).Inc()
		}
		metrics.ChartUpdatesTotal.WithLabelValues(name, mode, "error").Inc()
		return res, err
	}
	if !ran.Load() {
		metrics.ChartSharedUpdates.WithLabelValues(name).Inc()
	}

	// The persisted series moved on; the next update must recompute.
	u.cache.Invalidate()
	metrics.ChartUpdatesTotal.WithLabelValues(name, mode, "ok").Inc()
	return res, nil
}

func (u *Updater) run(ctx context.Context, forceFull bool) (Result, error) {
	metrics.UpdatesInFlight.Inc()
	defer metrics.UpdatesInFlight.Dec()

	name := u.def.Name()
	res := Result{
		RunID: uuid.NewString(),
		Chart: name,
		Full:  forceFull,
	}
	log := slog.With("chart", name, "mode", modeLabel(forceFull), "run_id", res.RunID)

	err := u.pipeline(ctx, &res)
	res.FinishedAt = time.Now().UTC()
	if err != nil {
		log.Error("chart update failed", "checkpoint", res.Checkpoint.String(), "err", err)
	} else {
		log.Info("chart updated",
			"checkpoint", res.Checkpoint.String(),
			"last_date", res.LastDate.String(),
			"rows", res.Rows,
		)
		if res.LastDate.Valid {
			metrics.ChartCheckpoint.WithLabelValues(name).Set(float64(res.LastDate.Date.Unix()))
		}
		metrics.ChartRowsWritten.WithLabelValues(name).Add(float64(res.Rows))
	}

	if u.observer != nil {
		u.observer(Event{Result: res, Err: err})
	}
	return res, err
}

func (u *Updater) pipeline(ctx context.Context, res *Result) error {
	name := u.def.Name()

	// 1. Checkpoint. Counters are a single cheap aggregate whose value
	// changes during the day, so they always read from scratch.
	if !res.Full && u.def.Kind() != model.KindCounter {
		cp, err := u.store.LastDate(ctx, name)
		if err != nil {
			return persistenceError(name, err)
		}
		res.Checkpoint = cp
	}

	// 2. Fetch.
	values, err := u.def.ReadValues(ctx, res.Checkpoint)
	if err != nil {
		return sourceError(name, err)
	}
	values, err = normalize(res.Checkpoint, values)
	if err != nil {
		return internalError(name, err)
	}

	// 3. Persist. A counter source cannot rebuild past days, so replacing
	// would drop its history.
	if res.Full && u.def.Kind() != model.KindCounter {
		err = u.store.Replace(ctx, name, values)
	} else if len(values) > 0 {
		err = u.store.Upsert(ctx, name, values)
	}
	if err != nil {
		return persistenceError(name, err)
	}

	res.Rows = len(values)
	res.LastDate = res.Checkpoint
	if n := len(values); n > 0 && (!res.LastDate.Valid || values[n-1].Date.After(res.LastDate.Date)) {
		res.LastDate = model.CheckpointAt(values[n-1].Date)
	}
	return nil
}

// normalize orders values by date, drops anything not after the checkpoint
// and rejects duplicate dates.
func normalize(cp model.Checkpoint, values []model.DateValue) ([]model.DateValue, error) {
	days := make([]model.DateValue, 0, len(values))
	for _, v := range values {
		days = append(days, model.DateValue{Date: model.Day(v.Date), Value: v.Value})
	}
	out := cp.After(days)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	for i := 1; i < len(out); i++ {
		if out[i].Date.Equal(out[i-1].Date) {
			return nil, fmt.Errorf("duplicate date %s from data source", out[i].Date.Format(model.DateLayout))
		}
	}
	return out, nil
}

func modeLabel(forceFull bool) string {
	if forceFull {
		return "full"
	}
	return "incremental"
}
