package charts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainstats/stats-engine/internal/cache"
	"github.com/chainstats/stats-engine/internal/model"
	"github.com/chainstats/stats-engine/internal/store"
)

// Registry maps chart names to charts and dispatches updates. It is built
// once at startup and read-only afterwards; each chart gets its own Cache
// at registration time.
type Registry struct {
	store       store.Store
	charts      map[string]*Chart
	names       []string
	concurrency int
}

// Option configures a Registry.
type Option func(*registryOptions)

type registryOptions struct {
	concurrency   int
	observer      Observer
	updateTimeout time.Duration
}

// WithConcurrency bounds how many charts UpdateAll refreshes at once.
func WithConcurrency(n int) Option {
	return func(o *registryOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithUpdateTimeout bounds each chart update computation.
func WithUpdateTimeout(d time.Duration) Option {
	return func(o *registryOptions) { o.updateTimeout = d }
}

// WithObserver installs a hook called once per update computation.
func WithObserver(obs Observer) Option {
	return func(o *registryOptions) { o.observer = obs }
}

// NewRegistry registers defs against st. Names must be unique and non-empty
// and kinds known.
func NewRegistry(st store.Store, defs []Definition, opts ...Option) (*Registry, error) {
	o := registryOptions{concurrency: 4}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{
		store:       st,
		charts:      make(map[string]*Chart, len(defs)),
		concurrency: o.concurrency,
	}
	for _, def := range defs {
		name := def.Name()
		if name == "" {
			return nil, fmt.Errorf("%w: chart with empty name", ErrInternal)
		}
		if !def.Kind().Valid() {
			return nil, fmt.Errorf("%w: chart %s has unknown kind %q", ErrInternal, name, def.Kind())
		}
		if _, dup := r.charts[name]; dup {
			return nil, fmt.Errorf("%w: chart %s registered twice", ErrInternal, name)
		}
		r.charts[name] = &Chart{
			def:     def,
			updater: NewUpdater(def, st, cache.New[Result](), o.observer, o.updateTimeout),
		}
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Init registers every chart's metadata in the store.
func (r *Registry) Init(ctx context.Context) error {
	for _, c := range r.Charts() {
		if err := r.store.EnsureChart(ctx, c.Info()); err != nil {
			return persistenceError(c.Name(), err)
		}
	}
	return nil
}

// Get returns the named chart or a NotFound error.
func (r *Registry) Get(name string) (*Chart, error) {
	c, ok := r.charts[name]
	if !ok {
		return nil, NotFound(name)
	}
	return c, nil
}

// Charts returns all charts ordered by name.
func (r *Registry) Charts() []*Chart {
	out := make([]*Chart, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.charts[name])
	}
	return out
}

// Infos returns the metadata of all charts ordered by name.
func (r *Registry) Infos() []model.ChartInfo {
	out := make([]model.ChartInfo, 0, len(r.names))
	for _, c := range r.Charts() {
		out = append(out, c.Info())
	}
	return out
}

// Update resolves name and runs its update. Unknown names fail with
// NotFound without touching the store.
func (r *Registry) Update(ctx context.Context, name string, forceFull bool) (Result, error) {
	c, err := r.Get(name)
	if err != nil {
		return Result{}, err
	}
	return c.Update(ctx, forceFull)
}

// UpdateAll updates every chart, at most concurrency at a time. Charts
// are independent: one failure does not stop the others. All failures are
// returned joined.
func (r *Registry) UpdateAll(ctx context.Context, forceFull bool) ([]Result, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		results []Result
		errs    []error
	)
	g.SetLimit(r.concurrency)

	for _, c := range r.Charts() {
		g.Go(func() error {
			res, err := c.Update(ctx, forceFull)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			results = append(results, res)
			return nil
		})
	}
	g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Chart < results[j].Chart })
	return results, errors.Join(errs...)
}
