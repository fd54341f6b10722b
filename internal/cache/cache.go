// Package cache provides the single-flight memoization cell that guards a
// chart's recomputation.
//
// A Cache moves between three states: empty, in flight (one computation
// running, later callers wait on it) and ready (last successful outcome
// together with the mode it was computed in). Failures are handed to every
// waiter and then forgotten, so the next call starts a fresh attempt.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrPanicked is returned to every caller when the computation panicked.
var ErrPanicked = errors.New("cache: computation panicked")

// Compute is the work guarded by a Cache.
type Compute[T any] func(ctx context.Context) (T, error)

// Stats counts how callers were served.
type Stats struct {
	Computations uint64 // computations started
	Joins        uint64 // callers that waited on another caller's computation
	Hits         uint64 // callers served from the ready outcome
}

// Cache memoizes a single computation. The zero value is ready to use.
// A Cache must not be copied after first use.
type Cache[T any] struct {
	mu     sync.Mutex
	flight *call[T]
	ready  *outcome[T]

	computations atomic.Uint64
	joins        atomic.Uint64
	hits         atomic.Uint64
}

type call[T any] struct {
	full bool
	done chan struct{}
	val  T
	err  error
}

type outcome[T any] struct {
	full bool
	val  T
}

// New returns an empty Cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{}
}

// GetOrCompute returns the ready outcome for the requested mode, joins a
// computation already in flight for that mode, or starts compute itself.
//
// full tags the request: an outcome or in-flight call of the other mode is
// never returned. A mismatched in-flight call is waited out and a new
// computation started afterwards.
//
// compute runs in its own goroutine with the starting caller's ctx values
// but not its cancellation; bounding its run time is up to compute. Every
// caller, the starting one included, stops waiting when its own ctx is
// done while the computation keeps running for the others.
func (c *Cache[T]) GetOrCompute(ctx context.Context, full bool, compute Compute[T]) (T, error) {
	for {
		c.mu.Lock()
		if c.ready != nil && c.ready.full == full {
			v := c.ready.val
			c.mu.Unlock()
			c.hits.Add(1)
			return v, nil
		}

		cl := c.flight
		joined := cl != nil
		if !joined {
			cl = &call[T]{full: full, done: make(chan struct{})}
			c.flight = cl
			// A new computation supersedes whatever was ready before.
			c.ready = nil
			c.computations.Add(1)
			go c.run(context.WithoutCancel(ctx), cl, compute)
		}
		c.mu.Unlock()

		select {
		case <-cl.done:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
		if cl.full == full {
			if joined {
				c.joins.Add(1)
			}
			return cl.val, cl.err
		}
	}
}

func (c *Cache[T]) run(ctx context.Context, cl *call[T], compute Compute[T]) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			cl.val, cl.err = zero, fmt.Errorf("%w: %v", ErrPanicked, r)
		}
		c.mu.Lock()
		c.flight = nil
		if cl.err == nil {
			c.ready = &outcome[T]{full: cl.full, val: cl.val}
		}
		c.mu.Unlock()
		close(cl.done)
	}()

	cl.val, cl.err = compute(ctx)
}

// Invalidate drops the ready outcome. An in-flight computation is not
// affected.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	c.ready = nil
	c.mu.Unlock()
}

// Peek returns the ready outcome and the mode it was computed in.
func (c *Cache[T]) Peek() (val T, full bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready == nil {
		return val, false, false
	}
	return c.ready.val, c.ready.full, true
}

// InFlight reports whether a computation is currently running.
func (c *Cache[T]) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flight != nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[T]) Stats() Stats {
	return Stats{
		Computations: c.computations.Load(),
		Joins:        c.joins.Load(),
		Hits:         c.hits.Load(),
	}
}
