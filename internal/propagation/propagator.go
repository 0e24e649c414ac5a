// Package propagation drives an SGP4 propagator across a range of
// whole-minute offsets and collects the resulting inertial positions.
package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/tle"
)

// MinutesBetween returns the whole minutes from epoch to reference,
// truncated toward zero.
func MinutesBetween(epoch, reference time.Time) int64 {
	return int64(reference.Sub(epoch) / time.Minute)
}

// Offsets returns 0, 1, ..., n-1.
func Offsets(n int) []int64 {
	if n <= 0 {
		return nil
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out
}

// Engine propagates one satellite across many offsets in parallel.
type Engine struct {
	pool   *WorkerPool
	logger *slog.Logger
}

// NewEngine creates an engine. Workers defaults to runtime.NumCPU().
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Engine{
		pool:   NewWorkerPool(cfg.Workers, logger),
		logger: logger,
	}
}

// Workers returns the pool size.
func (e *Engine) Workers() int { return e.pool.Workers() }

// Propagate evaluates p at epochOffsetMinutes+offset for every offset. Each
// sample's Time is reference plus the offset. A failure affects only its own
// sample, which carries a *FailureError.
func (e *Engine) Propagate(ctx context.Context, p Propagator, reference time.Time, epochOffsetMinutes int64, offsets []int64) []Sample {
	samples, _ := e.PropagateUntil(ctx, p, reference, epochOffsetMinutes, offsets, nil)
	return samples
}

// PropagateUntil is Propagate with early exit: stop is polled once per offset
// and the samples returned are the contiguous prefix computed before it (or
// ctx) ended the batch. The second result reports early exit.
func (e *Engine) PropagateUntil(ctx context.Context, p Propagator, reference time.Time, epochOffsetMinutes int64, offsets []int64, stop StopFunc) ([]Sample, bool) {
	start := time.Now()

	samples, truncated := e.pool.Map(ctx, offsets, stop, func(offset int64) Sample {
		minutes := float64(epochOffsetMinutes + offset)
		s := Sample{
			Offset:  offset,
			Minutes: minutes,
			Time:    reference.Add(time.Duration(offset) * time.Minute),
		}
		pos, err := p.Propagate(minutes)
		if err != nil {
			s.Err = &FailureError{Minutes: minutes, Cause: err}
			return s
		}
		s.Inertial = pos
		return s
	})

	var failed int
	for _, s := range samples {
		if s.Err != nil {
			failed++
		}
	}
	duration := time.Since(start)
	metrics.RecordPropagation(duration, len(samples)-failed, failed)

	e.logger.Debug("propagation complete",
		"requested", len(offsets),
		"computed", len(samples),
		"failed", failed,
		"truncated", truncated,
		"duration_ms", duration.Milliseconds(),
	)
	return samples, truncated
}

// sgp4Cache holds initialized propagators for one catalog snapshot.
// Immutable after construction; safe for concurrent reads.
type sgp4Cache struct {
	props     map[int]*SGP4Propagator
	fetchedAt time.Time
}

// Catalog hands out SGP4 propagators for the current catalog snapshot,
// initializing each object at most once per snapshot.
type Catalog struct {
	store  *tle.Store
	logger *slog.Logger
	cache  atomic.Pointer[sgp4Cache]
	mu     sync.Mutex // serializes cache rebuilds and inserts
}

// NewCatalog creates a propagator catalog over store.
func NewCatalog(store *tle.Store, logger *slog.Logger) *Catalog {
	return &Catalog{store: store, logger: logger}
}

// ErrNoCatalog is returned when the store has no dataset.
var ErrNoCatalog = errors.New("no TLE dataset loaded")

// ErrUnknownObject is returned for catalog numbers not in the dataset.
var ErrUnknownObject = errors.New("object not in catalog")

// Get returns the entry and an initialized propagator for noradID.
func (c *Catalog) Get(noradID int) (tle.Entry, *SGP4Propagator, error) {
	ds := c.store.Get()
	if ds == nil {
		return tle.Entry{}, nil, ErrNoCatalog
	}
	entry, ok := ds.Lookup(noradID)
	if !ok {
		return tle.Entry{}, nil, fmt.Errorf("NORAD %d: %w", noradID, ErrUnknownObject)
	}

	if cur := c.cache.Load(); cur != nil && cur.fetchedAt.Equal(ds.FetchedAt) {
		if p, ok := cur.props[noradID]; ok {
			return entry, p, nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.cache.Load()
	if cur == nil || !cur.fetchedAt.Equal(ds.FetchedAt) {
		if cur != nil {
			c.logger.Info("sgp4 propagator cache reset",
				"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
			)
		}
		cur = &sgp4Cache{props: map[int]*SGP4Propagator{}, fetchedAt: ds.FetchedAt}
	} else if p, ok := cur.props[noradID]; ok {
		return entry, p, nil
	}

	p, err := NewSGP4Propagator(entry.Elements)
	if err != nil {
		c.logger.Warn("sgp4 init failed", "norad_id", noradID, "error", err)
		return entry, nil, err
	}

	// Copy-on-write so readers never see a map under mutation.
	next := &sgp4Cache{props: make(map[int]*SGP4Propagator, len(cur.props)+1), fetchedAt: cur.fetchedAt}
	for id, cached := range cur.props {
		next.props[id] = cached
	}
	next.props[noradID] = p
	c.cache.Store(next)
	return entry, p, nil
}
