package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/skypass/internal/metrics"
)

// Refresher keeps a Store current from a Fetcher, persisting each download
// to an optional DiskCache.
type Refresher struct {
	store   *Store
	fetcher *Fetcher
	disk    *DiskCache // may be nil
	logger  *slog.Logger
	now     func() time.Time
}

// NewRefresher wires a store to its sources.
func NewRefresher(store *Store, fetcher *Fetcher, disk *DiskCache, logger *slog.Logger) *Refresher {
	return &Refresher{
		store:   store,
		fetcher: fetcher,
		disk:    disk,
		logger:  logger,
		now:     time.Now,
	}
}

// LoadCached seeds the store from the newest disk snapshot.
func (r *Refresher) LoadCached() error {
	if r.disk == nil {
		return ErrNoSnapshot
	}
	data, ts, err := r.disk.LoadLatest()
	if err != nil {
		return err
	}
	entries, err := Parse(bytes.NewReader(data), r.logger)
	if err != nil {
		return fmt.Errorf("parsing cached catalog: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("cached catalog from %s has no entries", ts.Format(time.RFC3339))
	}
	r.store.Set(NewDataset("cache", ts, entries))
	r.logger.Info("loaded TLE catalog from cache", "count", len(entries), "cached_at", ts.Format(time.RFC3339))
	return nil
}

// Refresh fetches, parses and publishes a new dataset. Concurrent calls are
// serialized; a failed refresh leaves the previous dataset in place.
func (r *Refresher) Refresh(ctx context.Context) (*Dataset, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ds, err := r.refresh(ctx)
	size := 0
	if ds != nil {
		size = len(ds.Satellites)
	}
	metrics.RecordTLEFetch(err, size)
	return ds, err
}

func (r *Refresher) refresh(ctx context.Context) (*Dataset, error) {
	data, err := r.fetcher.Fetch(ctx)
	if errors.Is(err, ErrNotModified) {
		return r.touch()
	}
	if err != nil {
		return nil, err
	}
	entries, err := Parse(bytes.NewReader(data), r.logger)
	if err == nil && len(entries) == 0 {
		err = fmt.Errorf("no valid TLE entries from %s", r.fetcher.SourceURL())
	}
	if err != nil {
		// Unusable payload; the next fetch must not be answered with 304.
		r.fetcher.ResetValidators()
		return nil, err
	}

	fetchedAt := r.now().UTC()
	ds := NewDataset(r.fetcher.SourceURL(), fetchedAt, entries)
	r.store.Set(ds)

	if r.disk != nil {
		if err := r.disk.Write(data, fetchedAt); err != nil {
			r.logger.Warn("failed to write TLE snapshot", "error", err)
		}
	}
	r.logger.Info("TLE catalog refreshed",
		"count", len(entries),
		"source", ds.Source,
		"epoch_min", ds.EpochRange.Min.Format(time.RFC3339),
		"epoch_max", ds.EpochRange.Max.Format(time.RFC3339),
	)
	return ds, nil
}

// touch republishes the current dataset with a new fetch time after the
// source reported no change.
func (r *Refresher) touch() (*Dataset, error) {
	cur := r.store.Get()
	if cur == nil {
		r.fetcher.ResetValidators()
		return nil, fmt.Errorf("%w, but no catalog is loaded", ErrNotModified)
	}
	ds := NewDataset(cur.Source, r.now().UTC(), cur.Satellites)
	r.store.Set(ds)
	r.logger.Info("TLE catalog unchanged at source", "count", len(ds.Satellites), "source", ds.Source)
	return ds, nil
}

// Run refreshes whenever the dataset is older than maxAge, checking every
// interval, until ctx is done.
func (r *Refresher) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if age := r.store.Age(r.now()); age < 0 || age > maxAge {
			if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("TLE refresh failed", "error", err)
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
