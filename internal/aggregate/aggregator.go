// Package aggregate keeps sliding-window snapshots fresh by periodically
// merging per-minute buckets, so readers never scan raw history.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
)

// WindowStore is the slice of the store contract the aggregator uses.
type WindowStore interface {
	MergeRegionWindow(ctx context.Context, buckets []string, minutes int, ttl time.Duration) error
	MagnitudeBins(ctx context.Context, bucket string) (map[string]int64, error)
	WriteHistogramWindow(ctx context.Context, minutes int, bins map[string]int64, ttl time.Duration) error
}

// Aggregator recomputes region and histogram snapshots for each configured
// window length. Snapshots carry a short TTL regardless of window length: if
// the aggregator stalls, readers see absence instead of stale-forever data.
type Aggregator struct {
	store       WindowStore
	windows     []int
	interval    time.Duration
	snapshotTTL time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates an Aggregator over the given window lengths (in minutes).
func New(store WindowStore, windows []int, interval, snapshotTTL time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		store:       store,
		windows:     windows,
		interval:    interval,
		snapshotTTL: snapshotTTL,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run recomputes once immediately, then on the configured interval until the
// context is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	a.logger.Info("aggregator started", "windows", a.windows, "interval", a.interval)

	a.RunOnce(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("aggregator stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce recomputes every window's region and histogram snapshots
// concurrently and waits for all of them. Each recomputation is independent:
// one failing leaves the others untouched and is retried next tick.
func (a *Aggregator) RunOnce(ctx context.Context) {
	start := time.Now()

	var wg sync.WaitGroup
	for _, minutes := range a.windows {
		wg.Add(2)
		go func(m int) {
			defer wg.Done()
			if err := a.recomputeRegions(ctx, m); err != nil {
				a.metrics.AggregationErrors.Inc()
				a.logger.Error("region window recompute failed", "error", err, "window_minutes", m)
			}
		}(minutes)
		go func(m int) {
			defer wg.Done()
			if err := a.recomputeHistogram(ctx, m); err != nil {
				a.metrics.AggregationErrors.Inc()
				a.logger.Error("histogram window recompute failed", "error", err, "window_minutes", m)
			}
		}(minutes)
	}
	wg.Wait()

	a.metrics.AggregationDuration.Observe(time.Since(start).Seconds())
}

// recomputeRegions unions the window's per-minute region associations into
// the window snapshot. Missing buckets contribute zero.
func (a *Aggregator) recomputeRegions(ctx context.Context, minutes int) error {
	buckets := domain.BucketsInWindow(minutes)
	if err := a.store.MergeRegionWindow(ctx, buckets, minutes, a.snapshotTTL); err != nil {
		return fmt.Errorf("merge regions %dm: %w", minutes, err)
	}
	return nil
}

// recomputeHistogram sums the window's per-minute magnitude bins and writes
// the merged result; an empty merge deletes the snapshot rather than leaving
// a stale one behind.
func (a *Aggregator) recomputeHistogram(ctx context.Context, minutes int) error {
	merged := make(map[string]int64)
	for _, bucket := range domain.BucketsInWindow(minutes) {
		bins, err := a.store.MagnitudeBins(ctx, bucket)
		if err != nil {
			return fmt.Errorf("read bins %s: %w", bucket, err)
		}
		for bin, count := range bins {
			merged[bin] += count
		}
	}
	if err := a.store.WriteHistogramWindow(ctx, minutes, merged, a.snapshotTTL); err != nil {
		return fmt.Errorf("write histogram %dm: %w", minutes, err)
	}
	return nil
}
