// Package store provides the time-indexed key-value backing for the
// ingestion pipeline: dedup markers, the raw event stream, the bounded
// recent-events list, per-minute counters and associations, and the merged
// sliding-window snapshots.
package store

import (
	"context"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
)

// RegionCount is one leaderboard row: a region label and its summed count.
type RegionCount struct {
	Region string `json:"region"`
	Count  int64  `json:"count"`
}

// MinuteCount pairs a minute bucket's start time with its event count.
type MinuteCount struct {
	Minute time.Time `json:"minute"`
	Count  int64     `json:"count"`
}

// Store is the full capability contract the pipeline requires from the
// backing datastore. The poller writes markers, the stream, the recent list,
// and per-minute buckets; the aggregator writes window snapshots; the HTTP
// layer only reads. No multi-key atomicity is assumed beyond the individual
// operations.
type Store interface {
	// MarkSeen atomically creates the dedup marker for id with the given TTL.
	// It returns true if the marker was created (first sighting) and false if
	// it already existed.
	MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error)

	// AppendStream appends the event to the durable ordered log.
	AppendStream(ctx context.Context, q domain.Quake) error

	// PushRecent prepends the event to the recent list and trims it to max.
	PushRecent(ctx context.Context, q domain.Quake, max int64) error

	// IncrMinuteCount increments the bucket's scalar count, refreshing its TTL.
	IncrMinuteCount(ctx context.Context, bucket string, ttl time.Duration) error

	// IncrRegion increments the region's score in the bucket's sorted
	// association, refreshing its TTL.
	IncrRegion(ctx context.Context, bucket, region string, ttl time.Duration) error

	// IncrMagnitudeBin increments the bin's count in the bucket's histogram
	// hash, refreshing its TTL.
	IncrMagnitudeBin(ctx context.Context, bucket, bin string, ttl time.Duration) error

	// MergeRegionWindow sums the region associations of the given buckets into
	// the window snapshot for `minutes`, with its own TTL. Missing buckets
	// contribute nothing.
	MergeRegionWindow(ctx context.Context, buckets []string, minutes int, ttl time.Duration) error

	// MagnitudeBins reads one bucket's histogram hash. A missing bucket yields
	// an empty map, not an error.
	MagnitudeBins(ctx context.Context, bucket string) (map[string]int64, error)

	// WriteHistogramWindow replaces the histogram snapshot for `minutes` with
	// the merged bins. An empty merge deletes the snapshot instead.
	WriteHistogramWindow(ctx context.Context, minutes int, bins map[string]int64, ttl time.Duration) error

	// TopRegions returns up to k leaderboard rows for the window, descending
	// by count.
	TopRegions(ctx context.Context, minutes, k int) ([]RegionCount, error)

	// HistogramWindow reads the merged histogram snapshot for the window.
	HistogramWindow(ctx context.Context, minutes int) (map[string]int64, error)

	// RecentQuakes returns up to n events from the recent list, newest first.
	RecentQuakes(ctx context.Context, n int64) ([]domain.Quake, error)

	// MinuteCounts returns the scalar counts for the given buckets, in the
	// same order. Missing buckets count as zero.
	MinuteCounts(ctx context.Context, buckets []string) ([]int64, error)
}
