// Package ingest turns upstream feed items into committed, deduplicated,
// time-bucketed store state and notifies broadcast subscribers.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
)

// Fetcher retrieves the current upstream feed.
type Fetcher interface {
	Fetch(ctx context.Context) ([]usgs.Feature, error)
}

// EventStore is the slice of the store contract the poller writes.
type EventStore interface {
	MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error)
	AppendStream(ctx context.Context, q domain.Quake) error
	PushRecent(ctx context.Context, q domain.Quake, max int64) error
	IncrMinuteCount(ctx context.Context, bucket string, ttl time.Duration) error
	IncrRegion(ctx context.Context, bucket, region string, ttl time.Duration) error
	IncrMagnitudeBin(ctx context.Context, bucket, bin string, ttl time.Duration) error
}

// Publisher receives each newly committed event for real-time fan-out.
type Publisher interface {
	Publish(q domain.Quake)
}

// Archiver mirrors committed events to a durable archive. Optional.
type Archiver interface {
	Archive(ctx context.Context, q domain.Quake) error
}

// Options are the poller's tuning knobs.
type Options struct {
	PollInterval   time.Duration
	StartupDelay   time.Duration
	DedupTTL       time.Duration
	BucketTTL      time.Duration
	RecentListSize int64
}

// Poller drives the ingest loop: fetch, dedup, commit, broadcast.
type Poller struct {
	fetcher   Fetcher
	store     EventStore
	publisher Publisher
	archiver  Archiver // nil disables archiving
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options

	inFlight atomic.Bool
	ready    atomic.Bool
}

// New creates a Poller. Pass a nil archiver to disable the archive mirror.
func New(f Fetcher, s EventStore, pub Publisher, arch Archiver, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	if opts.StartupDelay <= 0 {
		opts.StartupDelay = 2 * time.Second
	}
	return &Poller{
		fetcher:   f,
		store:     s,
		publisher: pub,
		archiver:  arch,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// CheckReadiness returns nil once the poller has completed at least one poll
// cycle, or an error describing why the service is not yet ready.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("poller has not completed a poll cycle yet")
	}
	return nil
}

// Run polls once shortly after startup and then on the configured interval
// until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.opts.PollInterval)
	p.metrics.PollerRunning.Set(1)
	defer p.metrics.PollerRunning.Set(0)

	if !sleepWithContext(ctx, p.opts.StartupDelay) {
		return
	}
	p.Poll(ctx)

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one fetch-and-commit cycle. A call while another cycle is in
// flight is a no-op, not queued: the guard caps concurrency at one cycle
// regardless of interval and feed latency skew.
func (p *Poller) Poll(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("poll already in flight, skipping")
		return
	}
	defer p.inFlight.Store(false)

	start := time.Now()

	features, err := p.fetcher.Fetch(ctx)
	if err != nil {
		// Transient and self-healing: nothing was mutated, the next tick retries.
		p.logger.Error("feed fetch failed", "error", err)
		return
	}

	// Sequential on purpose: feed-delivery order is preserved through commit
	// and broadcast within the cycle.
	for _, f := range features {
		if ctx.Err() != nil {
			return
		}
		p.processFeature(ctx, f)
	}

	p.metrics.PollDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
}

// processFeature commits one feed item: validate, dedup, write bucketed
// state, broadcast. Store failures after the dedup marker are logged per
// operation and do not abort the rest of the batch.
func (p *Poller) processFeature(ctx context.Context, f usgs.Feature) {
	p.metrics.EventsSeen.Inc()

	if f.ID == "" || f.Properties.Time == nil || len(f.Geometry.Coordinates) < 2 {
		// Malformed upstream data, not an error.
		p.metrics.EventsMalformed.Inc()
		return
	}

	q := domain.Quake{
		ID:     f.ID,
		Mag:    f.Properties.Mag,
		Place:  f.Properties.Place,
		Region: domain.DeriveRegion(f.Properties.Place),
		Lon:    f.Geometry.Coordinates[0],
		Lat:    f.Geometry.Coordinates[1],
		TS:     *f.Properties.Time,
	}

	p.metrics.IngestLag.Set(float64(time.Now().UnixMilli()-q.TS) / 1000)

	created, err := p.store.MarkSeen(ctx, q.ID, p.opts.DedupTTL)
	if err != nil {
		p.logger.Error("dedup marker failed", "error", err, "id", q.ID)
		return
	}
	if !created {
		p.metrics.EventsDuplicate.Inc()
		return
	}

	// The marker is committed before the remaining writes. If one of them
	// fails, or the process dies here, the event stays under-counted until
	// the marker TTL lapses. Setting the marker last would reopen the
	// duplicate-processing race the marker exists to close, and the store
	// contract offers no multi-key transaction, so the under-count stands.
	bucket := domain.MinuteBucket(q.TS)

	if err := p.store.AppendStream(ctx, q); err != nil {
		p.logger.Error("stream append failed", "error", err, "id", q.ID)
	}
	if err := p.store.PushRecent(ctx, q, p.opts.RecentListSize); err != nil {
		p.logger.Error("recent list push failed", "error", err, "id", q.ID)
	}
	if err := p.store.IncrMinuteCount(ctx, bucket, p.opts.BucketTTL); err != nil {
		p.logger.Error("minute count increment failed", "error", err, "bucket", bucket)
	}
	if err := p.store.IncrRegion(ctx, bucket, q.Region, p.opts.BucketTTL); err != nil {
		p.logger.Error("region increment failed", "error", err, "bucket", bucket, "region", q.Region)
	}
	if err := p.store.IncrMagnitudeBin(ctx, bucket, domain.MagnitudeBin(q.Mag), p.opts.BucketTTL); err != nil {
		p.logger.Error("histogram increment failed", "error", err, "bucket", bucket)
	}

	if p.archiver != nil {
		if err := p.archiver.Archive(ctx, q); err != nil {
			p.logger.Warn("archive write failed", "error", err, "id", q.ID)
		}
	}

	p.publisher.Publish(q)
	p.metrics.EventsCommitted.Inc()
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
