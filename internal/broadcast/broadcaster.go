// Package broadcast fans newly committed events out to in-process
// subscribers. Delivery is best-effort: a subscriber whose channel is full
// misses that message, and publishing never blocks the ingestion path.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
)

// Message is the tagged envelope delivered to subscribers.
type Message struct {
	Type string       `json:"type"`
	Data domain.Quake `json:"data"`
}

// MessageType is the tag carried by every quake broadcast.
const MessageType = "quake"

// maxConsecutiveDrops is how many deliveries in a row a subscriber may miss
// before the liveness sweep drops it from the registry.
const maxConsecutiveDrops = 8

type subscriber struct {
	ch    chan Message
	drops int // consecutive missed deliveries, reset on success
}

// Broadcaster is a bounded-registry publish/subscribe fan-out.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[string]*subscriber
	closed  bool
	logger  *slog.Logger
	metrics *observability.Metrics

	sweepInterval time.Duration
}

// New creates an empty Broadcaster.
func New(logger *slog.Logger, metrics *observability.Metrics) *Broadcaster {
	return &Broadcaster{
		subs:          make(map[string]*subscriber),
		logger:        logger,
		metrics:       metrics,
		sweepInterval: 30 * time.Second,
	}
}

// Subscribe registers a new subscriber and returns its id and receive
// channel. The channel is closed on Unsubscribe, on liveness eviction, or
// when the broadcaster shuts down. Subscribers registered after a publish
// simply miss it; there is no replay.
func (b *Broadcaster) Subscribe(buffer int) (string, <-chan Message) {
	if buffer <= 0 {
		buffer = 16
	}
	id := uuid.NewString()
	sub := &subscriber{ch: make(chan Message, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return id, sub.ch
	}
	b.subs[id] = sub
	b.metrics.Subscribers.Set(float64(len(b.subs)))
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are a
// no-op.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

// Publish delivers the event to every registered subscriber without
// blocking. A subscriber whose buffer is full is skipped and its drop count
// incremented for the next liveness sweep.
func (b *Broadcaster) Publish(q domain.Quake) {
	msg := Message{Type: MessageType, Data: q}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- msg:
			sub.drops = 0
		default:
			sub.drops++
			b.metrics.BroadcastDrops.Inc()
			b.logger.Debug("broadcast dropped", "subscriber", id, "consecutive_drops", sub.drops)
		}
	}
}

// Run sweeps unresponsive subscribers on a fixed interval until the context
// is cancelled, then closes every remaining channel.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

// sweep drops subscribers that have missed too many deliveries in a row.
func (b *Broadcaster) sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		if sub.drops >= maxConsecutiveDrops {
			b.logger.Info("dropping unresponsive subscriber", "subscriber", id, "consecutive_drops", sub.drops)
			b.removeLocked(id)
		}
	}
}

func (b *Broadcaster) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.subs {
		b.removeLocked(id)
	}
	b.closed = true
}

// removeLocked deletes a subscriber and closes its channel. Must be called
// with the lock held.
func (b *Broadcaster) removeLocked(id string) {
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
	b.metrics.Subscribers.Set(float64(len(b.subs)))
}
