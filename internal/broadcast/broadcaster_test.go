package broadcast

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
)

func newBroadcaster() *Broadcaster {
	return New(slog.Default(), observability.NewMetricsForTesting())
}

func TestBroadcaster_PublishReachesAllSubscribers(t *testing.T) {
	b := newBroadcaster()

	_, ch1 := b.Subscribe(4)
	_, ch2 := b.Subscribe(4)

	b.Publish(domain.Quake{ID: "a"})

	for _, ch := range []<-chan Message{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, MessageType, msg.Type)
			assert.Equal(t, "a", msg.Data.ID)
		default:
			t.Fatal("expected a buffered message")
		}
	}
}

func TestBroadcaster_PublishOrder(t *testing.T) {
	b := newBroadcaster()
	_, ch := b.Subscribe(8)

	b.Publish(domain.Quake{ID: "first"})
	b.Publish(domain.Quake{ID: "second"})

	assert.Equal(t, "first", (<-ch).Data.ID)
	assert.Equal(t, "second", (<-ch).Data.ID)
}

func TestBroadcaster_FullSubscriberIsSkipped(t *testing.T) {
	b := newBroadcaster()

	_, full := b.Subscribe(1)
	_, open := b.Subscribe(4)

	b.Publish(domain.Quake{ID: "a"}) // fills the size-1 buffer
	b.Publish(domain.Quake{ID: "b"}) // dropped for the full subscriber

	assert.Len(t, full, 1, "full subscriber keeps only the first message")
	assert.Len(t, open, 2, "open subscriber receives both")
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := newBroadcaster()

	id, ch := b.Subscribe(1)
	b.Unsubscribe(id)

	_, stillOpen := <-ch
	assert.False(t, stillOpen, "channel closes on unsubscribe")

	b.Publish(domain.Quake{ID: "a"}) // must not panic on the closed channel
}

func TestBroadcaster_SweepDropsUnresponsiveSubscriber(t *testing.T) {
	b := newBroadcaster()

	_, dead := b.Subscribe(1)
	b.Publish(domain.Quake{ID: "fill"})
	for i := 0; i < maxConsecutiveDrops; i++ {
		b.Publish(domain.Quake{ID: "drop"})
	}

	b.sweep()

	// Drain the buffered message; the channel must then be closed.
	<-dead
	_, stillOpen := <-dead
	assert.False(t, stillOpen, "unresponsive subscriber is evicted")
}

func TestBroadcaster_RunClosesSubscribersOnCancel(t *testing.T) {
	b := newBroadcaster()
	_, ch := b.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	_, stillOpen := <-ch
	assert.False(t, stillOpen)

	// Subscriptions after shutdown come back already closed.
	_, late := b.Subscribe(1)
	_, stillOpen = <-late
	require.False(t, stillOpen)
}
