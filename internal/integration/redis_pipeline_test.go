//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/couchcryptid/quake-feed-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-feed-service/internal/aggregate"
	"github.com/couchcryptid/quake-feed-service/internal/broadcast"
	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/ingest"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
	"github.com/couchcryptid/quake-feed-service/internal/store"
)

func startRedis(ctx context.Context, t *testing.T) *goredis.Client {
	t.Helper()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestRedisPipeline polls a fixed feed twice against a real Redis, then runs
// one aggregation pass and checks the committed state end to end: dedup,
// per-minute buckets, window snapshots, and the recent list.
func TestRedisPipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	rdb := startRedis(ctx, t)
	st := store.NewRedis(rdb)
	metrics := observability.NewMetricsForTesting()
	logger := slog.Default()

	ts := time.Now().Add(-time.Minute).UnixMilli()
	feed := feedServer(t, fmt.Sprintf(`{
		"features": [
			{
				"id": "int-a",
				"properties": {"mag": 5.2, "place": "10km SE of Example, Country", "time": %d},
				"geometry": {"coordinates": [2.0, 1.0, 10.0]}
			},
			{
				"id": "int-b",
				"properties": {"mag": null, "place": "South of the Fiji Islands", "time": %d},
				"geometry": {"coordinates": [178.1, -24.9, 500.2]}
			}
		]
	}`, ts, ts))

	bus := broadcast.New(logger, metrics)
	_, msgs := bus.Subscribe(8)

	poller := ingest.New(usgs.NewClient(feed.URL, 5*time.Second, logger), st, bus, nil, ingest.Options{
		PollInterval:   time.Second,
		StartupDelay:   time.Millisecond,
		DedupTTL:       2 * time.Hour,
		BucketTTL:      3 * time.Hour,
		RecentListSize: 200,
	}, logger, metrics)

	// Two cycles over the same feed: the second must be a pure no-op.
	poller.Poll(ctx)
	poller.Poll(ctx)

	bucket := domain.MinuteBucket(ts)
	counts, err := st.MinuteCounts(ctx, []string{bucket})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, counts)

	streamLen, err := rdb.XLen(ctx, "stream:quakes").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), streamLen)

	recent, err := st.RecentQuakes(ctx, 200)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "int-b", recent[0].ID, "newest first")

	assert.Len(t, msgs, 2, "each event broadcast exactly once")

	aggregate.New(st, []int{15, 60}, 30*time.Second, 180*time.Second, logger, metrics).RunOnce(ctx)

	top, err := st.TopRegions(ctx, 15, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []store.RegionCount{
		{Region: "Country", Count: 1},
		{Region: "the Fiji Islands", Count: 1},
	}, top)

	hist, err := st.HistogramWindow(ctx, 15)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"5-6": 1, "unknown": 1}, hist)

	// Snapshots carry the short TTL, not the bucket TTL.
	ttl, err := rdb.TTL(ctx, "z:quakes:by_region:15m").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 180*time.Second)
}
