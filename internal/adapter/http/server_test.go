package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/quake-feed-service/internal/adapter/http"
	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/store"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func newTestServer(readyErr error, mem *store.Memory) *httpadapter.Server {
	if mem == nil {
		mem = store.NewMemory(nil)
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, mem, []int{15, 60}, 200, slog.Default())
}

func get(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(fmt.Errorf("not ready yet"), nil), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAggregates(t *testing.T) {
	mem := store.NewMemory(nil)
	ctx := context.Background()
	require.NoError(t, mem.IncrRegion(ctx, "b", "Alaska", time.Hour))
	require.NoError(t, mem.MergeRegionWindow(ctx, []string{"b"}, 15, time.Minute))
	require.NoError(t, mem.WriteHistogramWindow(ctx, 15, map[string]int64{"5-6": 1}, time.Minute))

	rec := get(t, newTestServer(nil, mem), "/api/aggregates?window=15")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Window     int                 `json:"window"`
		RegionsTop []store.RegionCount `json:"regionsTop"`
		Histogram  map[string]int64    `json:"histogram"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 15, body.Window)
	assert.Equal(t, []store.RegionCount{{Region: "Alaska", Count: 1}}, body.RegionsTop)
	assert.Equal(t, map[string]int64{"5-6": 1}, body.Histogram)
}

func TestAggregates_UnknownWindowFallsBack(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/api/aggregates?window=999")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(60), body["window"], "unconfigured window falls back to the largest")
}

func TestRecent(t *testing.T) {
	mem := store.NewMemory(nil)
	require.NoError(t, mem.PushRecent(context.Background(), domain.Quake{ID: "a", Region: "Chile"}, 200))

	rec := get(t, newTestServer(nil, mem), "/api/recent")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Recent []domain.Quake `json:"recent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Recent, 1)
	assert.Equal(t, "a", body.Recent[0].ID)
}

func TestInitial(t *testing.T) {
	now := time.Date(2026, 3, 5, 14, 7, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	mem := store.NewMemory(nil)
	ctx := context.Background()
	bucket := domain.MinuteBucket(now.UnixMilli())
	require.NoError(t, mem.IncrMinuteCount(ctx, bucket, time.Hour))
	require.NoError(t, mem.PushRecent(ctx, domain.Quake{ID: "a"}, 200))

	rec := get(t, newTestServer(nil, mem), "/api/initial")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		PerMinuteCounts []struct {
			Minute string `json:"minute"`
			Count  int64  `json:"count"`
		} `json:"perMinuteCounts"`
		Recent []domain.Quake `json:"recent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.PerMinuteCounts, 60)

	last := body.PerMinuteCounts[59]
	assert.Equal(t, "2026-03-05T14:07:00Z", last.Minute)
	assert.Equal(t, int64(1), last.Count)
	assert.Equal(t, int64(0), body.PerMinuteCounts[0].Count)
	require.Len(t, body.Recent, 1)
}
