package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/store"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// SnapshotReader is the read-only slice of the store the API serves from.
type SnapshotReader interface {
	TopRegions(ctx context.Context, minutes, k int) ([]store.RegionCount, error)
	HistogramWindow(ctx context.Context, minutes int) (map[string]int64, error)
	RecentQuakes(ctx context.Context, n int64) ([]domain.Quake, error)
	MinuteCounts(ctx context.Context, buckets []string) ([]int64, error)
}

const topRegionsLimit = 10

// Server exposes health, readiness, metrics, and snapshot read endpoints.
// It never touches raw history: everything it serves was precomputed by the
// poller and aggregator.
type Server struct {
	httpServer *http.Server
	reader     SnapshotReader
	windows    []int
	recentSize int64
	logger     *slog.Logger
}

// NewServer creates the HTTP server. `windows` are the configured aggregation
// window lengths; the largest one backs /api/initial.
func NewServer(addr string, ready ReadinessChecker, reader SnapshotReader, windows []int, recentSize int64, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		reader:     reader,
		windows:    windows,
		recentSize: recentSize,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/aggregates", s.handleAggregates)
	mux.HandleFunc("GET /api/recent", s.handleRecent)
	mux.HandleFunc("GET /api/initial", s.handleInitial)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type aggregatesResponse struct {
	Window     int                 `json:"window"`
	RegionsTop []store.RegionCount `json:"regionsTop"`
	Histogram  map[string]int64    `json:"histogram"`
}

func (s *Server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	minutes := s.parseWindow(r.URL.Query().Get("window"))

	resp, err := s.readAggregates(r.Context(), minutes)
	if err != nil {
		s.logger.Error("aggregates read failed", "error", err, "window_minutes", minutes)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed_to_load"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readAggregates(ctx context.Context, minutes int) (aggregatesResponse, error) {
	top, err := s.reader.TopRegions(ctx, minutes, topRegionsLimit)
	if err != nil {
		return aggregatesResponse{}, err
	}
	hist, err := s.reader.HistogramWindow(ctx, minutes)
	if err != nil {
		return aggregatesResponse{}, err
	}
	if top == nil {
		top = []store.RegionCount{}
	}
	return aggregatesResponse{Window: minutes, RegionsTop: top, Histogram: hist}, nil
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	recent, err := s.reader.RecentQuakes(r.Context(), s.recentSize)
	if err != nil {
		s.logger.Error("recent read failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed_to_load"})
		return
	}
	if recent == nil {
		recent = []domain.Quake{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recent": recent})
}

type minuteCount struct {
	Minute string `json:"minute"` // RFC 3339, top of the minute
	Count  int64  `json:"count"`
}

func (s *Server) handleInitial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	minutes := s.largestWindow()

	buckets := domain.BucketsInWindow(minutes)
	counts, err := s.reader.MinuteCounts(ctx, buckets)
	if err != nil {
		s.logger.Error("minute counts read failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed_to_load"})
		return
	}

	perMinute := make([]minuteCount, len(buckets))
	for i, b := range buckets {
		ts, err := domain.BucketTime(b)
		if err != nil {
			s.logger.Error("bucket decode failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed_to_load"})
			return
		}
		perMinute[i] = minuteCount{Minute: ts.Format(time.RFC3339), Count: counts[i]}
	}

	aggs, err := s.readAggregates(ctx, minutes)
	if err != nil {
		s.logger.Error("aggregates read failed", "error", err, "window_minutes", minutes)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed_to_load"})
		return
	}

	recent, err := s.reader.RecentQuakes(ctx, s.recentSize)
	if err != nil {
		s.logger.Error("recent read failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed_to_load"})
		return
	}
	if recent == nil {
		recent = []domain.Quake{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"perMinuteCounts": perMinute,
		"regionsTop":      aggs.RegionsTop,
		"histogram":       aggs.Histogram,
		"recent":          recent,
	})
}

// parseWindow maps the query value onto a configured window, falling back to
// the largest one for anything unrecognized.
func (s *Server) parseWindow(raw string) int {
	if n, err := strconv.Atoi(raw); err == nil {
		for _, w := range s.windows {
			if w == n {
				return n
			}
		}
	}
	return s.largestWindow()
}

func (s *Server) largestWindow() int {
	largest := s.windows[0]
	for _, w := range s.windows[1:] {
		if w > largest {
			largest = w
		}
	}
	return largest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
