package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
)

// Memory is an in-process Store used by unit tests and redis-less local runs.
// TTLs are honored lazily: expired entries are dropped when touched.
type Memory struct {
	mu    sync.Mutex
	clock clockwork.Clock

	seen    map[string]time.Time // id -> marker expiry
	stream  []domain.Quake
	recent  []domain.Quake
	counts  map[string]int64            // bucket -> scalar count
	regions map[string]map[string]int64 // bucket -> region -> count
	bins    map[string]map[string]int64 // bucket -> bin -> count
	expiry  map[string]time.Time        // bucket-state key -> expiry

	regionWindows map[int]map[string]int64 // minutes -> region -> count
	histWindows   map[int]map[string]int64 // minutes -> bin -> count
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store on the given clock.
// Pass nil to use the real clock.
func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		clock:         clock,
		seen:          make(map[string]time.Time),
		counts:        make(map[string]int64),
		regions:       make(map[string]map[string]int64),
		bins:          make(map[string]map[string]int64),
		expiry:        make(map[string]time.Time),
		regionWindows: make(map[int]map[string]int64),
		histWindows:   make(map[int]map[string]int64),
	}
}

func (s *Memory) MarkSeen(_ context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.seen[id]; ok && s.clock.Now().Before(exp) {
		return false, nil
	}
	s.seen[id] = s.clock.Now().Add(ttl)
	return true, nil
}

func (s *Memory) AppendStream(_ context.Context, q domain.Quake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = append(s.stream, q)
	return nil
}

func (s *Memory) PushRecent(_ context.Context, q domain.Quake, max int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append([]domain.Quake{q}, s.recent...)
	if int64(len(s.recent)) > max {
		s.recent = s.recent[:max]
	}
	return nil
}

func (s *Memory) IncrMinuteCount(_ context.Context, bucket string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropIfExpired("cnt:" + bucket)
	s.counts[bucket]++
	s.expiry["cnt:"+bucket] = s.clock.Now().Add(ttl)
	return nil
}

func (s *Memory) IncrRegion(_ context.Context, bucket, region string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropIfExpired("z:" + bucket)
	if s.regions[bucket] == nil {
		s.regions[bucket] = make(map[string]int64)
	}
	s.regions[bucket][region]++
	s.expiry["z:"+bucket] = s.clock.Now().Add(ttl)
	return nil
}

func (s *Memory) IncrMagnitudeBin(_ context.Context, bucket, bin string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropIfExpired("h:" + bucket)
	if s.bins[bucket] == nil {
		s.bins[bucket] = make(map[string]int64)
	}
	s.bins[bucket][bin]++
	s.expiry["h:"+bucket] = s.clock.Now().Add(ttl)
	return nil
}

// dropIfExpired removes a bucket's state if its TTL has lapsed. Must be
// called with the lock held.
func (s *Memory) dropIfExpired(key string) {
	exp, ok := s.expiry[key]
	if !ok || s.clock.Now().Before(exp) {
		return
	}
	delete(s.expiry, key)
	switch {
	case strings.HasPrefix(key, "cnt:"):
		delete(s.counts, key[len("cnt:"):])
	case strings.HasPrefix(key, "z:"):
		delete(s.regions, key[len("z:"):])
	case strings.HasPrefix(key, "h:"):
		delete(s.bins, key[len("h:"):])
	}
}

func (s *Memory) MergeRegionWindow(_ context.Context, buckets []string, minutes int, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make(map[string]int64)
	for _, b := range buckets {
		s.dropIfExpired("z:" + b)
		for region, count := range s.regions[b] {
			merged[region] += count
		}
	}
	s.regionWindows[minutes] = merged
	return nil
}

func (s *Memory) MagnitudeBins(_ context.Context, bucket string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropIfExpired("h:" + bucket)
	bins := make(map[string]int64, len(s.bins[bucket]))
	for bin, count := range s.bins[bucket] {
		bins[bin] = count
	}
	return bins, nil
}

func (s *Memory) WriteHistogramWindow(_ context.Context, minutes int, bins map[string]int64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(bins) == 0 {
		delete(s.histWindows, minutes)
		return nil
	}
	copied := make(map[string]int64, len(bins))
	for bin, count := range bins {
		copied[bin] = count
	}
	s.histWindows[minutes] = copied
	return nil
}

func (s *Memory) TopRegions(_ context.Context, minutes, k int) ([]RegionCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	top := make([]RegionCount, 0, len(s.regionWindows[minutes]))
	for region, count := range s.regionWindows[minutes] {
		top = append(top, RegionCount{Region: region, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Region < top[j].Region
	})
	if len(top) > k {
		top = top[:k]
	}
	return top, nil
}

func (s *Memory) HistogramWindow(_ context.Context, minutes int) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bins := make(map[string]int64, len(s.histWindows[minutes]))
	for bin, count := range s.histWindows[minutes] {
		bins[bin] = count
	}
	return bins, nil
}

func (s *Memory) RecentQuakes(_ context.Context, n int64) ([]domain.Quake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > int64(len(s.recent)) {
		n = int64(len(s.recent))
	}
	out := make([]domain.Quake, n)
	copy(out, s.recent[:n])
	return out, nil
}

func (s *Memory) MinuteCounts(_ context.Context, buckets []string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make([]int64, len(buckets))
	for i, b := range buckets {
		s.dropIfExpired("cnt:" + b)
		counts[i] = s.counts[b]
	}
	return counts, nil
}

// StreamLen reports how many events have been appended to the raw stream.
// Test helper; the stream has no read path in the service itself.
func (s *Memory) StreamLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stream)
}
