package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
)

// Key schema. Per-minute keys embed the yyyymmddHHmm bucket; window snapshot
// keys embed the window length in minutes.
const (
	keySeenPrefix   = "seen:quake:"
	keyStream       = "stream:quakes"
	keyRecentList   = "list:recent_quakes"
	keyMinutePrefix = "cnt:quakes:per_minute:"
	keyRegionBucket = "z:quakes:by_region:bucket:"
	keyRegionWindow = "z:quakes:by_region:"
	keyHistBucket   = "h:mag_hist:bucket:"
	keyHistWindow   = "h:mag_hist:"
)

// Redis implements Store on a Redis client.
type Redis struct {
	rdb *redis.Client
}

var _ Store = (*Redis)(nil)

// NewRedis wraps an existing client. The caller owns the client's lifecycle.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (s *Redis) MarkSeen(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	created, err := s.rdb.SetNX(ctx, keySeenPrefix+id, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set dedup marker %s: %w", id, err)
	}
	return created, nil
}

func (s *Redis) AppendStream(ctx context.Context, q domain.Quake) error {
	mag := ""
	if q.Mag != nil {
		mag = strconv.FormatFloat(*q.Mag, 'f', -1, 64)
	}
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: keyStream,
		Values: map[string]interface{}{
			"id":     q.ID,
			"mag":    mag,
			"place":  q.Place,
			"region": q.Region,
			"lat":    strconv.FormatFloat(q.Lat, 'f', -1, 64),
			"lon":    strconv.FormatFloat(q.Lon, 'f', -1, 64),
			"ts":     strconv.FormatInt(q.TS, 10),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append stream: %w", err)
	}
	return nil
}

func (s *Redis) PushRecent(ctx context.Context, q domain.Quake, max int64) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal recent quake: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, keyRecentList, data)
	pipe.LTrim(ctx, keyRecentList, 0, max-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push recent list: %w", err)
	}
	return nil
}

func (s *Redis) IncrMinuteCount(ctx context.Context, bucket string, ttl time.Duration) error {
	return s.incrWithExpiry(ctx, func(pipe redis.Pipeliner) {
		pipe.Incr(ctx, keyMinutePrefix+bucket)
	}, keyMinutePrefix+bucket, ttl)
}

func (s *Redis) IncrRegion(ctx context.Context, bucket, region string, ttl time.Duration) error {
	return s.incrWithExpiry(ctx, func(pipe redis.Pipeliner) {
		pipe.ZIncrBy(ctx, keyRegionBucket+bucket, 1, region)
	}, keyRegionBucket+bucket, ttl)
}

func (s *Redis) IncrMagnitudeBin(ctx context.Context, bucket, bin string, ttl time.Duration) error {
	return s.incrWithExpiry(ctx, func(pipe redis.Pipeliner) {
		pipe.HIncrBy(ctx, keyHistBucket+bucket, bin, 1)
	}, keyHistBucket+bucket, ttl)
}

// incrWithExpiry runs one increment command and an EXPIRE on the same key in
// a single pipeline round trip.
func (s *Redis) incrWithExpiry(ctx context.Context, incr func(redis.Pipeliner), key string, ttl time.Duration) error {
	pipe := s.rdb.TxPipeline()
	incr(pipe)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment %s: %w", key, err)
	}
	return nil
}

func (s *Redis) MergeRegionWindow(ctx context.Context, buckets []string, minutes int, ttl time.Duration) error {
	if len(buckets) == 0 {
		return nil
	}
	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = keyRegionBucket + b
	}
	dest := windowKey(keyRegionWindow, minutes)
	if err := s.rdb.ZUnionStore(ctx, dest, &redis.ZStore{Keys: keys}).Err(); err != nil {
		return fmt.Errorf("merge region window %dm: %w", minutes, err)
	}
	if err := s.rdb.Expire(ctx, dest, ttl).Err(); err != nil {
		return fmt.Errorf("expire region window %dm: %w", minutes, err)
	}
	return nil
}

func (s *Redis) MagnitudeBins(ctx context.Context, bucket string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, keyHistBucket+bucket).Result()
	if err != nil {
		return nil, fmt.Errorf("read histogram bucket %s: %w", bucket, err)
	}
	bins := make(map[string]int64, len(raw))
	for bin, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("histogram bucket %s field %s: %w", bucket, bin, err)
		}
		bins[bin] = n
	}
	return bins, nil
}

func (s *Redis) WriteHistogramWindow(ctx context.Context, minutes int, bins map[string]int64, ttl time.Duration) error {
	dest := windowKey(keyHistWindow, minutes)
	if len(bins) == 0 {
		if err := s.rdb.Del(ctx, dest).Err(); err != nil {
			return fmt.Errorf("delete histogram window %dm: %w", minutes, err)
		}
		return nil
	}

	flat := make([]interface{}, 0, len(bins)*2)
	for bin, count := range bins {
		flat = append(flat, bin, count)
	}

	// Replace rather than merge, so bins that dropped out of the window
	// disappear from the snapshot immediately.
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, dest)
	pipe.HSet(ctx, dest, flat...)
	pipe.Expire(ctx, dest, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write histogram window %dm: %w", minutes, err)
	}
	return nil
}

func (s *Redis) TopRegions(ctx context.Context, minutes, k int) ([]RegionCount, error) {
	rows, err := s.rdb.ZRevRangeWithScores(ctx, windowKey(keyRegionWindow, minutes), 0, int64(k-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read region window %dm: %w", minutes, err)
	}
	top := make([]RegionCount, 0, len(rows))
	for _, z := range rows {
		region, ok := z.Member.(string)
		if !ok {
			continue
		}
		top = append(top, RegionCount{Region: region, Count: int64(z.Score)})
	}
	return top, nil
}

func (s *Redis) HistogramWindow(ctx context.Context, minutes int) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, windowKey(keyHistWindow, minutes)).Result()
	if err != nil {
		return nil, fmt.Errorf("read histogram window %dm: %w", minutes, err)
	}
	bins := make(map[string]int64, len(raw))
	for bin, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("histogram window %dm field %s: %w", minutes, bin, err)
		}
		bins[bin] = n
	}
	return bins, nil
}

func (s *Redis) RecentQuakes(ctx context.Context, n int64) ([]domain.Quake, error) {
	raw, err := s.rdb.LRange(ctx, keyRecentList, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent list: %w", err)
	}
	quakes := make([]domain.Quake, 0, len(raw))
	for _, item := range raw {
		var q domain.Quake
		if err := json.Unmarshal([]byte(item), &q); err != nil {
			// Skip entries written by an incompatible older version.
			continue
		}
		quakes = append(quakes, q)
	}
	return quakes, nil
}

func (s *Redis) MinuteCounts(ctx context.Context, buckets []string) ([]int64, error) {
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(buckets))
	for i, b := range buckets {
		cmds[i] = pipe.Get(ctx, keyMinutePrefix+b)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read minute counts: %w", err)
	}

	counts := make([]int64, len(buckets))
	for i, cmd := range cmds {
		v, err := cmd.Result()
		if err == redis.Nil {
			continue // never written or expired: zero
		}
		if err != nil {
			return nil, fmt.Errorf("read minute count %s: %w", buckets[i], err)
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("minute count %s: %w", buckets[i], err)
		}
		counts[i] = n
	}
	return counts, nil
}

func windowKey(prefix string, minutes int) string {
	return fmt.Sprintf("%s%dm", prefix, minutes)
}
