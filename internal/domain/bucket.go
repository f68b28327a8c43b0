package domain

import (
	"fmt"
	"math"
	"time"
)

// bucketLayout is the minute-bucket key format: yyyymmddHHmm in UTC.
// Fixed width and most-significant-first, so lexicographic order on bucket
// strings equals chronological order on the minutes they name.
const bucketLayout = "200601021504"

// MinuteBucket maps an epoch-milliseconds timestamp to its UTC minute bucket.
func MinuteBucket(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(bucketLayout)
}

// CurrentMinuteBucket returns the bucket for the current minute.
func CurrentMinuteBucket() string {
	return MinuteBucket(clock.Now().UnixMilli())
}

// BucketsInWindow returns the bucket keys covering the last `minutes` minutes
// ending at the current minute, oldest first. The result always has exactly
// `minutes` entries; buckets that were never written simply have no state.
func BucketsInWindow(minutes int) []string {
	now := clock.Now().UnixMilli()
	buckets := make([]string, 0, minutes)
	for i := minutes - 1; i >= 0; i-- {
		buckets = append(buckets, MinuteBucket(now-int64(i)*time.Minute.Milliseconds()))
	}
	return buckets
}

// BucketTime is the inverse of MinuteBucket: it returns the top of the
// originating minute in UTC.
func BucketTime(bucket string) (time.Time, error) {
	t, err := time.ParseInLocation(bucketLayout, bucket, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse minute bucket %q: %w", bucket, err)
	}
	return t, nil
}

// MagnitudeBin classifies a magnitude into a histogram bin label.
// Missing or NaN magnitudes land in "unknown"; the extremes are clamped into
// "<0" and "9+"; everything else gets a half-open unit interval like "5-6".
func MagnitudeBin(mag *float64) string {
	if mag == nil || math.IsNaN(*mag) {
		return "unknown"
	}
	switch {
	case *mag < 0:
		return "<0"
	case *mag >= 9:
		return "9+"
	}
	floor := int(math.Floor(*mag))
	return fmt.Sprintf("%d-%d", floor, floor+1)
}
