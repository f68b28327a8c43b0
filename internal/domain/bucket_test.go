package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinuteBucket(t *testing.T) {
	// 2026-03-05 14:07:42.250 UTC
	ts := time.Date(2026, 3, 5, 14, 7, 42, 250_000_000, time.UTC).UnixMilli()
	assert.Equal(t, "202603051407", MinuteBucket(ts))
}

func TestMinuteBucket_UsesUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	ts := time.Date(2026, 3, 5, 8, 7, 0, 0, loc) // 14:07 UTC
	assert.Equal(t, "202603051407", MinuteBucket(ts.UnixMilli()))
}

func TestBucketTime_RoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 31, 23, 59, 59, 999_000_000, time.UTC),
		time.Date(2026, 6, 15, 9, 30, 12, 0, time.UTC),
	}
	for _, tm := range times {
		bucket := MinuteBucket(tm.UnixMilli())
		got, err := BucketTime(bucket)
		require.NoError(t, err)
		assert.Equal(t, tm.Truncate(time.Minute), got, "bucket %s", bucket)
	}
}

func TestBucketTime_Malformed(t *testing.T) {
	_, err := BucketTime("not-a-bucket")
	assert.Error(t, err)
}

func TestBucketOrder_MatchesChronology(t *testing.T) {
	earlier := MinuteBucket(time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC).UnixMilli())
	later := MinuteBucket(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	assert.Less(t, earlier, later)
}

func TestBucketsInWindow(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2026, 3, 5, 14, 7, 42, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	buckets := BucketsInWindow(3)
	require.Len(t, buckets, 3)
	assert.Equal(t, []string{"202603051405", "202603051406", "202603051407"}, buckets)
}

func TestBucketsInWindow_CrossesMidnight(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 0, 1, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	buckets := BucketsInWindow(4)
	assert.Equal(t, []string{"202602282358", "202602282359", "202603010000", "202603010001"}, buckets)
}

func TestMagnitudeBin(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		mag  *float64
		want string
	}{
		{"nil", nil, "unknown"},
		{"negative", f(-0.1), "<0"},
		{"zero", f(0), "0-1"},
		{"mid", f(5.2), "5-6"},
		{"upper edge", f(8.9), "8-9"},
		{"nine", f(9.0), "9+"},
		{"above nine", f(9.5), "9+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MagnitudeBin(tt.mag))
		})
	}
}
