package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FeedURL     string
	FeedTimeout time.Duration

	PollInterval      time.Duration
	AggregateInterval time.Duration
	Windows           []int // sliding-window lengths in minutes

	DedupTTL       time.Duration
	BucketTTL      time.Duration
	SnapshotTTL    time.Duration
	RecentListSize int64

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka archive configuration (feature-flagged via KAFKA_ENABLED).
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaArchiveTopic string
}

const defaultFeedURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	feedTimeout, err := parseDuration("FEED_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("POLL_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}
	aggInterval, err := parseDuration("AGGREGATE_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}
	dedupTTL, err := parseDuration("DEDUP_TTL", 2*time.Hour)
	if err != nil {
		return nil, err
	}
	bucketTTL, err := parseDuration("BUCKET_TTL", 3*time.Hour)
	if err != nil {
		return nil, err
	}
	snapshotTTL, err := parseDuration("SNAPSHOT_TTL", 180*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	windows, err := parseWindows(envOrDefault("AGGREGATE_WINDOWS", "15,60"))
	if err != nil {
		return nil, err
	}

	redisDB, err := parseInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	recentSize, err := parseInt("RECENT_LIST_SIZE", 200)
	if err != nil {
		return nil, err
	}
	if recentSize <= 0 {
		return nil, errors.New("RECENT_LIST_SIZE must be positive")
	}

	cfg := &Config{
		RedisAddr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		FeedURL:     envOrDefault("FEED_URL", defaultFeedURL),
		FeedTimeout: feedTimeout,

		PollInterval:      pollInterval,
		AggregateInterval: aggInterval,
		Windows:           windows,

		DedupTTL:       dedupTTL,
		BucketTTL:      bucketTTL,
		SnapshotTTL:    snapshotTTL,
		RecentListSize: int64(recentSize),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:      os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:      parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaArchiveTopic: envOrDefault("KAFKA_ARCHIVE_TOPIC", "quake-events-archive"),
	}

	if cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is required")
	}
	if cfg.FeedURL == "" {
		return nil, errors.New("FEED_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

// parseWindows parses a comma-separated list of window lengths in minutes,
// e.g. "15,60". Duplicates and non-positive values are rejected.
func parseWindows(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	windows := make([]int, 0, len(parts))
	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid AGGREGATE_WINDOWS entry: %q", p)
		}
		if seen[n] {
			return nil, fmt.Errorf("duplicate AGGREGATE_WINDOWS entry: %d", n)
		}
		seen[n] = true
		windows = append(windows, n)
	}
	if len(windows) == 0 {
		return nil, errors.New("AGGREGATE_WINDOWS must name at least one window")
	}
	return windows, nil
}
