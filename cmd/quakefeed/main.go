package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	httpadapter "github.com/couchcryptid/quake-feed-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/quake-feed-service/internal/adapter/kafka"
	"github.com/couchcryptid/quake-feed-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-feed-service/internal/aggregate"
	"github.com/couchcryptid/quake-feed-service/internal/broadcast"
	"github.com/couchcryptid/quake-feed-service/internal/config"
	"github.com/couchcryptid/quake-feed-service/internal/ingest"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
	"github.com/couchcryptid/quake-feed-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Not fatal: the poller degrades to logged per-operation failures and
		// recovers when the store comes back.
		logger.Warn("redis not reachable at startup", "error", err, "addr", cfg.RedisAddr)
	}
	cancelPing()

	st := store.NewRedis(rdb)
	feedClient := usgs.NewClient(cfg.FeedURL, cfg.FeedTimeout, logger)
	bus := broadcast.New(logger, metrics)

	// Archive mirror (feature-flagged via KAFKA_ENABLED).
	var archiver ingest.Archiver
	var archiverCloser *kafkaadapter.Archiver
	if cfg.KafkaEnabled {
		archiverCloser = kafkaadapter.NewArchiver(cfg, logger)
		archiver = archiverCloser
		logger.Info("kafka archive enabled", "topic", cfg.KafkaArchiveTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka archive disabled")
	}

	poller := ingest.New(feedClient, st, bus, archiver, ingest.Options{
		PollInterval:   cfg.PollInterval,
		DedupTTL:       cfg.DedupTTL,
		BucketTTL:      cfg.BucketTTL,
		RecentListSize: cfg.RecentListSize,
	}, logger, metrics)

	aggregator := aggregate.New(st, cfg.Windows, cfg.AggregateInterval, cfg.SnapshotTTL, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, poller, st, cfg.Windows, cfg.RecentListSize, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start pipeline loops.
	go poller.Run(ctx)
	go aggregator.Run(ctx)
	go bus.Run(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if archiverCloser != nil {
		if err := archiverCloser.Close(); err != nil {
			logger.Error("kafka archiver close error", "error", err)
		}
	}
	if err := rdb.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	logger.Info("shutdown complete")
}
