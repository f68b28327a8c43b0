// Package kafka mirrors newly committed quake events to a Kafka topic, giving
// the ingest stream a durable retention story beyond the store's TTL horizon.
// The mirror is best-effort and feature-flagged; ingestion never depends on it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/quake-feed-service/internal/config"
	"github.com/couchcryptid/quake-feed-service/internal/domain"
)

// Archiver produces committed events to the archive topic.
// It implements ingest.Archiver.
type Archiver struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewArchiver creates a Kafka producer for the configured archive topic.
func NewArchiver(cfg *config.Config, logger *slog.Logger) *Archiver {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaArchiveTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Archiver{writer: w, logger: logger}
}

// Archive serializes and publishes one quake to the archive topic.
func (a *Archiver) Archive(ctx context.Context, q domain.Quake) error {
	msg, err := serializeToMessage(q)
	if err != nil {
		return err
	}
	return a.writer.WriteMessages(ctx, msg)
}

func (a *Archiver) Close() error {
	return a.writer.Close()
}

// serializeToMessage marshals a quake into a Kafka message keyed by event id.
func serializeToMessage(q domain.Quake) (kafkago.Message, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize quake: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(q.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region", Value: []byte(q.Region)},
			{Key: "event_ts", Value: []byte(strconv.FormatInt(q.TS, 10))},
		},
	}, nil
}
