package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/config"
)

// MessageReader is the part of a Kafka consumer-group reader the Consumer uses.
// *kafka.Reader satisfies it.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ MessageReader = (*kafka.Reader)(nil)

// NewKafkaReader creates a consumer-group reader for the snapshot topic.
// Offsets are committed explicitly by the Consumer.
func NewKafkaReader(cfg config.KafkaConfig) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("Kafka consumer group is required")
	}

	minBytes, maxBytes := cfg.MinBytes, cfg.MaxBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	if maxBytes < minBytes {
		maxBytes = 10e6
	}

	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    minBytes,
		MaxBytes:    maxBytes,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	}), nil
}
