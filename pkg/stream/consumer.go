// Package stream applies the entity snapshot topic to a container.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/connector"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/models"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/retry"
)

// Store persists decoded events. *connector.Connector satisfies it.
type Store interface {
	StoreData(ctx context.Context, stream *models.StreamDescriptor, s *models.EntitySnapshot) (connector.StoreOutcome, error)
	DeleteEntity(ctx context.Context, stream *models.StreamDescriptor, entityID uuid.UUID) error
}

var _ Store = (*connector.Connector)(nil)

// Config controls how the Consumer applies messages.
type Config struct {
	Stream *models.StreamDescriptor

	// RateLimit caps applied messages per second. Zero disables limiting.
	RateLimit float64
	Burst     int

	// Retry governs retries of failed writes. Nil uses retry.DefaultConfig.
	Retry *retry.Config
}

// Stats counts what the Consumer did with the messages it fetched.
type Stats struct {
	Stored    int64
	Skipped   int64
	Deleted   int64
	Discarded int64
}

// Consumer reads snapshots from the topic and writes them through a Store.
// A message is committed only after it has been applied or discarded.
type Consumer struct {
	reader  MessageReader
	store   Store
	stream  *models.StreamDescriptor
	retry   *retry.Config
	limiter *rate.Limiter
	logger  *zap.Logger

	stored    atomic.Int64
	skipped   atomic.Int64
	deleted   atomic.Int64
	discarded atomic.Int64
}

// NewConsumer creates a Consumer. A nil logger disables logging.
func NewConsumer(reader MessageReader, store Store, cfg Config, logger *zap.Logger) (*Consumer, error) {
	if reader == nil {
		return nil, apperrors.InvalidArgument("reader", "must not be nil")
	}
	if store == nil {
		return nil, apperrors.InvalidArgument("store", "must not be nil")
	}
	if cfg.Stream == nil {
		return nil, apperrors.InvalidArgument("stream", "must not be nil")
	}
	if cfg.RateLimit < 0 {
		return nil, apperrors.InvalidArgument("rate limit", "must not be negative")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Consumer{
		reader: reader,
		store:  store,
		stream: cfg.Stream,
		retry:  cfg.Retry,
		logger: logger.Named("stream").With(zap.String("container", cfg.Stream.ContainerName)),
	}
	if c.retry == nil {
		c.retry = retry.DefaultConfig()
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// Run fetches and applies messages until ctx is cancelled, which returns nil.
// A write that still fails after its retries stops the Consumer without
// committing the message, so it is redelivered on restart.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Consumer started", zap.String("mode", c.stream.Mode.String()))
	defer func() {
		s := c.Stats()
		c.logger.Info("Consumer stopped",
			zap.Int64("stored", s.Stored),
			zap.Int64("skipped", s.Skipped),
			zap.Int64("deleted", s.Deleted),
			zap.Int64("discarded", s.Discarded))
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to commit offset %d of partition %d: %w", msg.Offset, msg.Partition, err)
		}
	}
}

// Stats returns the counters accumulated so far.
func (c *Consumer) Stats() Stats {
	return Stats{
		Stored:    c.stored.Load(),
		Skipped:   c.skipped.Load(),
		Deleted:   c.deleted.Load(),
		Discarded: c.discarded.Load(),
	}
}

// handle applies one message. It returns an error only when the message must
// not be committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	logger := c.logger.With(
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset))

	event, err := DecodeMessage(msg)
	if err != nil {
		c.discarded.Add(1)
		logger.Warn("Discarding undecodable message", zap.Error(err))
		return nil
	}
	logger = logger.With(zap.String("entity_id", event.EntityID.String()))

	rc := *c.retry
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Retrying message", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}

	var outcome connector.StoreOutcome
	err = retry.DoIfRetryable(ctx, &rc, func() error {
		if event.Deleted {
			return c.store.DeleteEntity(ctx, c.stream, event.EntityID)
		}
		var err error
		outcome, err = c.store.StoreData(ctx, c.stream, event.Snapshot)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if connector.IsRetryable(err) {
			logger.Error("Failed to apply message", zap.Error(err))
			return fmt.Errorf("failed to apply offset %d of partition %d: %w", msg.Offset, msg.Partition, err)
		}
		c.discarded.Add(1)
		logger.Error("Discarding message that cannot be applied", zap.Error(err))
		return nil
	}

	switch {
	case event.Deleted:
		c.deleted.Add(1)
	case outcome == connector.Stored:
		c.stored.Add(1)
	default:
		c.skipped.Add(1)
		logger.Debug("Snapshot already applied", zap.String("outcome", outcome.String()))
	}
	return nil
}
