package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/example/ridewatch/internal/observability"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink receives each decoded event.
type Sink func(ctx context.Context, e Event) error

type ConsumerOptions struct {
	// Attempts per message before it is skipped.
	Attempts     int
	RetryDelay   time.Duration
	MaxReadDelay time.Duration
}

// Consumer drains the change feed into a Sink. Offsets are committed after
// the sink accepted the message or gave up on it.
type Consumer struct {
	reader MessageReader
	sink   Sink
	opts   ConsumerOptions
	logger *slog.Logger
}

func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 1, MaxBytes: 10e6})
}

func NewConsumer(r MessageReader, sink Sink, opts ConsumerOptions, logger *slog.Logger) *Consumer {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 200 * time.Millisecond
	}
	if opts.MaxReadDelay <= 0 {
		opts.MaxReadDelay = 30 * time.Second
	}
	return &Consumer{reader: r, sink: sink, opts: opts, logger: logger}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	readBackoff := backoff.NewExponentialBackOff()
	readBackoff.InitialInterval = min(time.Second, c.opts.MaxReadDelay)
	readBackoff.MaxInterval = c.opts.MaxReadDelay
	readBackoff.MaxElapsedTime = 0
	readBackoff.Reset()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := readBackoff.NextBackOff()
			c.logger.Warn("kafka read error", "error", err, "retry_in", wait.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		readBackoff.Reset()

		c.handle(ctx, m)
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Warn("kafka commit failed", "offset", m.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	e, err := DecodeEvent(m.Value)
	if err != nil {
		observability.ExportedTotal.WithLabelValues("consumer", "invalid").Inc()
		c.logger.Warn("invalid change event", "offset", m.Offset, "error", err)
		return
	}
	if err := c.deliver(ctx, e); err != nil {
		observability.ExportedTotal.WithLabelValues("consumer", "error").Inc()
		c.logger.Error("change event dropped", "ride_id", e.Ride.ID, "error", err)
		return
	}
	observability.ExportedTotal.WithLabelValues("consumer", "ok").Inc()
}

func (c *Consumer) deliver(ctx context.Context, e Event) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.Attempts-1)), ctx)
	return backoff.Retry(func() error {
		err := c.sink(ctx, e)
		if errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}, retry)
}
