package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"alertrules/internal/config"
	"alertrules/internal/metrics"

	"github.com/segmentio/kafka-go"
)

const (
	kafkaRetryBackoff    = 200 * time.Millisecond
	kafkaMaxRetryBackoff = 5 * time.Second
)

// messageReader is the subset of *kafka.Reader used by the consumer loop.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads envelopes from one topic with a consumer group.
// Offsets are committed only after the sink accepted the message.
type KafkaConsumer struct {
	reader messageReader
	sink   EventSink
	logger *slog.Logger
}

// NewKafkaConsumer creates a consumer-group reader for the ingest topic.
// Params: Kafka ingest config, sink, and optional logger.
// Returns: consumer ready for Run or config error.
func NewKafkaConsumer(cfg config.KafkaIngestConfig, sink EventSink, logger *slog.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  time.Duration(cfg.MaxWaitMS) * time.Millisecond,
	})
	return newKafkaConsumer(reader, sink, logger), nil
}

func newKafkaConsumer(reader messageReader, sink EventSink, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaConsumer{reader: reader, sink: sink, logger: logger}
}

// Run consumes until ctx is canceled.
// A message the sink rejects is retried with backoff; malformed messages are committed and dropped.
// Params: lifecycle context.
// Returns: nil on cancellation or fetch error otherwise.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		if err := c.handle(ctx, message); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, message kafka.Message) error {
	logger := c.logger.With("topic", message.Topic, "partition", message.Partition, "offset", message.Offset)
	envelopes, err := decodeEnvelopePayload(message.Value)
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues(TransportKafka, "rejected").Inc()
		logger.Warn("kafka ingest decode failed", "error", err.Error())
		return c.commit(ctx, message)
	}

	backoff := kafkaRetryBackoff
	for {
		err := pushEnvelopes(ctx, c.sink, envelopes)
		if err == nil {
			break
		}
		metrics.IngestEventsTotal.WithLabelValues(TransportKafka, "failed").Add(float64(len(envelopes)))
		logger.Error("kafka ingest push failed", "backoff", backoff.String(), "error", err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, kafkaMaxRetryBackoff)
	}
	metrics.IngestEventsTotal.WithLabelValues(TransportKafka, "accepted").Add(float64(len(envelopes)))
	return c.commit(ctx, message)
}

func (c *KafkaConsumer) commit(ctx context.Context, message kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		return fmt.Errorf("kafka commit offset %d: %w", message.Offset, err)
	}
	return nil
}

// Close closes the underlying reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
