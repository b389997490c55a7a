package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phuslu/log"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/bwibbu-backfill/internal/logging"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// EventBackfillRequested asks the service to run a backfill
const EventBackfillRequested = "BACKFILL_REQUESTED"

// Backfiller runs one backfill request
type Backfiller interface {
	Run(ctx context.Context, req models.BackfillRequest) (*models.BackfillResult, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer handles consuming backfill requests from Kafka.
// Requests are run one at a time in arrival order.
type Consumer struct {
	reader  messageReader
	topic   string
	service Backfiller
	logger  *log.Logger
}

// NewConsumer creates a new Kafka consumer for backfill requests
func NewConsumer(brokers []string, topic, groupID string, service Backfiller, logger *log.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return newConsumer(reader, topic, service, logger)
}

func newConsumer(reader messageReader, topic string, service Backfiller, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Consumer{
		reader:  reader,
		topic:   topic,
		service: service,
		logger:  logger,
	}
}

// Start consumes messages until ctx is cancelled. A backfill already in
// progress runs to completion before Start returns.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().Str("topic", c.topic).Msg("starting kafka consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.logger.Error().Err(err).Msg("error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error().
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Err(err).
					Msg("error processing message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var cmd models.BackfillCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal backfill command: %w", err)
	}

	if cmd.EventType != EventBackfillRequested {
		c.logger.Debug().Str("event_type", cmd.EventType).Msg("ignoring event type")
		return nil
	}

	// the offset is already committed, so shutdown waits for the run instead of cancelling it
	result, err := c.service.Run(context.WithoutCancel(ctx), cmd.BackfillRequest)
	if err != nil {
		return fmt.Errorf("backfill %s to %s failed: %w", cmd.Start, cmd.End, err)
	}

	c.logger.Info().
		Str("run_id", result.RunID).
		Str("start", cmd.Start).
		Str("end", cmd.End).
		Int("total_records", result.TotalRecords).
		Msg("backfill request completed")
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
