package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/bwibbu-backfill/internal/models"
)

// EventBackfillCompleted is emitted once a backfill commits
const EventBackfillCompleted = "BACKFILL_COMPLETED"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing backfill events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// PublishBackfillCompleted publishes a backfill completed event keyed by run id
func (p *Producer) PublishBackfillCompleted(ctx context.Context, req models.BackfillRequest, result *models.BackfillResult) error {
	event := models.BackfillEvent{
		EventType:      EventBackfillCompleted,
		RunID:          result.RunID,
		Start:          req.Start,
		End:            req.End,
		UseLocalDB:     req.UseLocalDB,
		WriteMode:      result.WriteMode,
		TotalRecords:   result.TotalRecords,
		AvailableDates: result.AvailableDates,
		DailyStats:     result.DailyStats,
		Timestamp:      p.now().UTC(),
	}
	return p.publish(ctx, result.RunID, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.BackfillEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
