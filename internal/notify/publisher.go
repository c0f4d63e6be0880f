// Package notify publishes message lifecycle events to Kafka for the
// notification service (push/email fan-out happens downstream, outside
// this repo). Fire-and-forget: a failed publish is logged by the caller
// and never blocks the send path.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/skillswap/realtime/internal/message"
)

// DefaultTopic is the Kafka topic for message-created events.
const DefaultTopic = "message-created"

// Event is the payload written to Kafka for each stored message.
type Event struct {
	MessageID  string    `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Type       string    `json:"message_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// Publisher writes message-created events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Kafka producer for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Publisher{writer: writer}
}

// MessageCreated publishes one event for a stored message, keyed by
// receiver so per-user ordering is preserved within a partition.
func (p *Publisher) MessageCreated(ctx context.Context, m *message.Message) error {
	data, err := json.Marshal(Event{
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Type:       m.Type,
		CreatedAt:  m.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.ReceiverID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
