package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"flower-storefront/internal/models"
)

// EventTypeOrderSubmitted is published after every checkout attempt
const EventTypeOrderSubmitted = "order.submitted"

// OrderEvent describes one checkout attempt for downstream consumers
type OrderEvent struct {
	EventID    string             `json:"event_id"`
	EventType  string             `json:"event_type"`
	UserID     string             `json:"user_id"`
	TelegramID int64              `json:"telegram_id,omitempty"`
	Items      []models.OrderItem `json:"items"`
	Total      int64              `json:"total"`
	Submitted  bool               `json:"submitted"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// NewOrderEvent builds the event for a checkout snapshot
func NewOrderEvent(identity models.UserIdentity, snapshot models.OrderSnapshot) OrderEvent {
	return OrderEvent{
		EventID:    uuid.NewString(),
		EventType:  EventTypeOrderSubmitted,
		UserID:     identity.ID,
		TelegramID: identity.TelegramID,
		Items:      snapshot.Items,
		Total:      snapshot.Total,
		Submitted:  snapshot.Submitted,
		OccurredAt: snapshot.CreatedAt,
	}
}

// Publisher delivers order events
type Publisher interface {
	PublishOrder(ctx context.Context, event OrderEvent) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishOrder(ctx context.Context, event OrderEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

// messageWriter is the subset of *kafka.Writer used here
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events to a Kafka topic, keyed by user id
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher for topic on brokers
func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           5 * time.Second,
	}
	slog.Info("Kafka order publisher configured", "topic", topic, "brokers", brokers)
	return &KafkaPublisher{writer: w, topic: topic}
}

// PublishOrder writes one event; the key keeps a user's events in order
func (p *KafkaPublisher) PublishOrder(ctx context.Context, event OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish order event to %s: %w", p.topic, err)
	}

	slog.Debug("Order event published", "topic", p.topic, "event_id", event.EventID, "user_id", event.UserID)
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
