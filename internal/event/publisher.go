package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	UserRegistered = "user.registered"
	UserVerified   = "user.verified"
	PasswordReset  = "password.reset"
	DeviceSignedIn = "device.signed_in"
	DeviceRevoked  = "device.revoked"
)

// Event is an audit record of a state change in the auth core. It never carries
// secrets such as codes, tokens or hashes.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	UserID     uuid.UUID         `json:"userId"`
	OccurredAt time.Time         `json:"occurredAt"`
	Data       map[string]string `json:"data,omitempty"`
}

func New(eventType string, userID uuid.UUID, data map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher returns an async publisher. WriteMessages only enqueues, so
// an unreachable broker never adds latency to sign-in; delivery failures are
// reported through the writer's Completion callback.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{topic: topic, logger: logger}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

func (p *KafkaPublisher) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, msg := range msgs {
		p.logger.Warn("event delivery failed",
			slog.String("topic", p.topic),
			slog.String("event_type", headerValue(msg, "event_type")),
			slog.String("error", err.Error()),
		)
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Publish keys messages by user id so one user's events stay ordered within a
// partition.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.UserID.String()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish event to %s: %w", p.topic, err)
	}

	p.logger.DebugContext(ctx, "event queued",
		slog.String("topic", p.topic),
		slog.String("event_type", e.Type),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
