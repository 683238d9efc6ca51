package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types, prefixed with the topic prefix on the wire.
const (
	EventFarmerRegistered   = "farmer.registered"
	EventRegistrationClosed = "registration.closed"
)

// EventPublisher implements port.EventPublisher on Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventType, key string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}
	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
			{Key: []byte("schema_version"), Value: []byte(schemaVersion)},
		},
	}
	if key != "" {
		message.Key = sarama.StringEncoder(key)
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: message})

	return p.producer.Send(ctx, message)
}

// headerCarrier lets the W3C propagator write traceparent into record headers.
type headerCarrier struct {
	msg *sarama.ProducerMessage
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if string(h.Key) == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, string(h.Key))
	}
	return keys
}

// PublishFarmerRegistered announces a newly created farmer account. The
// payload carries the account id only; consumers look the farmer up.
func (p *EventPublisher) PublishFarmerRegistered(ctx context.Context, event domain.FarmerRegisteredEvent) error {
	payload := struct {
		AccountID    string    `json:"account_id"`
		Channel      string    `json:"channel"`
		Locale       string    `json:"locale"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		AccountID:    event.AccountID,
		Channel:      string(event.Channel),
		Locale:       event.Locale,
		RegisteredAt: event.OccurredAt.UTC(),
	}
	return p.publish(ctx, EventFarmerRegistered, event.AccountID, event.OccurredAt, payload)
}

// PublishRegistrationClosed announces a session reaching a terminal status.
func (p *EventPublisher) PublishRegistrationClosed(ctx context.Context, event domain.RegistrationClosedEvent) error {
	payload := struct {
		Channel         string    `json:"channel"`
		Status          string    `json:"status"`
		AccountID       string    `json:"account_id,omitempty"`
		Returning       bool      `json:"returning"`
		DurationSeconds float64   `json:"duration_seconds"`
		ClosedAt        time.Time `json:"closed_at"`
	}{
		Channel:         string(event.Channel),
		Status:          string(event.Status),
		AccountID:       event.AccountID,
		Returning:       event.Returning,
		DurationSeconds: event.Duration.Seconds(),
		ClosedAt:        event.OccurredAt.UTC(),
	}
	return p.publish(ctx, EventRegistrationClosed, event.AccountID, event.OccurredAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
