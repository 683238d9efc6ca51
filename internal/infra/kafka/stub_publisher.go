package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

// StubPublisher logs events instead of sending them. Used when Kafka is disabled.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// PublishFarmerRegistered logs the event.
func (p *StubPublisher) PublishFarmerRegistered(_ context.Context, event domain.FarmerRegisteredEvent) error {
	p.logger.Info("stub event published",
		zap.String("event_type", EventFarmerRegistered),
		zap.String("account_id", event.AccountID),
		zap.String("channel", string(event.Channel)),
		zap.String("locale", event.Locale),
		zap.Time("timestamp", event.OccurredAt.UTC()),
	)
	return nil
}

// PublishRegistrationClosed logs the event.
func (p *StubPublisher) PublishRegistrationClosed(_ context.Context, event domain.RegistrationClosedEvent) error {
	p.logger.Info("stub event published",
		zap.String("event_type", EventRegistrationClosed),
		zap.String("status", string(event.Status)),
		zap.String("channel", string(event.Channel)),
		zap.String("account_id", event.AccountID),
		zap.Bool("returning", event.Returning),
		zap.Duration("duration", event.Duration),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
