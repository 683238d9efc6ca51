package port

import (
	"context"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

// EventPublisher publishes onboarding events to the message bus.
type EventPublisher interface {
	PublishFarmerRegistered(ctx context.Context, event domain.FarmerRegisteredEvent) error
	PublishRegistrationClosed(ctx context.Context, event domain.RegistrationClosedEvent) error
}
