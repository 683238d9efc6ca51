package usecase

import (
	"context"
	"time"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

type noopMetrics struct{}

func (noopMetrics) ObserveTurn(string, string, time.Duration) {}
func (noopMetrics) IncExtraction(string, string)              {}
func (noopMetrics) IncValidationRejected(string, string)      {}
func (noopMetrics) IncDuplicateMatch(string)                  {}
func (noopMetrics) IncAccountCreated(string)                  {}
func (noopMetrics) IncSessionsClosed(string, int)             {}
func (noopMetrics) IncWebhookReplay()                         {}

type noopPublisher struct{}

func (noopPublisher) PublishFarmerRegistered(context.Context, domain.FarmerRegisteredEvent) error {
	return nil
}

func (noopPublisher) PublishRegistrationClosed(context.Context, domain.RegistrationClosedEvent) error {
	return nil
}

var (
	_ port.RegistrationMetrics = noopMetrics{}
	_ port.EventPublisher      = noopPublisher{}
)
