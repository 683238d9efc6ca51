package port

import "time"

// RegistrationMetrics records onboarding outcomes.
type RegistrationMetrics interface {
	ObserveTurn(channel, outcome string, elapsed time.Duration)
	IncExtraction(strategy, outcome string)
	IncValidationRejected(field, code string)
	IncDuplicateMatch(kind string)
	IncAccountCreated(channel string)
	IncSessionsClosed(status string, n int)
	IncWebhookReplay()
}
