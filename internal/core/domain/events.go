package domain

import "time"

// FarmerRegisteredEvent is emitted once per created farmer account.
type FarmerRegisteredEvent struct {
	AccountID  string
	Channel    Channel
	Locale     string
	OccurredAt time.Time
}

// RegistrationClosedEvent is emitted when a session reaches a terminal status.
type RegistrationClosedEvent struct {
	Channel    Channel
	Status     SessionStatus
	AccountID  string
	Returning  bool
	Duration   time.Duration
	OccurredAt time.Time
}
