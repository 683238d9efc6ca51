package domain

import (
	"strings"
	"time"
)

// Channel identifies where a conversation arrives from.
type Channel string

const (
	ChannelWeb       Channel = "web"
	ChannelMessaging Channel = "messaging"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelWeb || c == ChannelMessaging
}

// SessionStatus enumerates registration session lifecycle states.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusExpired   SessionStatus = "expired"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// Terminal reports whether no further field mutation is accepted.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusExpired || s == SessionStatusAbandoned
}

// Field names a required registration slot.
type Field string

const (
	FieldFirstName   Field = "first_name"
	FieldLastName    Field = "last_name"
	FieldPhoneNumber Field = "phone_number"
	FieldPassword    Field = "password"
)

// RequiredFields lists the slots in the order they are asked for.
var RequiredFields = []Field{FieldFirstName, FieldLastName, FieldPhoneNumber, FieldPassword}

// ParseField maps a wire name to a Field.
func ParseField(name string) (Field, bool) {
	f := Field(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range RequiredFields {
		if f == known {
			return f, true
		}
	}
	return "", false
}

// ConversationState is the controller state derived from a session.
type ConversationState string

const (
	StateCollecting         ConversationState = "collecting"
	StateConfirmingPassword ConversationState = "confirming_password"
	StateDuplicateCheck     ConversationState = "duplicate_check"
	StateCompleted          ConversationState = "completed"
	StateExpired            ConversationState = "expired"
	StateAbandoned          ConversationState = "abandoned"
)

// Speaker roles recorded in the session history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RedactedText replaces history entries that carried a secret.
const RedactedText = "[redacted]"

// HistoryEntry is one bounded, non-secret line of conversation.
type HistoryEntry struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// RegistrationSession holds the state of one onboarding conversation.
//
// The accepted password is kept only as PasswordHash; a candidate awaiting
// confirmation is kept only as PendingPasswordHash. Plaintext never lands here.
type RegistrationSession struct {
	Key                  string           `json:"session_key"`
	Channel              Channel          `json:"channel"`
	Locale               string           `json:"locale"`
	Collected            map[Field]string `json:"collected"`
	PasswordHash         string           `json:"password_hash,omitempty"`
	PendingPasswordHash  string           `json:"pending_password_hash,omitempty"`
	DigressionCount      int              `json:"digression_count"`
	AttemptCounts        map[Field]int    `json:"attempt_counts"`
	Status               SessionStatus    `json:"status"`
	AccountID            string           `json:"account_id,omitempty"`
	Returning            bool             `json:"returning,omitempty"`
	PotentialNoticeShown bool             `json:"potential_notice_shown,omitempty"`
	History              []HistoryEntry   `json:"history,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	LastActivityAt       time.Time        `json:"last_activity_at"`
	ClosedAt             *time.Time       `json:"closed_at,omitempty"`
}

// NewRegistrationSession returns an active session with nothing collected.
func NewRegistrationSession(key string, channel Channel, locale string, now time.Time) *RegistrationSession {
	return &RegistrationSession{
		Key:            key,
		Channel:        channel,
		Locale:         locale,
		Collected:      make(map[Field]string),
		AttemptCounts:  make(map[Field]int),
		Status:         SessionStatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Has reports whether a field has an accepted value.
func (s *RegistrationSession) Has(f Field) bool {
	if f == FieldPassword {
		return s.PasswordHash != ""
	}
	_, ok := s.Collected[f]
	return ok
}

// Missing returns the outstanding fields in asking order.
func (s *RegistrationSession) Missing() []Field {
	missing := make([]Field, 0, len(RequiredFields))
	for _, f := range RequiredFields {
		if !s.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// NextMissing returns the first outstanding field, if any.
func (s *RegistrationSession) NextMissing() (Field, bool) {
	for _, f := range RequiredFields {
		if !s.Has(f) {
			return f, true
		}
	}
	return "", false
}

// PasswordConfirmationPending is true while a candidate awaits its repeat.
func (s *RegistrationSession) PasswordConfirmationPending() bool {
	return s.PendingPasswordHash != ""
}

// State derives the controller state.
func (s *RegistrationSession) State() ConversationState {
	switch s.Status {
	case SessionStatusCompleted:
		return StateCompleted
	case SessionStatusExpired:
		return StateExpired
	case SessionStatusAbandoned:
		return StateAbandoned
	}
	if s.PasswordConfirmationPending() {
		return StateConfirmingPassword
	}
	return StateCollecting
}

// Terminal reports whether the session accepts no further turns.
func (s *RegistrationSession) Terminal() bool {
	return s.Status.Terminal()
}

// Touch records activity.
func (s *RegistrationSession) Touch(now time.Time) {
	s.LastActivityAt = now
}

// IdleSince reports whether the session has been idle for at least window at now.
func (s *RegistrationSession) IdleSince(now time.Time, window time.Duration) bool {
	return !s.LastActivityAt.After(now.Add(-window))
}

// AppendHistory adds an entry and keeps at most limit entries.
func (s *RegistrationSession) AppendHistory(role, text string, at time.Time, limit int) {
	s.History = append(s.History, HistoryEntry{Role: role, Text: text, At: at})
	if limit > 0 && len(s.History) > limit {
		s.History = append([]HistoryEntry(nil), s.History[len(s.History)-limit:]...)
	}
}

// Close moves an active session into a terminal status.
func (s *RegistrationSession) Close(status SessionStatus, now time.Time) bool {
	if s.Status != SessionStatusActive || !status.Terminal() {
		return false
	}
	s.Status = status
	closed := now
	s.ClosedAt = &closed
	s.LastActivityAt = now
	return true
}

// Anonymize drops every personal and secret value, leaving only bookkeeping.
func (s *RegistrationSession) Anonymize() {
	s.Collected = make(map[Field]string)
	s.PasswordHash = ""
	s.PendingPasswordHash = ""
	s.History = nil
}

// Summary returns the non-secret collected values for display.
func (s *RegistrationSession) Summary() map[string]string {
	out := make(map[string]string, len(s.Collected)+1)
	for f, v := range s.Collected {
		out[string(f)] = v
	}
	if s.PasswordHash != "" {
		out[string(FieldPassword)] = "set"
	}
	return out
}

// Clone returns a deep copy safe to mutate independently.
func (s *RegistrationSession) Clone() *RegistrationSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Collected = make(map[Field]string, len(s.Collected))
	for k, v := range s.Collected {
		c.Collected[k] = v
	}
	c.AttemptCounts = make(map[Field]int, len(s.AttemptCounts))
	for k, v := range s.AttemptCounts {
		c.AttemptCounts[k] = v
	}
	if s.History != nil {
		c.History = append([]HistoryEntry(nil), s.History...)
	}
	if s.ClosedAt != nil {
		closed := *s.ClosedAt
		c.ClosedAt = &closed
	}
	return &c
}
