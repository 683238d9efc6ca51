package usecase

import (
	"errors"
	"fmt"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

var (
	// ErrStorageUnavailable indicates the session store or farmer directory could not be reached.
	// The turn is not applied and the session is left as it was.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrExtractionUnavailable indicates the language model failed or timed out.
	// It never reaches callers of HandleTurn; the rule extractor takes over.
	ErrExtractionUnavailable = errors.New("extraction unavailable")
	// ErrDuplicateAccount indicates the phone number already belongs to an account.
	ErrDuplicateAccount = errors.New("duplicate account")
	// ErrSessionTerminal indicates the session accepts no further field updates.
	ErrSessionTerminal = errors.New("session terminal")
	// ErrInvalidMessage indicates an inbound message without a session key or channel.
	ErrInvalidMessage = errors.New("invalid inbound message")
)

// ValidationError is a field rejection. Code is stable and drives the reply;
// Reason is a human readable explanation for logs.
type ValidationError struct {
	Field  domain.Field
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
