package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository"
)

// Completion describes the account a finished session resolved to.
type Completion struct {
	Account *domain.FarmerAccount
	// Created is false when an earlier attempt already created the account.
	Created bool
}

// CompletionHandler turns a fully collected session into a farmer account.
type CompletionHandler struct {
	accounts port.AccountRepository
	events   port.EventPublisher
	timeout  time.Duration
	metrics  port.RegistrationMetrics
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewCompletionHandler constructs the handler. timeout bounds each farmer
// directory call.
func NewCompletionHandler(accounts port.AccountRepository, events port.EventPublisher, timeout time.Duration, metrics port.RegistrationMetrics, logger *zap.Logger) *CompletionHandler {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	if events == nil {
		events = noopPublisher{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionHandler{
		accounts: accounts,
		events:   events,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// WithClock overrides the handler clock, mainly for tests.
func (h *CompletionHandler) WithClock(now func() time.Time) *CompletionHandler {
	if now != nil {
		h.now = now
	}
	return h
}

// Complete creates the account for session, closes the session as completed
// and purges its personal and secret values. Repeating it for a phone that
// already has an account resolves to that account instead of failing.
// On error the session is not modified.
func (h *CompletionHandler) Complete(ctx context.Context, session *domain.RegistrationSession) (*Completion, error) {
	if session.Terminal() {
		return nil, ErrSessionTerminal
	}
	if missing := session.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("session %s is missing %v", session.Key, missing)
	}
	now := h.now()
	candidate := domain.FarmerAccount{
		ID:           h.newID(),
		FirstName:    session.Collected[domain.FieldFirstName],
		LastName:     session.Collected[domain.FieldLastName],
		PhoneNumber:  session.Collected[domain.FieldPhoneNumber],
		PasswordHash: session.PasswordHash,
		CreatedAt:    now,
	}

	completion, err := h.create(ctx, candidate)
	if errors.Is(err, ErrDuplicateAccount) {
		existing, lookupErr := h.findExisting(ctx, candidate.PhoneNumber)
		if lookupErr != nil {
			return nil, fmt.Errorf("%w: resolve existing account: %w", ErrStorageUnavailable, lookupErr)
		}
		h.logger.Info("account already existed for completed session", zap.String("account_id", existing.ID))
		completion, err = &Completion{Account: existing}, nil
	}
	if err != nil {
		return nil, err
	}

	session.AccountID = completion.Account.ID
	session.Close(domain.SessionStatusCompleted, now)
	session.Anonymize()

	if completion.Created {
		h.metrics.IncAccountCreated(string(session.Channel))
		event := domain.FarmerRegisteredEvent{
			AccountID:  completion.Account.ID,
			Channel:    session.Channel,
			Locale:     session.Locale,
			OccurredAt: now,
		}
		if err := h.events.PublishFarmerRegistered(ctx, event); err != nil {
			h.logger.Warn("failed to publish farmer registered event", zap.String("account_id", completion.Account.ID), zap.Error(err))
		}
	}
	return completion, nil
}

func (h *CompletionHandler) findExisting(ctx context.Context, phone string) (*domain.FarmerAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.accounts.FindByPhone(ctx, phone)
}

func (h *CompletionHandler) create(ctx context.Context, candidate domain.FarmerAccount) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	created, err := h.accounts.Create(ctx, candidate)
	switch {
	case err == nil:
		return &Completion{Account: created, Created: true}, nil
	case errors.Is(err, repository.ErrDuplicate):
		return nil, fmt.Errorf("%w: %w", ErrDuplicateAccount, err)
	default:
		return nil, fmt.Errorf("%w: create account: %w", ErrStorageUnavailable, err)
	}
}
