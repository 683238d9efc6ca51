package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository"
)

const (
	defaultFuzzyThreshold = 0.6
	defaultFuzzyLimit     = 3
	defaultLookupTimeout  = 3 * time.Second
)

// DuplicateDetector classifies a new registrant against the farmer directory.
type DuplicateDetector struct {
	accounts  port.AccountRepository
	threshold float64
	limit     int
	timeout   time.Duration
	metrics   port.RegistrationMetrics
	logger    *zap.Logger
}

// NewDuplicateDetector constructs a detector. threshold is the minimum
// fuzzy name similarity in [0,1] for a potential match.
func NewDuplicateDetector(accounts port.AccountRepository, threshold float64, limit int, timeout time.Duration, metrics port.RegistrationMetrics, logger *zap.Logger) *DuplicateDetector {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultFuzzyThreshold
	}
	if limit <= 0 {
		limit = defaultFuzzyLimit
	}
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuplicateDetector{accounts: accounts, threshold: threshold, limit: limit, timeout: timeout, metrics: metrics, logger: logger}
}

// FindMatches returns Confirmed when the phone number is already registered,
// Potential when names resemble existing accounts, otherwise None.
// Directory errors are reported as ErrStorageUnavailable.
func (d *DuplicateDetector) FindMatches(ctx context.Context, phone, firstName, lastName string) (domain.MatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	account, err := d.accounts.FindByPhone(ctx, phone)
	switch {
	case err == nil:
		d.metrics.IncDuplicateMatch(string(domain.MatchConfirmed))
		return domain.MatchResult{Kind: domain.MatchConfirmed, AccountID: account.ID, Account: account}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return domain.MatchResult{}, fmt.Errorf("%w: find by phone: %w", ErrStorageUnavailable, err)
	}

	return d.similar(ctx, firstName, lastName)
}

// FindSimilar runs only the name comparison. It is used when the phone was
// checked before both names were known.
func (d *DuplicateDetector) FindSimilar(ctx context.Context, firstName, lastName string) (domain.MatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.similar(ctx, firstName, lastName)
}

func (d *DuplicateDetector) similar(ctx context.Context, firstName, lastName string) (domain.MatchResult, error) {
	if firstName == "" || lastName == "" {
		d.metrics.IncDuplicateMatch(string(domain.MatchNone))
		return domain.MatchResult{Kind: domain.MatchNone}, nil
	}

	candidates, err := d.accounts.FindFuzzy(ctx, firstName, lastName, d.limit)
	if err != nil {
		return domain.MatchResult{}, fmt.Errorf("%w: fuzzy lookup: %w", ErrStorageUnavailable, err)
	}
	result := domain.MatchResult{Kind: domain.MatchNone}
	for _, c := range candidates {
		if c.Score < d.threshold {
			continue
		}
		result.Candidates = append(result.Candidates, domain.MatchCandidate{AccountID: c.Account.ID, Confidence: c.Score})
	}
	if len(result.Candidates) > 0 {
		result.Kind = domain.MatchPotential
		d.logger.Info("potential duplicate registrant",
			zap.Int("candidates", len(result.Candidates)),
			zap.Float64("best_score", result.Candidates[0].Confidence),
		)
	}
	d.metrics.IncDuplicateMatch(string(result.Kind))
	return result, nil
}
