package port

import (
	"context"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

// AccountRepository is the narrow contract to the farmer directory.
type AccountRepository interface {
	// FindByPhone returns repository.ErrNotFound when no account holds the number.
	FindByPhone(ctx context.Context, phone string) (*domain.FarmerAccount, error)
	// FindFuzzy returns accounts whose names resemble the given ones, best first.
	FindFuzzy(ctx context.Context, firstName, lastName string, limit int) ([]domain.FarmerCandidate, error)
	// Create inserts the account; a taken phone number yields repository.ErrDuplicate.
	Create(ctx context.Context, account domain.FarmerAccount) (*domain.FarmerAccount, error)
	Ping(ctx context.Context) error
}
