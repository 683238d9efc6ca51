package port

import (
	"context"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

// LanguageModel extracts field values and a conversational reply from a turn.
type LanguageModel interface {
	Name() string
	Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error)
}
