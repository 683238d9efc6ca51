package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/config"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/llm"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/security"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/usecase"
)

// ControllerDeps are the pieces NewController cannot derive from config.
// Events, Metrics and Tracer are optional.
type ControllerDeps struct {
	Farmers  port.AccountRepository
	Sessions port.SessionStore
	Events   port.EventPublisher
	Metrics  port.RegistrationMetrics
	Tracer   trace.Tracer
	Locks    *usecase.KeyedMutex
	Leases   port.SessionLease
	Logger   *zap.Logger
}

// NewController assembles the registration controller from config.
func NewController(ctx context.Context, cfg *config.AppConfig, deps ControllerDeps) (*usecase.ConversationController, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	detector, err := usecase.NewLanguageDetector(cfg.Registration.SupportedLocales, cfg.Registration.FallbackLocale)
	if err != nil {
		return nil, fmt.Errorf("init language detector: %w", err)
	}

	model, err := newLanguageModel(ctx, cfg.LLM, log)
	if err != nil {
		return nil, err
	}

	controller, err := usecase.NewConversationController(usecase.ConversationDeps{
		Sessions:   deps.Sessions,
		Extractor:  usecase.NewExtractionAdapter(model, nil, cfg.LLM.Timeout, deps.Metrics, log),
		Validator:  usecase.NewFieldValidator(security.NewPasswordPolicy()),
		Detector:   detector,
		Duplicates: usecase.NewDuplicateDetector(deps.Farmers, cfg.Registration.FuzzyThreshold, cfg.Registration.FuzzyLimit, cfg.Identity.Timeout, deps.Metrics, log),
		Completion: usecase.NewCompletionHandler(deps.Farmers, deps.Events, cfg.Identity.Timeout, deps.Metrics, log),
		Hasher:     hasher,
		Replies:    usecase.NewReplies(cfg.Registration.FallbackLocale),
		Locks:      deps.Locks,
		Leases:     deps.Leases,
		Events:     deps.Events,
		Metrics:    deps.Metrics,
		Logger:     log,
		Tracer:     deps.Tracer,
	}, usecase.ConversationConfig{
		DigressionThreshold: cfg.Registration.DigressionThreshold,
		HistoryLimit:        cfg.LLM.HistoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("init conversation controller: %w", err)
	}
	return controller, nil
}

// newLanguageModel returns nil when extraction runs on rules only.
func newLanguageModel(ctx context.Context, cfg config.LLMSettings, log *zap.Logger) (port.LanguageModel, error) {
	switch cfg.Provider {
	case "gemini":
		model, err := llm.NewGeminiModel(ctx, llm.GeminiConfig{
			APIKey:          cfg.APIKey,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
			HistoryLimit:    cfg.HistoryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini: %w", err)
		}
		log.Info("language model extraction enabled", zap.String("model", model.Name()))
		return model, nil
	default:
		log.Info("language model disabled, extraction uses rules only")
		return nil, nil
	}
}
