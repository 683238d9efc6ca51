package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/config"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/transport/http/handlers"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/transport/http/middleware"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config       *config.AppConfig
	Logger       *zap.Logger
	Conversation handlers.Conversation
	Dedup        port.MessageDeduplicator
	Metrics      port.RegistrationMetrics
	HTTPMetrics  *middleware.HTTPMetrics
	RateLimiter  *middleware.RateLimiter
	Gatherer     prometheus.Gatherer
	Directory    Checker
	Sessions     Checker
}

// Checker exposes readiness behaviour for a backing store.
type Checker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	if len(deps.Config.App.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Directory != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("farmer_directory", deps.Directory.Ping))
	}
	if deps.Sessions != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("session_store", deps.Sessions.Ping))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(metricsHandler(deps.Gatherer)))

	if deps.Conversation != nil {
		api := r.Group("/api/v1")

		registration := handlers.NewRegistrationHandler(deps.Conversation, deps.Logger)
		registration.RegisterRoutes(api.Group("/registration"), buildTurnMiddlewares(deps)...)

		if deps.Dedup != nil {
			webhook := handlers.NewWebhookHandler(deps.Conversation, deps.Dedup, deps.Metrics, handlers.WebhookOptions{
				Provider:    deps.Config.Registration.WebhookProvider,
				DedupTTL:    deps.Config.Registration.WebhookDedupTTL,
				VerifyToken: deps.Config.Registration.WebhookVerifyToken,
			}, deps.Logger)
			webhook.RegisterRoutes(api.Group("/webhooks"), buildWebhookMiddlewares(deps, webhook.Throttled)...)
		}
	}

	if deps.Config.App.Env != "production" {
		handlers.RegisterSwagger(r)
	}

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func buildTurnMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return buildRateLimit(deps, "registration_turn_ip", deps.Config.RateLimit.TurnMaxAttempts, middleware.ClientIPIdentifier(), nil)
}

func buildWebhookMiddlewares(deps Dependencies, throttled middleware.LimitedResponder) []gin.HandlerFunc {
	return buildRateLimit(deps, "webhook_sender", deps.Config.RateLimit.WebhookMaxAttempts, middleware.SenderIdentifier(), throttled)
}

func buildRateLimit(deps Dependencies, name string, limit int, identifier middleware.IdentifierFunc, responder middleware.LimitedResponder) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: identifier,
		Responder:  responder,
	}
	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
