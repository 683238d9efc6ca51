package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/config"
	kafkainfra "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/kafka"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/telemetry"
	transportgrpc "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/transport/grpc"
	grpcinterceptors "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/transport/grpc/interceptors"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/transport/http/middleware"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/transport/http/routes"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/usecase"
)

const tracerName = "github.com/Poljopodrska/ava-olo-agricultural-core-sub000"

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	backends   *Backends
	producer   *kafkainfra.Producer
	tracer     *telemetry.TracerProvider
	sweeper    *usecase.SessionSweeper
	grpcServer *transportgrpc.Server
	grpcAddr   string
}

// New wires every component from cfg. The caller owns log.
func New(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*Application, error) {
	a := &Application{cfg: cfg, logger: log}

	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.tracer = tp
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := telemetry.NewRegistrationMetrics(telemetry.RegistrationMetricsOptions{Registerer: registry})
	if err != nil {
		a.cleanup(ctx)
		return nil, fmt.Errorf("init registration metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry, Namespace: "onboarding"})
	if err != nil {
		a.cleanup(ctx)
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	backends, err := OpenBackends(ctx, cfg, log)
	if err != nil {
		a.cleanup(ctx)
		return nil, err
	}
	a.backends = backends

	events := a.newEventPublisher()
	if a.producer != nil {
		if err := registry.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "events",
			Name:      "delivery_failures_total",
			Help:      "Registration events the brokers refused after retries.",
		}, func() float64 { return float64(a.producer.Failures()) })); err != nil {
			a.cleanup(ctx)
			return nil, fmt.Errorf("init event metrics: %w", err)
		}
	}

	controller, err := NewController(ctx, cfg, ControllerDeps{
		Farmers:  backends.Farmers,
		Sessions: backends.Sessions,
		Events:   events,
		Metrics:  metrics,
		Tracer:   otel.Tracer(tracerName),
		Locks:    usecase.NewKeyedMutex(),
		Leases:   backends.Leases,
		Logger:   log,
	})
	if err != nil {
		a.cleanup(ctx)
		return nil, err
	}

	a.sweeper = usecase.NewSessionSweeper(backends.Sessions, controller.Locks(),
		cfg.Registration.IdleWindow, cfg.Registration.SweepInterval, events, metrics, log).
		WithLeases(backends.Leases)

	var rateLimiter *middleware.RateLimiter
	if backends.RateLimits != nil {
		rateLimiter = middleware.NewRateLimiter(backends.RateLimits, log)
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:       cfg,
		Logger:       log,
		Conversation: controller,
		Dedup:        backends.Dedup,
		Metrics:      metrics,
		HTTPMetrics:  httpMetrics,
		RateLimiter:  rateLimiter,
		Gatherer:     registry,
		Directory:    backends.Farmers,
		Sessions:     backends.Sessions,
	})

	if cfg.GRPC.Enabled {
		grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: registry})
		if err != nil {
			a.cleanup(ctx)
			return nil, fmt.Errorf("init grpc metrics: %w", err)
		}
		a.grpcServer, err = transportgrpc.NewServer(transportgrpc.ServerDependencies{
			Logger:  log,
			Metrics: grpcMetrics,
			Tracing: grpcinterceptors.NewTracing(grpcinterceptors.TracingOptions{
				TracerProvider: otel.GetTracerProvider(),
				Propagators:    otel.GetTextMapPropagator(),
			}),
			Checks: map[string]transportgrpc.Checker{
				"farmer_directory": backends.Farmers,
				"session_store":    backends.Sessions,
			},
		})
		if err != nil {
			a.cleanup(ctx)
			return nil, fmt.Errorf("init grpc server: %w", err)
		}
		a.grpcAddr = fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	}

	return a, nil
}

func (a *Application) newEventPublisher() port.EventPublisher {
	events, producer := OpenEventPublisher(a.cfg, a.logger)
	a.producer = producer
	return events
}

// OpenEventPublisher returns the Kafka publisher and its producer, or a
// logging stub and a nil producer when Kafka is off or unreachable. The
// caller closes the producer.
func OpenEventPublisher(cfg *config.AppConfig, log *zap.Logger) (port.EventPublisher, *kafkainfra.Producer) {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log), nil
	}
	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log), nil
	}
	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App, log), producer
}

// Handler exposes the HTTP engine.
func (a *Application) Handler() http.Handler {
	return a.engine
}

// Run serves HTTP and gRPC and runs the session sweeper until ctx is
// cancelled or a server fails.
func (a *Application) Run(ctx context.Context) error {
	defer a.cleanup(context.Background())

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.Run(runCtx)
	}()

	errCh := make(chan error, 2)

	if a.grpcServer != nil {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.grpcServer.WatchReadiness(runCtx)
		}()
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		go func() {
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
		defer a.grpcServer.GracefulStop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting farmer onboarding API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *Application) cleanup(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("failed to close kafka producer", zap.Error(err))
		}
		a.producer = nil
	}
	if a.backends != nil {
		if err := a.backends.Close(); err != nil {
			a.logger.Warn("failed to close backends", zap.Error(err))
		}
		a.backends = nil
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to shutdown tracer provider", zap.Error(err))
		}
		a.tracer = nil
	}
}
