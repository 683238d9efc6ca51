package transportgrpc

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/transport/grpc/interceptors"
)

// RegistrationService is the health service name reported alongside the
// overall ("") status.
const RegistrationService = "onboarding.v1.Registration"

const (
	defaultCheckInterval = 10 * time.Second
	defaultCheckTimeout  = 2 * time.Second
)

// Checker exposes readiness behaviour for a backing store.
type Checker interface {
	Ping(ctx context.Context) error
}

// ServerDependencies encapsulates what the ops gRPC server needs.
type ServerDependencies struct {
	Logger        *zap.Logger
	Metrics       *grpcinterceptors.GRPCMetrics
	Tracing       *grpcinterceptors.Tracing
	Checks        map[string]Checker
	CheckInterval time.Duration
	CheckTimeout  time.Duration
}

type namedChecker struct {
	name    string
	checker Checker
}

// Server serves grpc.health.v1 mirroring HTTP readiness, plus reflection.
type Server struct {
	server   *grpc.Server
	health   *health.Server
	checks   []namedChecker
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewServer wires the health and reflection services with metrics and
// tracing attached.
func NewServer(deps ServerDependencies) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	checks := make([]namedChecker, 0, len(deps.Checks))
	for name, checker := range deps.Checks {
		if checker == nil {
			return nil, fmt.Errorf("readiness check %q is nil", name)
		}
		checks = append(checks, namedChecker{name: name, checker: checker})
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].name < checks[j].name })

	server := grpc.NewServer(
		deps.Tracing.ServerOption(),
		grpc.ChainUnaryInterceptor(deps.Metrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(deps.Metrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(RegistrationService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	// Register reflection service for tools like grpcurl.
	reflection.Register(server)

	s := &Server{
		server:   server,
		health:   healthServer,
		checks:   checks,
		interval: deps.CheckInterval,
		timeout:  deps.CheckTimeout,
		logger:   logger,
	}
	if s.interval <= 0 {
		s.interval = defaultCheckInterval
	}
	if s.timeout <= 0 {
		s.timeout = defaultCheckTimeout
	}
	return s, nil
}

// GRPC exposes the underlying server for additional registrations.
func (s *Server) GRPC() *grpc.Server {
	return s.server
}

// Refresh runs every readiness check once and publishes the result.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for _, nc := range s.checks {
		if err := nc.checker.Ping(ctx); err != nil {
			s.logger.Warn("grpc readiness check failed", zap.String("check", nc.name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(RegistrationService, status)
	return status
}

// WatchReadiness refreshes health on an interval until ctx is cancelled.
func (s *Server) WatchReadiness(ctx context.Context) {
	s.Refresh(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Serve accepts connections on lis until the server stops.
func (s *Server) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// GracefulStop flips health to NOT_SERVING and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
