// Package server exposes the standard gRPC health service for a running
// vibesurf process. Each registered check maps to a health service name;
// the empty name aggregates all of them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
)

// CheckFunc returns nil while the component is healthy.
type CheckFunc func(ctx context.Context) error

// Server serves grpc.health.v1 with statuses refreshed from checks.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger

	mu     sync.Mutex
	checks map[string]CheckFunc
}

// Option configures a Server.
type Option func(*Server)

// WithInterval sets how often checks run while serving.
func WithInterval(d time.Duration) Option {
	return func(s *Server) {
		s.interval = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a health server. Requests are traced through otelgrpc.
func New(opts ...Option) *Server {
	s := &Server{
		interval: 5 * time.Second,
		timeout:  2 * time.Second,
		logger:   logging.Nop(),
		checks:   make(map[string]CheckFunc),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.grpc = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// AddCheck registers a check under a service name. The service reports
// NOT_SERVING until the first refresh.
func (s *Server) AddCheck(service string, fn CheckFunc) {
	s.mu.Lock()
	s.checks[service] = fn
	s.mu.Unlock()
	s.health.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Refresh runs every check once and publishes the results. It returns the
// joined check errors.
func (s *Server) Refresh(ctx context.Context) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.Unlock()
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := checks[name](cctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			s.logger.Warnf("health check %s failed: %v", name, err)
		}
		s.health.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if len(errs) > 0 {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)
	return errors.Join(errs...)
}

// Serve refreshes checks on the configured interval and serves on lis
// until ctx is canceled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	_ = s.Refresh(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			case <-ticker.C:
				_ = s.Refresh(ctx)
			}
		}
	}()

	s.logger.Infof("health server listening on %s", lis.Addr())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve health: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}
