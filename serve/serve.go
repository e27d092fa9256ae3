// Package serve runs the gRPC health service of a designer instance.
//
// A Server periodically runs the configured health checks and reports the
// combined result through the standard grpc.health.v1 service, both for
// the empty service name and for ServiceName.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cesmii/profiledesigner/health"
)

// ServiceName is the health service name reported besides "".
const ServiceName = "profiledesigner"

// Config holds serve configuration.
type Config struct {
	// Port is the TCP port. Zero picks a free port. Default: 50051.
	Port int

	// CheckInterval is the time between health check runs. Default: 15s.
	CheckInterval time.Duration

	// GracefulTimeout bounds graceful shutdown. Default: 30s.
	GracefulTimeout time.Duration

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

// DefaultConfig returns the default serve configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:            50051,
		CheckInterval:   15 * time.Second,
		GracefulTimeout: 30 * time.Second,
	}
}

// Server wraps a gRPC server exposing health checks.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	config       *Config
	healthServer *grpchealth.Server
	checks       map[string]health.Check
	logger       *slog.Logger

	mu   sync.RWMutex
	last health.Status
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCheck adds a named health check.
func WithCheck(name string, check health.Check) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// NewServer listens on the configured port and registers the health
// service. Status is NOT_SERVING until the first check run.
func NewServer(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 15 * time.Second
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = 30 * time.Second
	}

	var grpcOpts []grpc.ServerOption
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		grpcOpts = append(grpcOpts, grpc.Creds(creds))
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", cfg.Port, err)
	}

	s := &Server{
		grpcServer:   grpc.NewServer(grpcOpts...),
		listener:     listener,
		config:       cfg,
		healthServer: grpchealth.NewServer(),
		checks:       make(map[string]health.Check),
		logger:       slog.Default(),
		last:         health.Unhealthy("not checked yet", nil),
	}
	for _, opt := range opts {
		opt(s)
	}

	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)
	s.setServing(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return s, nil
}

// GRPCServer returns the underlying gRPC server.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// Status returns the result of the latest check run.
func (s *Server) Status() health.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Check runs every health check once and updates the served status.
// Degraded counts as serving.
func (s *Server) Check(ctx context.Context) health.Status {
	overall, results := health.Run(ctx, s.checks)
	for name, r := range results {
		if !r.IsHealthy() {
			s.logger.Warn("health check not healthy", "check", name, "status", r.Status, "message", r.Message)
		}
	}

	s.mu.Lock()
	changed := s.last.Status != overall.Status
	s.last = overall
	s.mu.Unlock()

	if overall.IsUnhealthy() {
		s.setServing(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	} else {
		s.setServing(grpc_health_v1.HealthCheckResponse_SERVING)
	}
	if changed {
		s.logger.Info("health status changed", "status", overall.Status, "message", overall.Message)
	}
	return overall
}

// Serve runs checks and serves until ctx is canceled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	s.Check(ctx)
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.logger.Info("health server listening", "port", s.Port())
	for {
		select {
		case <-ctx.Done():
			s.GracefulStop()
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Stop immediately stops the gRPC server.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// GracefulStop waits for active RPCs up to the configured timeout, then
// stops the server.
func (s *Server) GracefulStop() {
	s.healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.GracefulTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("health server stopped")
	case <-ctx.Done():
		s.logger.Warn("graceful shutdown timeout, forcing stop")
		s.grpcServer.Stop()
	}
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Port
}

func (s *Server) setServing(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.healthServer.SetServingStatus("", status)
	s.healthServer.SetServingStatus(ServiceName, status)
}
