// Package server hosts the probe API over gRPC.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/solatis/dispatchkeeper/internal/core/auth"
	"github.com/solatis/dispatchkeeper/internal/core/config"
	"github.com/solatis/dispatchkeeper/internal/core/metrics"
	"github.com/solatis/dispatchkeeper/internal/core/probe"
)

// shutdownTimeout bounds GracefulStop before in-flight probes are cut off.
const shutdownTimeout = 30 * time.Second

// GRPCServer serves the match-debug and health services.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	config *config.ProbeAPIConfig
	logger *zap.Logger
}

// NewGRPCServer wires the interceptor chain (recovery, logging, metrics,
// auth) in front of service. m and logger may be nil.
func NewGRPCServer(cfg *config.ProbeAPIConfig, service *probe.Service, authenticator *auth.Authenticator, m *metrics.Metrics, logger *zap.Logger) (*GRPCServer, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("cfg cannot be nil")
	case service == nil:
		return nil, fmt.Errorf("service cannot be nil")
	case authenticator == nil:
		return nil, fmt.Errorf("authenticator cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("grpc")

	srv := grpc.NewServer(
		grpc.MaxConcurrentStreams(uint32(cfg.MaxConnections)),
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(logger),
			loggingInterceptor(logger),
			m.UnaryInterceptor(),
			authenticator.UnaryInterceptor(),
		),
	)
	probe.RegisterMatchDebugServer(srv, service)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	for _, name := range []string{"", probe.ServiceName} {
		hs.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
	}

	return &GRPCServer{server: srv, health: hs, config: cfg, logger: logger}, nil
}

// Start listens on the configured address and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := s.config.Addr()
	lis, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener, such as a bufconn in tests.
func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Shutdown reports NOT_SERVING to health checks, then drains in-flight
// calls. Calls still running after ctx ends or shutdownTimeout are aborted.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-timer.C:
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			fields = append(fields, zap.String("peer", p.Addr.String()))
		}
		if err != nil {
			logger.Warn("probe call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("probe call", fields...)
		}
		return resp, err
	}
}

// recoveryInterceptor turns a handler panic into codes.Internal so one bad
// request cannot take the service down.
func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("probe call panicked",
					zap.String("method", info.FullMethod), zap.Any("panic", r), zap.Stack("stack"))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
