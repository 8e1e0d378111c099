package server

import (
	"context"
	"errors"
	"net"
	"time"

	transport "github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/grpc"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/grpc/middleware"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const stopTimeout = 5 * time.Second

// GRPCServer bundles the grpc server with its health reporter.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewGRPCServer builds the internal session server with the interceptor
// chain, health service, metrics and reflection registered.
func NewGRPCServer(handler transport.SessionServer, logger *zap.Logger, opts ...grpc.ServerOption) *GRPCServer {
	opts = append(opts, grpc.UnaryInterceptor(middleware.ChainUnaryServer(logger)))
	srv := grpc.NewServer(opts...)

	transport.RegisterSessionServer(srv, handler)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(transport.SessionServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	grpc_prometheus.Register(srv)
	reflection.Register(srv)

	return &GRPCServer{srv: srv, health: hs, logger: logger}
}

// Serve blocks until ctx is cancelled or the listener fails, then stops
// gracefully, forcing the stop after a timeout.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("stopping gRPC server")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-time.After(stopTimeout):
		s.srv.Stop()
	case <-done:
	}
	s.logger.Info("gRPC server stopped")
	return nil
}

// ListenAndServe opens addr and serves on it.
func (s *GRPCServer) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}
