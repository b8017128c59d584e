// Package grpc serves the admin gRPC endpoint: health checks and
// reflection for grpcurl.
package grpc

import (
	"context"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/narwhalmedia/narwhal-player/internal/infrastructure/grpc/interceptors"
)

// AdminServer is the admin gRPC server
type AdminServer struct {
	server  *grpc.Server
	health  *health.Server
	service string
	logger  *zap.Logger
}

// NewAdminServer creates the server with health and reflection registered.
// Every service starts as NOT_SERVING.
func NewAdminServer(service string, logger *zap.Logger) *AdminServer {
	logger = logger.Named("grpc")

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.UnaryRecoveryInterceptor(logger),
			interceptors.UnaryLoggingInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			interceptors.StreamRecoveryInterceptor(logger),
			interceptors.StreamLoggingInterceptor(logger),
		),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	s := &AdminServer{
		server:  server,
		health:  healthServer,
		service: service,
		logger:  logger,
	}
	s.SetServing(false)
	return s
}

// SetServing updates the health of both the named service and the server
// as a whole
func (s *AdminServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Serve accepts connections on lis until Stop
func (s *AdminServer) Serve(lis net.Listener) error {
	s.logger.Info("starting gRPC server", zap.String("addr", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Stop drains the server, forcing it closed when ctx ends first
func (s *AdminServer) Stop(ctx context.Context) {
	s.SetServing(false)
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.logger.Warn("shutdown timeout exceeded, forcing stop")
		s.server.Stop()
		<-stopped
	case <-stopped:
		s.logger.Info("gRPC server stopped gracefully")
	}
}
