package api

import (
	"context"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/miradorstack/mirador-diagnose/internal/config"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

// Server owns the gRPC listener for the IncidentEngine service together with
// its health and reflection endpoints.
type Server struct {
	cfg      config.ServerConfig
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewServer listens on cfg.Address and registers service on a new gRPC server.
// Extra options are appended after the built-in interceptors.
func NewServer(cfg config.ServerConfig, service IncidentEngineServer, logger *zap.Logger, opts ...grpc.ServerOption) (*Server, error) {
	logger = utils.OrNop(logger)
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	grpcServer := grpc.NewServer(append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpc_prometheus.UnaryServerInterceptor,
			recoveryInterceptor(logger),
			loggingInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}, opts...)...)

	RegisterIncidentEngineServer(grpcServer, service)
	grpc_prometheus.Register(grpcServer)

	healthSrv := health.NewServer()
	for _, name := range []string{"", IncidentEngineServiceName} {
		healthSrv.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	return &Server{cfg: cfg, grpc: grpcServer, health: healthSrv, listener: lis, logger: logger}, nil
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	return s.grpc.Serve(s.listener)
}

// Shutdown marks the server NOT_SERVING and drains in-flight calls. Calls still
// running when ctx expires are cancelled.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, forcing shutdown")
		s.grpc.Stop()
	}
}

// Address is the bound listener address.
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// GracefulTimeout is how long Shutdown should be given to drain.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}

func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in grpc handler", zap.String("method", info.FullMethod), zap.Any("panic", r))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
