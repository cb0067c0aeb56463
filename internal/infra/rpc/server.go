package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"capd/internal/domain"
)

type ServerConfig struct {
	ListenAddress    string
	MaxRecvMsgSize   int
	MaxSendMsgSize   int
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	ShutdownTimeout  time.Duration
	TLS              TLSConfig
}

type Server struct {
	cfg        ServerConfig
	service    *ExchangeService
	logger     *zap.Logger
	grpcServer *grpc.Server
	health     *health.Server
	ready      chan struct{}
	addr       net.Addr
}

func NewServer(service *ExchangeService, cfg ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRecvMsgSize <= 0 {
		cfg.MaxRecvMsgSize = domain.DefaultRPCMaxRecvMsgSize
	}
	if cfg.MaxSendMsgSize <= 0 {
		cfg.MaxSendMsgSize = domain.DefaultRPCMaxSendMsgSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = domain.DefaultShutdownTimeout
	}
	return &Server{
		cfg:     cfg,
		service: service,
		logger:  logger.Named("rpc"),
		ready:   make(chan struct{}),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr, err := parseListenAddress(s.cfg.ListenAddress)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen rpc: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then drains in-flight calls.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	if s.service == nil {
		_ = lis.Close()
		return errors.New("exchange service is nil")
	}

	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			requestContextUnaryServerInterceptor(),
			recoveryUnaryServerInterceptor(s.logger),
		),
		grpc.MaxRecvMsgSize(s.cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(s.cfg.MaxSendMsgSize),
	}
	if s.cfg.KeepaliveTime > 0 {
		serverOpts = append(serverOpts, grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    s.cfg.KeepaliveTime,
			Timeout: s.cfg.KeepaliveTimeout,
		}))
	}
	if s.cfg.TLS.Enabled {
		creds, err := loadServerTLS(s.cfg.TLS)
		if err != nil {
			_ = lis.Close()
			return err
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	s.grpcServer = grpc.NewServer(serverOpts...)
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	registerExchangeServices(s.grpcServer, s.service)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.addr = lis.Addr()
	close(s.ready)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(lis)
	}()

	s.logger.Info("rpc server started", zap.String("address", lis.Addr().String()))

	select {
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Stop(stopCtx)
	case err := <-errCh:
		stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = s.Stop(stopCtx)
		return err
	}
}

// Ready is closed once the server accepts calls.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Stop drains in-flight calls, forcing a stop when ctx ends first.
func (s *Server) Stop(ctx context.Context) error {
	if s.grpcServer == nil {
		return nil
	}
	if s.health != nil {
		s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
		return ctx.Err()
	}
	s.logger.Info("rpc server stopped")
	return nil
}
