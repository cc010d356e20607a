// Package grpc exposes the account service over gRPC. Messages are plain Go
// structs carried by a JSON codec; clients select it with
// grpc.CallContentSubtype(CodecName).
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/observability"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

type Server struct {
	address  string
	accounts *services.AccountService
	gate     *services.Gate
	logger   logging.Logger
	reporter observability.Reporter
}

func NewGRPCServer(address string, l logging.Logger, accounts *services.AccountService, gate *services.Gate, r observability.Reporter) *Server {
	if r == nil {
		r = observability.NopReporter{}
	}
	return &Server{
		address:  address,
		accounts: accounts,
		gate:     gate,
		logger:   l.With("module", "grpc_server"),
		reporter: r,
	}
}

func (s *Server) newServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		s.recoverInterceptor,
		s.loggingInterceptor,
		s.authInterceptor,
	))
	srv.RegisterService(&ServiceDesc, s)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv, hs
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv, hs := s.newServer()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
