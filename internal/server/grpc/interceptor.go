package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

type ctxKey string

const callerKey ctxKey = "caller"

// CallerFromContext returns the account the gate resolved for this call.
func CallerFromContext(ctx context.Context) (*models.Account, bool) {
	a, ok := ctx.Value(callerKey).(*models.Account)
	return a, ok
}

func authorizationHeader(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// peerIP is the caller's address without the port.
func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// authInterceptor runs the gate for protected methods and stores the
// caller in the context.
func (s *Server) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	rule, ok := methodAccess[info.FullMethod]
	if !ok || rule.public {
		return handler(ctx, req)
	}

	caller, err := s.gate.Authorize(ctx, authorizationHeader(ctx), rule.roles...)
	if err != nil {
		return nil, toStatus(err)
	}
	return handler(context.WithValue(ctx, callerKey, caller), req)
}

// loggingInterceptor logs one line per call and converts service errors
// into statuses.
func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	err = toStatus(err)

	code := status.Code(err)
	args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
	switch code {
	case codes.OK:
		s.logger.Info(ctx, "rpc", args...)
	case codes.Internal, codes.Unavailable, codes.Unknown:
		s.logger.Error(ctx, "rpc", args...)
	default:
		s.logger.Warn(ctx, "rpc", args...)
	}
	return resp, err
}

// recoverInterceptor turns a handler panic into codes.Internal and reports it.
func (s *Server) recoverInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "panic in handler", "method", info.FullMethod, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			s.reporter.Report(ctx, common.Wrap(common.ErrorInternal, fmt.Errorf("panic: %v", r)), map[string]string{"method": info.FullMethod})
			resp, err = nil, status.Error(codes.Internal, common.ErrorInternal.Message)
		}
	}()
	return handler(ctx, req)
}
