package rpc

import (
	"context"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"capd/internal/infra/telemetry"
)

func requestContextUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, _ = ensureRequestMeta(ctx)
		return handler(ctx, req)
	}
}

func requestContextUnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = injectRequestID(ctx)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func ensureRequestMeta(ctx context.Context) (context.Context, telemetry.RequestMeta) {
	requestID := requestIDFromMetadata(ctx)
	return telemetry.EnsureRequestMeta(ctx, requestID)
}

func requestIDFromMetadata(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(telemetry.RequestIDHeader)
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func injectRequestID(ctx context.Context) context.Context {
	if ctx == nil {
		return ctx
	}
	requestID, ok := telemetry.RequestIDFromContext(ctx)
	if !ok || requestID == "" {
		return ctx
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		if len(md.Get(telemetry.RequestIDHeader)) > 0 {
			return ctx
		}
		md = md.Copy()
	} else {
		md = metadata.New(nil)
	}
	md.Set(telemetry.RequestIDHeader, requestID)
	return metadata.NewOutgoingContext(ctx, md)
}

// recoveryUnaryServerInterceptor turns a handler panic into an INTERNAL status
// so a faulty call never takes the server down.
func recoveryUnaryServerInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				telemetry.LoggerWithRequest(ctx, logger).Error("rpc handler panicked",
					telemetry.EventField(telemetry.EventExecutionFault),
					zap.String("method", info.FullMethod),
					zap.Any("panic", recovered),
					zap.ByteString("stack", debug.Stack()),
				)
				resp = nil
				err = status.Errorf(codes.Internal, "%s: internal error", info.FullMethod)
			}
		}()
		return handler(ctx, req)
	}
}
