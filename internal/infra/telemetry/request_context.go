package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in gRPC metadata.
const RequestIDHeader = "x-request-id"

type requestContextKey struct{}

// RequestMeta correlates the log lines of a single invocation.
type RequestMeta struct {
	RequestID string
	TraceID   string
	SpanID    string
}

func (m RequestMeta) IsZero() bool {
	return m.RequestID == "" && m.TraceID == "" && m.SpanID == ""
}

func (m RequestMeta) Fields() []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if m.RequestID != "" {
		fields = append(fields, RequestIDField(m.RequestID))
	}
	if m.TraceID != "" {
		fields = append(fields, TraceIDField(m.TraceID))
	}
	if m.SpanID != "" {
		fields = append(fields, SpanIDField(m.SpanID))
	}
	return fields
}

func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	meta, ok := ctx.Value(requestContextKey{}).(RequestMeta)
	return meta, ok && !meta.IsZero()
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	meta, ok := RequestMetaFromContext(ctx)
	if !ok || meta.RequestID == "" {
		return "", false
	}
	return meta.RequestID, true
}

// EnsureRequestMeta attaches request metadata to ctx, keeping an existing id
// unless a new one is supplied and generating one when none is known.
func EnsureRequestMeta(ctx context.Context, requestID string) (context.Context, RequestMeta) {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestID == "" {
		if existing, ok := RequestMetaFromContext(ctx); ok {
			requestID = existing.RequestID
		}
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	meta := RequestMeta{RequestID: requestID}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		meta.TraceID = spanCtx.TraceID().String()
		meta.SpanID = spanCtx.SpanID().String()
	}
	return context.WithValue(ctx, requestContextKey{}, meta), meta
}

// LoggerWithRequest decorates base with the request fields found in ctx.
func LoggerWithRequest(ctx context.Context, base *zap.Logger) *zap.Logger {
	logger := base
	if logger == nil {
		logger = zap.NewNop()
	}
	meta, ok := RequestMetaFromContext(ctx)
	if !ok {
		return logger
	}
	return logger.With(meta.Fields()...)
}
