package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestEnsureRequestMeta_GeneratesID(t *testing.T) {
	ctx, meta := EnsureRequestMeta(context.Background(), "")
	require.NotEmpty(t, meta.RequestID)

	got, ok := RequestIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, meta.RequestID, got)
}

func TestEnsureRequestMeta_KeepsExistingID(t *testing.T) {
	ctx, first := EnsureRequestMeta(context.Background(), "req-1")
	_, second := EnsureRequestMeta(ctx, "")
	require.Equal(t, first.RequestID, second.RequestID)

	_, third := EnsureRequestMeta(ctx, "req-2")
	require.Equal(t, "req-2", third.RequestID)
}

func TestEnsureRequestMeta_CapturesSpan(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	_, meta := EnsureRequestMeta(ctx, "req-1")
	require.Equal(t, traceID.String(), meta.TraceID)
	require.Equal(t, spanID.String(), meta.SpanID)

	fields := meta.Fields()
	require.Len(t, fields, 3)
	require.Equal(t, FieldRequestID, fields[0].Key)
	require.Equal(t, FieldTraceID, fields[1].Key)
	require.Equal(t, FieldSpanID, fields[2].Key)
}
