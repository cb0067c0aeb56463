package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldKind       = "kind"
	FieldEntry      = "entry"
	FieldURI        = "uri"
	FieldService    = "service"
	FieldDurationMs = "duration_ms"
	FieldRequestID  = "request_id"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
)

const (
	EventRegistered      = "registered"
	EventRegisterFailure = "register_failure"
	EventPingFailure     = "ping_failure"
	EventDeregistered    = "deregistered"
	EventPublished       = "published"
	EventPublishFailure  = "publish_failure"
	EventRetracted       = "retracted"
	EventRetractFailure  = "retract_failure"
	EventLookupFailure   = "lookup_failure"
	EventExecutionFault  = "execution_fault"
	EventCatalogReloaded = "catalog_reloaded"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func KindField(kind string) zap.Field {
	return zap.String(FieldKind, kind)
}

func EntryField(name string) zap.Field {
	return zap.String(FieldEntry, name)
}

func URIField(uri string) zap.Field {
	return zap.String(FieldURI, uri)
}

func ServiceField(service string) zap.Field {
	return zap.String(FieldService, service)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

func TraceIDField(value string) zap.Field {
	return zap.String(FieldTraceID, value)
}

func SpanIDField(value string) zap.Field {
	return zap.String(FieldSpanID, value)
}
