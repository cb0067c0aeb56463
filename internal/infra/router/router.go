package router

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"capd/internal/domain"
	"capd/internal/infra/catalog"
	"capd/internal/infra/telemetry"
)

const noResourceResponse = "No response for the requested resource call"

// Handler serves invoke and acquire calls. Replies carry every failure.
type Handler interface {
	Invoke(ctx context.Context, req domain.InvokeRequest) domain.Reply
	Acquire(ctx context.Context, req domain.AcquireRequest) domain.Reply
}

// Engine is the part of the execution engine the router drives.
type Engine interface {
	Resolve(ref domain.RouteRef) (string, error)
	Produce(ctx context.Context, endpoint, body string) (string, error)
	ProduceWithParams(ctx context.Context, endpoint, body string, params map[string]string) (string, error)
	Receive(ctx context.Context, endpoint string, timeout time.Duration) (string, bool, error)
}

// CatalogSource yields the catalog current at call time.
type CatalogSource interface {
	Load() *catalog.Catalog
}

type Options struct {
	ReceiveTimeout time.Duration
	Mappers        []ParameterMapper
	Logger         *zap.Logger
}

type Router struct {
	catalogs       CatalogSource
	engine         Engine
	mappers        map[string]ParameterMapper
	receiveTimeout time.Duration
	logger         *zap.Logger
}

func New(catalogs CatalogSource, engine Engine, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.ReceiveTimeout
	if timeout <= 0 {
		timeout = domain.DefaultReceiveTimeout
	}
	mappers := opts.Mappers
	if len(mappers) == 0 {
		mappers = []ParameterMapper{HeaderMapper{}}
	}
	index := make(map[string]ParameterMapper, len(mappers))
	for _, mapper := range mappers {
		index[mapper.Type()] = mapper
	}
	return &Router{
		catalogs:       catalogs,
		engine:         engine,
		mappers:        index,
		receiveTimeout: timeout,
		logger:         logger.Named("router"),
	}
}

func (r *Router) Invoke(ctx context.Context, req domain.InvokeRequest) (reply domain.Reply) {
	key := TargetName(req.URI)
	logger := telemetry.LoggerWithRequest(ctx, r.logger).With(
		telemetry.KindField(string(domain.CapabilityTool)),
		telemetry.EntryField(key),
		telemetry.URIField(req.URI),
	)
	start := time.Now()
	defer recoverFault(logger, &reply)

	def, ok := r.catalogs.Load().Tool(key)
	if !ok {
		logger.Warn("tool lookup failed", telemetry.EventField(telemetry.EventLookupFailure))
		return domain.ErrorReply("No tool definition found for: %s", key)
	}

	endpoint, err := r.engine.Resolve(def.Route)
	if err != nil {
		return faultReply(logger, err)
	}

	params := buildParameters(def, req.Arguments, r.mappers)
	var out string
	if len(params) > 0 {
		out, err = r.engine.ProduceWithParams(ctx, endpoint, req.Body, params)
	} else {
		out, err = r.engine.Produce(ctx, endpoint, req.Body)
	}
	if err != nil {
		return faultReply(logger.With(telemetry.DurationField(time.Since(start))), err)
	}
	logger.Debug("tool invoked", telemetry.DurationField(time.Since(start)))
	return domain.SuccessReply(out)
}

func (r *Router) Acquire(ctx context.Context, req domain.AcquireRequest) (reply domain.Reply) {
	key := TargetName(req.Location)
	logger := telemetry.LoggerWithRequest(ctx, r.logger).With(
		telemetry.KindField(string(domain.CapabilityResource)),
		telemetry.EntryField(key),
		telemetry.URIField(req.Location),
	)
	start := time.Now()
	defer recoverFault(logger, &reply)

	def, ok := r.catalogs.Load().Resource(key)
	if !ok {
		logger.Warn("resource lookup failed", telemetry.EventField(telemetry.EventLookupFailure))
		return domain.ErrorReply("No resource definition found for: %s", key)
	}

	endpoint, err := r.engine.Resolve(def.Route)
	if err != nil {
		return faultReply(logger, err)
	}
	out, received, err := r.engine.Receive(ctx, endpoint, r.receiveTimeout)
	if err != nil {
		return faultReply(logger.With(telemetry.DurationField(time.Since(start))), err)
	}
	if !received {
		logger.Debug("no resource response", telemetry.DurationField(time.Since(start)))
		return domain.ErrorReply(noResourceResponse)
	}
	logger.Debug("resource acquired", telemetry.DurationField(time.Since(start)))
	return domain.SuccessReply(out)
}

// TargetName extracts the catalog key from svc://name. A bare name is
// returned unchanged.
func TargetName(target string) string {
	trimmed := strings.TrimSpace(target)
	if !strings.Contains(trimmed, "://") {
		return trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		_, rest, _ := strings.Cut(trimmed, "://")
		name, _, _ := strings.Cut(rest, "/")
		return name
	}
	return parsed.Host
}

func faultReply(logger *zap.Logger, err error) domain.Reply {
	logger.Error("execution failed", telemetry.EventField(telemetry.EventExecutionFault), zap.Error(err))
	return domain.ErrorReply("%v", err)
}

func recoverFault(logger *zap.Logger, reply *domain.Reply) {
	if recovered := recover(); recovered != nil {
		logger.Error("execution panicked",
			telemetry.EventField(telemetry.EventExecutionFault),
			zap.Any("panic", recovered),
			zap.ByteString("stack", debug.Stack()),
		)
		*reply = domain.ErrorReply("execution fault: %s", fmt.Sprint(recovered))
	}
}
