package router

import (
	"context"
	"time"

	"capd/internal/domain"
)

// MetricRouter records invocation counts and latency around another Handler.
type MetricRouter struct {
	inner   Handler
	metrics domain.Metrics
}

func NewMetricRouter(inner Handler, metrics domain.Metrics) *MetricRouter {
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &MetricRouter{
		inner:   inner,
		metrics: metrics,
	}
}

func (r *MetricRouter) Invoke(ctx context.Context, req domain.InvokeRequest) domain.Reply {
	start := time.Now()
	reply := r.inner.Invoke(ctx, req)
	r.metrics.ObserveInvocation(domain.CapabilityTool, outcomeOf(reply), time.Since(start))
	return reply
}

func (r *MetricRouter) Acquire(ctx context.Context, req domain.AcquireRequest) domain.Reply {
	start := time.Now()
	reply := r.inner.Acquire(ctx, req)
	r.metrics.ObserveInvocation(domain.CapabilityResource, outcomeOf(reply), time.Since(start))
	return reply
}

func outcomeOf(reply domain.Reply) domain.Outcome {
	if reply.IsError {
		return domain.OutcomeError
	}
	return domain.OutcomeSuccess
}
