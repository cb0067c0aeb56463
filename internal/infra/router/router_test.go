package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"capd/internal/domain"
	"capd/internal/infra/catalog"
)

type engineCall struct {
	Endpoint string
	Body     string
	Params   map[string]string
}

type fakeEngine struct {
	mu         sync.Mutex
	calls      []engineCall
	produceOut string
	produceErr error
	panicWith  any
	received   string
	receivedOK bool
	receiveErr error
	timeouts   []time.Duration
}

func (e *fakeEngine) Resolve(ref domain.RouteRef) (string, error) {
	if ref.URI != "" {
		return ref.URI, nil
	}
	if ref.ID == "missing" {
		return "", domain.ErrRouteNotFound
	}
	return "direct:" + ref.ID, nil
}

func (e *fakeEngine) Produce(ctx context.Context, endpoint, body string) (string, error) {
	return e.ProduceWithParams(ctx, endpoint, body, nil)
}

func (e *fakeEngine) ProduceWithParams(_ context.Context, endpoint, body string, params map[string]string) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, engineCall{Endpoint: endpoint, Body: body, Params: params})
	e.mu.Unlock()
	if e.panicWith != nil {
		panic(e.panicWith)
	}
	return e.produceOut, e.produceErr
}

func (e *fakeEngine) Receive(_ context.Context, endpoint string, timeout time.Duration) (string, bool, error) {
	e.mu.Lock()
	e.calls = append(e.calls, engineCall{Endpoint: endpoint})
	e.timeouts = append(e.timeouts, timeout)
	e.mu.Unlock()
	return e.received, e.receivedOK, e.receiveErr
}

func testCatalog() *catalog.Holder {
	return catalog.NewHolder(catalog.NewCatalog(domain.RuleSet{Entries: []domain.RuleEntry{
		{Kind: domain.CapabilityTool, Definition: domain.RuleDefinition{
			Name:  "search",
			Route: domain.RouteRef{URI: "direct:search"},
			Properties: []domain.PropertyDefinition{
				{Name: "q", Type: "string", Mapping: &domain.Mapping{Type: domain.MappingHeader, Name: "Q-Header"}},
				{Name: "lang", Type: "string"},
				{Name: "page", Type: "integer", Mapping: &domain.Mapping{Type: "query", Name: "page"}},
			},
		}},
		{Kind: domain.CapabilityTool, Definition: domain.RuleDefinition{
			Name:  "echo",
			Route: domain.RouteRef{ID: "echo"},
		}},
		{Kind: domain.CapabilityTool, Definition: domain.RuleDefinition{
			Name:  "broken",
			Route: domain.RouteRef{ID: "missing"},
		}},
		{Kind: domain.CapabilityResource, Definition: domain.RuleDefinition{
			Name:  "readme",
			Route: domain.RouteRef{URI: "file:/tmp/readme.md"},
		}},
	}}))
}

func TestInvoke_MapsHeaderArguments(t *testing.T) {
	engine := &fakeEngine{produceOut: "found"}
	r := New(testCatalog(), engine, Options{})

	reply := r.Invoke(context.Background(), domain.InvokeRequest{
		URI:       "svc://search",
		Arguments: map[string]string{"q": "x", "lang": "en", "page": "2"},
		Body:      `{"q":"x"}`,
	})

	require.Equal(t, domain.Reply{Content: []string{"found"}}, reply)
	want := []engineCall{{
		Endpoint: "direct:search",
		Body:     `{"q":"x"}`,
		Params:   map[string]string{"Q-Header": "x"},
	}}
	if diff := cmp.Diff(want, engine.calls); diff != "" {
		t.Fatalf("engine calls mismatch (-want +got):\n%s", diff)
	}
}

func TestInvoke_WithoutParametersUsesProduce(t *testing.T) {
	engine := &fakeEngine{produceOut: "pong"}
	r := New(testCatalog(), engine, Options{})

	reply := r.Invoke(context.Background(), domain.InvokeRequest{URI: "svc://echo", Body: "ping"})
	require.False(t, reply.IsError)
	require.Len(t, engine.calls, 1)
	require.Nil(t, engine.calls[0].Params)
	require.Equal(t, "direct:echo", engine.calls[0].Endpoint)
}

func TestInvoke_UnknownTarget(t *testing.T) {
	engine := &fakeEngine{}
	r := New(testCatalog(), engine, Options{})

	reply := r.Invoke(context.Background(), domain.InvokeRequest{URI: "svc://unknown"})
	require.True(t, reply.IsError)
	require.Equal(t, []string{"No tool definition found for: unknown"}, reply.Content)
	require.Empty(t, engine.calls)
}

func TestInvoke_EngineFaults(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		r := New(testCatalog(), &fakeEngine{produceErr: errors.New("connection refused")}, Options{})
		reply := r.Invoke(context.Background(), domain.InvokeRequest{URI: "svc://echo"})
		require.True(t, reply.IsError)
		require.Contains(t, reply.Content[0], "connection refused")
	})
	t.Run("panic", func(t *testing.T) {
		r := New(testCatalog(), &fakeEngine{panicWith: "boom"}, Options{})
		reply := r.Invoke(context.Background(), domain.InvokeRequest{URI: "svc://echo"})
		require.True(t, reply.IsError)
		require.Contains(t, reply.Content[0], "boom")
	})
	t.Run("unresolvable route", func(t *testing.T) {
		r := New(testCatalog(), &fakeEngine{}, Options{})
		reply := r.Invoke(context.Background(), domain.InvokeRequest{URI: "svc://broken"})
		require.True(t, reply.IsError)
	})
}

func TestInvoke_LogsTargetURIAndLatency(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := New(testCatalog(), &fakeEngine{produceErr: errors.New("connection refused")}, Options{Logger: zap.New(core)})

	r.Invoke(context.Background(), domain.InvokeRequest{URI: "svc://echo"})

	entries := logs.FilterMessage("execution failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "svc://echo", fields["uri"])
	require.Contains(t, fields, "duration_ms")

	r = New(testCatalog(), &fakeEngine{received: "# readme", receivedOK: true}, Options{Logger: zap.New(core)})
	r.Acquire(context.Background(), domain.AcquireRequest{Location: "svc://readme"})
	entries = logs.FilterMessage("resource acquired").All()
	require.Len(t, entries, 1)
	require.Equal(t, "svc://readme", entries[0].ContextMap()["uri"])
	require.Contains(t, entries[0].ContextMap(), "duration_ms")
}

func TestAcquire(t *testing.T) {
	t.Run("content", func(t *testing.T) {
		engine := &fakeEngine{received: "# readme", receivedOK: true}
		r := New(testCatalog(), engine, Options{ReceiveTimeout: time.Second})
		reply := r.Acquire(context.Background(), domain.AcquireRequest{Location: "svc://readme"})
		require.Equal(t, domain.Reply{Content: []string{"# readme"}}, reply)
		require.Equal(t, []time.Duration{time.Second}, engine.timeouts)
	})
	t.Run("timeout", func(t *testing.T) {
		engine := &fakeEngine{}
		r := New(testCatalog(), engine, Options{})
		reply := r.Acquire(context.Background(), domain.AcquireRequest{Location: "svc://readme"})
		require.True(t, reply.IsError)
		require.Equal(t, []string{noResourceResponse}, reply.Content)
		require.Equal(t, []time.Duration{domain.DefaultReceiveTimeout}, engine.timeouts)
	})
	t.Run("unknown", func(t *testing.T) {
		r := New(testCatalog(), &fakeEngine{}, Options{})
		reply := r.Acquire(context.Background(), domain.AcquireRequest{Location: "svc://search"})
		require.True(t, reply.IsError)
		require.Equal(t, []string{"No resource definition found for: search"}, reply.Content)
	})
	t.Run("error", func(t *testing.T) {
		r := New(testCatalog(), &fakeEngine{receiveErr: errors.New("disk gone")}, Options{})
		reply := r.Acquire(context.Background(), domain.AcquireRequest{Location: "svc://readme"})
		require.True(t, reply.IsError)
	})
}

func TestTargetName(t *testing.T) {
	tests := map[string]string{
		"svc://search":         "search",
		"camel://search/extra": "search",
		"search":               "search",
		" svc://spaced ":       "spaced",
		"svc://under_score":    "under_score",
	}
	for in, want := range tests {
		require.Equal(t, want, TargetName(in), in)
	}
}

type metricsSpy struct {
	domain.NoopMetrics
	mu       sync.Mutex
	observed []domain.Outcome
	kinds    []domain.CapabilityKind
}

func (m *metricsSpy) ObserveInvocation(kind domain.CapabilityKind, outcome domain.Outcome, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
	m.observed = append(m.observed, outcome)
}

func TestMetricRouter(t *testing.T) {
	spy := &metricsSpy{}
	r := NewMetricRouter(New(testCatalog(), &fakeEngine{produceOut: "ok"}, Options{}), spy)

	r.Invoke(context.Background(), domain.InvokeRequest{URI: "svc://echo"})
	r.Invoke(context.Background(), domain.InvokeRequest{URI: "svc://unknown"})
	r.Acquire(context.Background(), domain.AcquireRequest{Location: "svc://readme"})

	require.Equal(t, []domain.Outcome{domain.OutcomeSuccess, domain.OutcomeError, domain.OutcomeError}, spy.observed)
	require.Equal(t, []domain.CapabilityKind{domain.CapabilityTool, domain.CapabilityTool, domain.CapabilityResource}, spy.kinds)
}
