package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capd/internal/domain"
)

func TestParseRoutes(t *testing.T) {
	routes, err := ParseRoutes([]byte(`
- route:
    id: greet
    from:
      uri: direct:greet
      steps:
        - setBody:
            constant: "hello ${header.Name}"
- route:
    from:
      uri: direct:anon
`))
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "greet", routes[0].ID)
	assert.Equal(t, "route2", routes[1].ID)

	_, err = ParseRoutes([]byte("- route:\n    id: x\n"))
	require.Error(t, err)
	_, err = ParseRoutes([]byte("- route:\n    from:\n      uri: direct:a\n      steps:\n        - {to: {uri: direct:b}, setBody: {constant: x}}\n"))
	require.Error(t, err)
}

func TestParseDependencies(t *testing.T) {
	deps := ParseDependencies([]byte("org.apache.camel:camel-http:4.0.0,\n# comment\norg.example:lib:1.0\n\n"))
	assert.Equal(t, []string{"org.apache.camel:camel-http:4.0.0", "org.example:lib:1.0"}, deps)
}

func TestEngineResolve(t *testing.T) {
	e := New(Options{Routes: []RouteDefinition{{ID: "r1", From: From{URI: "direct:one"}}}})

	endpoint, err := e.Resolve(domain.RouteRef{ID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "direct:one", endpoint)

	endpoint, err = e.Resolve(domain.RouteRef{ID: "r1", URI: "direct:other"})
	require.NoError(t, err)
	assert.Equal(t, "direct:other", endpoint)

	_, err = e.Resolve(domain.RouteRef{ID: "missing"})
	require.ErrorIs(t, err, domain.ErrRouteNotFound)
}

func TestEngineProduceDirectToHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte(r.Header.Get("Q-Header") + "|" + string(body)))
	}))
	defer server.Close()

	e := New(Options{Routes: []RouteDefinition{{
		ID: "search",
		From: From{URI: "direct:search", Steps: []Step{
			{SetBody: &SetBodyStep{Constant: "q=${header.Q-Header} body=${body}"}},
			{To: &ToStep{URI: server.URL}},
		}},
	}}})

	out, err := e.ProduceWithParams(context.Background(), "direct:search", "raw", map[string]string{"Q-Header": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x|q=x body=raw", out)

	_, err = e.Produce(context.Background(), "direct:absent", "")
	require.ErrorIs(t, err, domain.ErrRouteNotFound)
	_, err = e.Produce(context.Background(), "kafka:topic", "")
	require.ErrorIs(t, err, domain.ErrUnsupportedEndpoint)
}

func TestEngineFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := New(Options{})

	_, err := e.Produce(context.Background(), "file:"+dir+"?fileName=out.txt", "payload")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	out, ok, err := e.Receive(context.Background(), "file:"+dir+"?fileName=out.txt", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", out)
}

func TestEngineReceiveTimeout(t *testing.T) {
	e := New(Options{})
	start := time.Now()
	out, ok, err := e.Receive(context.Background(), "file:"+filepath.Join(t.TempDir(), "never.txt"), 150*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, out)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEngineReceiveDirectEmpty(t *testing.T) {
	e := New(Options{Routes: []RouteDefinition{{ID: "empty", From: From{URI: "direct:empty"}}}})
	_, ok, err := e.Receive(context.Background(), "direct:empty", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}
