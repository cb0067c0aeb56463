package discovery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capd/internal/domain"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, data any, message string) {
	t.Helper()
	body := map[string]any{}
	if data != nil {
		body["data"] = data
	}
	if message != "" {
		body["error"] = map[string]string{"message": message}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func newTestClient(t *testing.T, handler http.Handler, opts ClientOptions) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts.BaseURL = server.URL
	client, err := NewClient(context.Background(), opts)
	require.NoError(t, err)
	return client
}

func TestClientRegister(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, registerPath, r.URL.Path)
		var target domain.ServiceTarget
		require.NoError(t, json.NewDecoder(r.Body).Decode(&target))
		target.ID = "svc-42"
		writeEnvelope(t, w, http.StatusOK, target, "")
	}), ClientOptions{})

	got, err := client.Register(context.Background(), domain.ServiceTarget{Service: "camel", Host: "10.0.0.1", Port: 9190})
	require.NoError(t, err)
	assert.Equal(t, "svc-42", got.ID)
	assert.Equal(t, "10.0.0.1:9190", got.Address())
}

func TestClientErrorEnvelope(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case removeToolPath:
			require.Equal(t, http.MethodPut, r.Method)
			require.Equal(t, "search", r.URL.Query().Get("tool"))
			writeEnvelope(t, w, http.StatusNotFound, nil, "tool search not found")
		default:
			writeEnvelope(t, w, http.StatusOK, nil, "registry rejected descriptor")
		}
	}), ClientOptions{})

	err := client.RemoveTool(context.Background(), "search")
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeNotFound, code)
	assert.Contains(t, err.Error(), "tool search not found")

	err = client.AddTool(context.Background(), &domain.ToolDescriptor{Name: "search"})
	code, ok = domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInternal, code)
}

func TestClientUnavailable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}), ClientOptions{})

	err := client.Ping(context.Background(), "svc-1")
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUnavailable, code)
}

func TestClientDataStoreGet(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, dataStoreGetPath, r.URL.Path)
		name := r.URL.Query().Get("name")
		writeEnvelope(t, w, http.StatusOK, dataStoreEntry{
			Name: name,
			Data: base64.StdEncoding.EncodeToString([]byte("routes for " + name)),
		}, "")
	}), ClientOptions{})

	data, err := client.DataStoreGet(context.Background(), "routes.yaml")
	require.NoError(t, err)
	assert.Equal(t, "routes for routes.yaml", string(data))
}

func TestClientUsesClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(tokenEndpointPath, func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc(pingPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		writeEnvelope(t, w, http.StatusOK, nil, "")
	})

	client := newTestClient(t, mux, ClientOptions{ClientID: "capd", ClientSecret: "secret"})
	require.NoError(t, client.Ping(context.Background(), "svc-1"))
	require.NoError(t, client.Ping(context.Background(), "svc-1"))
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), ClientOptions{BaseURL: "not a url"})
	require.Error(t, err)
	_, err = NewClient(context.Background(), ClientOptions{})
	require.Error(t, err)
}

func TestClientRefreshesTokenAfterConstructionContextEnds(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(tokenEndpointPath, func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"short","token_type":"Bearer","expires_in":1}`))
	})
	mux.HandleFunc(removeToolPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer short", r.Header.Get("Authorization"))
		writeEnvelope(t, w, http.StatusOK, nil, "")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	client, err := NewClient(ctx, ClientOptions{BaseURL: server.URL, ClientID: "capd", ClientSecret: "secret"})
	require.NoError(t, err)
	require.NoError(t, client.RemoveTool(context.Background(), "a"))

	cancel()
	require.NoError(t, client.RemoveTool(context.Background(), "b"))
	assert.Equal(t, int32(2), tokenCalls.Load())
}
