package discovery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"capd/internal/domain"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	tokenEndpointPath  = "/protocol/openid-connect/token"

	registerPath       = "/api/v1/management/discovery/register"
	deregisterPath     = "/api/v1/management/discovery/deregister"
	pingPath           = "/api/v1/management/discovery/ping"
	addToolPath        = "/api/v1/tools/add"
	removeToolPath     = "/api/v1/tools/remove"
	exposeResourcePath = "/api/v1/resources/expose"
	removeResourcePath = "/api/v1/resources/remove"
	dataStoreGetPath   = "/api/v1/data-store/get"
)

type ClientOptions struct {
	BaseURL       string
	TokenEndpoint string
	ClientID      string
	ClientSecret  string
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Client talks to the discovery registry, its capability catalog and its
// data store over HTTP with a JSON envelope.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger

	fetches singleflight.Group
}

type envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *envelopeError  `json:"error,omitempty"`
}

type envelopeError struct {
	Message string `json:"message"`
}

type dataStoreEntry struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if trimmed == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "discovery client", "registration url is required", nil)
	}
	base, err := url.Parse(trimmed)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "discovery client", fmt.Sprintf("invalid registration url %q", opts.BaseURL), err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if opts.ClientID != "" {
		tokenURL := opts.TokenEndpoint
		if tokenURL == "" {
			tokenURL = trimmed + tokenEndpointPath
		}
		cfg := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     tokenURL,
		}
		// Token refreshes outlive ctx: retraction and deregistration run after it ends.
		oauthCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, httpClient)
		authed := cfg.Client(oauthCtx)
		authed.Timeout = httpClient.Timeout
		httpClient = authed
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		logger:     logger.Named("discovery_client"),
	}, nil
}

func (c *Client) Register(ctx context.Context, target domain.ServiceTarget) (domain.ServiceTarget, error) {
	var registered domain.ServiceTarget
	if err := c.do(ctx, http.MethodPost, registerPath, nil, target, &registered); err != nil {
		return domain.ServiceTarget{}, err
	}
	if registered.ID == "" {
		registered = target
	}
	return registered, nil
}

func (c *Client) Deregister(ctx context.Context, target domain.ServiceTarget) error {
	return c.do(ctx, http.MethodPost, deregisterPath, nil, target, nil)
}

func (c *Client) Ping(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, pingPath, nil, map[string]string{"id": id}, nil)
}

func (c *Client) AddTool(ctx context.Context, tool *domain.ToolDescriptor) error {
	return c.do(ctx, http.MethodPost, addToolPath, nil, tool, nil)
}

func (c *Client) RemoveTool(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPut, removeToolPath, url.Values{"tool": {name}}, nil, nil)
}

func (c *Client) ExposeResource(ctx context.Context, resource *domain.ResourceDescriptor) error {
	return c.do(ctx, http.MethodPost, exposeResourcePath, nil, resource, nil)
}

func (c *Client) RemoveResource(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPut, removeResourcePath, url.Values{"resource": {name}}, nil, nil)
}

// DataStoreGet downloads a named payload. Concurrent requests for the same
// name share one round trip.
func (c *Client) DataStoreGet(ctx context.Context, name string) ([]byte, error) {
	result, err, _ := c.fetches.Do(name, func() (any, error) {
		var entry dataStoreEntry
		if err := c.do(ctx, http.MethodGet, dataStoreGetPath, url.Values{"name": {name}}, nil, &entry); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(entry.Data)
		if err != nil {
			return nil, domain.E(domain.CodeInternal, "data store get", "decode payload of "+name, err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	op := method + " " + path
	endpoint := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return domain.E(domain.CodeInvalidArgument, op, "encode request", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return domain.E(domain.CodeInternal, op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		code := domain.CodeUnavailable
		if errors.Is(err, context.Canceled) {
			code = domain.CodeCanceled
		} else if errors.Is(err, context.DeadlineExceeded) {
			code = domain.CodeDeadline
		}
		return domain.E(code, op, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(domain.DefaultRPCMaxRecvMsgSize)))
	if err != nil {
		return domain.E(domain.CodeUnavailable, op, "read response", err)
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return domain.E(domain.CodeInternal, op, "decode response", err)
		}
	}

	if resp.StatusCode >= 300 || env.Error != nil {
		msg := http.StatusText(resp.StatusCode)
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		c.logger.Debug("registry call failed", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return domain.E(codeForStatus(resp.StatusCode), op, msg, nil)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return domain.E(domain.CodeInternal, op, "decode data", err)
		}
	}
	return nil
}

func codeForStatus(status int) domain.ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return domain.CodeNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.CodeUnauthenticated
	case status == http.StatusBadRequest:
		return domain.CodeInvalidArgument
	case status >= 500:
		return domain.CodeUnavailable
	default:
		return domain.CodeInternal
	}
}
