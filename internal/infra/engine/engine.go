package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"capd/internal/domain"
)

const (
	maxDirectDepth     = 16
	filePollInterval   = 100 * time.Millisecond
	fileNameParameter  = "fileName"
	fileNameHeader     = "CamelFileName"
	defaultHTTPTimeout = 30 * time.Second
)

type Options struct {
	Routes       []RouteDefinition
	Dependencies []string
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Engine runs the loaded routes against direct, file and http endpoints.
type Engine struct {
	byID       map[string]RouteDefinition
	byFrom     map[string]RouteDefinition
	deps       []string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	e := &Engine{
		byID:       make(map[string]RouteDefinition, len(opts.Routes)),
		byFrom:     make(map[string]RouteDefinition, len(opts.Routes)),
		deps:       append([]string(nil), opts.Dependencies...),
		httpClient: client,
		logger:     logger.Named("engine"),
	}
	for _, route := range opts.Routes {
		e.byID[route.ID] = route
		e.byFrom[route.From.URI] = route
	}
	return e
}

// Load builds an engine from the acquired routes and dependency manifest.
func Load(routesPath, dependenciesPath string, logger *zap.Logger) (*Engine, error) {
	routes, err := LoadRoutes(routesPath)
	if err != nil {
		return nil, fmt.Errorf("load routes %s: %w", routesPath, err)
	}
	deps, err := LoadDependencies(dependenciesPath)
	if err != nil {
		return nil, err
	}
	return New(Options{Routes: routes, Dependencies: deps, Logger: logger}), nil
}

func (e *Engine) Dependencies() []string {
	return append([]string(nil), e.deps...)
}

func (e *Engine) RouteIDs() []string {
	ids := make([]string, 0, len(e.byID))
	for id := range e.byID {
		ids = append(ids, id)
	}
	return ids
}

// Resolve turns a route reference into an endpoint URI. An explicit URI wins
// over the route id.
func (e *Engine) Resolve(ref domain.RouteRef) (string, error) {
	if ref.URI != "" {
		return ref.URI, nil
	}
	route, ok := e.byID[ref.ID]
	if !ok {
		return "", fmt.Errorf("route %q: %w", ref.ID, domain.ErrRouteNotFound)
	}
	return route.From.URI, nil
}

func (e *Engine) Produce(ctx context.Context, endpoint, body string) (string, error) {
	return e.ProduceWithParams(ctx, endpoint, body, nil)
}

// ProduceWithParams sends body to endpoint with params as headers and returns
// the resulting body.
func (e *Engine) ProduceWithParams(ctx context.Context, endpoint, body string, params map[string]string) (string, error) {
	return e.send(ctx, endpoint, body, params, 0)
}

// Receive consumes one message from endpoint. ok is false when nothing
// arrived before timeout.
func (e *Engine) Receive(ctx context.Context, endpoint string, timeout time.Duration) (string, bool, error) {
	if timeout <= 0 {
		timeout = domain.DefaultReceiveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		out string
		err error
	)
	scheme, rest := splitEndpoint(endpoint)
	switch scheme {
	case "file":
		out, err = e.readFile(ctx, rest)
	case "http", "https":
		out, err = e.doHTTP(ctx, http.MethodGet, endpoint, "", nil)
	case "direct":
		out, err = e.send(ctx, endpoint, "", nil, 0)
	default:
		return "", false, fmt.Errorf("receive from %s: %w", endpoint, domain.ErrUnsupportedEndpoint)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return "", false, nil
		}
		return "", false, err
	}
	if out == "" {
		return "", false, nil
	}
	return out, true, nil
}

func (e *Engine) send(ctx context.Context, endpoint, body string, params map[string]string, depth int) (string, error) {
	if depth > maxDirectDepth {
		return "", fmt.Errorf("endpoint %s: direct call depth exceeded", endpoint)
	}
	scheme, rest := splitEndpoint(endpoint)
	switch scheme {
	case "direct":
		route, ok := e.byFrom[endpoint]
		if !ok {
			return "", fmt.Errorf("endpoint %s: %w", endpoint, domain.ErrRouteNotFound)
		}
		return e.run(ctx, route, body, params, depth)
	case "file":
		return body, e.writeFile(rest, body, params)
	case "http", "https":
		return e.doHTTP(ctx, http.MethodPost, endpoint, body, params)
	default:
		return "", fmt.Errorf("send to %s: %w", endpoint, domain.ErrUnsupportedEndpoint)
	}
}

func (e *Engine) run(ctx context.Context, route RouteDefinition, body string, params map[string]string, depth int) (string, error) {
	for _, step := range route.From.Steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		switch {
		case step.SetBody != nil:
			body = expand(step.SetBody.Constant, body, params)
		case step.Log != nil:
			e.logger.Info(expand(step.Log.Message, body, params), zap.String("route", route.ID))
		case step.To != nil:
			out, err := e.send(ctx, step.To.URI, body, params, depth+1)
			if err != nil {
				return "", fmt.Errorf("route %s: %w", route.ID, err)
			}
			body = out
		}
	}
	return body, nil
}

func (e *Engine) doHTTP(ctx context.Context, method, endpoint, body string, params map[string]string) (string, error) {
	var reader io.Reader
	if method != http.MethodGet {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return "", err
	}
	for key, value := range params {
		req.Header.Set(key, value)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, domain.DefaultRPCMaxSendMsgSize)); err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s %s: status %d", method, endpoint, resp.StatusCode)
	}
	return buf.String(), nil
}

func (e *Engine) writeFile(rest, body string, params map[string]string) error {
	dir, query := splitQuery(rest)
	name := query.Get(fileNameParameter)
	if name == "" {
		name = params[fileNameHeader]
	}
	if name == "" {
		return fmt.Errorf("file:%s: %s is required", rest, fileNameParameter)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filepath.Base(name)), []byte(body), 0o644)
}

// readFile polls until the file appears or ctx ends.
func (e *Engine) readFile(ctx context.Context, rest string) (string, error) {
	path, query := splitQuery(rest)
	if name := query.Get(fileNameParameter); name != "" {
		path = filepath.Join(path, filepath.Base(name))
	}
	ticker := time.NewTicker(filePollInterval)
	defer ticker.Stop()
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func splitEndpoint(endpoint string) (string, string) {
	scheme, rest, ok := strings.Cut(endpoint, ":")
	if !ok {
		return "", endpoint
	}
	return strings.ToLower(scheme), strings.TrimPrefix(rest, "//")
}

func splitQuery(rest string) (string, url.Values) {
	path, rawQuery, _ := strings.Cut(rest, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}
	return path, query
}

// expand substitutes ${body} and ${header.NAME} placeholders.
func expand(template, body string, params map[string]string) string {
	if !strings.Contains(template, "${") {
		return template
	}
	replacements := []string{"${body}", body}
	for key, value := range params {
		replacements = append(replacements, "${header."+key+"}", value)
	}
	return strings.NewReplacer(replacements...).Replace(template)
}
