package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"capd/internal/domain"
	"capd/internal/infra/catalog"
	"capd/internal/infra/router"
)

const textMIMEType = "text/plain"

type Options struct {
	Service string
	Version string
	Handler router.Handler
	Logger  *zap.Logger
}

// Bridge exposes the catalog to MCP clients over streamable HTTP. Calls go
// through the same router as the gRPC surface.
type Bridge struct {
	service string
	handler router.Handler
	server  *mcp.Server
	logger  *zap.Logger

	mu        sync.Mutex
	tools     map[string]struct{}
	resources map[string]struct{}
}

func New(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Bridge{
		service: opts.Service,
		handler: opts.Handler,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    opts.Service,
			Version: version,
		}, &mcp.ServerOptions{
			HasTools:     true,
			HasResources: true,
		}),
		logger:    logger.Named("mcp_bridge"),
		tools:     make(map[string]struct{}),
		resources: make(map[string]struct{}),
	}
}

func (b *Bridge) Server() *mcp.Server {
	return b.server
}

// Sync makes the MCP server list exactly the entries of cat.
func (b *Bridge) Sync(cat *catalog.Catalog) {
	b.mu.Lock()
	defer b.mu.Unlock()

	transformer := catalog.ToolTransformer{Service: b.service}
	nextTools := make(map[string]struct{})
	for _, name := range cat.Names(domain.CapabilityTool) {
		def, _ := cat.Tool(name)
		desc := transformer.Transform(name, def).(*domain.ToolDescriptor)
		b.server.AddTool(&mcp.Tool{
			Name:        name,
			Description: desc.Description,
			InputSchema: desc.InputSchema,
		}, b.toolHandler(desc.URI))
		nextTools[name] = struct{}{}
	}
	var staleTools []string
	for name := range b.tools {
		if _, ok := nextTools[name]; !ok {
			staleTools = append(staleTools, name)
		}
	}
	if len(staleTools) > 0 {
		b.server.RemoveTools(staleTools...)
	}
	b.tools = nextTools

	nextResources := make(map[string]struct{})
	for _, name := range cat.Names(domain.CapabilityResource) {
		def, _ := cat.Resource(name)
		uri := catalog.CapabilityURI(b.service, name)
		b.server.AddResource(&mcp.Resource{
			URI:         uri,
			Name:        name,
			Description: def.Description,
			MIMEType:    textMIMEType,
		}, b.resourceHandler())
		nextResources[uri] = struct{}{}
	}
	var staleResources []string
	for uri := range b.resources {
		if _, ok := nextResources[uri]; !ok {
			staleResources = append(staleResources, uri)
		}
	}
	if len(staleResources) > 0 {
		b.server.RemoveResources(staleResources...)
	}
	b.resources = nextResources

	b.logger.Debug("mcp catalog synced", zap.Int("tools", len(nextTools)), zap.Int("resources", len(nextResources)))
}

// HTTPHandler serves the streamable HTTP transport.
func (b *Bridge) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return b.server
	}, nil)
}

// Run serves the bridge on addr until ctx is done.
func (b *Bridge) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           b.HTTPHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("mcp bridge listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("mcp bridge failed to start: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), domain.DefaultShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (b *Bridge) toolHandler(uri string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		args, err := stringifyArguments(raw)
		if err != nil {
			return nil, err
		}
		reply := b.handler.Invoke(ctx, domain.InvokeRequest{
			URI:       uri,
			Arguments: args,
			Body:      string(raw),
		})
		result := &mcp.CallToolResult{IsError: reply.IsError}
		for _, text := range reply.Content {
			result.Content = append(result.Content, &mcp.TextContent{Text: text})
		}
		return result, nil
	}
}

func (b *Bridge) resourceHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if req == nil || req.Params == nil {
			return nil, errors.New("missing resource uri")
		}
		uri := req.Params.URI
		reply := b.handler.Acquire(ctx, domain.AcquireRequest{Location: uri})
		if reply.IsError {
			return nil, errors.New(strings.Join(reply.Content, "; "))
		}
		result := &mcp.ReadResourceResult{}
		for _, text := range reply.Content {
			result.Contents = append(result.Contents, &mcp.ResourceContents{URI: uri, MIMEType: textMIMEType, Text: text})
		}
		return result, nil
	}
}

// stringifyArguments flattens top-level arguments to strings. Non-string
// values keep their JSON encoding.
func stringifyArguments(raw json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]string{}, nil
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	out := make(map[string]string, len(decoded))
	for key, value := range decoded {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out[key] = s
			continue
		}
		out[key] = string(value)
	}
	return out, nil
}
