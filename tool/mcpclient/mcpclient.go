// Package mcpclient implements the MCP Helper (C2): lazy, reusable
// per-server connections over stdio, SSE, websocket, or
// streamable_http transports, grounded on
// pkg/tool/mcptoolset/mcptoolset.go's mutex-guarded lazy-connect
// pattern.
package mcpclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flowctl/convoy/config"
)

// DefaultSSETimeout bounds the Initialize handshake of a new
// connection on every transport, taking its value from mcptoolset.go's
// DefaultSSEResponseTimeout.
const DefaultSSETimeout = 5 * time.Minute

// ToolDescriptor is what GetTools returns: an MCP tool summarized for
// the tool registry to wrap.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// server holds one lazily-established connection.
type server struct {
	mu        sync.Mutex
	cfg       config.MCPServerConfig
	client    *client.Client
	connected bool
}

// Helper is the process-singleton MCP client registry.
type Helper struct {
	mu      sync.RWMutex
	servers map[string]*server
}

func NewHelper() *Helper {
	return &Helper{servers: make(map[string]*server)}
}

// AddServer registers a server's configuration without connecting.
// Connection happens lazily on first GetTools/CallTool.
func (h *Helper) AddServer(name string, cfg config.MCPServerConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.servers[name] = &server{cfg: cfg}
}

// GetAvailableServices lists configured server names.
func (h *Helper) GetAvailableServices() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.servers))
	for name := range h.servers {
		names = append(names, name)
	}
	return names
}

func (h *Helper) lookup(name string) (*server, error) {
	h.mu.RLock()
	s, ok := h.servers[name]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcpclient: unknown server %q", name)
	}
	return s, nil
}

// connect lazily establishes and caches the transport client for s.
// A prior failed call does not poison the connection: connected is
// only set true after a successful Initialize, so the next call
// retries from scratch, per spec.md §4.2.
func (s *server) connect(ctx context.Context) (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected && s.client != nil {
		return s.client, nil
	}

	var c *client.Client
	var err error
	switch s.cfg.Transport {
	case "stdio":
		c, err = client.NewStdioMCPClient(s.cfg.Command, envToSlice(s.cfg.Env), s.cfg.Args...)
	case "sse":
		c, err = client.NewSSEMCPClient(s.cfg.URL)
	case "streamable_http":
		c, err = client.NewStreamableHttpClient(s.cfg.URL)
	case "websocket":
		// mcp-go has no native websocket transport; streamable_http
		// covers the same bidirectional-over-HTTP shape in practice,
		// so websocket-configured servers reuse it.
		c, err = client.NewStreamableHttpClient(s.cfg.URL)
	default:
		return nil, fmt.Errorf("mcpclient: unsupported transport %q", s.cfg.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("mcpclient: build client: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, DefaultSSETimeout)
	defer cancel()
	if _, err := c.Initialize(initCtx, mcp.InitializeRequest{}); err != nil {
		return nil, fmt.Errorf("mcpclient: initialize: %w", err)
	}

	s.client = c
	s.connected = true
	return c, nil
}

// GetTools enumerates tools exposed by a server, connecting lazily.
func (h *Helper) GetTools(ctx context.Context, serverName string) ([]ToolDescriptor, error) {
	s, err := h.lookup(serverName)
	if err != nil {
		return nil, err
	}
	c, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		return nil, fmt.Errorf("mcpclient: list tools on %q: %w", serverName, err)
	}
	out := make([]ToolDescriptor, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		out = append(out, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
		})
	}
	return out, nil
}

// CallTool invokes a named tool on a named server with JSON-ish args.
func (h *Helper) CallTool(ctx context.Context, serverName, toolName string, args map[string]interface{}) (string, error) {
	s, err := h.lookup(serverName)
	if err != nil {
		return "", err
	}
	c, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	resp, err := c.CallTool(ctx, req)
	if err != nil {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		return "", fmt.Errorf("mcpclient: call %s/%s: %w", serverName, toolName, err)
	}
	var text string
	for _, content := range resp.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			text += tc.Text
		}
	}
	return text, nil
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]interface{} {
	return map[string]interface{}{
		"type":       schema.Type,
		"properties": schema.Properties,
		"required":   schema.Required,
	}
}

func envToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
