package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	protocolVersion = "2024-11-05"
	requestTimeout  = 30 * time.Second
	shutdownGrace   = 5 * time.Second
	clientName      = "inkling"
	clientVersion   = "1.0.0"
)

// ServerConfig describes one MCP server. Transport is "stdio" or "http".
type ServerConfig struct {
	Transport string            `yaml:"transport" json:"transport"`
	Command   string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	URL       string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Enabled   *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled treats a missing enabled field as on.
func (c ServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Tool is a remote tool registered under "{server}__{local}".
type Tool struct {
	Server      string
	Name        string // local name on the server
	FullName    string
	Description string
	InputSchema json.RawMessage
}

// ServerStatus reports the connection status of one MCP server.
type ServerStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"tool_count"`
	Error     string `json:"error,omitempty"`
}

type transport interface {
	call(ctx context.Context, req request) (*response, error)
	notify(ctx context.Context, req request) error
	close(grace time.Duration) error
}

type serverState struct {
	name      string
	transport string
	conn      transport
	connected atomic.Bool
	toolNames []string
	lastErr   string
}

// Manager owns the MCP server connections, the tool registry, and request
// id allocation. One Manager serves the whole process.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*serverState
	tools   []Tool // registration order preserved
	nextID  atomic.Int64

	coreServers map[string]struct{}
	softCap     int
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithCoreServers marks servers whose tools are always offered to the
// model regardless of the query.
func WithCoreServers(names []string) ManagerOption {
	return func(m *Manager) {
		for _, n := range names {
			m.coreServers[n] = struct{}{}
		}
	}
}

// WithToolCap sets the soft cap applied by ToolsForQuery.
func WithToolCap(n int) ManagerOption {
	return func(m *Manager) { m.softCap = n }
}

// NewManager creates a Manager with no servers connected.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		servers:     make(map[string]*serverState),
		coreServers: make(map[string]struct{}),
		softCap:     defaultSoftCap,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start connects every enabled server. A server that fails to come up is
// logged and skipped; the manager keeps running with whatever connected.
func (m *Manager) Start(ctx context.Context, configs map[string]ServerConfig) {
	for name, cfg := range configs {
		if !cfg.IsEnabled() {
			slog.Info("mcp.server.disabled", "server", name)
			continue
		}
		if err := m.StartServer(ctx, name, cfg); err != nil {
			slog.Warn("mcp.server.connect_failed", "server", name, "error", err)
		}
	}
}

// StartServer connects one server: transport up, initialize handshake,
// notifications/initialized, then tool discovery.
func (m *Manager) StartServer(ctx context.Context, name string, cfg ServerConfig) error {
	var (
		conn transport
		err  error
	)
	switch cfg.Transport {
	case "stdio":
		conn, err = newStdioTransport(name, cfg.Command, cfg.Args, cfg.Env)
	case "http":
		conn = newHTTPTransport(name, cfg.URL, cfg.Headers)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	if err := m.initialize(ctx, conn); err != nil {
		_ = conn.close(shutdownGrace)
		return fmt.Errorf("initialize: %w", err)
	}

	tools, err := m.discoverTools(ctx, name, conn)
	if err != nil {
		_ = conn.close(shutdownGrace)
		return fmt.Errorf("list tools: %w", err)
	}

	ss := &serverState{name: name, transport: cfg.Transport, conn: conn}
	ss.connected.Store(true)

	m.mu.Lock()
	for _, t := range tools {
		if m.findTool(t.FullName) != nil {
			slog.Warn("mcp.tool.name_collision", "server", name, "tool", t.FullName, "action", "skipped")
			continue
		}
		m.tools = append(m.tools, t)
		ss.toolNames = append(ss.toolNames, t.FullName)
	}
	m.servers[name] = ss
	m.mu.Unlock()

	slog.Info("mcp.server.connected", "server", name, "transport", cfg.Transport, "tools", len(ss.toolNames))
	return nil
}

func (m *Manager) initialize(ctx context.Context, conn transport) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}
	if _, err := m.request(ctx, conn, "initialize", params); err != nil {
		return err
	}
	return conn.notify(ctx, newNotification("notifications/initialized", nil))
}

func (m *Manager) discoverTools(ctx context.Context, server string, conn transport) ([]Tool, error) {
	resp, err := m.request(ctx, conn, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode tool list: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, Tool{
			Server:      server,
			Name:        t.Name,
			FullName:    server + "__" + t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return tools, nil
}

// request allocates a fresh id and sends with the standard per-request
// timeout.
func (m *Manager) request(ctx context.Context, conn transport, method string, params any) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return conn.call(ctx, newRequest(m.nextID.Add(1), method, params))
}

// CallTool invokes a tool by its full "{server}__{local}" name and returns
// the textual payload of the result.
func (m *Manager) CallTool(ctx context.Context, fullName string, args map[string]any) (string, error) {
	server, local, ok := strings.Cut(fullName, "__")
	if !ok {
		return "", fmt.Errorf("malformed tool name %q", fullName)
	}

	m.mu.RLock()
	ss := m.servers[server]
	m.mu.RUnlock()
	if ss == nil {
		return "", fmt.Errorf("unknown MCP server %q", server)
	}

	params := map[string]any{"name": local, "arguments": args}
	resp, err := m.request(ctx, ss.conn, "tools/call", params)
	if err != nil {
		return "", err
	}
	return extractText(resp.Result), nil
}

// extractText pulls result.content[0].text when present, otherwise the
// stringified result.
func extractText(result json.RawMessage) string {
	var payload struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(result, &payload); err == nil && len(payload.Content) > 0 && payload.Content[0].Text != "" {
		return payload.Content[0].Text
	}
	return string(result)
}

// Tools returns all registered tools in registration order.
func (m *Manager) Tools() []Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Tool, len(m.tools))
	copy(out, m.tools)
	return out
}

// findTool requires m.mu held.
func (m *Manager) findTool(fullName string) *Tool {
	for i := range m.tools {
		if m.tools[i].FullName == fullName {
			return &m.tools[i]
		}
	}
	return nil
}

// ServerStatus reports every configured server.
func (m *Manager) ServerStatus() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	statuses := make([]ServerStatus, 0, len(m.servers))
	for _, ss := range m.servers {
		statuses = append(statuses, ServerStatus{
			Name:      ss.name,
			Transport: ss.transport,
			Connected: ss.connected.Load(),
			ToolCount: len(ss.toolNames),
			Error:     ss.lastErr,
		})
	}
	return statuses
}

// Stop closes every connection. Child processes get a SIGTERM grace window
// before being killed.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, ss := range m.servers {
		if err := ss.conn.close(shutdownGrace); err != nil {
			slog.Debug("mcp.server.close_error", "server", name, "error", err)
		}
	}
	m.servers = make(map[string]*serverState)
	m.tools = nil
}
