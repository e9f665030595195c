// Package mcp connects the gateway to MCP-style external tool servers
// declared by skills (§3 Skill, §4.8) and merges their tool catalogs into
// the shared tools.Registry. Servers are connected once at startup, per
// declared name — there is no DB-backed dynamic registration here, unlike
// the teacher's managed-mode MCP manager.
//
// Grounded on the teacher's internal/mcp/manager*.go connect/tool-merge/
// dispatch pattern (mark3labs/mcp-go stdio client, health-check + backoff
// reconnect loop), trimmed to the config-declared, stdio-only, startup-only
// subset this spec describes (no SSE/streamable-http transports, no
// DB-backed per-agent permission filtering).
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/omegagate/internal/tools"
)

const (
	healthCheckInterval  = 30 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 5
)

// ServerSpec is a skill's MCP server declaration (§3 Skill.MCPServers).
type ServerSpec struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

type serverState struct {
	name      string
	client    *mcpclient.Client
	connected atomic.Bool
	toolNames []string
	cancel    context.CancelFunc

	mu             sync.Mutex
	reconnAttempts int
}

// Manager owns one connection per declared MCP server and the bridged tools
// it registers into a shared tools.Registry.
type Manager struct {
	mu       sync.RWMutex
	servers  map[string]*serverState
	registry *tools.Registry
}

func NewManager(registry *tools.Registry) *Manager {
	return &Manager{servers: make(map[string]*serverState), registry: registry}
}

// Connect establishes every declared server. A single failing server is
// logged and skipped — it does not abort startup (§7: recoverable errors
// are logged and locally absorbed).
func (m *Manager) Connect(ctx context.Context, specs []ServerSpec) {
	for _, spec := range specs {
		if err := m.connectServer(ctx, spec); err != nil {
			slog.Warn("mcp.server.connect_failed", "server", spec.Name, "error", err)
		}
	}
}

func (m *Manager) connectServer(ctx context.Context, spec ServerSpec) error {
	m.mu.RLock()
	_, exists := m.servers[spec.Name]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	envSlice := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		envSlice = append(envSlice, fmt.Sprintf("%s=%s", k, v))
	}
	client, err := mcpclient.NewStdioMCPClient(spec.Command, envSlice, spec.Args...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "omegagate", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	toolsResult, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	ss := &serverState{name: spec.Name, client: client}
	ss.connected.Store(true)

	var registered []string
	for _, mcpTool := range toolsResult.Tools {
		bt := NewBridgeTool(spec.Name, mcpTool, client, &ss.connected)
		if _, exists := m.registry.Get(bt.Name()); exists {
			slog.Warn("mcp.tool.name_collision", "server", spec.Name, "tool", bt.Name())
			continue
		}
		m.registry.Register(bt)
		registered = append(registered, bt.Name())
	}
	ss.toolNames = registered

	hctx, hcancel := context.WithCancel(context.Background())
	ss.cancel = hcancel
	go m.healthLoop(hctx, ss)

	m.mu.Lock()
	m.servers[spec.Name] = ss
	m.mu.Unlock()

	slog.Info("mcp.server.connected", "server", spec.Name, "tools", len(registered))
	return nil
}

func (m *Manager) healthLoop(ctx context.Context, ss *serverState) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ss.client.Ping(ctx); err != nil {
				ss.connected.Store(false)
				slog.Warn("mcp.server.health_failed", "server", ss.name, "error", err)
				m.tryReconnect(ctx, ss)
			} else {
				ss.connected.Store(true)
				ss.mu.Lock()
				ss.reconnAttempts = 0
				ss.mu.Unlock()
			}
		}
	}
}

func (m *Manager) tryReconnect(ctx context.Context, ss *serverState) {
	ss.mu.Lock()
	if ss.reconnAttempts >= maxReconnectAttempts {
		ss.mu.Unlock()
		return
	}
	ss.reconnAttempts++
	attempt := ss.reconnAttempts
	ss.mu.Unlock()

	backoff := initialBackoff * time.Duration(1<<(attempt-1))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}
	if err := ss.client.Ping(ctx); err == nil {
		ss.connected.Store(true)
		ss.mu.Lock()
		ss.reconnAttempts = 0
		ss.mu.Unlock()
		slog.Info("mcp.server.reconnected", "server", ss.name)
	}
}

// Shutdown closes every connected server.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ss := range m.servers {
		if ss.cancel != nil {
			ss.cancel()
		}
		if ss.client != nil {
			_ = ss.client.Close()
		}
	}
	m.servers = make(map[string]*serverState)
}

// ConnectedNames returns the currently-registered server names, for /doctor.
func (m *Manager) ConnectedNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	return names
}
