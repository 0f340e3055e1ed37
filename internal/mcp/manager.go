package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// ManagerConfig holds the set of servers a Manager connects to,
// typically the .wave/settings.json "mcp" section.
type ManagerConfig struct {
	Enabled bool           `yaml:"enabled" json:"enabled"`
	Servers []ServerConfig `yaml:"servers,omitempty" json:"servers,omitempty"`
}

// Manager owns one Client per configured server, grounded on the
// teacher's Manager narrowed to tool lookup/call (no resources or
// prompts, matching Client's narrower surface).
type Manager struct {
	config  *ManagerConfig
	logger  *slog.Logger
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewManager builds a Manager. Start connects every AutoStart server.
func NewManager(cfg *ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:  cfg,
		logger:  logger.With("component", "mcp"),
		clients: make(map[string]*Client),
	}
}

func (m *Manager) Start(ctx context.Context) error {
	if m.config == nil || !m.config.Enabled {
		m.logger.Debug("mcp disabled")
		return nil
	}
	for _, serverCfg := range m.config.Servers {
		if !serverCfg.AutoStart {
			continue
		}
		if err := m.Connect(ctx, serverCfg.ID); err != nil {
			m.logger.Error("failed to connect to MCP server", "server", serverCfg.ID, "error", err)
		}
	}
	return nil
}

func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		if err := client.Close(); err != nil {
			m.logger.Error("failed to close MCP client", "server", id, "error", err)
		}
		delete(m.clients, id)
	}
	return nil
}

func (m *Manager) Connect(ctx context.Context, serverID string) error {
	var serverCfg *ServerConfig
	for i := range m.config.Servers {
		if m.config.Servers[i].ID == serverID {
			serverCfg = &m.config.Servers[i]
			break
		}
	}
	if serverCfg == nil {
		return fmt.Errorf("mcp: server %q not found in config", serverID)
	}

	m.mu.RLock()
	_, exists := m.clients[serverID]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	client, err := NewClient(serverCfg, m.logger)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.clients[serverID] = client
	m.mu.Unlock()
	m.logger.Info("connected to MCP server", "server", serverID, "name", client.ServerInfo().Name)
	return nil
}

func (m *Manager) Disconnect(serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, exists := m.clients[serverID]
	if !exists {
		return nil
	}
	if err := client.Close(); err != nil {
		return err
	}
	delete(m.clients, serverID)
	m.logger.Info("disconnected from MCP server", "server", serverID)
	return nil
}

// Client returns the connected client for serverID, if any.
func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, exists := m.clients[serverID]
	return client, exists
}

// AllTools returns every connected server's tool list, keyed by server ID.
func (m *Manager) AllTools() map[string][]*MCPTool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]*MCPTool, len(m.clients))
	for id, client := range m.clients {
		if tools := client.Tools(); len(tools) > 0 {
			result[id] = tools
		}
	}
	return result
}

// FindTool finds a tool by name across all connected servers.
func (m *Manager) FindTool(name string) (serverID string, tool *MCPTool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, client := range m.clients {
		for _, t := range client.Tools() {
			if t.Name == name {
				return id, t
			}
		}
	}
	return "", nil
}

// CallTool calls toolName on serverID with the given arguments.
func (m *Manager) CallTool(ctx context.Context, serverID, toolName string, arguments json.RawMessage) (*ToolCallResult, error) {
	client, exists := m.Client(serverID)
	if !exists {
		return nil, fmt.Errorf("mcp: server %q not connected", serverID)
	}
	return client.CallTool(ctx, toolName, arguments)
}

// Status summarizes each configured server's connection state, for a
// /mcp status-style diagnostic command.
type Status struct {
	ID        string `json:"id"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"toolCount"`
}

func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.config.Servers))
	for _, serverCfg := range m.config.Servers {
		client, exists := m.clients[serverCfg.ID]
		st := Status{ID: serverCfg.ID}
		if exists {
			st.Connected = client.Connected()
			st.ToolCount = len(client.Tools())
		}
		out = append(out, st)
	}
	return out
}
