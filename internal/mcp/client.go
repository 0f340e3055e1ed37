package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Client is an MCP client connected to a single server, grounded on
// the teacher's Client narrowed to the tool-only subset this runtime's
// Tool Registry consumes (no resources/prompts/sampling).
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	mu         sync.RWMutex
	tools      []*MCPTool
	serverInfo ServerInfo
}

// NewClient builds a Client. Connect must be called before use.
func NewClient(cfg *ServerConfig, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	transport, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: transport,
		logger:    logger.With("mcp_server", cfg.ID),
	}, nil
}

// Connect dials the server, performs the initialize handshake, and
// caches its tool list.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("mcp: transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "waveagent", "version": "0.1.0"},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("mcp: initialize: %w", err)
	}
	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("mcp: parse initialize result: %w", err)
	}
	c.serverInfo = initResult.ServerInfo
	c.logger.Info("connected to MCP server", "name", c.serverInfo.Name, "version", c.serverInfo.Version)

	if err := c.refreshTools(ctx); err != nil {
		c.logger.Warn("failed to list tools", "error", err)
	}
	return nil
}

func (c *Client) refreshTools(ctx context.Context) error {
	result, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	var resp ListToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()
	c.logger.Debug("refreshed tools", "count", len(resp.Tools))
	return nil
}

func (c *Client) Close() error { return c.transport.Close() }

func (c *Client) Config() *ServerConfig { return c.config }

func (c *Client) ServerInfo() ServerInfo { return c.serverInfo }

func (c *Client) Connected() bool { return c.transport.Connected() }

// Tools returns the cached tool list from the last Connect/refresh.
func (c *Client) Tools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*MCPTool, len(c.tools))
	copy(out, c.tools)
	return out
}

// CallTool invokes tools/call and parses its result.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error) {
	result, err := c.transport.Call(ctx, "tools/call", CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("mcp: parse tool call result: %w", err)
	}
	return &callResult, nil
}
