package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transport is the wire-level connection to one MCP server.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	// Call sends a JSON-RPC request and waits for its response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Connected() bool
}

// NewTransport builds the Transport cfg.Transport selects.
func NewTransport(cfg *ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case TransportHTTP:
		return NewHTTPTransport(cfg), nil
	case TransportGRPC:
		return NewGRPCTransport(cfg), nil
	case TransportStdio, "":
		return NewStdioTransport(cfg), nil
	default:
		return nil, fmt.Errorf("mcp: unsupported transport %q", cfg.Transport)
	}
}
