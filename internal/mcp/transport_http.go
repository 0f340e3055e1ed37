package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// HTTPTransport sends one JSON-RPC request per POST to cfg.URL. Each
// call is a synchronous round trip, so unlike StdioTransport there is
// no reader goroutine or pending-response map.
type HTTPTransport struct {
	config *ServerConfig
	client *http.Client
	nextID atomic.Int64

	connected atomic.Bool
}

// NewHTTPTransport builds an HTTPTransport. Connect only verifies the
// server is reachable; the transport itself is otherwise stateless.
func NewHTTPTransport(cfg *ServerConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("mcp: url is required for http transport")
	}
	if _, err := t.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "waveagent", "version": "0.1"},
	}); err != nil {
		return fmt.Errorf("mcp: initialize %s: %w", t.config.ID, err)
	}
	t.connected.Store(true)
	return nil
}

func (t *HTTPTransport) Close() error {
	t.connected.Store(false)
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req := JSONRPCRequest{JSONRPC: "2.0", ID: t.nextID.Add(1), Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("mcp: marshal params: %w", err)
		}
		req.Params = paramsJSON
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mcp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mcp: http call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mcp: http call %s: status %d", method, resp.StatusCode)
	}

	var rpcResp JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("mcp: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (t *HTTPTransport) Connected() bool { return t.connected.Load() }
