package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// grpcBridgeMethod is the fixed fully-qualified method this transport
// invokes on every MCP-over-gRPC server: a single generic "Call" RPC
// taking and returning a google.protobuf.Struct, so this client needs
// no server-specific generated stubs to talk to any of them — only the
// JSON-RPC envelope carried inside the Struct varies per call.
const grpcBridgeMethod = "/mcp.v1.Bridge/Call"

// GRPCTransport dials cfg.URL once and invokes grpcBridgeMethod per
// call, marshaling the JSON-RPC envelope into a structpb.Struct.
// Grounded on the transport-interface shape of the teacher's
// StdioTransport/HTTPTransport, adapted for servers that expose a gRPC
// surface instead of a process or HTTP endpoint.
type GRPCTransport struct {
	config *ServerConfig
	conn   *grpc.ClientConn
	nextID atomic.Int64

	connected atomic.Bool
}

// NewGRPCTransport builds a GRPCTransport. Connect dials cfg.URL.
func NewGRPCTransport(cfg *ServerConfig) *GRPCTransport {
	return &GRPCTransport{config: cfg}
}

func (t *GRPCTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("mcp: url is required for grpc transport")
	}
	conn, err := grpc.NewClient(t.config.URL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("mcp: dial %s: %w", t.config.URL, err)
	}
	t.conn = conn

	if _, err := t.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "waveagent", "version": "0.1"},
	}); err != nil {
		conn.Close()
		return fmt.Errorf("mcp: initialize %s: %w", t.config.ID, err)
	}
	t.connected.Store(true)
	return nil
}

func (t *GRPCTransport) Close() error {
	t.connected.Store(false)
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *GRPCTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("mcp: not connected")
	}

	req := JSONRPCRequest{JSONRPC: "2.0", ID: t.nextID.Add(1), Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("mcp: marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	reqStruct, err := toStruct(req)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode request: %w", err)
	}

	timeout := t.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	respStruct := &structpb.Struct{}
	if err := t.conn.Invoke(callCtx, grpcBridgeMethod, reqStruct, respStruct); err != nil {
		return nil, fmt.Errorf("mcp: grpc call %s: %w", method, err)
	}

	respJSON, err := respStruct.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("mcp: decode response: %w", err)
	}
	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(respJSON, &rpcResp); err != nil {
		return nil, fmt.Errorf("mcp: unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (t *GRPCTransport) Connected() bool { return t.connected.Load() }

// toStruct round-trips v through JSON to build a structpb.Struct,
// since structpb has no direct arbitrary-struct constructor.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
