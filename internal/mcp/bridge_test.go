package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/waveforge/wave/internal/toolregistry"
)

func TestSafeToolNameUsesDoubleUnderscoreConvention(t *testing.T) {
	used := make(map[string]struct{})
	name := safeToolName("git-hub", "search/repo", used)
	if name != "mcp__git_hub__search_repo" {
		t.Fatalf("expected double-underscore namespaced name, got %q", name)
	}
}

func TestSafeToolNameDeduplicates(t *testing.T) {
	used := make(map[string]struct{})
	first := safeToolName("foo-bar", "baz", used)
	second := safeToolName("foo_bar", "baz", used)

	if first == second {
		t.Fatalf("expected unique name for duplicate tool, got %q", second)
	}
	if !strings.HasPrefix(second, first+"_") {
		t.Fatalf("expected duplicate name to carry a numeric suffix, got %q", second)
	}
}

func TestSafeToolNameTruncatesLongNames(t *testing.T) {
	used := make(map[string]struct{})
	serverID := strings.Repeat("server", 10)
	toolName := strings.Repeat("tool", 10)
	name := safeToolName(serverID, toolName, used)

	if len(name) > maxToolNameLen {
		t.Fatalf("expected name length <= %d, got %d (%q)", maxToolNameLen, len(name), name)
	}
	if !strings.HasPrefix(name, "mcp__") {
		t.Fatalf("expected hashed name to keep the mcp__ prefix, got %q", name)
	}
}

func TestCanonicalToolName(t *testing.T) {
	if got := canonicalToolName("github", "search_repo"); got != "mcp:github.search_repo" {
		t.Fatalf("unexpected canonical name %q", got)
	}
}

func TestToolBridgeExecuteSuccess(t *testing.T) {
	mgr := &Manager{config: &ManagerConfig{Enabled: true}, clients: map[string]*Client{
		"github": {
			config:    &ServerConfig{ID: "github"},
			transport: &fakeTransport{result: json.RawMessage(`{"content":[{"type":"text","text":"ok"}]}`)},
		},
	}}
	tool := &MCPTool{Name: "search_repo", Description: "search repos"}
	bridge := NewToolBridge(mgr, "github", tool, "mcp__github__search_repo")

	result, err := bridge.Execute(json.RawMessage(`{"q":"wave"}`), &toolregistry.ToolContext{Context: context.Background()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.Content != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestToolBridgeExecutePropagatesToolError(t *testing.T) {
	mgr := &Manager{config: &ManagerConfig{Enabled: true}, clients: map[string]*Client{
		"github": {
			config:    &ServerConfig{ID: "github"},
			transport: &fakeTransport{result: json.RawMessage(`{"content":[{"type":"text","text":"bad input"}],"isError":true}`)},
		},
	}}
	tool := &MCPTool{Name: "search_repo"}
	bridge := NewToolBridge(mgr, "github", tool, "mcp__github__search_repo")

	result, err := bridge.Execute(json.RawMessage(`{}`), &toolregistry.ToolContext{Context: context.Background()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Error != "bad input" {
		t.Fatalf("expected propagated tool error, got %+v", result)
	}
}

func TestFormatCompactParams(t *testing.T) {
	tool := &MCPTool{Name: "search_repo"}
	bridge := NewToolBridge(nil, "github", tool, "mcp__github__search_repo")
	got := bridge.FormatCompactParams(json.RawMessage(`{"q":"wave","limit":5}`), nil)
	if !strings.HasPrefix(got, "search_repo(") {
		t.Fatalf("unexpected compact params %q", got)
	}
}

// fakeTransport lets bridge/client tests avoid a real subprocess or
// socket: Call answers the initialize handshake itself and returns the
// same canned response for every other method, mirroring the teacher's
// fakeToolCaller.
type fakeTransport struct {
	result json.RawMessage
	err    error
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }
func (f *fakeTransport) Close() error                      { return nil }
func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if method == "initialize" {
		return json.RawMessage(`{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake","version":"1"}}`), nil
	}
	return f.result, f.err
}
func (f *fakeTransport) Connected() bool { return true }
