package mcp

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/waveforge/wave/internal/toolregistry"
)

const maxToolNameLen = 64

// ToolBridge wraps one MCP tool from one connected server as a
// toolregistry.Tool, grounded on the teacher's ToolBridge. Tool names
// use the `mcp__<server>__<tool>` double-underscore convention the
// Tool Registry's policy normalization expects, not the teacher's
// single-underscore `mcp_<server>_<tool>` scheme.
type ToolBridge struct {
	manager  *Manager
	serverID string
	tool     *MCPTool
	name     string
}

// NewToolBridge builds a bridge with a precomputed safe name.
func NewToolBridge(mgr *Manager, serverID string, tool *MCPTool, safeName string) *ToolBridge {
	return &ToolBridge{manager: mgr, serverID: serverID, tool: tool, name: safeName}
}

func (b *ToolBridge) Name() string { return b.name }

func (b *ToolBridge) Schema() json.RawMessage {
	if len(b.tool.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return b.tool.InputSchema
}

func (b *ToolBridge) Prompt() string {
	desc := strings.TrimSpace(b.tool.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s, bridged from a connected MCP server.", b.serverID, b.tool.Name)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", b.serverID, b.tool.Name, desc)
}

func (b *ToolBridge) Execute(args json.RawMessage, tc *toolregistry.ToolContext) (*toolregistry.ToolResult, error) {
	result, err := b.manager.CallTool(tc.Context, b.serverID, b.tool.Name, args)
	if err != nil {
		return &toolregistry.ToolResult{Success: false, Error: err.Error()}, nil
	}

	content, isError := formatToolCallResult(result)
	if isError {
		return &toolregistry.ToolResult{Success: false, Error: content}, nil
	}
	return &toolregistry.ToolResult{Success: true, Content: content, ShortResult: shortResult(content)}, nil
}

func (b *ToolBridge) FormatCompactParams(args json.RawMessage, tc *toolregistry.ToolContext) string {
	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil || len(m) == 0 {
		return b.tool.Name
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
		if len(parts) == 3 {
			break
		}
	}
	return fmt.Sprintf("%s(%s)", b.tool.Name, strings.Join(parts, ", "))
}

func formatToolCallResult(result *ToolCallResult) (content string, isError bool) {
	var sb strings.Builder
	for i, c := range result.Content {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(c.Text)
	}
	return sb.String(), result.IsError
}

func shortResult(content string) string {
	const maxLen = 200
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "…"
}

// BridgeTools builds one ToolBridge per tool across all connected
// servers in mgr, assigning each a collision-safe double-underscore
// name.
func BridgeTools(mgr *Manager) []*ToolBridge {
	type entry struct {
		serverID string
		tool     *MCPTool
	}
	var entries []entry
	for serverID, tools := range mgr.AllTools() {
		for _, t := range tools {
			entries = append(entries, entry{serverID: serverID, tool: t})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].serverID != entries[j].serverID {
			return entries[i].serverID < entries[j].serverID
		}
		return entries[i].tool.Name < entries[j].tool.Name
	})

	used := make(map[string]struct{})
	bridges := make([]*ToolBridge, 0, len(entries))
	for _, e := range entries {
		name := safeToolName(e.serverID, e.tool.Name, used)
		bridges = append(bridges, NewToolBridge(mgr, e.serverID, e.tool, name))
	}
	return bridges
}

// safeToolName builds a `mcp__server__tool` name, hashing the suffix
// down when it would exceed maxToolNameLen and disambiguating
// collisions with a numeric suffix.
func safeToolName(serverID, toolName string, used map[string]struct{}) string {
	name := fmt.Sprintf("mcp__%s__%s", sanitizeSegment(serverID), sanitizeSegment(toolName))
	if len(name) > maxToolNameLen {
		name = hashedToolName(serverID, toolName)
	}
	base := name
	for i := 2; ; i++ {
		if _, collides := used[name]; !collides {
			break
		}
		name = fmt.Sprintf("%s_%d", base, i)
		if len(name) > maxToolNameLen {
			name = name[len(name)-maxToolNameLen:]
		}
	}
	used[name] = struct{}{}
	return name
}

func hashedToolName(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	suffix := "mcp__" + hex.EncodeToString(sum[:])[:16]
	if maxToolNameLen <= len(suffix) {
		return suffix[len(suffix)-maxToolNameLen:]
	}
	return suffix
}

func sanitizeSegment(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

// canonicalToolName is the stable `mcp:<server>.<tool>` form used for
// policy aliasing independent of name collisions.
func canonicalToolName(serverID, toolName string) string {
	return fmt.Sprintf("mcp:%s.%s", serverID, toolName)
}
