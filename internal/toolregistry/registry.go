package toolregistry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Limits on tool name/params size, mirrored from the teacher's own
// resource-exhaustion guard.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20 // 10MB
)

// Aliases maps informal/legacy tool names to their canonical registered
// name, the same normalization the teacher's tools/policy package
// applies before permission matching.
var Aliases = map[string]string{
	"bash":         "Bash",
	"shell":        "Bash",
	"apply-patch":  "Edit",
	"apply_patch":  "Edit",
}

// NormalizeTool resolves an alias to its canonical name; unrecognized
// names pass through unchanged.
func NormalizeTool(name string) string {
	if canon, ok := Aliases[name]; ok {
		return canon
	}
	return name
}

// MCPToolName builds the wire name for an MCP-provided tool:
// mcp__<server>__<tool>.
func MCPToolName(server, tool string) string {
	return fmt.Sprintf("mcp__%s__%s", server, tool)
}

// PluginToolName builds the wire name for a plugin-provided slash
// command/tool: <plugin>:<tool>.
func PluginToolName(plugin, tool string) string {
	return plugin + ":" + tool
}

// Registry maps tool name to its Tool implementation, thread-safe for
// concurrent registration and lookup.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	schemas  map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry. Returns an error if the name
// collides with an already-registered tool (a startup error per
// SPEC_FULL.md §4.B Resolution rules) or if its schema does not compile.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("toolregistry: duplicate tool name %q", name)
	}

	compiled, err := compileSchema(name, t.Schema())
	if err != nil {
		return fmt.Errorf("toolregistry: tool %q has invalid schema: %w", name, err)
	}

	r.tools[name] = t
	r.schemas[name] = compiled
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	c := jsonschema.NewCompiler()
	url := "tool://" + name + ".schema.json"
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name, for system-prompt assembly
// and mode-based tool-set filtering.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

// Execute validates name length, parameter size, and parameter schema,
// then dispatches to the named tool. Validation failures are returned as
// a failed ToolResult rather than an error, matching the engine's
// ToolParseError/ToolExecutionError split in SPEC_FULL.md §7 (only
// registry-internal bugs — an unregistered call getting this far — are
// true Go errors).
func (r *Registry) Execute(name string, args json.RawMessage, tc *ToolContext) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return &ToolResult{Success: false, Error: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)}, nil
	}
	if len(args) > MaxToolParamsSize {
		return &ToolResult{Success: false, Error: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)}, nil
	}

	r.mu.RLock()
	t, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return &ToolResult{Success: false, Error: "tool not found: " + name}, nil
	}

	if schema != nil && len(args) > 0 {
		var v any
		if err := json.Unmarshal(args, &v); err != nil {
			return &ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}, nil
		}
		if err := schema.Validate(v); err != nil {
			return &ToolResult{Success: false, Error: "invalid arguments: " + err.Error()}, nil
		}
	}

	return t.Execute(args, tc)
}

// SystemPromptFragments concatenates each enabled tool's optional
// Prompt() text, in the order the names appear in enabled, for composing
// the system prompt (§4.F.3a).
func (r *Registry) SystemPromptFragments(enabled []string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	for _, name := range enabled {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		if p := t.Prompt(); p != "" {
			b.WriteString(p)
			b.WriteString("\n")
		}
	}
	return b.String()
}
