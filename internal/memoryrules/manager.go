package memoryrules

import (
	"encoding/json"
	"strings"
	"sync"
)

// filePathKeys are the argument keys a tool call's JSON args are
// checked against, in order, to find "the current tool-call's file
// path" the spec gates activation on. Covers every file-path argument
// name this module's builtin tools and commonly-hosted file tools use.
var filePathKeys = []string{"file_path", "path", "filePath", "target"}

// Manager holds the rules discovered from one or more `.wave/rules`
// roots and matches them against tool-call arguments.
type Manager struct {
	mu    sync.RWMutex
	roots []string
	rules []Rule
}

// NewManager builds a Manager that discovers from roots, in order.
func NewManager(roots []string) *Manager {
	return &Manager{roots: roots}
}

// Discover re-walks every configured root, replacing the previous
// result. Per-file parse errors are collected, not fatal.
func (m *Manager) Discover() []error {
	m.mu.RLock()
	roots := append([]string(nil), m.roots...)
	m.mu.RUnlock()

	var all []Rule
	var errs []error
	for _, root := range roots {
		rules, derrs := Discover(root)
		all = append(all, rules...)
		errs = append(errs, derrs...)
	}

	m.mu.Lock()
	m.rules = all
	m.mu.Unlock()
	return errs
}

// All returns every discovered rule.
func (m *Manager) All() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// MatchPath returns every rule active against filePath.
func (m *Manager) MatchPath(filePath string) []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Rule
	for _, r := range m.rules {
		if r.Matches(filePath) {
			out = append(out, r)
		}
	}
	return out
}

// MatchArgs extracts a file path from a tool call's JSON arguments (the
// first of filePathKeys present) and returns the rules active against
// it. Args with no recognizable file-path key match only
// always-active (Paths-empty) rules.
func (m *Manager) MatchArgs(args json.RawMessage) []Rule {
	return m.MatchPath(extractFilePath(args))
}

func extractFilePath(args json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(args, &fields); err != nil {
		return ""
	}
	for _, key := range filePathKeys {
		if v, ok := fields[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// Render concatenates rules' content into one block suitable for
// folding into a tool result or system prompt, separated by blank
// lines.
func Render(rules []Rule) string {
	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		if r.Content != "" {
			parts = append(parts, r.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
