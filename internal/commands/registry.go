package commands

import (
	"sort"
	"strings"
	"sync"
)

// Registry holds the slash commands discovered for one project (plus
// any plugin-contributed ones merged in by the host), keyed by name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]SlashCommand
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]SlashCommand)}
}

// Load discovers commands under root and merges them in, overwriting
// any existing entry with the same name (last load wins — used to let
// plugin commands load after project commands, or vice versa, at the
// host's discretion). Returns per-file parse errors; a failed load
// still merges whatever parsed successfully.
func (r *Registry) Load(root string) []error {
	cmds, errs := Discover(root)
	r.mu.Lock()
	for _, c := range cmds {
		r.byName[c.Name] = c
	}
	r.mu.Unlock()
	return errs
}

// Add merges already-parsed commands in directly (last-load-wins, same
// as Load) — the entry point internal/plugins uses to fold a plugin's
// namespaced commands into a project's registry without re-discovering
// from disk.
func (r *Registry) Add(cmds ...SlashCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		r.byName[c.Name] = c
	}
}

// Get looks up a command by name (case-sensitive, matching
// spec.md §4.B's tool-name resolution convention).
func (r *Registry) Get(name string) (SlashCommand, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	return cmd, ok
}

// List returns every registered command, sorted by name.
func (r *Registry) List() []SlashCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SlashCommand, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParseInvocation splits a `/name rest of the line` message into the
// command name and its raw argument text, or ok=false if text doesn't
// start with a slash command.
func ParseInvocation(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	text = text[1:]
	if text == "" {
		return "", "", false
	}
	parts := strings.SplitN(text, " ", 2)
	name = parts[0]
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args, true
}
