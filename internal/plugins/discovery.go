package plugins

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrPathTraversal indicates a configured plugin path attempted to
// escape its own root via a ".." segment.
var ErrPathTraversal = fmt.Errorf("plugins: path traversal detected")

// ValidatePluginPath cleans path and rejects any ".." segment, before
// or after resolving to an absolute path.
func ValidatePluginPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("plugins: path is empty")
	}
	cleaned := filepath.Clean(path)
	if containsTraversalSegment(cleaned) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("plugins: resolve absolute path: %w", err)
	}
	if containsTraversalSegment(abs) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, abs)
	}
	return abs, nil
}

func containsTraversalSegment(path string) bool {
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// Plugin is one discovered, validated plugin: its manifest plus the
// root directory commands/agents/skills/hooks are resolved relative to.
type Plugin struct {
	Manifest *Manifest
	Root     string
}

// Discover validates and loads the manifest for each configured plugin
// root in paths. A plugin missing its manifest, or one whose manifest
// fails validation, is reported in errs rather than aborting discovery
// of the rest — matching internal/commands.Discover and
// internal/subagent.Discover's per-entry-is-non-fatal convention.
func Discover(paths []string) ([]Plugin, []error) {
	var plugins []Plugin
	var errs []error

	for _, p := range paths {
		root, err := ValidatePluginPath(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		manifest, err := DecodeManifestFile(manifestPath(root))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("plugins: %s: no %s/%s found", root, pluginDir, manifestFilename))
			} else {
				errs = append(errs, err)
			}
			continue
		}
		plugins = append(plugins, Plugin{Manifest: manifest, Root: root})
	}

	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Manifest.ID < plugins[j].Manifest.ID })
	return plugins, errs
}

// CommandsDir, AgentsDir, SkillsDir, and HooksDir return a plugin's
// sibling contribution directories, the ones the host loads through
// internal/commands.Discover, internal/subagent.Discover, and
// internal/skills.Manager.AddRoot respectively.
func (p Plugin) CommandsDir() string { return filepath.Join(p.Root, "commands") }
func (p Plugin) AgentsDir() string   { return filepath.Join(p.Root, "agents") }
func (p Plugin) SkillsDir() string   { return filepath.Join(p.Root, "skills") }
func (p Plugin) HooksDir() string    { return filepath.Join(p.Root, "hooks") }

// CommandNamespace is the `<plugin>:` prefix SPEC_FULL.md's wire
// convention gives every slash command this plugin contributes.
func (p Plugin) CommandNamespace() string { return p.Manifest.ID + ":" }
