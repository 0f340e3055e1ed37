// Package plugins implements `<plugin>/.wave-plugin/plugin.json`
// discovery and loading: a plugin bundles its own `commands/`,
// `agents/`, `skills/`, and `hooks/` directories, loaded through the
// same loaders the project-level `.wave/` tree uses, per SPEC_FULL.md
// §6's on-disk surface and EXTERNAL INTERFACES section. Grounded on
// _examples/haasonsaas-nexus/internal/plugins/discovery.go's path
// validation and manifest-directory-walk pattern, narrowed from that
// teacher's JSON-schema-configured channel/provider plugin model
// (pkg/pluginsdk.Manifest's ConfigSchema/Channels/Providers) down to
// this spec's much simpler sibling-directory contribution model — a
// plugin here is a bundle of command/agent/skill/hook files, not a
// configured runtime extension point.
package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// manifestFilename is the file a plugin's directory must contain.
const manifestFilename = "plugin.json"

// pluginDir is the directory name, sibling to a plugin's commands/
// agents/skills/hooks directories, that holds plugin.json.
const pluginDir = ".wave-plugin"

// Manifest is one `<plugin>/.wave-plugin/plugin.json` definition.
type Manifest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Validate enforces the minimal required-field contract: an id and a
// name.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("plugins: manifest missing required field id")
	}
	if m.Name == "" {
		return fmt.Errorf("plugins: manifest missing required field name")
	}
	return nil
}

// DecodeManifest parses plugin.json content.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("plugins: decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeManifestFile reads and parses one plugin.json file.
func DecodeManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugins: read %s: %w", path, err)
	}
	return DecodeManifest(data)
}

// manifestPath returns the expected plugin.json path under a plugin's
// root directory.
func manifestPath(pluginRoot string) string {
	return filepath.Join(pluginRoot, pluginDir, manifestFilename)
}
