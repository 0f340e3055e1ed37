package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/waveforge/wave/internal/commands"
	"github.com/waveforge/wave/internal/hookpipeline"
)

// pluginRootVar is the variable SPEC_FULL.md's plugin contract
// substitutes with a plugin's own absolute root directory inside a
// contributed command's body, letting a bash snippet reference bundled
// scripts without hardcoding the plugin's install location.
const pluginRootVar = "$WAVE_PLUGIN_ROOT"

// LoadCommands discovers p's commands/ directory through the same
// internal/commands.Discover every project-level command uses,
// namespaces each one `<plugin-id>:<name>` per SPEC_FULL.md's wire
// convention, and substitutes pluginRootVar in each command's body.
func LoadCommands(p Plugin) ([]commands.SlashCommand, []error) {
	discovered, errs := commands.Discover(p.CommandsDir())
	out := make([]commands.SlashCommand, len(discovered))
	for i, c := range discovered {
		c.Name = p.CommandNamespace() + c.Name
		c.Body = strings.ReplaceAll(c.Body, pluginRootVar, p.Root)
		out[i] = c
	}
	return out, errs
}

// LoadHooks reads p's `hooks/hooks.json` file, if present, into the
// same hookpipeline.Config shape a project's `.wave/hooks.json`
// decodes into. A missing file is not an error: a plugin need not
// contribute hooks.
func LoadHooks(p Plugin) ([]hookpipeline.Config, error) {
	path := filepath.Join(p.HooksDir(), "hooks.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugins: read %s: %w", path, err)
	}
	var hooks []hookpipeline.Config
	if err := json.Unmarshal(data, &hooks); err != nil {
		return nil, fmt.Errorf("plugins: parse %s: %w", path, err)
	}
	return hooks, nil
}
