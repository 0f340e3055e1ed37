// Package subagent implements the Sub-Agent Runner: the re-entrant
// mini-engine the Task tool delegates to, grounded on
// internal/multiagent's AgentDefinition/Orchestrator pattern narrowed to
// the single delegation mode SPEC_FULL.md §4.G describes.
package subagent

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatterDelimiter marks the start/end of a sub-agent config file's
// YAML front matter, the same convention the skills parser uses for
// SKILL.md.
const frontmatterDelimiter = "---"

// Config is one sub-agent's configuration: name, description, system
// prompt, allowed tool set, and an optional model override, loaded from
// a `.wave/agents/**/*.md` front-matter file.
type Config struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	AllowedTools []string `yaml:"tools"`
	Model        string   `yaml:"model"`
	SystemPrompt string   `yaml:"-"`
	Path         string   `yaml:"-"`
}

// ParseFile reads and parses one sub-agent config file.
func ParseFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("subagent: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("subagent: parse %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse splits front matter from body and unmarshals the config.
func Parse(data []byte) (Config, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(frontmatter, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	if cfg.Name == "" {
		return Config{}, fmt.Errorf("sub-agent name is required")
	}
	cfg.SystemPrompt = strings.TrimSpace(string(body))
	return cfg, nil
}

func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var fmLines []string
	closed := false
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == frontmatterDelimiter {
			closed = true
			break
		}
		fmLines = append(fmLines, scanner.Text())
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return []byte(strings.Join(fmLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}

// Discover walks root (typically `.wave/agents`) for `*.md` sub-agent
// config files. A file that fails to parse is skipped rather than
// aborting discovery, so one malformed config doesn't disable every
// other sub-agent.
func Discover(root string) ([]Config, []error) {
	var configs []Config
	var errs []error

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			errs = append(errs, err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		cfg, perr := ParseFile(path)
		if perr != nil {
			errs = append(errs, perr)
			return nil
		}
		configs = append(configs, cfg)
		return nil
	})

	return configs, errs
}
