// Package commands implements custom slash-command discovery and
// expansion: `.wave/commands/**/*.md` files with optional YAML front
// matter, grounded on
// _examples/haasonsaas-nexus/internal/commands's Command/Registry/
// Parser trio, narrowed from that teacher's bot-command dispatch
// (aliases, admin gating, categories, a Handler callback) to
// SPEC_FULL.md §6's simpler file-backed contract: a command's body,
// after `$ARGUMENTS`/`$1`.."$9" substitution and `` !`cmd` `` shell-out
// expansion, becomes the user-turn text sent to the LLM rather than
// being dispatched to a registered Go handler.
package commands

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

const frontmatterDelimiter = "---"

// SlashCommand is one `.wave/commands/**/*.md` definition.
type SlashCommand struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	AllowedTools []string `yaml:"allowed-tools"`
	Model        string   `yaml:"model"`
	Body         string   `yaml:"-"`
	Path         string   `yaml:"-"`
}

// ParseFile reads and parses one command file. root is the commands
// directory it was discovered under, used to derive Name from the
// file's path when front matter omits it (nested directories become
// `/`-namespaced names, e.g. `git/commit.md` -> "git/commit").
func ParseFile(root, path string) (SlashCommand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SlashCommand{}, fmt.Errorf("commands: read %s: %w", path, err)
	}
	cmd, err := Parse(data)
	if err != nil {
		return SlashCommand{}, fmt.Errorf("commands: parse %s: %w", path, err)
	}
	cmd.Path = path
	if cmd.Name == "" {
		cmd.Name = nameFromPath(root, path)
	}
	return cmd, nil
}

// Parse splits optional front matter from body and unmarshals the
// command. A file with no front matter is valid: the whole file is the
// body and Name is left empty for the caller to derive from its path.
func Parse(data []byte) (SlashCommand, error) {
	frontmatter, body, hasFrontmatter := splitFrontmatter(data)
	if !hasFrontmatter {
		return SlashCommand{Body: strings.TrimSpace(string(data))}, nil
	}
	var cmd SlashCommand
	if err := yaml.Unmarshal(frontmatter, &cmd); err != nil {
		return SlashCommand{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	cmd.Body = strings.TrimSpace(string(body))
	return cmd, nil
}

// splitFrontmatter returns (frontmatter, body, true) if data opens with
// a `---` delimited block, or (nil, data, false) otherwise.
func splitFrontmatter(data []byte) ([]byte, []byte, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, data, false
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
		return nil, data, false
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	return []byte(strings.Join(fmLines, "\n")), []byte(strings.Join(bodyLines, "\n")), true
}

func nameFromPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.ToSlash(rel)
}

// Discover walks root (typically `.wave/commands`) for `*.md` command
// files. A file that fails to parse is skipped rather than aborting
// discovery, matching internal/subagent's Discover.
func Discover(root string) ([]SlashCommand, []error) {
	var cmds []SlashCommand
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
		cmd, perr := ParseFile(root, path)
		if perr != nil {
			errs = append(errs, perr)
			return nil
		}
		cmds = append(cmds, cmd)
		return nil
	})

	return cmds, errs
}
