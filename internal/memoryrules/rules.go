// Package memoryrules implements `.wave/rules/**/*.md` discovery: extra
// instructions an agent should keep in mind, optionally scoped to tool
// calls touching a matching file path via a `paths:[glob,...]` front
// matter key, per SPEC_FULL.md §6's on-disk surface and supplemented
// features. Grounded on internal/commands/command.go's front-matter
// split (reused verbatim for the parsing half) and
// _examples/haasonsaas-nexus/internal/skills/gating.go's eligibility
// pattern (adapted from bin/env/OS checks to glob-path matching).
package memoryrules

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// Rule is one parsed `.wave/rules/**/*.md` file.
type Rule struct {
	// Paths restricts activation to tool calls whose file path matches
	// one of these filepath.Match-style globs. Empty means the rule is
	// always active.
	Paths []string `yaml:"paths,omitempty"`

	// Content is the markdown body after the optional front-matter
	// block (the whole file, if there is no front matter).
	Content string `yaml:"-"`
	// Path is the file the rule was loaded from.
	Path string `yaml:"-"`
}

// Matches reports whether the rule applies to a tool call touching
// filePath: always-active when Paths is empty, otherwise true if any
// glob matches filePath's base name or the path itself.
func (r Rule) Matches(filePath string) bool {
	if len(r.Paths) == 0 {
		return true
	}
	if filePath == "" {
		return false
	}
	base := filepath.Base(filePath)
	for _, pattern := range r.Paths {
		if ok, _ := filepath.Match(pattern, filePath); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// ParseRuleFile reads and parses one rule file.
func ParseRuleFile(path string) (Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rule{}, fmt.Errorf("memoryrules: read %s: %w", path, err)
	}
	rule, err := ParseRule(data)
	if err != nil {
		return Rule{}, fmt.Errorf("memoryrules: parse %s: %w", path, err)
	}
	rule.Path = path
	return rule, nil
}

// ParseRule splits optional front matter from body. A file with no
// front matter is valid: the whole file becomes Content and the rule is
// always active.
func ParseRule(data []byte) (Rule, error) {
	frontmatter, body, hasFrontmatter := splitFrontmatter(data)
	if !hasFrontmatter {
		return Rule{Content: strings.TrimSpace(string(data))}, nil
	}
	var rule Rule
	if err := yaml.Unmarshal(frontmatter, &rule); err != nil {
		return Rule{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	rule.Content = strings.TrimSpace(string(body))
	return rule, nil
}

// splitFrontmatter returns (frontmatter, body, true) if data opens with
// a `---`-delimited block, or (nil, data, false) otherwise, the same
// scan internal/commands.Parse uses.
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

// Discover walks root (typically `.wave/rules`) for `*.md` files,
// sorted by path for deterministic ordering. A file that fails to parse
// is skipped rather than aborting discovery, matching
// internal/commands.Discover and internal/subagent.Discover.
func Discover(root string) ([]Rule, []error) {
	var rules []Rule
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
		rule, perr := ParseRuleFile(path)
		if perr != nil {
			errs = append(errs, perr)
			return nil
		}
		rules = append(rules, rule)
		return nil
	})

	sort.Slice(rules, func(i, j int) bool { return rules[i].Path < rules[j].Path })
	return rules, errs
}
