package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SkillFilename is the expected filename of a skill definition.
const SkillFilename = "SKILL.md"

const frontmatterDelimiter = "---"

// ParseSkillFile reads and parses one SKILL.md file.
func ParseSkillFile(path string) (*SkillEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("skills: read %s: %w", path, err)
	}
	entry, err := ParseSkill(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("skills: parse %s: %w", path, err)
	}
	return entry, nil
}

// ParseSkill parses SKILL.md content discovered at skillPath (the
// directory SKILL.md lives in, used for {baseDir} expansion).
func ParseSkill(data []byte, skillPath string) (*SkillEntry, error) {
	frontmatter, body, ok := splitFrontmatter(data)
	if !ok {
		return nil, fmt.Errorf("missing frontmatter block")
	}

	var entry SkillEntry
	if err := yaml.Unmarshal(frontmatter, &entry); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if err := ValidateSkill(&entry); err != nil {
		return nil, err
	}

	entry.Path = skillPath
	entry.Content = ExpandBaseDir(strings.TrimSpace(string(body)), skillPath)
	return &entry, nil
}

// splitFrontmatter separates a leading `---`-delimited YAML block from
// the markdown body, reusing internal/commands' scanning approach.
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

// ValidateSkill enforces the name/description contract a SKILL.md must
// satisfy: a lowercase-hyphen name and a non-empty description.
func ValidateSkill(entry *SkillEntry) error {
	if entry.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	for _, r := range entry.Name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("skill name must be lowercase alphanumeric with hyphens: got %q", entry.Name)
		}
	}
	if entry.Description == "" {
		return fmt.Errorf("skill description is required")
	}
	return nil
}

// ExpandBaseDir substitutes {baseDir} placeholders in skill content
// with the skill's own directory, letting SKILL.md reference sibling
// resource files by absolute path.
func ExpandBaseDir(content, baseDir string) string {
	return strings.ReplaceAll(content, "{baseDir}", baseDir)
}
