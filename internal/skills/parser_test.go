package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSkillFile(t *testing.T) {
	t.Run("valid skill", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, SkillFilename)
		content := `---
name: test-skill
description: A test skill
---

Use {baseDir}/data.json for fixtures.
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write file: %v", err)
		}

		entry, err := ParseSkillFile(path)
		if err != nil {
			t.Fatalf("ParseSkillFile: %v", err)
		}
		if entry.Name != "test-skill" {
			t.Errorf("Name = %q, want test-skill", entry.Name)
		}
		if entry.Path != dir {
			t.Errorf("Path = %q, want %q", entry.Path, dir)
		}
		if !strings.Contains(entry.Content, dir+"/data.json") {
			t.Errorf("Content should have {baseDir} expanded, got %q", entry.Content)
		}
	})

	t.Run("missing name is rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, SkillFilename)
		content := "---\ndescription: no name here\n---\nbody\n"
		os.WriteFile(path, []byte(content), 0644)

		if _, err := ParseSkillFile(path); err == nil {
			t.Error("expected error for missing name")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		if _, err := ParseSkillFile("/nonexistent/SKILL.md"); err == nil {
			t.Error("expected error for nonexistent file")
		}
	})
}

func TestValidateSkillRejectsBadNames(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"valid-name", false},
		{"InvalidCaps", true},
		{"has space", true},
		{"", true},
	}
	for _, c := range cases {
		entry := &SkillEntry{Name: c.name, Description: "d"}
		err := ValidateSkill(entry)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateSkill(%q) error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}
