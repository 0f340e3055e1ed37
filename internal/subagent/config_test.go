package subagent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseValidConfig(t *testing.T) {
	content := `---
name: code-reviewer
description: Reviews a diff for correctness and style.
tools: [Read, Grep, Glob]
model: fast-model
---

You are a meticulous code reviewer. Focus on correctness first.
`
	cfg, err := Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Name != "code-reviewer" {
		t.Errorf("Name = %q, want code-reviewer", cfg.Name)
	}
	if cfg.Description != "Reviews a diff for correctness and style." {
		t.Errorf("Description = %q", cfg.Description)
	}
	if len(cfg.AllowedTools) != 3 || cfg.AllowedTools[0] != "Read" {
		t.Errorf("AllowedTools = %v", cfg.AllowedTools)
	}
	if cfg.Model != "fast-model" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if !strings.Contains(cfg.SystemPrompt, "meticulous code reviewer") {
		t.Errorf("SystemPrompt = %q", cfg.SystemPrompt)
	}
}

func TestParseMissingName(t *testing.T) {
	content := "---\ndescription: no name here\n---\nbody\n"
	if _, err := Parse([]byte(content)); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestParseMissingDelimiters(t *testing.T) {
	if _, err := Parse([]byte("no front matter here")); err == nil {
		t.Fatal("expected error for missing opening delimiter")
	}
	if _, err := Parse([]byte("---\nname: x\nbody without closing")); err == nil {
		t.Fatal("expected error for missing closing delimiter")
	}
}

func TestDiscoverSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	valid := "---\nname: helper\ndescription: a helper\n---\nbody\n"
	invalid := "not front matter"

	if err := os.WriteFile(filepath.Join(dir, "helper.md"), []byte(valid), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.md"), []byte(invalid), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte(valid), 0644); err != nil {
		t.Fatal(err)
	}

	configs, errs := Discover(dir)
	if len(configs) != 1 || configs[0].Name != "helper" {
		t.Fatalf("configs = %+v", configs)
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want exactly one parse error", errs)
	}
}

func TestDiscoverMissingRootIsNotAnError(t *testing.T) {
	configs, errs := Discover(filepath.Join(t.TempDir(), "nonexistent"))
	if len(configs) != 0 || len(errs) != 0 {
		t.Fatalf("expected no configs and no errors, got %+v / %v", configs, errs)
	}
}
