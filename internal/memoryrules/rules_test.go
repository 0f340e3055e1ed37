package memoryrules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRuleWithFrontmatter(t *testing.T) {
	data := []byte("---\npaths: [\"*.go\", \"**/*.sql\"]\n---\n\nUse tabs, not spaces.\n")
	rule, err := ParseRule(data)
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	if len(rule.Paths) != 2 || rule.Paths[0] != "*.go" {
		t.Errorf("Paths = %v", rule.Paths)
	}
	if rule.Content != "Use tabs, not spaces." {
		t.Errorf("Content = %q", rule.Content)
	}
}

func TestParseRuleWithoutFrontmatter(t *testing.T) {
	rule, err := ParseRule([]byte("Always write tests.\n"))
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	if len(rule.Paths) != 0 {
		t.Errorf("expected no path restriction, got %v", rule.Paths)
	}
	if rule.Content != "Always write tests." {
		t.Errorf("Content = %q", rule.Content)
	}
	if !rule.Matches("anything.go") {
		t.Error("expected an always-active rule to match any path")
	}
}

func TestRuleMatches(t *testing.T) {
	rule := Rule{Paths: []string{"*.go"}}
	if !rule.Matches("internal/foo/bar.go") {
		t.Error("expected match against a .go file's base name")
	}
	if rule.Matches("internal/foo/bar.md") {
		t.Error("expected no match against a .md file")
	}
	if rule.Matches("") {
		t.Error("expected no match against an empty path")
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "nested"), 0755)
	os.WriteFile(filepath.Join(root, "a.md"), []byte("rule a"), 0644)
	os.WriteFile(filepath.Join(root, "nested", "b.md"), []byte("---\npaths: [\"*.ts\"]\n---\nrule b"), 0644)
	os.WriteFile(filepath.Join(root, "ignore.txt"), []byte("not a rule"), 0644)

	rules, errs := Discover(root)
	if len(errs) != 0 {
		t.Fatalf("Discover errors: %v", errs)
	}
	if len(rules) != 2 {
		t.Fatalf("Discover() = %d rules, want 2", len(rules))
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	rules, errs := Discover(filepath.Join(t.TempDir(), "missing"))
	if len(errs) != 0 || len(rules) != 0 {
		t.Fatalf("expected no errors/rules for a missing root, got %v / %v", errs, rules)
	}
}
