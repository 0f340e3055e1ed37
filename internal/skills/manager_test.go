package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSkill(t *testing.T, root, name, front string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "---\n" + front + "\n---\n\nbody for " + name + "\n"
	if err := os.WriteFile(filepath.Join(dir, SkillFilename), []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestManagerDiscoverAndEligible(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "alpha", "name: alpha\ndescription: first")
	writeSkill(t, root, "beta", "name: beta\ndescription: second\nmetadata:\n  os: [plan9]")

	mgr := NewManager([]string{root}, nil)
	if errs := mgr.Discover(); len(errs) != 0 {
		t.Fatalf("Discover errors: %v", errs)
	}

	all := mgr.All()
	if len(all) != 2 {
		t.Fatalf("All() = %d entries, want 2", len(all))
	}

	eligible := mgr.Eligible()
	if len(eligible) != 1 || eligible[0].Name != "alpha" {
		t.Fatalf("Eligible() = %+v, want only alpha", eligible)
	}

	if _, ok := mgr.Get("beta"); ok {
		t.Error("Get(beta) should fail: ineligible on this OS")
	}
	entry, ok := mgr.Get("alpha")
	if !ok || entry.Description != "first" {
		t.Fatalf("Get(alpha) = %+v, %v", entry, ok)
	}
}

func TestManagerDiscoverMissingRoot(t *testing.T) {
	mgr := NewManager([]string{filepath.Join(t.TempDir(), "missing")}, nil)
	if errs := mgr.Discover(); len(errs) != 0 {
		t.Fatalf("expected no errors for a missing root, got %v", errs)
	}
	if len(mgr.All()) != 0 {
		t.Error("expected no entries for a missing root")
	}
}

func TestManagerLaterRootWins(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeSkill(t, rootA, "dup", "name: dup\ndescription: from A")
	writeSkill(t, rootB, "dup", "name: dup\ndescription: from B")

	mgr := NewManager([]string{rootA, rootB}, nil)
	mgr.Discover()

	entry, ok := mgr.Get("dup")
	if !ok || entry.Description != "from B" {
		t.Fatalf("Get(dup) = %+v, %v, want description 'from B'", entry, ok)
	}
}
