package memoryrules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestManagerMatchArgs(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "go.md"), []byte("---\npaths: [\"*.go\"]\n---\nGo rule"), 0644)
	os.WriteFile(filepath.Join(root, "always.md"), []byte("Always active"), 0644)

	mgr := NewManager([]string{root})
	if errs := mgr.Discover(); len(errs) != 0 {
		t.Fatalf("Discover errors: %v", errs)
	}

	args, _ := json.Marshal(map[string]string{"file_path": "main.go"})
	matched := mgr.MatchArgs(args)
	if len(matched) != 2 {
		t.Fatalf("MatchArgs(main.go) = %d rules, want 2", len(matched))
	}

	args, _ = json.Marshal(map[string]string{"file_path": "main.py"})
	matched = mgr.MatchArgs(args)
	if len(matched) != 1 {
		t.Fatalf("MatchArgs(main.py) = %d rules, want 1 (always-active only)", len(matched))
	}

	matched = mgr.MatchArgs(nil)
	if len(matched) != 1 {
		t.Fatalf("MatchArgs(nil) = %d rules, want 1 (always-active only)", len(matched))
	}
}

func TestRenderJoinsContent(t *testing.T) {
	rendered := Render([]Rule{{Content: "one"}, {Content: ""}, {Content: "two"}})
	if rendered != "one\n\ntwo" {
		t.Errorf("Render = %q", rendered)
	}
}
