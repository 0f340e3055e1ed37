package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCommandsNamespacesAndSubstitutesRoot(t *testing.T) {
	root := t.TempDir()
	p := Plugin{Manifest: &Manifest{ID: "git-helpers", Name: "Git Helpers"}, Root: root}

	cmdDir := p.CommandsDir()
	if err := os.MkdirAll(cmdDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := "---\nname: sync\n---\n\nrun $WAVE_PLUGIN_ROOT/scripts/sync.sh\n"
	if err := os.WriteFile(filepath.Join(cmdDir, "sync.md"), []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cmds, errs := LoadCommands(p)
	if len(errs) != 0 {
		t.Fatalf("LoadCommands errors: %v", errs)
	}
	if len(cmds) != 1 {
		t.Fatalf("LoadCommands = %d commands, want 1", len(cmds))
	}
	if cmds[0].Name != "git-helpers:sync" {
		t.Errorf("Name = %q, want git-helpers:sync", cmds[0].Name)
	}
	wantBody := "run " + root + "/scripts/sync.sh"
	if cmds[0].Body != wantBody {
		t.Errorf("Body = %q, want %q", cmds[0].Body, wantBody)
	}
}

func TestLoadCommandsMissingDir(t *testing.T) {
	p := Plugin{Manifest: &Manifest{ID: "empty", Name: "Empty"}, Root: t.TempDir()}
	cmds, errs := LoadCommands(p)
	if len(cmds) != 0 || len(errs) != 0 {
		t.Fatalf("LoadCommands = %+v, %v, want empty with no errors", cmds, errs)
	}
}

func TestLoadHooksMissingFileIsNotError(t *testing.T) {
	p := Plugin{Manifest: &Manifest{ID: "a", Name: "A"}, Root: t.TempDir()}
	hooks, err := LoadHooks(p)
	if err != nil {
		t.Fatalf("LoadHooks: %v", err)
	}
	if hooks != nil {
		t.Fatalf("LoadHooks = %+v, want nil", hooks)
	}
}

func TestLoadHooksParsesConfig(t *testing.T) {
	root := t.TempDir()
	p := Plugin{Manifest: &Manifest{ID: "a", Name: "A"}, Root: root}
	if err := os.MkdirAll(p.HooksDir(), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := `[{"event":"PreToolUse","matcher":"Bash","command":["echo","hi"],"timeoutSeconds":5}]`
	if err := os.WriteFile(filepath.Join(p.HooksDir(), "hooks.json"), []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	hooks, err := LoadHooks(p)
	if err != nil {
		t.Fatalf("LoadHooks: %v", err)
	}
	if len(hooks) != 1 || hooks[0].Matcher != "Bash" || hooks[0].Timeout != 5 {
		t.Fatalf("LoadHooks = %+v", hooks)
	}
}

func TestLoadHooksRejectsMalformedJSON(t *testing.T) {
	root := t.TempDir()
	p := Plugin{Manifest: &Manifest{ID: "a", Name: "A"}, Root: root}
	if err := os.MkdirAll(p.HooksDir(), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(p.HooksDir(), "hooks.json"), []byte("not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadHooks(p); err == nil {
		t.Fatal("expected error for malformed hooks.json")
	}
}
