package plugins

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManifestValidate(t *testing.T) {
	cases := []struct {
		name    string
		m       Manifest
		wantErr bool
	}{
		{"valid", Manifest{ID: "git-helpers", Name: "Git Helpers"}, false},
		{"missing id", Manifest{Name: "Git Helpers"}, true},
		{"missing name", Manifest{ID: "git-helpers"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.m.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestDecodeManifest(t *testing.T) {
	data := []byte(`{"id":"git-helpers","name":"Git Helpers","description":"useful git commands","version":"1.0.0"}`)
	m, err := DecodeManifest(data)
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if m.ID != "git-helpers" || m.Name != "Git Helpers" || m.Version != "1.0.0" {
		t.Fatalf("DecodeManifest = %+v", m)
	}
}

func TestDecodeManifestRejectsInvalid(t *testing.T) {
	if _, err := DecodeManifest([]byte(`{"name":"no id"}`)); err == nil {
		t.Fatal("expected error for missing id")
	}
	if _, err := DecodeManifest([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestDecodeManifestFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "plugin.json")
	if err := os.WriteFile(path, []byte(`{"id":"a","name":"A"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := DecodeManifestFile(path)
	if err != nil {
		t.Fatalf("DecodeManifestFile: %v", err)
	}
	if m.ID != "a" {
		t.Fatalf("DecodeManifestFile = %+v", m)
	}

	if _, err := DecodeManifestFile(filepath.Join(root, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
