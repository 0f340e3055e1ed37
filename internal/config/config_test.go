package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSettings(t *testing.T, dir, name, body string) {
	t.Helper()
	waveDir := filepath.Join(dir, ".wave")
	if err := os.MkdirAll(waveDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(waveDir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, settingsFile, `{"llm": {"provider": "anthropic", "model": "claude-sonnet-4-20250514", "apiKey": "sk-test-key"}}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tools.Concurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.Tools.Concurrency)
	}
	if cfg.Tools.ApprovalMode != "default" {
		t.Errorf("expected default approval mode, got %q", cfg.Tools.ApprovalMode)
	}
	if cfg.Observability.Logging.Format != "json" {
		t.Errorf("expected json log format, got %q", cfg.Observability.Logging.Format)
	}
}

func TestLoadLocalOverlayWins(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, settingsFile, `{"llm": {"provider": "anthropic", "model": "claude-sonnet-4-20250514", "apiKey": "sk-test-key"}, "tools": {"concurrency": 2}}`)
	writeSettings(t, dir, localSettingsFile, `{"tools": {"concurrency": 8}}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tools.Concurrency != 8 {
		t.Errorf("expected local overlay's concurrency 8, got %d", cfg.Tools.Concurrency)
	}
}

func TestLoadRequiresModel(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, settingsFile, `{"llm": {"provider": "anthropic", "apiKey": "sk-test-key"}}`)

	_, err := Load(dir)
	if err == nil {
		t.Fatalf("expected ConfigError for missing model")
	}
	if !strings.Contains(err.Error(), "llm.model") {
		t.Fatalf("expected llm.model in error, got %v", err)
	}
}

func TestLoadEnvFallbacks(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, settingsFile, `{"llm": {"provider": "anthropic"}}`)

	t.Setenv("AIGW_TOKEN", "sk-from-env")
	t.Setenv("AIGW_MODEL", "claude-haiku-4")
	t.Setenv("TOKEN_LIMIT", "4096")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("expected APIKey from AIGW_TOKEN, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "claude-haiku-4" {
		t.Errorf("expected Model from AIGW_MODEL, got %q", cfg.LLM.Model)
	}
	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("expected MaxTokens from TOKEN_LIMIT, got %d", cfg.LLM.MaxTokens)
	}
}

func TestLoadRejectsBadApprovalMode(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, settingsFile, `{"llm": {"provider": "anthropic", "model": "m", "apiKey": "k"}, "tools": {"approvalMode": "nonsense"}}`)

	_, err := Load(dir)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "approvalMode") {
		t.Fatalf("expected approvalMode in error, got %v", err)
	}
}

func TestLoadMergesHooksDualLocation(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, settingsFile, `{
		"llm": {"provider": "anthropic", "model": "m", "apiKey": "k"},
		"hooks": [{"event": "PreToolUse", "command": ["./check.sh"]}]
	}`)
	writeSettings(t, dir, hooksFile, `{"hooks": [{"event": "PreToolUse", "command": ["./extra.sh"]}]}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Hooks) != 2 {
		t.Fatalf("expected 2 merged hooks, got %d", len(cfg.Hooks))
	}
	if cfg.Hooks[0].Command[0] != "./check.sh" || cfg.Hooks[1].Command[0] != "./extra.sh" {
		t.Errorf("expected settings.json hooks before hooks.json hooks, got %+v", cfg.Hooks)
	}
}

func TestGenerateSchemaValidatesDocument(t *testing.T) {
	good := []byte(`{"llm": {"provider": "anthropic", "model": "m"}, "tools": {}, "hooks": [], "observability": {}, "server": {}}`)
	if err := ValidateDocument(good); err != nil {
		t.Errorf("expected valid document, got %v", err)
	}

	bad := []byte(`{"llm": "not-an-object"}`)
	if err := ValidateDocument(bad); err == nil {
		t.Errorf("expected schema violation for llm as a string")
	}
}
