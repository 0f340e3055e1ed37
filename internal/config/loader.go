package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/waveforge/wave/internal/engineerr"
	"github.com/waveforge/wave/internal/hookpipeline"
)

const (
	settingsFile      = "settings.json"
	localSettingsFile = "settings.local.json"
	hooksFile         = "hooks.json"
)

// Load reads .wave/settings.json under workdir, overlays
// .wave/settings.local.json when present (local fields win, matching
// the teacher's override-layering convention), resolves the
// AIGW_TOKEN/AIGW_URL/AIGW_MODEL/AIGW_FAST_MODEL/TOKEN_LIMIT environment
// fallbacks, merges in .wave/hooks.json, applies defaults, and
// validates the result.
func Load(workdir string) (*Config, error) {
	dir := filepath.Join(workdir, ".wave")

	cfg := Default()
	cfg.Workdir = workdir

	if err := mergeFile(&cfg, filepath.Join(dir, settingsFile)); err != nil {
		return nil, err
	}
	if err := mergeFile(&cfg, filepath.Join(dir, localSettingsFile)); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	// cfg.Hooks was already populated from settings.json's own "hooks"
	// key by mergeFile above; append hooks.json's entries after them,
	// per SPEC_FULL.md §9's dual-location resolution.
	fromHooksFile, err := loadHooksFile(workdir)
	if err != nil {
		return nil, err
	}
	cfg.Hooks = append(cfg.Hooks, fromHooksFile...)

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFile decodes path (a JSON document, which yaml.v3 parses as a
// YAML subset) over cfg's current fields. A missing file is not an
// error: settings.json and settings.local.json are both optional.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &engineerr.ConfigError{Key: path, Reason: err.Error()}
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return &engineerr.ConfigError{Key: path, Reason: "parse: " + err.Error()}
	}
	return nil
}

// applyEnvOverrides fills the named environment-variable fallbacks for
// any field mergeFile left empty, per SPEC_FULL.md §6.
func applyEnvOverrides(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("AIGW_TOKEN")
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = os.Getenv("AIGW_URL")
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = os.Getenv("AIGW_MODEL")
	}
	if cfg.LLM.FastModel == "" {
		cfg.LLM.FastModel = os.Getenv("AIGW_FAST_MODEL")
	}
	if cfg.LLM.MaxTokens == 0 {
		if v := os.Getenv("TOKEN_LIMIT"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.LLM.MaxTokens = n
			}
		}
	}
	if cfg.Server.JWTSecret == "" {
		cfg.Server.JWTSecret = os.Getenv("JWT_SECRET")
	}
}

// LoadHooks returns the fully merged hook list for workdir: settings.json's
// own "hooks" key followed by .wave/hooks.json's entries, matching what
// Load assembles into Config.Hooks. Exposed separately for hosts (and
// Watcher) that want the hook list without a full Config reload.
func LoadHooks(workdir string) ([]hookpipeline.Config, error) {
	var fromSettings struct {
		Hooks []hookpipeline.Config `yaml:"hooks" json:"hooks"`
	}
	dir := filepath.Join(workdir, ".wave")
	if err := mergeRaw(&fromSettings, filepath.Join(dir, settingsFile)); err != nil {
		return nil, err
	}
	fromHooksFile, err := loadHooksFile(workdir)
	if err != nil {
		return nil, err
	}
	return append(fromSettings.Hooks, fromHooksFile...), nil
}

// loadHooksFile reads only .wave/hooks.json's "hooks" array.
func loadHooksFile(workdir string) ([]hookpipeline.Config, error) {
	var doc struct {
		Hooks []hookpipeline.Config `yaml:"hooks" json:"hooks"`
	}
	path := filepath.Join(workdir, ".wave", hooksFile)
	if err := mergeRaw(&doc, path); err != nil {
		return nil, err
	}
	return doc.Hooks, nil
}

func mergeRaw(dst any, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &engineerr.ConfigError{Key: path, Reason: err.Error()}
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return &engineerr.ConfigError{Key: path, Reason: "parse: " + err.Error()}
	}
	return nil
}

// Watcher watches a project's .wave/ tree and re-runs Load on change,
// grounded on _examples/haasonsaas-nexus/internal/templates/registry.go's
// fsnotify watch loop: a debounced refresh so a burst of saves (editors
// frequently rewrite-then-rename) collapses into one reload.
type Watcher struct {
	workdir  string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func(*Config, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher starts watching workdir/.wave for changes to
// settings.json, settings.local.json, hooks.json, commands/**, and
// agents/**, invoking onReload with a freshly Load-ed Config (or the
// error Load returned) after each debounced batch of filesystem events.
func NewWatcher(workdir string, onReload func(*Config, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{workdir: workdir, watcher: fsw, debounce: 250 * time.Millisecond, onReload: onReload}

	dir := filepath.Join(workdir, ".wave")
	for _, sub := range []string{"", "commands", "agents"} {
		_ = fsw.Add(filepath.Join(dir, sub))
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			cfg, err := Load(w.workdir)
			if w.onReload != nil {
				w.onReload(cfg, err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watch loop and releases the underlying fsnotify
// watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
