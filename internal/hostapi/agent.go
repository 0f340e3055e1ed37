// Package hostapi implements the programmatic Agent facade spec.md §6
// names as the sole embedding surface: a host process constructs one
// Agent per session and drives it entirely through this package rather
// than touching internal/engine, internal/transcript, or
// internal/permission directly. Grounded on
// _examples/haasonsaas-nexus/internal/agent/runtime.go's Runtime (the
// orchestration-layer facade wrapping that teacher's ToolRegistry,
// Sessions.Store, and LLMProvider behind a small method set), narrowed
// from that teacher's Session/Message parameter shape to this spec's
// Engine/transcript.Store/permission.Gate collaborators.
package hostapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/waveforge/wave/internal/builtintools"
	"github.com/waveforge/wave/internal/commands"
	"github.com/waveforge/wave/internal/engine"
	"github.com/waveforge/wave/internal/engineerr"
	"github.com/waveforge/wave/internal/events"
	"github.com/waveforge/wave/internal/hookpipeline"
	"github.com/waveforge/wave/internal/memoryrules"
	"github.com/waveforge/wave/internal/metrics"
	"github.com/waveforge/wave/internal/obslog"
	"github.com/waveforge/wave/internal/permission"
	"github.com/waveforge/wave/internal/skills"
	"github.com/waveforge/wave/internal/snapshot"
	"github.com/waveforge/wave/internal/subagent"
	"github.com/waveforge/wave/internal/taskmanager"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/tracing"
	"github.com/waveforge/wave/internal/transcript"
	"github.com/waveforge/wave/pkg/block"
)

// Config assembles one Agent. It is the programmatic counterpart of
// SPEC_FULL.md §6's Config object: the on-disk surface (settings.json,
// MCP servers, plugin manifests) is resolved by
// internal/config into a filled-out Config rather than this package
// reading disk itself.
type Config struct {
	SessionID    string
	Workdir      string
	Model        string
	FastModel    string
	MaxTokens    int
	SystemPrompt string

	CompactionTokenThreshold int
	MaxIterationsPerTurn     int

	InitialMode permission.Mode

	Registry       *toolregistry.Registry
	ExecutorConfig toolregistry.ExecutorConfig
	Hooks          *hookpipeline.Pipeline

	Completer     engine.Completer
	FastCompleter engine.Completer

	// CanUseTool is the host's permission callback. If nil, Create
	// installs an internal permission.PendingRegistry and the host
	// drives decisions through GetPendingPermissions/
	// ResolvePermissionRequest instead of a synchronous callback.
	CanUseTool permission.CanUseTool

	// TaskStore persists background tasks across a process restart.
	// Nil tracks everything in memory only.
	TaskStore taskmanager.Store

	// CommandsRoot is the directory custom slash commands are
	// discovered from (typically "<Workdir>/.wave/commands"). Empty
	// disables custom command discovery.
	CommandsRoot string

	// AgentsRoots are the directories Task's sub-agent catalog is
	// discovered from (typically "<Workdir>/.wave/agents" plus one per
	// loaded plugin). Empty disables the Task tool's delegation catalog
	// (Task is still registered, but every subagent_type will be
	// reported unknown). Later roots win on name collision.
	AgentsRoots []string

	// ExtraCommands are already-parsed slash commands merged into the
	// command Registry after CommandsRoot is loaded (the entry point
	// internal/plugins' namespaced, $WAVE_PLUGIN_ROOT-substituted
	// commands come in through).
	ExtraCommands []commands.SlashCommand

	// MaxSubAgentDepth bounds Task-tool-calls-Task recursion. 0 uses
	// subagent.DefaultMaxDepth.
	MaxSubAgentDepth int

	// SkillsRoots are the directories the Skill tool discovers
	// `<name>/SKILL.md` definitions from (typically
	// "<Workdir>/.wave/skills" plus one per loaded plugin). Empty
	// registers Skill with nothing to list or load.
	SkillsRoots []string

	// SkillsDisabled force-disables skills by name regardless of their
	// own eligibility metadata.
	SkillsDisabled map[string]bool

	// RulesRoots are the directories the engine discovers
	// `.wave/rules/**/*.md` files from. Empty disables memory-rule
	// injection entirely.
	RulesRoots []string

	// Callbacks are the host's event handlers. The Agent wraps them to
	// also maintain its own usages/messages bookkeeping, so a host
	// callback here never needs to duplicate that state.
	Callbacks events.Callbacks

	Logger *slog.Logger

	// Tracer, Metrics, and ObsLogger are optional observability
	// dependencies threaded into the Engine, Permission Gate, Hook
	// Pipeline, and Task Manager. Any of them may be nil: each is
	// designed to tolerate a nil receiver, so an Agent built without
	// them behaves exactly as before observability existed.
	Tracer    *tracing.Tracer
	Metrics   *metrics.Metrics
	ObsLogger *obslog.Logger
}

func (c Config) validate() error {
	switch {
	case c.SessionID == "":
		return &engineerr.ConfigError{Key: "sessionId", Reason: "required"}
	case c.Workdir == "":
		return &engineerr.ConfigError{Key: "workdir", Reason: "required"}
	case c.Model == "":
		return &engineerr.ConfigError{Key: "model", Reason: "required"}
	case c.Completer == nil:
		return &engineerr.ConfigError{Key: "completer", Reason: "required"}
	case c.Registry == nil:
		return &engineerr.ConfigError{Key: "registry", Reason: "required"}
	}
	return nil
}

// builtinCommand describes one engine-internal slash command (spec.md
// §4.A's "builtins short-circuit and never call the LLM").
type builtinCommand struct {
	name        string
	description string
}

var builtinCommands = []builtinCommand{
	{name: "rewind", description: "Roll the transcript back to before a given user message (args: message index)"},
}

// Agent is the host-facing facade over one session's Engine, transcript
// Store, Permission Gate, Task Manager, and command Registry. All of
// its methods are safe for concurrent use.
type Agent struct {
	cfg Config

	store      *transcript.Store
	gate       *permission.Gate
	pending    *permission.PendingRegistry // nil if the host supplied its own CanUseTool
	tasks      *taskmanager.Manager
	dispatcher *events.Dispatcher
	eng        *engine.Engine
	commands   *commands.Registry
	skills     *skills.Manager
	rules      *memoryrules.Manager
	reversion  *snapshot.Recorder

	mu           sync.Mutex
	usages       []block.Usage
	inputHistory []string
	destroyed    bool
}

// Create validates cfg and assembles an Agent. The only error it
// returns is *engineerr.ConfigError, matching spec.md §7's contract that
// ConfigError is thrown synchronously from Agent.create.
func Create(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	a := &Agent{cfg: cfg}

	var canUseTool permission.CanUseTool
	if cfg.CanUseTool != nil {
		canUseTool = cfg.CanUseTool
	} else {
		a.pending = permission.NewPendingRegistry()
		canUseTool = a.pending.Request
	}
	mode := cfg.InitialMode
	if mode == "" {
		mode = permission.ModeDefault
	}
	a.gate = permission.New(mode, canUseTool)
	a.gate.SetLogger(cfg.ObsLogger)

	a.store = transcript.New()
	a.tasks = taskmanager.New(cfg.TaskStore)
	a.tasks.SetMetrics(cfg.Metrics)

	if cfg.Hooks != nil {
		cfg.Hooks.SetMetrics(cfg.Metrics)
	}

	a.dispatcher = events.New(a.wrapCallbacks(cfg.Callbacks), cfg.Logger)

	a.skills = skills.NewManager(cfg.SkillsRoots, cfg.SkillsDisabled)
	a.skills.Discover() // per-file parse errors are non-fatal, matching CommandsRoot

	if err := registerBuiltinTools(a, cfg, canUseTool); err != nil {
		return nil, &engineerr.ConfigError{Key: "registry", Reason: err.Error()}
	}

	executor := toolregistry.NewExecutor(cfg.Registry, cfg.ExecutorConfig)
	engCfg := engine.Config{
		SessionID:                cfg.SessionID,
		Workdir:                  cfg.Workdir,
		Model:                    cfg.Model,
		FastModel:                cfg.FastModel,
		MaxTokens:                cfg.MaxTokens,
		SystemPrompt:             cfg.SystemPrompt,
		CompactionTokenThreshold: cfg.CompactionTokenThreshold,
		MaxIterationsPerTurn:     cfg.MaxIterationsPerTurn,
	}
	a.eng = engine.New(engCfg, a.store, cfg.Registry, executor, a.gate, cfg.Hooks, a.tasks, a.dispatcher, cfg.Completer, cfg.FastCompleter)
	a.eng.SetObservability(cfg.Tracer, cfg.Metrics, cfg.ObsLogger)

	a.rules = memoryrules.NewManager(cfg.RulesRoots)
	a.rules.Discover() // per-file parse errors are non-fatal, matching CommandsRoot
	a.eng.SetMemoryRules(a.rules)

	a.reversion = snapshot.New()
	a.eng.SetReversion(a.reversion)

	a.commands = commands.NewRegistry()
	if cfg.CommandsRoot != "" {
		a.commands.Load(cfg.CommandsRoot) // per-file parse errors are non-fatal to Create
	}
	a.commands.Add(cfg.ExtraCommands...)

	return a, nil
}

// wrapCallbacks returns a Callbacks set that first updates the Agent's
// own bookkeeping (only usages currently — transcript state is read
// fresh from the Store on demand) and then forwards to the host's
// handlers, preserving events.Dispatcher's "one Callbacks value for the
// life of the Dispatcher" contract.
func (a *Agent) wrapCallbacks(host events.Callbacks) events.Callbacks {
	wrapped := host
	hostOnUsages := host.OnUsagesChange
	wrapped.OnUsagesChange = func(usage block.Usage) {
		a.mu.Lock()
		a.usages = append(a.usages, usage)
		a.mu.Unlock()
		if hostOnUsages != nil {
			hostOnUsages(usage)
		}
	}
	return wrapped
}

// Destroy aborts any in-flight turn and force-denies every outstanding
// permission request. An Agent must not be used after Destroy.
func (a *Agent) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	a.mu.Unlock()

	a.eng.Abort()
	if a.pending != nil {
		a.pending.Clear()
	}
	a.reversion.Reset()
}

// SendMessage submits one user turn and returns the final assistant
// text. Per spec.md §7, only a *engineerr.FatalInvariantError escapes
// here, plus engineerr.ErrNotReentrant for a call made while a turn is
// already in progress — every other failure kind is reified as a
// block/callback event and the call still resolves normally.
func (a *Agent) SendMessage(ctx context.Context, text string, images []block.Image) (string, error) {
	a.mu.Lock()
	a.inputHistory = append(a.inputHistory, text)
	a.mu.Unlock()
	out, err := a.eng.SendMessage(ctx, text, images)
	var fatal *engineerr.FatalInvariantError
	if err != nil && !errors.As(err, &fatal) && !errors.Is(err, engineerr.ErrNotReentrant) {
		return out, nil
	}
	return out, err
}

// Abort cancels the in-progress turn, if any.
func (a *Agent) Abort() { a.eng.Abort() }

// BackgroundCurrentTask detaches the foreground tool call (if any) into
// the Task Manager's background registry and returns its new task id.
func (a *Agent) BackgroundCurrentTask() (string, bool) { return a.eng.BackgroundCurrentTask() }

// TruncateHistory keeps every message up to and including the
// toUserMessageIndex-th user message (counting from 0) and drops the
// rest (the /rewind builtin's back end).
func (a *Agent) TruncateHistory(toUserMessageIndex int) { a.eng.TruncateHistory(toUserMessageIndex) }

// IsLoading reports whether a turn is currently in progress.
func (a *Agent) IsLoading() bool { return a.eng.IsLoading() }

// Messages returns a snapshot of the full transcript.
func (a *Agent) Messages() []block.Message { return a.store.Snapshot() }

// Usages returns every per-turn token-accounting record dispatched so
// far, in order.
func (a *Agent) Usages() []block.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]block.Usage, len(a.usages))
	copy(out, a.usages)
	return out
}

// SessionID returns the session id this Agent was created with.
func (a *Agent) SessionID() string { return a.cfg.SessionID }

// UserInputHistory returns every text submitted via SendMessage, in
// order (independent of the transcript, which may have been truncated
// by TruncateHistory).
func (a *Agent) UserInputHistory() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.inputHistory))
	copy(out, a.inputHistory)
	return out
}

// GetPendingPermissions lists every outstanding permission request. It
// returns an error if the host supplied its own CanUseTool callback at
// Create, since then no PendingRegistry exists to list.
func (a *Agent) GetPendingPermissions() ([]permission.PendingRequest, error) {
	if a.pending == nil {
		return nil, fmt.Errorf("hostapi: no pending-permission registry (CanUseTool was host-supplied)")
	}
	return a.pending.List(), nil
}

// ResolvePermissionRequest delivers decision to the outstanding request
// id, unblocking the Gate.Check call that is waiting on it.
func (a *Agent) ResolvePermissionRequest(id string, decision permission.PermissionDecision) error {
	if a.pending == nil {
		return fmt.Errorf("hostapi: no pending-permission registry (CanUseTool was host-supplied)")
	}
	return a.pending.Resolve(id, decision)
}

// ClearPendingPermissions force-denies every outstanding request.
func (a *Agent) ClearPendingPermissions() error {
	if a.pending == nil {
		return fmt.Errorf("hostapi: no pending-permission registry (CanUseTool was host-supplied)")
	}
	a.pending.Clear()
	return nil
}

// GetSlashCommands returns the built-in commands plus every discovered
// custom command, for UI autocomplete.
func (a *Agent) GetSlashCommands() []commands.SlashCommand {
	out := make([]commands.SlashCommand, 0, len(builtinCommands))
	for _, b := range builtinCommands {
		out = append(out, commands.SlashCommand{Name: b.name, Description: b.description})
	}
	return append(out, a.commands.List()...)
}

// GetCustomCommands returns only the project/plugin-defined commands
// (excludes the built-ins GetSlashCommands also reports).
func (a *Agent) GetCustomCommands() []commands.SlashCommand { return a.commands.List() }

// ReloadCustomCommands re-discovers CommandsRoot, replacing any command
// whose name is re-discovered and leaving the rest untouched.
func (a *Agent) ReloadCustomCommands() []error {
	if a.cfg.CommandsRoot == "" {
		return nil
	}
	return a.commands.Load(a.cfg.CommandsRoot)
}

// ReloadSkills re-discovers every configured SkillsRoots directory,
// replacing the Skill tool's catalog.
func (a *Agent) ReloadSkills() []error { return a.skills.Discover() }

// ReloadRules re-discovers every configured RulesRoots directory.
func (a *Agent) ReloadRules() []error { return a.rules.Discover() }

// ExecuteSlashCommand dispatches a parsed `/name rawArgs` invocation.
// Built-in commands short-circuit and never reach the LLM; a custom
// command is expanded (per internal/commands.Expand) and submitted as
// an ordinary user turn, returning the final assistant text exactly
// like SendMessage.
func (a *Agent) ExecuteSlashCommand(ctx context.Context, name, rawArgs string) (string, error) {
	switch name {
	case "rewind":
		idx, err := parseRewindIndex(rawArgs)
		if err != nil {
			return "", fmt.Errorf("hostapi: rewind: %w", err)
		}
		a.TruncateHistory(idx)
		return "", nil
	}

	cmd, ok := a.commands.Get(name)
	if !ok {
		return "", fmt.Errorf("hostapi: unknown slash command %q", name)
	}
	text, err := commands.Expand(ctx, a.cfg.Workdir, cmd.Body, rawArgs)
	if err != nil {
		return "", fmt.Errorf("hostapi: expand /%s: %w", name, err)
	}
	return a.SendMessage(ctx, text, nil)
}

func parseRewindIndex(rawArgs string) (int, error) {
	var idx int
	if _, err := fmt.Sscanf(rawArgs, "%d", &idx); err != nil {
		return 0, fmt.Errorf("expected a message index, got %q", rawArgs)
	}
	return idx, nil
}

// registerBuiltinTools registers the six engine-dispatched built-in
// tools, plus Skill, into cfg.Registry, wiring each one to the collaborators Create
// just constructed (the gate, the task manager, and a freshly-built
// Sub-Agent Runner) — the host supplies its own tools (Read, Write,
// Bash, ...) into cfg.Registry before calling Create, and this fills in
// the rest, mirroring how internal/tools/subagent's SpawnTool/
// StatusTool/CancelTool are each constructed with a *Manager at startup
// rather than discovered dynamically.
func registerBuiltinTools(a *Agent, cfg Config, canUseTool permission.CanUseTool) error {
	catalog := map[string]subagent.Config{}
	for _, root := range cfg.AgentsRoots {
		discovered, _ := subagent.Discover(root) // per-file parse errors are non-fatal, matching CommandsRoot
		for _, c := range discovered {
			catalog[c.Name] = c
		}
	}

	maxDepth := cfg.MaxSubAgentDepth
	if maxDepth <= 0 {
		maxDepth = subagent.DefaultMaxDepth
	}

	runner := &subagent.Runner{
		ParentTranscript:     a.store,
		ParentDispatcher:     a.dispatcher,
		BaseRegistry:         cfg.Registry,
		ExecutorConfig:       cfg.ExecutorConfig,
		Hooks:                cfg.Hooks,
		Tasks:                a.tasks,
		Completer:            cfg.Completer,
		FastCompleter:        cfg.FastCompleter,
		CanUseTool:           canUseTool,
		SessionID:            cfg.SessionID,
		Workdir:              cfg.Workdir,
		DefaultModel:         cfg.Model,
		FastModel:            cfg.FastModel,
		MaxTokens:            cfg.MaxTokens,
		MaxIterationsPerTurn: cfg.MaxIterationsPerTurn,
		MaxDepth:             maxDepth,
		Log:                  cfg.Logger,
	}

	tools := []toolregistry.Tool{
		&builtintools.Task{Runner: runner, Catalog: catalog},
		&builtintools.TaskOutput{Tasks: a.tasks},
		&builtintools.TaskStop{Tasks: a.tasks},
		&builtintools.AskUserQuestion{},
		&builtintools.EnterPlanMode{Gate: a.gate},
		&builtintools.ExitPlanMode{Gate: a.gate},
		&builtintools.Skill{Manager: a.skills},
	}
	for _, t := range tools {
		if err := cfg.Registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}
