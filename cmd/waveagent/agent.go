package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/waveforge/wave/internal/commands"
	"github.com/waveforge/wave/internal/config"
	"github.com/waveforge/wave/internal/engine"
	"github.com/waveforge/wave/internal/events"
	"github.com/waveforge/wave/internal/hookpipeline"
	"github.com/waveforge/wave/internal/hostapi"
	"github.com/waveforge/wave/internal/llm/anthropic"
	"github.com/waveforge/wave/internal/llm/bedrock"
	"github.com/waveforge/wave/internal/llm/openai"
	"github.com/waveforge/wave/internal/mcp"
	"github.com/waveforge/wave/internal/metrics"
	"github.com/waveforge/wave/internal/obslog"
	"github.com/waveforge/wave/internal/permission"
	"github.com/waveforge/wave/internal/plugins"
	"github.com/waveforge/wave/internal/scheduler"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/tracing"
)

// buildCompleter constructs the engine.Completer the loaded LLMConfig
// selects. The same instance serves both the main and fast model slots
// since engine.Request carries its own Model name per call.
func buildCompleter(ctx context.Context, cfg config.LLMConfig) (engine.Completer, error) {
	switch cfg.Provider {
	case "openai":
		return openai.New(cfg.APIKey), nil
	case "bedrock":
		return bedrock.New(ctx, bedrock.Config{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			DefaultModel:    cfg.Model,
			MaxRetries:      cfg.MaxRetries,
			RetryDelay:      cfg.RetryDelay,
		})
	default:
		return anthropic.New(anthropic.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
			DefaultModel: cfg.Model,
		})
	}
}

// observability bundles the three optional collaborators built from
// config.ObservabilityConfig, plus the tracer's flush func.
type observability struct {
	tracer  *tracing.Tracer
	metrics *metrics.Metrics
	logger  *obslog.Logger
	flush   func(context.Context) error
}

func buildObservability(cfg config.ObservabilityConfig) observability {
	logger := obslog.New(obslog.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	tracer, flush := tracing.New(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.EnableInsecure,
	})
	if !cfg.Tracing.Enabled {
		tracer = nil
	}

	return observability{tracer: tracer, metrics: m, logger: logger, flush: flush}
}

// newAgent assembles one hostapi.Agent from a loaded Config, wiring in
// its own freshly-built tool registry, completer, hooks, MCP manager,
// and observability stack. callbacks lets the chat/serve subcommands
// observe transcript and usage events without duplicating Create's
// collaborator wiring. The returned stop func disconnects every MCP
// server and must be called alongside agent.Destroy.
func newAgent(ctx context.Context, cfg *config.Config, obs observability, callbacks events.Callbacks) (agent *hostapi.Agent, stop func(), err error) {
	completer, err := buildCompleter(ctx, cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("build completer: %w", err)
	}

	registry := toolregistry.NewRegistry()

	mcpManager := mcp.NewManager(&cfg.MCP, slog.Default())
	if err := mcpManager.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("start mcp manager: %w", err)
	}
	for _, bridge := range mcp.BridgeTools(mcpManager) {
		if err := registry.Register(bridge); err != nil {
			slog.Warn("skipping mcp tool with invalid registration", "tool", bridge.Name(), "error", err)
		}
	}
	stop = func() {
		if err := mcpManager.Stop(); err != nil {
			slog.Warn("error stopping mcp manager", "error", err)
		}
	}

	skillsRoots := append([]string{filepath.Join(cfg.Workdir, ".wave", "skills")}, cfg.Skills.ExtraRoots...)
	skillsDisabled := make(map[string]bool, len(cfg.Skills.Disabled))
	for _, name := range cfg.Skills.Disabled {
		skillsDisabled[name] = true
	}
	rulesRoots := append([]string{filepath.Join(cfg.Workdir, ".wave", "rules")}, cfg.Rules.ExtraRoots...)
	agentsRoots := []string{filepath.Join(cfg.Workdir, ".wave", "agents")}

	var extraCommands []commands.SlashCommand
	hookConfigs := append([]hookpipeline.Config(nil), cfg.Hooks...)
	for _, pc := range cfg.Plugins {
		loaded, errs := plugins.Discover([]string{pc.Path})
		for _, err := range errs {
			slog.Warn("skipping plugin", "path", pc.Path, "error", err)
		}
		for _, p := range loaded {
			cmds, cerrs := plugins.LoadCommands(p)
			for _, err := range cerrs {
				slog.Warn("skipping plugin command", "plugin", p.Manifest.ID, "error", err)
			}
			extraCommands = append(extraCommands, cmds...)

			agentsRoots = append(agentsRoots, p.AgentsDir())
			skillsRoots = append(skillsRoots, p.SkillsDir())

			pluginHooks, err := plugins.LoadHooks(p)
			if err != nil {
				slog.Warn("skipping plugin hooks", "plugin", p.Manifest.ID, "error", err)
			}
			hookConfigs = append(hookConfigs, pluginHooks...)
		}
	}

	hooks := hookpipeline.New(hookConfigs, cfg.Workdir, "")

	agent, err = hostapi.Create(hostapi.Config{
		SessionID:      uuid.NewString(),
		Workdir:        cfg.Workdir,
		Model:          cfg.LLM.Model,
		FastModel:      cfg.LLM.FastModel,
		MaxTokens:      cfg.LLM.MaxTokens,
		InitialMode:    permission.Mode(cfg.Tools.ApprovalMode),
		Registry:       registry,
		ExecutorConfig: toolregistry.ExecutorConfig{Concurrency: cfg.Tools.Concurrency},
		Hooks:          hooks,
		Completer:      completer,
		FastCompleter:  completer,
		CommandsRoot:   cfg.CommandsRoot,
		ExtraCommands:  extraCommands,
		AgentsRoots:    agentsRoots,
		SkillsRoots:    skillsRoots,
		SkillsDisabled: skillsDisabled,
		RulesRoots:     rulesRoots,
		Callbacks:      callbacks,
		Logger:         slog.Default(),
		Tracer:         obs.tracer,
		Metrics:        obs.metrics,
		ObsLogger:      obs.logger,
	})
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("create agent: %w", err)
	}
	return agent, stop, nil
}

// startScheduler runs cfg.Scheduler.Jobs as maintenance prompts against
// agent, returning a stop func that waits for its tick loop to exit. A
// nil *scheduler.Scheduler (no jobs configured) is valid: Start/Stop are
// both no-ops on it.
func startScheduler(ctx context.Context, cfg *config.Config, agent *hostapi.Agent) (stop func()) {
	if len(cfg.Scheduler.Jobs) == 0 {
		return func() {}
	}
	runner := scheduler.RunnerFunc(func(ctx context.Context, job *scheduler.Job) error {
		_, err := agent.SendMessage(ctx, job.Prompt, nil)
		return err
	})
	sched := scheduler.New(cfg.Scheduler.Jobs, runner)
	schedCtx, cancel := context.WithCancel(ctx)
	sched.Start(schedCtx)
	return func() {
		cancel()
		_ = sched.Stop(context.Background())
	}
}
