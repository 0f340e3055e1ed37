package hookpipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/waveforge/wave/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Pipeline holds the configured hooks for a project and runs them at
// each lifecycle point.
type Pipeline struct {
	hooks          []Config
	cwd            string
	transcriptPath string
	metrics        *metrics.Metrics // optional; nil is a valid no-op recorder
}

// New builds a Pipeline from hooks merged out of .wave/settings.json and
// .wave/hooks.json (both accepted into the same schema, per SPEC_FULL.md
// §9's resolution of the dual-location open question). hooks.json
// entries are expected to already be appended after settings.json
// entries by the loader.
func New(hooks []Config, cwd, transcriptPath string) *Pipeline {
	return &Pipeline{hooks: hooks, cwd: cwd, transcriptPath: transcriptPath}
}

// SetMetrics attaches an optional Prometheus recorder.
func (p *Pipeline) SetMetrics(m *metrics.Metrics) { p.metrics = m }

// matching returns the configured hooks for an event, in configuration
// order, filtered by glob matcher against toolName (toolName is "" for
// events with no tool matcher).
func (p *Pipeline) matching(event LifecyclePoint, toolName string) []Config {
	var out []Config
	for _, h := range p.hooks {
		if h.Event != event {
			continue
		}
		if h.Matcher != "" && toolName != "" {
			if ok, _ := filepath.Match(h.Matcher, toolName); !ok {
				continue
			}
		}
		out = append(out, h)
	}
	return out
}

// Run executes every hook configured at event, in order, stopping at
// the first hook whose outcome blocks (the chain-stops-on-first-block
// rule in SPEC_FULL.md §4.D). It returns that blocking outcome, or a
// success outcome aggregating stdout-for-context from every hook that
// ran (only meaningful for UserPromptSubmit), the warnings of hooks that
// failed without blocking, and the last permission decision and updated
// input any hook returned.
func (p *Pipeline) Run(ctx context.Context, event LifecyclePoint, in Input) Outcome {
	var contexts []string
	var warnings []string
	var decision string
	var updatedInput json.RawMessage
	for _, cfg := range p.matching(event, in.ToolName) {
		outcome := p.runOne(ctx, cfg, in)
		if outcome.Kind == OutcomeBlocked {
			outcome.Warnings = warnings
			return outcome
		}
		if outcome.Kind == OutcomeWarning {
			// Non-blocking: surface to the user, keep running the chain.
			warnings = append(warnings, outcome.StderrForUser)
			continue
		}
		if outcome.PermissionDecision != "" {
			decision = outcome.PermissionDecision
		}
		if len(outcome.UpdatedInput) > 0 {
			updatedInput = outcome.UpdatedInput
		}
		if outcome.StdoutForContext != "" {
			contexts = append(contexts, outcome.StdoutForContext)
		}
		if outcome.AdditionalContext != "" {
			contexts = append(contexts, outcome.AdditionalContext)
		}
	}
	return Outcome{Kind: OutcomeSuccess, StdoutForContext: strings.Join(contexts, "\n"), Warnings: warnings, PermissionDecision: decision, UpdatedInput: updatedInput}
}

func (p *Pipeline) runOne(ctx context.Context, cfg Config, in Input) (outcome Outcome) {
	started := time.Now()
	defer func() {
		p.metrics.ObserveHook(string(cfg.Event), time.Since(started), outcome.Kind == OutcomeBlocked)
	}()

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	in.Event = cfg.Event
	in.TranscriptPath = p.transcriptPath
	in.CWD = p.cwd
	in.Timestamp = time.Now().UTC().Format(time.RFC3339)
	stdin, err := json.Marshal(in)
	if err != nil {
		return Outcome{Kind: OutcomeWarning, StderrForUser: "hook: failed to encode input: " + err.Error()}
	}

	if len(cfg.Command) == 0 {
		return Outcome{Kind: OutcomeWarning, StderrForUser: "hook: empty command"}
	}
	cmd := exec.CommandContext(runCtx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = p.cwd
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() != nil {
		return Outcome{Kind: OutcomeWarning, StderrForUser: "hook timed out after " + timeout.String()}
	}

	if out, ok := extractJSON(stdout.String()); ok {
		return interpretJSONOutput(out, stderr.String())
	}
	return interpretExitCode(cfg.Event, exitCode(runErr), stdout.String(), stderr.String())
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return 1
}

func interpretJSONOutput(out Output, stderr string) Outcome {
	if out.HookSpecificOutput != nil {
		hso := out.HookSpecificOutput
		if hso.PermissionDecision == "deny" {
			return Outcome{Kind: OutcomeBlocked, StderrForModel: hso.PermissionDecisionReason, PermissionDecision: "deny", PermissionDecisionReason: hso.PermissionDecisionReason}
		}
		if hso.PermissionDecision == "allow" || hso.PermissionDecision == "ask" {
			return Outcome{Kind: OutcomeSuccess, PermissionDecision: hso.PermissionDecision, UpdatedInput: hso.UpdatedInput, AdditionalContext: hso.AdditionalContext}
		}
		if hso.AdditionalContext != "" {
			return Outcome{Kind: OutcomeSuccess, AdditionalContext: hso.AdditionalContext, UpdatedInput: hso.UpdatedInput}
		}
	}
	if out.Continue != nil && !*out.Continue {
		return Outcome{Kind: OutcomeBlocked, StopReason: out.StopReason, StderrForUser: stderr, StderrForModel: out.StopReason}
	}
	return Outcome{Kind: OutcomeSuccess, StopReason: out.StopReason}
}

func interpretExitCode(event LifecyclePoint, code int, stdout, stderr string) Outcome {
	switch code {
	case 0:
		if event == UserPromptSubmit {
			return Outcome{Kind: OutcomeSuccess, StdoutForContext: stdout}
		}
		return Outcome{Kind: OutcomeSuccess}
	case 2:
		return Outcome{Kind: OutcomeBlocked, StderrForModel: stderr, StderrForUser: stderr}
	default:
		return Outcome{Kind: OutcomeWarning, StderrForUser: stderr}
	}
}
