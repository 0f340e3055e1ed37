package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/waveforge/wave/internal/engine"
	"github.com/waveforge/wave/internal/events"
	"github.com/waveforge/wave/internal/hookpipeline"
	"github.com/waveforge/wave/internal/permission"
	"github.com/waveforge/wave/internal/taskmanager"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/transcript"
	"github.com/waveforge/wave/pkg/block"
)

// DefaultMaxDepth bounds Task-tool-calls-Task recursion, per §4.G's
// "bounded by a configurable depth" requirement.
const DefaultMaxDepth = 3

type depthKey struct{}

// DepthFromContext returns the current sub-agent nesting depth carried on
// ctx, or 0 at the top level (a direct call from the root Turn Engine).
func DepthFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(depthKey{}).(int); ok {
		return v
	}
	return 0
}

func withDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// Result is a completed sub-agent turn's outcome.
type Result struct {
	Text string
	Err  error
}

// Runner instantiates private, re-entrant turn engines for Task-tool
// delegation, mirroring each private transcript's events into the
// parent's SubAgentBlock via the parent Dispatcher.
type Runner struct {
	ParentTranscript *transcript.Store
	ParentDispatcher *events.Dispatcher
	BaseRegistry     *toolregistry.Registry // superset every sub-agent's allowed-tool subset is carved from
	ExecutorConfig   toolregistry.ExecutorConfig
	Hooks            *hookpipeline.Pipeline
	Tasks            *taskmanager.Manager
	Completer        engine.Completer
	FastCompleter    engine.Completer
	CanUseTool       permission.CanUseTool

	SessionID            string
	Workdir              string
	DefaultModel         string
	FastModel            string
	MaxTokens            int
	MaxIterationsPerTurn int
	MaxDepth             int

	Log *slog.Logger
}

func (r *Runner) maxDepth() int {
	if r.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return r.MaxDepth
}

// Invoke runs cfg's sub-agent to completion against a fresh private
// transcript and returns its final assistant text, per §4.G steps 1-5.
// The parent-level ctx's depth (DepthFromContext) is checked against the
// configured max before starting. Callers that want to let the host
// background a long-running sub-agent (the Task tool, via
// BackgroundCurrentTask) should use StartAsync instead.
func (r *Runner) Invoke(ctx context.Context, parentMsgID string, cfg Config, prompt string, parentMode permission.Mode) (string, error) {
	done, _, err := r.StartAsync(ctx, parentMsgID, cfg, prompt, parentMode)
	if err != nil {
		return "", err
	}
	res := <-done
	return res.Text, res.Err
}

// StartAsync runs cfg's sub-agent in its own goroutine and returns a
// channel delivering its Result, plus the minted sub-agent id. It
// registers a foreground task with the Task Manager so the host's
// BackgroundCurrentTask can hand this invocation off into the background
// registry (AdoptSubAgent) rather than the caller blocking on done.
func (r *Runner) StartAsync(ctx context.Context, parentMsgID string, cfg Config, prompt string, parentMode permission.Mode) (<-chan Result, string, error) {
	depth := DepthFromContext(ctx)
	if depth >= r.maxDepth() {
		return nil, "", fmt.Errorf("subagent: max recursion depth %d exceeded", r.maxDepth())
	}

	subID := uuid.NewString()
	sb := &block.SubAgentBlock{SubAgentID: subID, SubAgentName: cfg.Name, Status: block.SubAgentRunning}
	blockID, err := r.ParentTranscript.OpenBlock(parentMsgID, sb)
	if err != nil {
		return nil, "", err
	}
	sb = r.liveSubAgentBlock(parentMsgID, blockID)
	if sb != nil {
		r.ParentDispatcher.SubAgentBlockAdded(parentMsgID, sb)
	}
	r.ParentDispatcher.MessagesChange(r.ParentTranscript.Snapshot())

	privateStore := transcript.New()
	subRegistry := filterRegistry(r.BaseRegistry, cfg.AllowedTools)
	subExecutor := toolregistry.NewExecutor(subRegistry, r.ExecutorConfig)
	subGate := permission.New(parentMode, r.CanUseTool)

	subDispatcher := events.New(events.Callbacks{
		OnMessagesChange: func(messages []block.Message) {
			if sb == nil {
				return
			}
			sb.Messages = toPointerSlice(messages)
			r.ParentDispatcher.SubAgentBlockUpdated(parentMsgID, sb)
			r.ParentDispatcher.MessagesChange(r.ParentTranscript.Snapshot())
		},
	}, r.Log)

	model := cfg.Model
	if model == "" {
		model = r.DefaultModel
	}

	subEngine := engine.New(
		engine.Config{
			SessionID:            r.SessionID + ":" + subID,
			Workdir:              r.Workdir,
			Model:                model,
			FastModel:            r.FastModel,
			MaxTokens:            r.MaxTokens,
			SystemPrompt:         cfg.SystemPrompt,
			MaxIterationsPerTurn: r.MaxIterationsPerTurn,
		},
		privateStore, subRegistry, subExecutor, subGate, r.Hooks, r.Tasks, subDispatcher,
		r.Completer, r.FastCompleter,
	)

	var bgTaskID atomic.Value // background task id, set once the host backgrounds this run
	if r.Tasks != nil {
		r.Tasks.RegisterForeground(subID, func() {
			bgTaskID.Store(r.Tasks.AdoptSubAgent(subID))
		})
	}

	results := make(chan Result, 1)
	go func() {
		subCtx := withDepth(ctx, depth+1)
		text, runErr := subEngine.SendMessage(subCtx, prompt, nil)

		status := block.SubAgentCompleted
		if runErr != nil {
			status = block.SubAgentFailed
		}
		if sb != nil {
			sb.Status = status
			r.ParentDispatcher.SubAgentBlockUpdated(parentMsgID, sb)
		}
		r.ParentDispatcher.MessagesChange(r.ParentTranscript.Snapshot())

		if r.Tasks != nil {
			r.Tasks.UnregisterForeground(subID)
			if taskID, ok := bgTaskID.Load().(string); ok {
				r.Tasks.FinishSubAgent(taskID, text, runErr != nil)
			}
		}
		results <- Result{Text: text, Err: runErr}
	}()

	return results, subID, nil
}

// liveSubAgentBlock resolves the live *block.SubAgentBlock pointer so its
// Status/Messages fields can be mutated in place as the private turn
// progresses, matching how the engine itself reaches into live blocks.
func (r *Runner) liveSubAgentBlock(messageID, blockID string) *block.SubAgentBlock {
	msg := r.ParentTranscript.Get(messageID)
	if msg == nil {
		return nil
	}
	for _, b := range msg.Blocks {
		if sb, ok := b.(*block.SubAgentBlock); ok && sb.BlockID == blockID {
			return sb
		}
	}
	return nil
}

func toPointerSlice(messages []block.Message) []*block.Message {
	out := make([]*block.Message, len(messages))
	for i := range messages {
		out[i] = &messages[i]
	}
	return out
}

// filterRegistry builds a new Registry exposing only the named tools
// from base (or every tool in base, if allowed is empty — an agent
// config with no explicit `tools:` list inherits the full parent set).
func filterRegistry(base *toolregistry.Registry, allowed []string) *toolregistry.Registry {
	out := toolregistry.NewRegistry()
	names := allowed
	if len(names) == 0 {
		names = base.Names()
	}
	for _, name := range names {
		t, ok := base.Get(name)
		if !ok {
			continue
		}
		_ = out.Register(t)
	}
	return out
}
