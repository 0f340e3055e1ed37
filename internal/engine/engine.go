package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/waveforge/wave/internal/engineerr"
	"github.com/waveforge/wave/internal/events"
	"github.com/waveforge/wave/internal/hookpipeline"
	"github.com/waveforge/wave/internal/memoryrules"
	"github.com/waveforge/wave/internal/metrics"
	"github.com/waveforge/wave/internal/obslog"
	"github.com/waveforge/wave/internal/permission"
	"github.com/waveforge/wave/internal/snapshot"
	"github.com/waveforge/wave/internal/taskmanager"
	"github.com/waveforge/wave/internal/toolregistry"
	"github.com/waveforge/wave/internal/tracing"
	"github.com/waveforge/wave/internal/transcript"
	"github.com/waveforge/wave/pkg/block"
)

// maxStopHookRestarts bounds how many times a Stop hook may send the
// turn back around the LLM loop before the engine gives up and resolves
// anyway (SPEC_FULL.md §9's resolution of the open recursion-guard
// question).
const maxStopHookRestarts = 3

// Config configures one Engine instance. It corresponds to the
// programmatic subset of SPEC_FULL.md §6's Config object; the rest
// (plugins, mcpServers, on-disk surface discovery) is assembled by
// internal/config and handed to New via SystemPrompt/Tools/Hooks.
type Config struct {
	SessionID    string
	Workdir      string
	Model        string
	FastModel    string
	MaxTokens    int
	SystemPrompt string

	// CompactionTokenThreshold triggers summarization of the earliest
	// unpinned transcript span once exceeded; 0 disables compaction.
	CompactionTokenThreshold int

	MaxIterationsPerTurn int // 0 = DefaultMaxIterations
}

// DefaultMaxIterations bounds the inner Stream/ExecuteTools/Continue
// loop per outer (Stop-hook-restarted) turn attempt.
const DefaultMaxIterations = 50

// Engine owns one session's Transcript Store, Tool Registry, Permission
// Gate, Hook Pipeline, Task Manager, and Event Dispatcher, and runs the
// turn algorithm in SPEC_FULL.md §4.F against them. It is grounded on
// internal/agent/loop.go's AgenticLoop state machine, narrowed from a
// channel-streamed response to a direct SendMessage-returns-final-text
// API (the streaming deltas are instead delivered via the Dispatcher,
// matching this spec's event-callback model rather than the teacher's
// channel-of-chunks model).
type Engine struct {
	cfg Config

	transcriptStore *transcript.Store
	registry        *toolregistry.Registry
	executor        *toolregistry.Executor
	gate            *permission.Gate
	hooks           *hookpipeline.Pipeline
	tasks           *taskmanager.Manager
	dispatcher      *events.Dispatcher
	completer       Completer
	fastCompleter   Completer // used for compaction; falls back to completer

	// tracer/metricsRecorder/logger are optional observability
	// dependencies; nil-valued, every call site below is a no-op
	// (obslog.Logger, metrics.Metrics, and tracing.Tracer are all
	// designed to tolerate a nil receiver). Set via SetObservability.
	tracer          *tracing.Tracer
	metricsRecorder *metrics.Metrics
	logger          *obslog.Logger

	// rules is an optional `.wave/rules` matcher; nil means no rule is
	// ever folded into a tool result. Set via SetMemoryRules.
	rules *memoryrules.Manager

	// reversion is an optional file-snapshot recorder; nil means Rewind
	// only truncates the transcript and does not touch the filesystem.
	// Set via SetReversion.
	reversion *snapshot.Recorder

	mu             sync.Mutex
	turnInProgress bool
	turnCancel     context.CancelFunc

	// currentUserMessageIndex is the index (per transcript.Store's own
	// user-message counting) of the user message the turn in progress
	// belongs to, used to tag file-snapshot captures so Rewind knows
	// which ones to replay.
	currentUserMessageIndex int

	// compactionBoundary is the snapshot index below which messages are
	// dropped from the LLM request (replaced by the most recent compress
	// block's summary), set by maybeCompact.
	compactionBoundary int
}

// New builds an Engine. fastCompleter may be nil, in which case
// completer is reused for compaction summarization calls.
func New(
	cfg Config,
	store *transcript.Store,
	registry *toolregistry.Registry,
	executor *toolregistry.Executor,
	gate *permission.Gate,
	hooks *hookpipeline.Pipeline,
	tasks *taskmanager.Manager,
	dispatcher *events.Dispatcher,
	completer Completer,
	fastCompleter Completer,
) *Engine {
	if fastCompleter == nil {
		fastCompleter = completer
	}
	if cfg.MaxIterationsPerTurn <= 0 {
		cfg.MaxIterationsPerTurn = DefaultMaxIterations
	}
	return &Engine{
		cfg: cfg, transcriptStore: store, registry: registry, executor: executor,
		gate: gate, hooks: hooks, tasks: tasks, dispatcher: dispatcher,
		completer: completer, fastCompleter: fastCompleter,
	}
}

// SetObservability attaches optional tracing/metrics/logging
// dependencies. Any argument may be nil; each is designed to tolerate a
// nil receiver, so omitting one simply means that concern isn't
// recorded. Must be called before the first SendMessage.
func (e *Engine) SetObservability(tracer *tracing.Tracer, m *metrics.Metrics, logger *obslog.Logger) {
	e.tracer = tracer
	e.metricsRecorder = m
	e.logger = logger
}

// SetMemoryRules attaches the `.wave/rules` matcher whose content gets
// folded into a tool result whenever the call's file-path argument
// matches. A nil manager (the default) disables this entirely.
func (e *Engine) SetMemoryRules(m *memoryrules.Manager) {
	e.rules = m
}

// SetReversion attaches the file-snapshot recorder TruncateHistory
// replays against on rewind. A nil recorder (the default) disables
// file-snapshot capture and replay entirely; rewind then only affects
// the transcript.
func (e *Engine) SetReversion(r *snapshot.Recorder) {
	e.reversion = r
}

// SendMessage runs one full turn to quiescence and returns the final
// assistant text. The engine is non-reentrant for a given session: a
// second call while a turn is in progress fails fast with
// engineerr.ErrNotReentrant, per §4.F's "Re-entry" rule.
func (e *Engine) SendMessage(ctx context.Context, text string, images []block.Image) (string, error) {
	e.mu.Lock()
	if e.turnInProgress {
		e.mu.Unlock()
		return "", engineerr.ErrNotReentrant
	}
	turnCtx, cancel := context.WithCancel(ctx)
	e.turnInProgress = true
	e.turnCancel = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.turnInProgress = false
		e.turnCancel = nil
		e.mu.Unlock()
		cancel()
	}()

	return e.runTurn(turnCtx, text, images)
}

// Abort cancels the in-flight turn, if any. In-flight LLM streams and
// foreground tool calls observe ctx.Done(); background tasks are
// unaffected, per §4.F's Cancellation contract.
func (e *Engine) Abort() {
	e.mu.Lock()
	cancel := e.turnCancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// IsLoading reports whether a turn is currently in progress.
func (e *Engine) IsLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnInProgress
}

// BackgroundCurrentTask asks the Task Manager to background the most
// recently registered foreground tool call.
func (e *Engine) BackgroundCurrentTask() (string, bool) {
	return e.tasks.BackgroundCurrentTask()
}

// TruncateHistory rewinds the transcript to end at toUserMessageIndex
// and notifies the dispatcher.
func (e *Engine) TruncateHistory(toUserMessageIndex int) {
	e.transcriptStore.Truncate(toUserMessageIndex)
	if e.reversion != nil {
		for _, err := range e.reversion.Replay(toUserMessageIndex) {
			e.logger.Warn(context.Background(), "file-snapshot replay failed", "error", err)
		}
	}
	e.dispatcher.ShowRewind(toUserMessageIndex)
	e.dispatcher.MessagesChange(e.transcriptStore.Snapshot())
}

func (e *Engine) runTurn(ctx context.Context, text string, images []block.Image) (finalText string, err error) {
	ctx, span := e.tracer.TraceTurn(ctx, e.cfg.SessionID)
	defer func() {
		e.tracer.RecordError(span, err)
		span.End()
		status := "ok"
		switch {
		case errors.Is(err, engineerr.ErrAborted):
			status = "aborted"
		case err != nil:
			status = "error"
		}
		e.metricsRecorder.ObserveTurn(status)
		if err != nil {
			e.logger.Error(ctx, "turn failed", "error", err)
		} else {
			e.logger.Debug(ctx, "turn completed")
		}
	}()

	userMsgID := e.transcriptStore.AppendUserMessage(text, images)
	e.mu.Lock()
	e.currentUserMessageIndex = e.transcriptStore.UserMessageCount() - 1
	e.mu.Unlock()
	if msg := e.transcriptStore.Get(userMsgID); msg != nil {
		e.dispatcher.UserMessageAdded(msg)
	}
	e.dispatcher.MessagesChange(e.transcriptStore.Snapshot())

	extraContext, err := e.runUserPromptSubmitHook(ctx, userMsgID, text)
	if err != nil {
		return "", err
	}

	stopHookRestarts := 0
	for {
		select {
		case <-ctx.Done():
			return "", &engineerr.AbortError{Phase: "llm_loop"}
		default:
		}

		text, err := e.runLLMLoop(ctx, extraContext)
		if err != nil {
			return "", err
		}
		extraContext = ""

		outcome := e.hooks.Run(ctx, hookpipeline.Stop, hookpipeline.Input{ToolName: ""})
		for _, w := range outcome.Warnings {
			e.dispatcher.WarnMessageAdded(w)
		}
		if outcome.Kind != hookpipeline.OutcomeBlocked {
			return text, nil
		}

		stopHookRestarts++
		if stopHookRestarts > maxStopHookRestarts {
			return text, nil
		}
		// Inject the stop hook's reason as a synthetic user message and
		// give the model another chance, per §4.F step 4.
		reason := outcome.StderrForModel
		if reason == "" {
			reason = outcome.StopReason
		}
		msgID := e.transcriptStore.AppendUserMessage(reason, nil)
		e.mu.Lock()
		e.currentUserMessageIndex = e.transcriptStore.UserMessageCount() - 1
		e.mu.Unlock()
		if msg := e.transcriptStore.Get(msgID); msg != nil {
			e.dispatcher.UserMessageAdded(msg)
		}
	}
}

func (e *Engine) runUserPromptSubmitHook(ctx context.Context, userMsgID, text string) (extraContext string, err error) {
	outcome := e.hooks.Run(ctx, hookpipeline.UserPromptSubmit, hookpipeline.Input{UserPrompt: text})
	for _, w := range outcome.Warnings {
		e.dispatcher.WarnMessageAdded(w)
	}
	switch outcome.Kind {
	case hookpipeline.OutcomeBlocked:
		e.transcriptStore.RemoveMessage(userMsgID)
		errMsgID := e.transcriptStore.AppendAssistantMessage()
		blockID, _ := e.transcriptStore.OpenBlock(errMsgID, &block.ErrorBlock{Message: outcome.StderrForUser})
		_ = blockID
		if msg := e.transcriptStore.Get(errMsgID); msg != nil {
			e.dispatcher.ErrorBlockAdded(errMsgID, msg.Blocks[0].(*block.ErrorBlock))
		}
		e.dispatcher.MessagesChange(e.transcriptStore.Snapshot())
		return "", &engineerr.HookBlockingError{Event: "UserPromptSubmit", Message: outcome.StderrForUser}
	case hookpipeline.OutcomeWarning:
		e.dispatcher.WarnMessageAdded(outcome.StderrForUser)
	}
	if outcome.StdoutForContext != "" {
		extraContext = outcome.StdoutForContext
	}
	if outcome.AdditionalContext != "" {
		if extraContext != "" {
			extraContext += "\n" + outcome.AdditionalContext
		} else {
			extraContext = outcome.AdditionalContext
		}
	}
	return extraContext, nil
}

// runLLMLoop implements §4.F step 3: the Stream -> ExecuteTools ->
// Continue cycle, iterated until the model emits zero tool calls (or
// MaxIterationsPerTurn is reached).
func (e *Engine) runLLMLoop(ctx context.Context, extraContext string) (string, error) {
	var lastText string
	for iter := 0; iter < e.cfg.MaxIterationsPerTurn; iter++ {
		select {
		case <-ctx.Done():
			return lastText, &engineerr.AbortError{Phase: "stream"}
		default:
		}

		e.maybeCompact(ctx)

		assistantMsgID := e.transcriptStore.AppendAssistantMessage()
		if msg := e.transcriptStore.Get(assistantMsgID); msg != nil {
			e.dispatcher.AssistantMessageAdded(msg)
		}

		req := e.composeRequest(extraContext)
		extraContext = ""

		text, calls, err := e.streamPhase(ctx, assistantMsgID, req)
		if err != nil {
			e.closeTurnOnError(assistantMsgID, err)
			return lastText, err
		}
		lastText = text

		if len(calls) == 0 {
			return lastText, nil
		}

		e.executeToolsPhase(ctx, assistantMsgID, calls)
	}
	return lastText, nil
}

func (e *Engine) closeTurnOnError(assistantMsgID string, err error) {
	blockID, openErr := e.transcriptStore.OpenBlock(assistantMsgID, &block.ErrorBlock{Message: err.Error()})
	if openErr == nil {
		if msg := e.transcriptStore.Get(assistantMsgID); msg != nil {
			for _, b := range msg.Blocks {
				if eb, ok := b.(*block.ErrorBlock); ok && eb.BlockID == blockID {
					e.dispatcher.ErrorBlockAdded(assistantMsgID, eb)
				}
			}
		}
	}
	e.dispatcher.MessagesChange(e.transcriptStore.Snapshot())
}

func (e *Engine) composeRequest(extraContext string) Request {
	system := e.cfg.SystemPrompt
	system += e.registry.SystemPromptFragments(e.registry.Names())
	if e.gate.Mode() == permission.ModePlan {
		system += "\n\nYou are in plan mode. Do not mutate any file outside the active plan file; describe your intended changes instead."
	}
	if extraContext != "" {
		system += "\n\n" + extraContext
	}

	snapshot := e.transcriptStore.Snapshot()
	boundary := e.compactionBoundary
	if boundary > len(snapshot) {
		boundary = 0
	}
	messages := make([]CompletionMessage, 0, len(snapshot))
	if boundary > 0 {
		if summary := latestCompressSummary(snapshot); summary != "" {
			messages = append(messages, CompletionMessage{Role: RoleUser, Text: "Summary of earlier conversation:\n" + summary})
		}
	}
	for i, m := range snapshot {
		if i < boundary {
			continue
		}
		cm := projectMessage(m)
		if isEmptyMessage(cm) {
			continue
		}
		messages = append(messages, cm)
	}

	var tools []ToolSchema
	for _, name := range e.registry.Names() {
		t, ok := e.registry.Get(name)
		if !ok {
			continue
		}
		tools = append(tools, ToolSchema{Name: name, Description: t.Prompt(), Parameters: t.Schema()})
	}

	return Request{Model: e.cfg.Model, System: system, MaxTokens: e.cfg.MaxTokens, Messages: messages, Tools: tools}
}

func projectMessage(m block.Message) CompletionMessage {
	cm := CompletionMessage{Role: Role(m.Role)}
	for _, b := range m.Blocks {
		switch tb := b.(type) {
		case *block.TextBlock:
			cm.Text += tb.Content
		case *block.ToolBlock:
			cm.ToolCalls = append(cm.ToolCalls, ToolCallRecord{ID: tb.CallID, Name: tb.Name, Arguments: tb.ParametersRaw})
			if tb.Stage == block.StageEnd {
				cm.ToolResults = append(cm.ToolResults, ToolResultRecord{ToolCallID: tb.CallID, Content: tb.Result, IsError: !tb.Success})
			}
		}
	}
	return cm
}

func isEmptyMessage(cm CompletionMessage) bool {
	return cm.Text == "" && len(cm.ToolCalls) == 0 && len(cm.ToolResults) == 0 && len(cm.Images) == 0
}

// latestCompressSummary returns the summary text of the most recently
// inserted compress block, or "" if none exists.
func latestCompressSummary(snapshot []block.Message) string {
	var summary string
	for _, m := range snapshot {
		for _, b := range m.Blocks {
			if cb, ok := b.(*block.CompressBlock); ok {
				summary = cb.Summary
			}
		}
	}
	return summary
}

// streamPhase opens a streaming completion and multiplexes deltas into
// text/tool blocks on assistantMsgID, per §4.F step 3b.
func (e *Engine) streamPhase(ctx context.Context, assistantMsgID string, req Request) (finalText string, calls []toolregistry.Call, err error) {
	ctx, span := e.tracer.TraceLLMRequest(ctx, req.Model)
	started := time.Now()
	defer func() {
		e.tracer.RecordError(span, err)
		span.End()
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metricsRecorder.ObserveLLMRequest(req.Model, status, time.Since(started))
	}()

	events, err := e.completer.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, &engineerr.AbortError{Phase: "stream"}
		}
		return "", nil, &engineerr.TransportError{Model: req.Model, Cause: err}
	}

	var textBlockID string
	type openCall struct {
		blockID string
		args    []byte
		index   int
	}
	openCalls := make(map[string]*openCall)
	var order []string
	var lastUsage *block.Usage

	for ev := range events {
		switch ev.Kind {
		case EventText:
			if textBlockID == "" {
				id, _ := e.transcriptStore.OpenBlock(assistantMsgID, &block.TextBlock{})
				textBlockID = id
			}
			_ = e.transcriptStore.AppendText(assistantMsgID, textBlockID, ev.TextDelta)
			e.dispatcher.AssistantContentUpdated(assistantMsgID, textBlockID, ev.TextDelta)

		case EventToolCallStart:
			id, _ := e.transcriptStore.OpenBlock(assistantMsgID, &block.ToolBlock{CallID: ev.ToolCallID, Name: ev.ToolCallName, Stage: block.StagePending})
			oc := &openCall{blockID: id, index: len(order)}
			openCalls[ev.ToolCallID] = oc
			order = append(order, ev.ToolCallID)
			if msg := e.transcriptStore.Get(assistantMsgID); msg != nil {
				for _, b := range msg.Blocks {
					if tb, ok := b.(*block.ToolBlock); ok && tb.BlockID == id {
						e.dispatcher.ToolBlockAdded(assistantMsgID, tb)
					}
				}
			}

		case EventToolCallDelta:
			if oc, ok := openCalls[ev.ToolCallID]; ok {
				oc.args = append(oc.args, ev.ArgsDelta...)
				_ = e.transcriptStore.AppendToolParams(assistantMsgID, oc.blockID, ev.ArgsDelta)
			}

		case EventToolCallEnd:
			// Arguments are complete; parsing is deferred to the tool-
			// execution phase, which surfaces parse failures as a failed
			// tool call rather than a transcript error (§3 Invariants).

		case EventUsage:
			lastUsage = ev.Usage

		case EventError:
			if textBlockID != "" {
				_ = e.transcriptStore.FreezeText(assistantMsgID, textBlockID)
			}
			if ctx.Err() != nil {
				return "", nil, &engineerr.AbortError{Phase: "stream"}
			}
			return "", nil, &engineerr.TransportError{Model: req.Model, Cause: ev.Err}
		}
	}

	if textBlockID != "" {
		_ = e.transcriptStore.FreezeText(assistantMsgID, textBlockID)
	}
	if lastUsage != nil {
		e.dispatcher.UsagesChange(*lastUsage)
		e.metricsRecorder.ObserveTokens(lastUsage.Model, "input", lastUsage.InputTokens)
		e.metricsRecorder.ObserveTokens(lastUsage.Model, "output", lastUsage.OutputTokens)
		e.metricsRecorder.ObserveTokens(lastUsage.Model, "cache_read", lastUsage.CacheReadInputTokens)
		e.metricsRecorder.ObserveTokens(lastUsage.Model, "cache_creation", lastUsage.CacheCreationInputTokens)
	}
	e.dispatcher.MessagesChange(e.transcriptStore.Snapshot())

	finalText = ""
	if msg := e.transcriptStore.Get(assistantMsgID); msg != nil {
		for _, b := range msg.Blocks {
			if tb, ok := b.(*block.TextBlock); ok {
				finalText += tb.Content
			}
		}
	}

	calls = make([]toolregistry.Call, 0, len(order))
	for i, callID := range order {
		oc := openCalls[callID]
		calls = append(calls, toolregistry.Call{
			Index: i, CallID: callID, Name: toolNameOf(e.transcriptStore, assistantMsgID, oc.blockID),
			Args: json.RawMessage(oc.args),
		})
	}
	return finalText, calls, nil
}

func toolNameOf(store *transcript.Store, msgID, blockID string) string {
	msg := store.Get(msgID)
	if msg == nil {
		return ""
	}
	for _, b := range msg.Blocks {
		if tb, ok := b.(*block.ToolBlock); ok && tb.BlockID == blockID {
			return tb.Name
		}
	}
	return ""
}

// executeToolsPhase implements §4.F step 5 for a batch of tool calls
// produced by one LLM response: permission check, PreToolUse hook,
// concurrent execution, transcript close (in stream order), PostToolUse
// hook.
func (e *Engine) executeToolsPhase(ctx context.Context, assistantMsgID string, calls []toolregistry.Call) {
	prepared := make([]toolregistry.Call, len(calls))
	denied := make([]*permission.Decision, len(calls))

	for i, c := range calls {
		decision := e.gate.Check(ctx, e.cfg.SessionID, c.Name, c.Args)
		args := c.Args
		if !decision.Allow {
			denied[i] = &permission.Decision{Allow: false, Message: decision.Message}
		}

		preOutcome := e.hooks.Run(ctx, hookpipeline.PreToolUse, hookpipeline.Input{ToolName: c.Name, ToolInput: args})
		for _, w := range preOutcome.Warnings {
			e.dispatcher.WarnMessageAdded(w)
		}
		switch preOutcome.PermissionDecision {
		case "deny":
			denied[i] = &permission.Decision{Allow: false, Message: preOutcome.PermissionDecisionReason}
		case "allow":
			denied[i] = nil
		}
		if preOutcome.Kind == hookpipeline.OutcomeBlocked && denied[i] == nil {
			denied[i] = &permission.Decision{Allow: false, Message: preOutcome.StderrForModel}
		}
		if len(preOutcome.UpdatedInput) > 0 {
			args = preOutcome.UpdatedInput
		}
		if denied[i] != nil {
			e.metricsRecorder.ObservePermissionDecision(c.Name, "deny")
		} else {
			e.metricsRecorder.ObservePermissionDecision(c.Name, "allow")
		}

		if e.reversion != nil && denied[i] == nil {
			if path := snapshot.ExtractFilePath(args); path != "" {
				e.mu.Lock()
				idx := e.currentUserMessageIndex
				e.mu.Unlock()
				if err := e.reversion.Capture(path, idx); err != nil {
					e.logger.Warn(ctx, "file-snapshot capture failed", "path", path, "error", err)
				}
			}
		}

		_, blockID, _ := e.transcriptStore.FindToolBlockByCallID(c.CallID)
		c.Args = args
		c.Ctx = e.newToolContext(ctx, assistantMsgID, blockID)
		prepared[i] = c
	}

	toRun := make([]toolregistry.Call, 0, len(prepared))
	runIndex := make([]int, 0, len(prepared))
	for i, c := range prepared {
		if denied[i] != nil {
			continue
		}
		toRun = append(toRun, c)
		runIndex = append(runIndex, i)
	}

	results := make([]*toolregistry.ExecResult, len(prepared))
	if len(toRun) > 0 {
		execResults := e.executor.ExecuteAll(ctx, toRun)
		for i, r := range execResults {
			rCopy := r
			results[runIndex[i]] = &rCopy
		}
	}

	for i, c := range prepared {
		var result *toolregistry.ToolResult
		if denied[i] != nil {
			result = &toolregistry.ToolResult{Success: false, Error: denied[i].Message}
		} else if results[i] != nil {
			result = results[i].Result
		} else {
			result = &toolregistry.ToolResult{Success: false, Error: "tool did not run"}
		}

		_, blockID, _ := e.transcriptStore.FindToolBlockByCallID(c.CallID)
		_ = e.transcriptStore.SetToolRunning(assistantMsgID, blockID)
		_ = e.transcriptStore.CloseToolBlock(assistantMsgID, blockID, result.Success, result.Content, result.ShortResult, result.Error, result.Images, result.IsManuallyBackgrounded)

		_, toolSpan := e.tracer.TraceTool(ctx, c.Name, c.CallID)
		status := "ok"
		var duration time.Duration
		if !result.Success {
			status = "error"
		}
		if results[i] != nil {
			duration = results[i].EndedAt.Sub(results[i].StartedAt)
			if results[i].Err != nil {
				e.tracer.RecordError(toolSpan, results[i].Err)
			}
		}
		toolSpan.End()
		e.metricsRecorder.ObserveToolExecution(c.Name, status, duration)

		if msg := e.transcriptStore.Get(assistantMsgID); msg != nil {
			for _, b := range msg.Blocks {
				if tb, ok := b.(*block.ToolBlock); ok && tb.BlockID == blockID {
					e.dispatcher.ToolBlockUpdated(assistantMsgID, tb)
				}
			}
		}

		postOutcome := e.hooks.Run(ctx, hookpipeline.PostToolUse, hookpipeline.Input{
			ToolName: c.Name, ToolInput: c.Args, ToolResponse: json.RawMessage(fmt.Sprintf("%q", result.Content)),
		})
		for _, w := range postOutcome.Warnings {
			e.dispatcher.WarnMessageAdded(w)
		}
		amended := result.Content
		amendedAny := false
		if postOutcome.Kind == hookpipeline.OutcomeBlocked {
			// The transcript itself is not rewritten; the amendment is
			// folded into the result text the model sees on the next
			// request via the tool block's Result field.
			if postOutcome.StderrForModel != "" {
				amended = postOutcome.StderrForModel + "\n" + amended
			}
			amendedAny = true
		}
		if e.rules != nil {
			if rendered := memoryrules.Render(e.rules.MatchArgs(c.Args)); rendered != "" {
				amended = amended + "\n\n[rules]\n" + rendered
				amendedAny = true
			}
		}
		if amendedAny {
			_ = e.transcriptStore.CloseToolBlock(assistantMsgID, blockID, result.Success, amended, result.ShortResult, result.Error, result.Images, result.IsManuallyBackgrounded)
		}
	}

	e.dispatcher.MessagesChange(e.transcriptStore.Snapshot())
}

// gatePermissionAsker adapts the Gate's direct-ask path to
// toolregistry.PermissionAsker so built-in tools (AskUserQuestion,
// EnterPlanMode/ExitPlanMode) can reach the host callback without the
// engine importing them.
type gatePermissionAsker struct {
	gate      *permission.Gate
	sessionID string
}

func (a gatePermissionAsker) Ask(ctx context.Context, toolName string, args json.RawMessage) (bool, string) {
	return a.gate.Ask(ctx, a.sessionID, toolName, args)
}

func (e *Engine) newToolContext(ctx context.Context, assistantMsgID, blockID string) *toolregistry.ToolContext {
	return &toolregistry.ToolContext{
		Context:            ctx,
		Workdir:            e.cfg.Workdir,
		Mode:               string(e.gate.Mode()),
		SessionID:          e.cfg.SessionID,
		AssistantMessageID: assistantMsgID,
		Permission:         gatePermissionAsker{gate: e.gate, sessionID: e.cfg.SessionID},
		Background:         taskmanager.BackgroundAdapter{Manager: e.tasks},
		AddDiffBlock: func(filePath, diff string) {
			id, err := e.transcriptStore.OpenBlock(assistantMsgID, &block.DiffBlock{FilePath: filePath, Diff: diff})
			if err != nil {
				return
			}
			if msg := e.transcriptStore.Get(assistantMsgID); msg != nil {
				for _, b := range msg.Blocks {
					if db, ok := b.(*block.DiffBlock); ok && db.BlockID == id {
						e.dispatcher.DiffBlockAdded(assistantMsgID, db)
					}
				}
			}
		},
	}
}

// maybeCompact summarizes the earliest unpinned transcript span via the
// fast completer once the session exceeds CompactionTokenThreshold,
// grounded on internal/agent/compaction.go's oldest-unpinned-span
// summarization.
func (e *Engine) maybeCompact(ctx context.Context) {
	if e.cfg.CompactionTokenThreshold <= 0 {
		return
	}
	snapshot := e.transcriptStore.Snapshot()
	if estimateTokens(snapshot) <= e.cfg.CompactionTokenThreshold {
		return
	}
	pinnedFrom := pinnedBoundary(snapshot)
	if pinnedFrom <= e.compactionBoundary {
		return // nothing new to summarize since the last compaction
	}

	summary, err := e.summarize(ctx, snapshot[e.compactionBoundary:pinnedFrom])
	if err != nil {
		return
	}

	msgID := e.transcriptStore.AppendAssistantMessage()
	id, err := e.transcriptStore.OpenBlock(msgID, &block.CompressBlock{Summary: summary, InsertIndex: pinnedFrom})
	if err != nil {
		return
	}
	if msg := e.transcriptStore.Get(msgID); msg != nil {
		for _, b := range msg.Blocks {
			if cb, ok := b.(*block.CompressBlock); ok && cb.BlockID == id {
				e.dispatcher.CompressBlockAdded(msgID, cb)
			}
		}
	}
	// The raw messages stay in the Transcript Store (rewind/history needs
	// them); composeRequest is what actually drops the summarized span,
	// substituting the compress block's summary in its place.
	e.compactionBoundary = pinnedFrom
	e.metricsRecorder.ObserveCompaction()
	e.dispatcher.MessagesChange(e.transcriptStore.Snapshot())
}

func (e *Engine) summarize(ctx context.Context, span []block.Message) (string, error) {
	messages := make([]CompletionMessage, 0, len(span))
	for _, m := range span {
		messages = append(messages, projectMessage(m))
	}
	req := Request{
		Model:  e.cfg.FastModel,
		System: "Summarize the conversation so far concisely, preserving any decisions, file paths, and open tasks.",
		Messages: messages,
	}
	ch, err := e.fastCompleter.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	var out string
	for ev := range ch {
		if ev.Kind == EventText {
			out += ev.TextDelta
		}
		if ev.Kind == EventError {
			return "", ev.Err
		}
	}
	return out, nil
}

// pinnedBoundary returns the end of the summarizable prefix: the current
// user message and the last assistant message are always pinned, and so
// is any earlier message carrying a memory or custom_command block,
// which stops the summarizable prefix short rather than being folded in.
func pinnedBoundary(snapshot []block.Message) int {
	if len(snapshot) < 2 {
		return 0
	}
	limit := len(snapshot) - 2
	for i := 0; i < limit; i++ {
		if carriesPinnedBlock(snapshot[i]) {
			return i
		}
	}
	return limit
}

func carriesPinnedBlock(m block.Message) bool {
	for _, b := range m.Blocks {
		switch b.(type) {
		case *block.MemoryBlock, *block.CustomCommandBlock:
			return true
		}
	}
	return false
}

func estimateTokens(snapshot []block.Message) int {
	chars := 0
	for _, m := range snapshot {
		for _, b := range m.Blocks {
			if tb, ok := b.(*block.TextBlock); ok {
				chars += len(tb.Content)
			}
		}
	}
	return chars / 4
}
