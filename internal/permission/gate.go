// Package permission implements the Permission Gate: a mode-driven
// decision oracle that resolves (tool, args, mode) to allow/deny, asking
// a host-supplied callback when no static rule settles it.
package permission

import (
	"context"
	"encoding/json"

	"github.com/waveforge/wave/internal/obslog"
)

// Mode is the permission posture in effect for a session or sub-agent.
type Mode string

const (
	ModeDefault           Mode = "default"
	ModeAcceptEdits        Mode = "acceptEdits"
	ModeBypassPermissions  Mode = "bypassPermissions"
	ModePlan               Mode = "plan"
)

// safeTools never need confirmation: they are read-only with respect to
// the session's durable state.
var safeTools = map[string]struct{}{
	"Read": {}, "Grep": {}, "Glob": {}, "LS": {},
	"TaskList": {}, "TaskGet": {}, "TaskOutput": {},
}

// editTools mutate files; acceptEdits auto-allows these.
var editTools = map[string]struct{}{
	"Write": {}, "Edit": {}, "Delete": {},
}

// Decision is the outcome of a gate check: either a final answer, or a
// request to ask the host.
type Decision struct {
	Allow   bool
	Message string
}

// ToolPermissionContext is passed to the host's CanUseTool callback.
type ToolPermissionContext struct {
	ToolName  string
	ToolInput json.RawMessage
	Mode      Mode
	SessionID string
}

// PermissionDecision is the host callback's verdict.
type PermissionDecision struct {
	Behavior string // "allow" | "deny"
	Message  string
	// Answers is a typed form of AskUserQuestion's answers, alongside the
	// legacy JSON-string-in-Message shape (SPEC_FULL.md §9 resolved open
	// question). Neither Gate.Check nor Gate.Ask reads it; AskUserQuestion
	// parses its answers from Message.
	Answers map[string]string
}

// CanUseTool is the host-supplied callback invoked when no static rule
// in the decision procedure settles the call.
type CanUseTool func(ctx context.Context, tpc ToolPermissionContext) PermissionDecision

// PlanFileChecker reports whether a call to (toolName, args) would
// mutate state outside the active plan file, used only while in plan
// mode.
type PlanFileChecker func(toolName string, args json.RawMessage) (outsidePlanFile bool)

// Gate resolves tool calls against the seven-step decision procedure in
// SPEC_FULL.md §4.C.
type Gate struct {
	mode            Mode
	priorMode       Mode
	activePlanFile  string
	allowedTools    map[string]struct{} // active slash-command allowed-tools whitelist
	canUseTool      CanUseTool
	planFileChecker PlanFileChecker
	logger          *obslog.Logger // optional; nil is a valid no-op logger
}

// SetLogger attaches an optional structured logger the gate reports
// denials through.
func (g *Gate) SetLogger(logger *obslog.Logger) { g.logger = logger }

// New creates a Gate in the given starting mode.
func New(mode Mode, canUseTool CanUseTool) *Gate {
	return &Gate{mode: mode, canUseTool: canUseTool}
}

// Mode returns the gate's current permission mode.
func (g *Gate) Mode() Mode { return g.mode }

// SetMode transitions the gate's permission mode (used by
// EnterPlanMode/ExitPlanMode).
func (g *Gate) SetMode(m Mode) { g.mode = m }

// SetAllowedTools installs the active slash-command's allowed-tools
// whitelist; pass nil to clear it.
func (g *Gate) SetAllowedTools(tools []string) {
	if len(tools) == 0 {
		g.allowedTools = nil
		return
	}
	m := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		m[t] = struct{}{}
	}
	g.allowedTools = m
}

// SetPlanFileChecker installs the plan-mode mutate-outside-plan-file
// predicate.
func (g *Gate) SetPlanFileChecker(c PlanFileChecker) { g.planFileChecker = c }

// ActivePlanFile returns the plan file path recorded by EnterPlan, or ""
// if the gate is not in plan mode.
func (g *Gate) ActivePlanFile() string { return g.activePlanFile }

// EnterPlan transitions into plan mode, remembering the mode to restore
// on ExitPlan (the EnterPlanMode/ExitPlanMode built-in tools' back end).
// Entering plan mode while already in it leaves the remembered prior
// mode untouched.
func (g *Gate) EnterPlan(planFile string, checker PlanFileChecker) {
	if g.mode != ModePlan {
		g.priorMode = g.mode
	}
	g.mode = ModePlan
	g.activePlanFile = planFile
	if checker != nil {
		g.planFileChecker = checker
	}
}

// ExitPlan restores the mode recorded by EnterPlan (ModeDefault if plan
// mode was entered from nothing) and clears the active plan file.
func (g *Gate) ExitPlan() Mode {
	restored := g.priorMode
	if restored == "" {
		restored = ModeDefault
	}
	g.mode = restored
	g.activePlanFile = ""
	g.planFileChecker = nil
	g.priorMode = ""
	return restored
}

// Ask invokes the host's CanUseTool callback directly, bypassing the
// static rules Check runs — the mechanism AskUserQuestion and the
// plan-mode EnterPlanMode/ExitPlanMode tools use to get a host decision
// regardless of the safe/allowed-tools/acceptEdits short-circuits.
func (g *Gate) Ask(ctx context.Context, sessionID, toolName string, args json.RawMessage) (bool, string) {
	if g.canUseTool == nil {
		return false, "no handler"
	}
	d := g.canUseTool(ctx, ToolPermissionContext{ToolName: toolName, ToolInput: args, Mode: g.mode, SessionID: sessionID})
	return d.Behavior == "allow", d.Message
}

// Check runs the decision procedure for one tool call, logging the
// outcome when a logger is attached via SetLogger.
func (g *Gate) Check(ctx context.Context, sessionID, toolName string, args json.RawMessage) Decision {
	d := g.check(ctx, sessionID, toolName, args)
	if !d.Allow {
		g.logger.Warn(ctx, "tool call denied", "tool_name", toolName, "session_id", sessionID, "reason", d.Message)
	}
	return d
}

func (g *Gate) check(ctx context.Context, sessionID, toolName string, args json.RawMessage) Decision {
	// 1. bypassPermissions
	if g.mode == ModeBypassPermissions {
		return Decision{Allow: true}
	}

	// 2. slash-command allowed-tools whitelist
	if g.allowedTools != nil {
		if _, ok := g.allowedTools[toolName]; ok {
			return Decision{Allow: true}
		}
	}

	// 3. safe read-only tools
	if _, ok := safeTools[toolName]; ok {
		return Decision{Allow: true}
	}

	// 4. plan mode denies mutation outside the plan file
	if g.mode == ModePlan && g.planFileChecker != nil && g.planFileChecker(toolName, args) {
		return Decision{Allow: false, Message: "plan mode: this action would mutate state outside the plan file"}
	}

	// 5. acceptEdits auto-allows file edits
	if g.mode == ModeAcceptEdits {
		if _, ok := editTools[toolName]; ok {
			return Decision{Allow: true}
		}
	}

	// 6. host callback
	if g.canUseTool != nil {
		d := g.canUseTool(ctx, ToolPermissionContext{ToolName: toolName, ToolInput: args, Mode: g.mode, SessionID: sessionID})
		return Decision{Allow: d.Behavior == "allow", Message: d.Message}
	}

	// 7. no handler configured
	return Decision{Allow: false, Message: "no handler"}
}
