// Package builtintools implements the six built-in tools SPEC_FULL.md
// §4.B says the engine itself dispatches rather than merely documents:
// Task, TaskOutput, TaskStop, AskUserQuestion, EnterPlanMode, and
// ExitPlanMode. Each is an ordinary toolregistry.Tool, constructed by
// the host with a closure over the collaborator it needs (the
// Sub-Agent Runner, the Task Manager, or the Permission Gate) and
// registered into the same Registry as every other tool — the engine
// itself never special-cases a tool name, grounded on how
// internal/tools/subagent's SpawnTool/StatusTool/CancelTool each wrap a
// *Manager rather than being dispatched from the agent runtime's core
// loop.
package builtintools

import "encoding/json"

// compactParams renders args as its own compact JSON for
// FormatCompactParams, the shared fallback every tool in this package
// uses since none needs a richer one-line summary than "the raw args".
func compactParams(args json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	return string(args)
}
