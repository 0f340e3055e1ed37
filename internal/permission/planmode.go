package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

var planFileCounter int64

// PlanFilePath allocates a unique plan-file path under the project's
// .wave/plans directory. Actual file creation is the caller's
// responsibility (internal/builtintools owns the plan tool's disk I/O).
func PlanFilePath(workdir string) string {
	n := atomic.AddInt64(&planFileCounter, 1)
	return fmt.Sprintf("%s/.wave/plans/plan-%d.md", workdir, n)
}

// EnterPlanMode switches the gate into plan mode and returns the newly
// allocated plan-file path.
func (g *Gate) EnterPlanMode(workdir string) (planFilePath string) {
	g.priorMode = g.mode
	g.mode = ModePlan
	g.activePlanFile = PlanFilePath(workdir)
	return g.activePlanFile
}

// ExitDecision is the outcome of a plan-mode exit confirmation.
type ExitDecision struct {
	Approved bool
	Feedback string
}

// ConfirmExit asks the host to approve or reject the plan (via the same
// CanUseTool callback, addressed as a synthetic "ExitPlanMode" tool
// call carrying the plan content as input) and, on approval, restores
// the mode that was active before EnterPlanMode.
func (g *Gate) ConfirmExit(ctx context.Context, sessionID, planContent string) ExitDecision {
	if g.canUseTool == nil {
		return ExitDecision{Approved: false, Feedback: "no handler"}
	}
	input, _ := json.Marshal(map[string]string{"plan": planContent})
	d := g.canUseTool(ctx, ToolPermissionContext{
		ToolName:  "ExitPlanMode",
		ToolInput: input,
		Mode:      g.mode,
		SessionID: sessionID,
	})
	if d.Behavior != "allow" {
		return ExitDecision{Approved: false, Feedback: d.Message}
	}
	g.mode = g.priorMode
	g.activePlanFile = ""
	return ExitDecision{Approved: true}
}
