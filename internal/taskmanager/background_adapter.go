package taskmanager

import (
	"context"
	"os/exec"
)

// ProcessHandle is the concrete handle a Bash-style tool passes through
// toolregistry.BackgroundRegistrar.AdoptProcess's untyped handle
// parameter, since that interface lives in toolregistry and cannot name
// os/exec.Cmd or Manager's own AdoptProcess signature without an import
// cycle.
type ProcessHandle struct {
	Cmd    *exec.Cmd
	Cancel context.CancelFunc
}

// BackgroundAdapter adapts Manager to toolregistry.BackgroundRegistrar.
type BackgroundAdapter struct {
	Manager *Manager
}

// AdoptProcess implements toolregistry.BackgroundRegistrar. handle must
// be a ProcessHandle; any other type is a caller bug and yields an
// empty task ID.
func (a BackgroundAdapter) AdoptProcess(command, priorStdout, priorStderr string, handle any) string {
	ph, ok := handle.(ProcessHandle)
	if !ok {
		return ""
	}
	return a.Manager.AdoptProcess(ph.Cmd, ph.Cancel, command, priorStdout, priorStderr)
}
