// Package taskmanager implements the Task Manager: the foreground and
// background task registries described in SPEC_FULL.md §4.E. It is
// grounded closely on the teacher's bash-session tracking
// (process_registry.go) — the 30,000-character pending-output cap and
// the running/finished split are carried over almost unchanged, widened
// from "bash session" to "any backgroundable unit" (shell or sub-agent).
package taskmanager

import "time"

// Status is the lifecycle state of a background task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusKilled    Status = "killed"
	StatusFailed    Status = "failed"
)

// Kind discriminates what a background task wraps.
type Kind string

const (
	KindShell    Kind = "shell"
	KindSubAgent Kind = "subagent"
)

// DefaultPendingOutputChars is the cap on queryable stdout/stderr per
// background task, matching the teacher's own constant exactly.
const DefaultPendingOutputChars = 30_000

// DefaultStopGrace is the SIGTERM-to-SIGKILL grace period for stopTask.
const DefaultStopGrace = 1 * time.Second

// DefaultForegroundTimeout is Bash's default foreground timeout.
const DefaultForegroundTimeout = 120 * time.Second

// DefaultPollInterval and bounds for blocking getOutput queries.
const (
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultQueryTimeout    = 30 * time.Second
	MaxQueryTimeout        = 600 * time.Second
)

// Snapshot is a point-in-time, read-only view of one background task.
type Snapshot struct {
	ID         string
	Kind       Kind
	Command    string
	Status     Status
	Stdout     string
	Stderr     string
	Truncated  bool
	ExitCode   *int
	StartedAt  time.Time
	EndedAt    time.Time
	SubAgentID string
}
