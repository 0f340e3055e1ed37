package scheduler

import (
	"context"
	"time"
)

// JobConfig is one configured maintenance job, typically read from
// .wave/settings.json's "scheduler.jobs" array.
type JobConfig struct {
	ID       string         `yaml:"id" json:"id"`
	Name     string         `yaml:"name,omitempty" json:"name,omitempty"`
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	// Prompt is sent to the Runner verbatim — a slash command
	// ("/compact") or a freeform maintenance instruction.
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Job is a parsed, running JobConfig.
type Job struct {
	ID      string
	Name    string
	Enabled bool
	Prompt  string

	Schedule Schedule
	NextRun  time.Time
	LastRun  time.Time
	LastErr  string
}

// Runner executes one scheduled job's prompt against the engine. A host
// typically implements this by closing over a *hostapi.Agent and
// calling its SendMessage.
type Runner interface {
	Run(ctx context.Context, job *Job) error
}

// RunnerFunc adapts a plain function to a Runner.
type RunnerFunc func(ctx context.Context, job *Job) error

func (f RunnerFunc) Run(ctx context.Context, job *Job) error { return f(ctx, job) }
