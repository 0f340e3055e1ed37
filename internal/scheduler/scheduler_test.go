package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSkipsDisabledJob(t *testing.T) {
	s := New([]JobConfig{
		{ID: "disabled", Enabled: false, Prompt: "/compact", Schedule: ScheduleConfig{Every: time.Hour}},
	}, nil)
	if len(s.Jobs()) != 0 {
		t.Fatalf("expected disabled job to be skipped, got %d jobs", len(s.Jobs()))
	}
}

func TestNewSkipsBadSchedule(t *testing.T) {
	s := New([]JobConfig{
		{ID: "bad", Enabled: true, Prompt: "/compact", Schedule: ScheduleConfig{}},
	}, nil)
	if len(s.Jobs()) != 0 {
		t.Fatalf("expected job with empty schedule to be skipped, got %d jobs", len(s.Jobs()))
	}
}

func TestRunOnceRunsDueJob(t *testing.T) {
	var calls int32
	runner := RunnerFunc(func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	s := New([]JobConfig{
		{ID: "nightly", Enabled: true, Prompt: "/compact", Schedule: ScheduleConfig{Every: time.Hour}},
	}, runner, WithNow(func() time.Time { return now }))

	// Not due yet: NextRun is an hour after base.
	if n := s.RunOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 jobs run before due, got %d", n)
	}

	now = base.Add(time.Hour)
	if n := s.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected 1 job run once due, got %d", n)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected runner called once, got %d", calls)
	}

	jobs := s.Jobs()
	if jobs[0].LastRun != now {
		t.Fatalf("expected LastRun updated to %v, got %v", now, jobs[0].LastRun)
	}
	if !jobs[0].NextRun.After(now) {
		t.Fatalf("expected NextRun advanced past %v, got %v", now, jobs[0].NextRun)
	}
}

func TestRunJobByID(t *testing.T) {
	var ran bool
	runner := RunnerFunc(func(ctx context.Context, job *Job) error {
		ran = true
		return nil
	})
	s := New([]JobConfig{
		{ID: "nightly", Enabled: true, Prompt: "/compact", Schedule: ScheduleConfig{Every: time.Hour}},
	}, runner)

	if err := s.RunJob(context.Background(), "nightly"); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if !ran {
		t.Fatalf("expected runner invoked")
	}
	if err := s.RunJob(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown job id")
	}
}

func TestRunJobDisablesOnExhaustedAtSchedule(t *testing.T) {
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	now := at.Add(-time.Minute)
	runner := RunnerFunc(func(ctx context.Context, job *Job) error { return nil })
	s := New([]JobConfig{
		{ID: "once", Enabled: true, Prompt: "/compact", Schedule: ScheduleConfig{At: at.Format(time.RFC3339)}},
	}, runner, WithNow(func() time.Time { return now }))

	if len(s.Jobs()) != 1 {
		t.Fatalf("expected the at-job to be scheduled once, got %d jobs", len(s.Jobs()))
	}

	// Advance past the at-time before running: Next() then reports no
	// further run, and runJob disables the job.
	now = at.Add(time.Minute)
	if err := s.RunJob(context.Background(), "once"); err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	jobs := s.Jobs()
	if jobs[0].Enabled {
		t.Fatalf("expected one-shot job disabled after its single run")
	}
}
