package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Scheduler runs configured maintenance prompts on a timer.
type Scheduler struct {
	jobs         []*Job
	runner       Runner
	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides how often the scheduler checks for due
// jobs. Defaults to one second.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// New builds a Scheduler from configured jobs. A job whose schedule
// fails to parse, or that has no further run, is logged and skipped
// rather than rejecting the whole batch — one bad maintenance job
// should never block the rest from running.
func New(jobs []JobConfig, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:       runner,
		logger:       slog.Default().With("component", "scheduler"),
		now:          time.Now,
		tickInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.now()
	for _, cfg := range jobs {
		job, err := s.buildJob(cfg, now)
		if err != nil {
			s.logger.Warn("scheduler job skipped", "id", cfg.ID, "error", err)
			continue
		}
		s.jobs = append(s.jobs, job)
	}
	return s
}

// Start begins ticking until ctx is canceled. Calling Start twice is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
}

// Stop waits for the tick loop to exit, or ctx to be canceled first.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs every due job immediately and returns how many ran,
// primarily for tests.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if s == nil {
		return 0
	}
	return s.runDue(ctx)
}

// Jobs returns a snapshot of the configured jobs.
func (s *Scheduler) Jobs() []Job {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

// RunJob runs one job by id immediately, regardless of its schedule.
func (s *Scheduler) RunJob(ctx context.Context, id string) error {
	if s == nil {
		return nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("scheduler: job id required")
	}
	s.mu.Lock()
	var target *Job
	for _, j := range s.jobs {
		if j.ID == id {
			target = j
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("scheduler: job %q not found", id)
	}
	return s.runJob(ctx, target, s.now())
}

func (s *Scheduler) buildJob(cfg JobConfig, now time.Time) (*Job, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, fmt.Errorf("scheduler: job id required")
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("scheduler: job disabled")
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		return nil, fmt.Errorf("scheduler: job missing prompt")
	}
	schedule, err := NewSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	next, ok, err := schedule.Next(now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("scheduler: no next run scheduled")
	}
	return &Job{
		ID:       cfg.ID,
		Name:     cfg.Name,
		Enabled:  cfg.Enabled,
		Prompt:   cfg.Prompt,
		Schedule: schedule,
		NextRun:  next,
	}, nil
}

func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()
	s.mu.Lock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	count := 0
	for _, job := range jobs {
		s.mu.Lock()
		due := job.Enabled && !job.NextRun.IsZero() && !now.Before(job.NextRun)
		s.mu.Unlock()
		if !due {
			continue
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Warn("scheduler job failed", "id", job.ID, "error", err)
		}
		count++
	}
	return count
}

func (s *Scheduler) runJob(ctx context.Context, job *Job, now time.Time) error {
	if s.runner == nil {
		return errors.New("scheduler: no runner configured")
	}

	s.mu.Lock()
	job.LastRun = now
	s.mu.Unlock()

	err := s.runner.Run(ctx, job)

	s.mu.Lock()
	if err != nil {
		job.LastErr = err.Error()
	} else {
		job.LastErr = ""
	}
	next, ok, nextErr := job.Schedule.Next(now)
	switch {
	case nextErr != nil:
		job.LastErr = nextErr.Error()
		job.NextRun = time.Time{}
		job.Enabled = false
	case !ok:
		job.NextRun = time.Time{}
		job.Enabled = false
	default:
		job.NextRun = next
	}
	s.mu.Unlock()

	return err
}
