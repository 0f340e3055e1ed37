package toolregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Call is one tool invocation pending execution, tagged with the index
// at which its tool-call block was first opened in the stream — the
// order results must be written back to the transcript in (§5 Ordering
// guarantees).
type Call struct {
	Index  int
	CallID string
	Name   string
	Args   json.RawMessage
	Ctx    *ToolContext
}

// ExecResult pairs a Call with its outcome.
type ExecResult struct {
	Call      Call
	Result    *ToolResult
	Err       error
	TimedOut  bool
	StartedAt time.Time
	EndedAt   time.Time
}

// ExecutorConfig tunes the concurrent executor.
type ExecutorConfig struct {
	Concurrency    int
	PerToolTimeout time.Duration
}

// DefaultExecutorConfig mirrors the teacher's own defaults: 4 concurrent
// tool calls, 30s per-call timeout.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{Concurrency: 4, PerToolTimeout: 30 * time.Second}
}

// Executor runs a batch of tool calls concurrently against a Registry,
// bounded by a semaphore, with per-call timeout and cancellation
// disambiguation.
type Executor struct {
	registry *Registry
	config   ExecutorConfig
}

// NewExecutor builds an Executor; zero-value config fields fall back to
// DefaultExecutorConfig.
func NewExecutor(registry *Registry, config ExecutorConfig) *Executor {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	return &Executor{registry: registry, config: config}
}

// ExecuteAll dispatches every call concurrently (bounded by
// config.Concurrency) and returns results indexed identically to the
// input slice; callers place transcript closes in index order
// afterwards to satisfy the stream-order result-placement guarantee.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Call) []ExecResult {
	results := make([]ExecResult, len(calls))
	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, c := range calls {
		wg.Add(1)
		go func(idx int, call Call) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = ExecResult{Call: call, Result: &ToolResult{Success: false, Error: "context canceled"}}
				return
			}
			results[idx] = e.executeOne(ctx, call)
		}(i, c)
	}

	wg.Wait()
	return results
}

func (e *Executor) executeOne(ctx context.Context, call Call) ExecResult {
	start := time.Now()
	toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
	defer cancel()

	type outcome struct {
		result *ToolResult
		err    error
	}
	resultChan := make(chan outcome, 1)

	go func() {
		res, err := e.registry.Execute(call.Name, call.Args, call.Ctx)
		select {
		case resultChan <- outcome{result: res, err: err}:
		default:
			// Timed out/cancelled before the tool finished; result is
			// discarded rather than leaking the goroutine or blocking it
			// forever on a send nobody will receive.
		}
	}()

	select {
	case <-toolCtx.Done():
		timedOut := errors.Is(toolCtx.Err(), context.DeadlineExceeded)
		msg := "tool execution canceled"
		if timedOut {
			msg = fmt.Sprintf("tool execution timed out after %v", e.config.PerToolTimeout)
		}
		return ExecResult{
			Call:      call,
			Result:    &ToolResult{Success: false, Error: msg},
			TimedOut:  timedOut,
			StartedAt: start,
			EndedAt:   time.Now(),
		}
	case o := <-resultChan:
		return ExecResult{
			Call:      call,
			Result:    o.result,
			Err:       o.err,
			StartedAt: start,
			EndedAt:   time.Now(),
		}
	}
}
