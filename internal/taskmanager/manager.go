package taskmanager

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waveforge/wave/internal/metrics"
)

// foregroundTask is an in-progress tool call the user may background.
type foregroundTask struct {
	id      string
	handler func()
}

// backgroundTask is the mutable, internal representation of one
// detached unit.
type backgroundTask struct {
	id         string
	kind       Kind
	command    string
	status     Status
	stdout     *ringBuffer
	stderr     *ringBuffer
	exitCode   *int
	startedAt  time.Time
	endedAt    time.Time
	subAgentID string

	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// Manager tracks foreground and background tasks for one session. Per
// SPEC_FULL.md §5, its state is logically single-threaded: output
// append from child processes is serialized through the manager's own
// mutex rather than through an event loop, which is the Go-idiomatic
// equivalent of the teacher's single-threaded registry.
type Manager struct {
	mu         sync.Mutex
	foreground map[string]*foregroundTask
	fgOrder    []string // insertion order, for "most recent" selection
	background map[string]*backgroundTask
	store      Store
	metrics    *metrics.Metrics // optional; nil is a valid no-op recorder
}

// New creates an empty Manager. store may be nil, in which case
// background tasks are tracked in-memory only.
func New(store Store) *Manager {
	return &Manager{
		foreground: make(map[string]*foregroundTask),
		background: make(map[string]*backgroundTask),
		store:      store,
	}
}

// SetMetrics attaches an optional Prometheus recorder.
func (m *Manager) SetMetrics(rec *metrics.Metrics) { m.metrics = rec }

// reportGaugesLocked recomputes the background-task gauges from current
// state. Callers must hold m.mu.
func (m *Manager) reportGaugesLocked() {
	counts := map[Kind]int{}
	for _, bt := range m.background {
		if bt.status == StatusRunning {
			counts[bt.kind]++
		}
	}
	m.metrics.SetBackgroundTasks(string(KindShell), counts[KindShell])
	m.metrics.SetBackgroundTasks(string(KindSubAgent), counts[KindSubAgent])
}

// RegisterForeground records an in-flight tool call as backgroundable.
func (m *Manager) RegisterForeground(id string, handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.foreground[id] = &foregroundTask{id: id, handler: handler}
	m.fgOrder = append(m.fgOrder, id)
}

// UnregisterForeground removes a foreground task once its tool call
// resolves normally (not backgrounded).
func (m *Manager) UnregisterForeground(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.foreground, id)
	for i, fid := range m.fgOrder {
		if fid == id {
			m.fgOrder = append(m.fgOrder[:i], m.fgOrder[i+1:]...)
			break
		}
	}
}

// BackgroundCurrentTask picks the most recently registered foreground
// task and invokes its backgroundHandler. Returns false if there is no
// foreground task to background.
func (m *Manager) BackgroundCurrentTask() (id string, ok bool) {
	m.mu.Lock()
	if len(m.fgOrder) == 0 {
		m.mu.Unlock()
		return "", false
	}
	id = m.fgOrder[len(m.fgOrder)-1]
	task := m.foreground[id]
	m.mu.Unlock()

	if task == nil {
		return "", false
	}
	task.handler()
	return id, true
}

// StartShell spawns a shell command as a new background task and
// returns its task id immediately; output accumulates asynchronously.
func (m *Manager) StartShell(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultForegroundTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return "", err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return "", err
	}

	id := uuid.NewString()
	bt := &backgroundTask{
		id: id, kind: KindShell, command: command, status: StatusRunning,
		stdout: newRingBuffer(DefaultPendingOutputChars), stderr: newRingBuffer(DefaultPendingOutputChars),
		startedAt: time.Now(), cmd: cmd, cancel: cancel,
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return "", err
	}

	m.mu.Lock()
	m.background[id] = bt
	m.reportGaugesLocked()
	m.mu.Unlock()

	go m.pump(bt, stdoutPipe, bt.stdout)
	go m.pump(bt, stderrPipe, bt.stderr)
	go m.awaitExit(bt)

	return id, nil
}

// AdoptProcess takes over a running foreground shell (one invoked
// synchronously by the Bash tool) without restarting it, preserving any
// output already captured before the handoff — the foreground-to-
// background pattern SPEC_FULL.md's Design Notes call out explicitly.
func (m *Manager) AdoptProcess(cmd *exec.Cmd, cancel context.CancelFunc, command, priorStdout, priorStderr string) string {
	id := uuid.NewString()
	bt := &backgroundTask{
		id: id, kind: KindShell, command: command, status: StatusRunning,
		stdout: newRingBuffer(DefaultPendingOutputChars), stderr: newRingBuffer(DefaultPendingOutputChars),
		startedAt: time.Now(), cmd: cmd, cancel: cancel,
	}
	bt.stdout.Append(priorStdout)
	bt.stderr.Append(priorStderr)

	m.mu.Lock()
	m.background[id] = bt
	m.reportGaugesLocked()
	m.mu.Unlock()
	return id
}

// AdoptSubAgent records a backgrounded sub-agent invocation, addressable
// the same way a shell task is.
func (m *Manager) AdoptSubAgent(subAgentID string) string {
	id := uuid.NewString()
	bt := &backgroundTask{id: id, kind: KindSubAgent, status: StatusRunning, subAgentID: subAgentID, startedAt: time.Now()}
	m.mu.Lock()
	m.background[id] = bt
	m.reportGaugesLocked()
	m.mu.Unlock()
	return id
}

// FinishSubAgent marks a backgrounded sub-agent task done with its final
// assistant text as output.
func (m *Manager) FinishSubAgent(taskID, finalText string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bt, ok := m.background[taskID]
	if !ok {
		return
	}
	bt.stdout = newRingBuffer(DefaultPendingOutputChars)
	bt.stdout.Append(finalText)
	bt.endedAt = time.Now()
	if failed {
		bt.status = StatusFailed
	} else {
		bt.status = StatusCompleted
	}
	m.reportGaugesLocked()
	m.persist(bt)
}

func (m *Manager) pump(bt *backgroundTask, r io.Reader, buf *ringBuffer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		m.mu.Lock()
		buf.Append(scanner.Text() + "\n")
		m.mu.Unlock()
	}
}

func (m *Manager) awaitExit(bt *backgroundTask) {
	err := bt.cmd.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	bt.endedAt = time.Now()
	code := bt.cmd.ProcessState.ExitCode()
	bt.exitCode = &code
	switch {
	case bt.status == StatusKilled:
		// already marked by StopTask
	case err != nil || code != 0:
		bt.status = StatusFailed
	default:
		bt.status = StatusCompleted
	}
	m.reportGaugesLocked()
	m.persist(bt)
}

func (m *Manager) persist(bt *backgroundTask) {
	if m.store == nil {
		return
	}
	_ = m.store.Save(context.Background(), toRecord(bt))
}

// GetOutput returns the current buffers and status for a task,
// optionally filtering each line through filterRegex.
func (m *Manager) GetOutput(taskID, filterRegex string) (Snapshot, bool) {
	m.mu.Lock()
	bt, ok := m.background[taskID]
	if !ok {
		m.mu.Unlock()
		return Snapshot{}, false
	}
	snap := snapshotOf(bt)
	m.mu.Unlock()

	if filterRegex != "" {
		if re, err := regexp.Compile(filterRegex); err == nil {
			snap.Stdout = filterLines(snap.Stdout, re)
			snap.Stderr = filterLines(snap.Stderr, re)
		}
	}
	return snap, true
}

func filterLines(text string, re *regexp.Regexp) string {
	var out []byte
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			line := text[start:i]
			if re.MatchString(line) {
				out = append(out, line...)
				out = append(out, '\n')
			}
			start = i + 1
		}
	}
	return string(out)
}

// GetOutputBlocking polls every pollInterval until the task leaves
// "running" or timeout elapses, or ctx is canceled (resolving
// immediately with "aborted" per §4.E).
func (m *Manager) GetOutputBlocking(ctx context.Context, taskID, filterRegex string, timeout time.Duration) (Snapshot, string) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if timeout > MaxQueryTimeout {
		timeout = MaxQueryTimeout
	}
	deadline := time.After(timeout)
	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()

	for {
		snap, ok := m.GetOutput(taskID, filterRegex)
		if !ok {
			return Snapshot{}, "not found"
		}
		if snap.Status != StatusRunning {
			return snap, ""
		}
		select {
		case <-ctx.Done():
			return snap, "aborted"
		case <-deadline:
			return snap, "timeout"
		case <-ticker.C:
		}
	}
}

// StopTask sends SIGTERM, waits DefaultStopGrace, then SIGKILL, on
// shell tasks; for sub-agent tasks it is the caller's responsibility to
// cancel the sub-agent's own context (the manager only flips status).
func (m *Manager) StopTask(taskID string) error {
	m.mu.Lock()
	bt, ok := m.background[taskID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("taskmanager: task not found: %s", taskID)
	}
	if bt.status != StatusRunning {
		m.mu.Unlock()
		return nil
	}
	bt.status = StatusKilled
	cmd := bt.cmd
	m.reportGaugesLocked()
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(syscallSIGTERM)
	timer := time.NewTimer(DefaultStopGrace)
	defer timer.Stop()
	<-timer.C
	_ = cmd.Process.Kill()
	return nil
}

// GetAllTasks returns a snapshot list of every background task.
func (m *Manager) GetAllTasks() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.background))
	for _, bt := range m.background {
		out = append(out, snapshotOf(bt))
	}
	return out
}

func snapshotOf(bt *backgroundTask) Snapshot {
	s := Snapshot{
		ID: bt.id, Kind: bt.kind, Command: bt.command, Status: bt.status,
		ExitCode: bt.exitCode, StartedAt: bt.startedAt, EndedAt: bt.endedAt,
		SubAgentID: bt.subAgentID,
	}
	if bt.stdout != nil {
		s.Stdout = bt.stdout.String()
		s.Truncated = bt.stdout.Truncated()
	}
	if bt.stderr != nil {
		s.Stderr = bt.stderr.String()
		s.Truncated = s.Truncated || bt.stderr.Truncated()
	}
	return s
}
