// Package metrics implements the Prometheus instrumentation the engine,
// the permission gate, the hook pipeline, and the task manager all
// record against, grounded on
// _examples/haasonsaas-nexus/internal/observability/metrics.go's
// Metrics struct (a field-per-series bundle built with promauto),
// narrowed from that teacher's channel/webhook/HTTP/database series to
// this spec's turn/LLM/tool/permission/hook/background-task series.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the full set of series this module emits. A nil *Metrics
// is valid — every method is a no-op on it — so callers never need a
// presence check before recording.
type Metrics struct {
	TurnCounter          *prometheus.CounterVec   // status (ok|error|aborted)
	LLMRequestDuration   *prometheus.HistogramVec // model
	LLMRequestCounter    *prometheus.CounterVec   // model, status
	LLMTokensUsed        *prometheus.CounterVec   // model, kind (input|output|cache_read|cache_creation)
	ToolExecutionCounter *prometheus.CounterVec   // tool_name, status
	ToolExecutionSeconds *prometheus.HistogramVec // tool_name
	PermissionDecisions  *prometheus.CounterVec   // tool_name, decision (allow|deny)
	HookSeconds          *prometheus.HistogramVec // event
	HookBlocks           *prometheus.CounterVec   // event
	BackgroundTasks      *prometheus.GaugeVec     // kind (shell|subagent)
	CompactionCounter    prometheus.Counter
}

// New registers and returns a fresh Metrics bundle against the default
// Prometheus registry, via promauto the same way the teacher does.
func New() *Metrics {
	return &Metrics{
		TurnCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_turns_total",
			Help: "Total number of turns completed, by outcome.",
		}, []string{"status"}),

		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wave_llm_request_duration_seconds",
			Help:    "Duration of LLM completion streams.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"model"}),

		LLMRequestCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_llm_requests_total",
			Help: "Total LLM completion requests, by model and outcome.",
		}, []string{"model", "status"}),

		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_llm_tokens_total",
			Help: "Token usage reported per turn, by model and token kind.",
		}, []string{"model", "kind"}),

		ToolExecutionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_tool_executions_total",
			Help: "Total tool calls executed, by tool and outcome.",
		}, []string{"tool_name", "status"}),

		ToolExecutionSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wave_tool_execution_duration_seconds",
			Help:    "Tool call execution time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool_name"}),

		PermissionDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_permission_decisions_total",
			Help: "Permission Gate decisions, by tool and verdict.",
		}, []string{"tool_name", "decision"}),

		HookSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wave_hook_duration_seconds",
			Help:    "Lifecycle hook execution time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"event"}),

		HookBlocks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_hook_blocks_total",
			Help: "Number of turns blocked by a hook, by lifecycle event.",
		}, []string{"event"}),

		BackgroundTasks: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wave_background_tasks",
			Help: "Current number of detached background tasks, by kind.",
		}, []string{"kind"}),

		CompactionCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wave_compactions_total",
			Help: "Total number of transcript compactions performed.",
		}),
	}
}

func (m *Metrics) ObserveTurn(status string) {
	if m == nil {
		return
	}
	m.TurnCounter.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveLLMRequest(model, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) ObserveTokens(model, kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.LLMTokensUsed.WithLabelValues(model, kind).Add(float64(count))
}

func (m *Metrics) ObserveToolExecution(toolName, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionSeconds.WithLabelValues(toolName).Observe(d.Seconds())
}

func (m *Metrics) ObservePermissionDecision(toolName, decision string) {
	if m == nil {
		return
	}
	m.PermissionDecisions.WithLabelValues(toolName, decision).Inc()
}

func (m *Metrics) ObserveHook(event string, d time.Duration, blocked bool) {
	if m == nil {
		return
	}
	m.HookSeconds.WithLabelValues(event).Observe(d.Seconds())
	if blocked {
		m.HookBlocks.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) SetBackgroundTasks(kind string, n int) {
	if m == nil {
		return
	}
	m.BackgroundTasks.WithLabelValues(kind).Set(float64(n))
}

func (m *Metrics) ObserveCompaction() {
	if m == nil {
		return
	}
	m.CompactionCounter.Inc()
}
