package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turns executed by the agent loop, by terminal decision kind
//   - Planner/Critic LLM call latency and token usage
//   - Tool execution counts and latencies by tool and error code
//   - Retry attempts driven by the policy engine
//   - Scenario outcomes from the harness
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.TurnCompleted("call_tool")
//	defer metrics.ToolExecutionDuration("read_file").Observe(time.Since(start).Seconds())
type Metrics struct {
	// TurnCounter tracks turns by the decision kind that concluded them.
	// Labels: decision (call_tool|stop|replan|ask_user)
	TurnCounter *prometheus.CounterVec

	// LLMRequestDuration measures planner/critic LLM call latency in seconds.
	// Labels: provider, model, role (planner|critic)
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider, model, role and status.
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolCallCounter counts tool invocations by tool name and error code.
	// error_code is empty string on success.
	ToolCallCounter *prometheus.CounterVec

	// ToolCallDurationSeconds measures tool execution latency.
	// Labels: tool_name
	ToolCallDurationSeconds *prometheus.HistogramVec

	// RetryCounter counts policy-engine-driven retries.
	// Labels: tool_name, error_code
	RetryCounter *prometheus.CounterVec

	// ActiveRuns is a gauge of agent loop runs currently executing.
	ActiveRuns prometheus.Gauge

	// ScenarioCounter counts harness scenario outcomes.
	// Labels: scenario_id, outcome (pass|fail|error)
	ScenarioCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics. Call once at
// startup.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_turns_total",
				Help: "Total number of turns completed by concluding decision kind",
			},
			[]string{"decision"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_llm_request_duration_seconds",
				Help:    "Duration of planner/critic LLM calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model", "role"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, role and status",
			},
			[]string{"provider", "model", "role", "status"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_calls_total",
				Help: "Total number of tool calls by tool name and error code",
			},
			[]string{"tool_name", "error_code"},
		),

		ToolCallDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		RetryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_retries_total",
				Help: "Total number of retries issued by the policy engine",
			},
			[]string{"tool_name", "error_code"},
		),

		ActiveRuns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_active_runs",
				Help: "Current number of agent loop runs in progress",
			},
		),

		ScenarioCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_scenario_outcomes_total",
				Help: "Total number of harness scenario outcomes by scenario and outcome",
			},
			[]string{"scenario_id", "outcome"},
		),
	}
}

// TurnCompleted records a turn concluding with the given decision kind.
func (m *Metrics) TurnCompleted(decision string) {
	m.TurnCounter.WithLabelValues(decision).Inc()
}

// RecordLLMRequest records metrics for a planner/critic LLM call.
func (m *Metrics) RecordLLMRequest(provider, model, role, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, role, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model, role).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolCall records a completed tool call.
func (m *Metrics) RecordToolCall(toolName, errorCode string, durationSeconds float64) {
	m.ToolCallCounter.WithLabelValues(toolName, errorCode).Inc()
	m.ToolCallDurationSeconds.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordRetry records a retry issued by the policy engine.
func (m *Metrics) RecordRetry(toolName, errorCode string) {
	m.RetryCounter.WithLabelValues(toolName, errorCode).Inc()
}

// RunStarted increments the active-runs gauge.
func (m *Metrics) RunStarted() {
	m.ActiveRuns.Inc()
}

// RunFinished decrements the active-runs gauge.
func (m *Metrics) RunFinished() {
	m.ActiveRuns.Dec()
}

// RecordScenarioOutcome records a harness scenario's outcome.
func (m *Metrics) RecordScenarioOutcome(scenarioID, outcome string) {
	m.ScenarioCounter.WithLabelValues(scenarioID, outcome).Inc()
}
