// Package contracts defines the value types shared across the agent loop:
// the goal and budget an operator hands in, the tool call/result boundary,
// the observation the loop reasons over, the decision/action the planner
// and policy engine produce, and the state the loop carries turn to turn.
//
// These are plain value types on purpose. Go has no sum types, so
// Decision and Action model their fixed set of variants as a Kind enum
// plus per-kind optional fields; every switch over Kind in this module
// has a default case that panics on an unhandled value instead of
// silently falling through.
package contracts

import (
	"encoding/json"
	"time"
)

// AgentGoal is the operator-supplied objective a run pursues.
type AgentGoal struct {
	Description string         `json:"description"`
	Constraints []string       `json:"constraints,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Budget bounds how much a single run may spend before the loop is
// forced to stop regardless of planner intent.
type Budget struct {
	MaxTurns     int           `json:"max_turns"`
	MaxToolCalls int           `json:"max_tool_calls"`
	MaxWallClock time.Duration `json:"max_wall_clock"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
}

// Exceeded reports whether any dimension of usage has crossed the budget.
// A zero value in a Budget field means "unbounded" for that dimension.
func (b Budget) Exceeded(turns, toolCalls, tokens int, elapsed time.Duration) (bool, string) {
	if b.MaxTurns > 0 && turns >= b.MaxTurns {
		return true, "max_turns"
	}
	if b.MaxToolCalls > 0 && toolCalls >= b.MaxToolCalls {
		return true, "max_tool_calls"
	}
	if b.MaxWallClock > 0 && elapsed >= b.MaxWallClock {
		return true, "max_wall_clock"
	}
	if b.MaxTokens > 0 && tokens >= b.MaxTokens {
		return true, "max_tokens"
	}
	return false, ""
}

// ToolCall is a single invocation request produced by the planner or
// reissued by the policy engine as a retry.
type ToolCall struct {
	ID        string          `json:"id"`
	ToolName  string          `json:"tool_name"`
	Args      json.RawMessage `json:"args"`
	Attempt   int             `json:"attempt"`
	IsRetry   bool            `json:"is_retry"`
	IssuedAt  time.Time       `json:"issued_at"`
}

// ToolErrorCode is the closed set of failure classes a ToolResult can
// carry. The Policy Engine's retry/stop/ask_user decision is keyed
// entirely off this value.
type ToolErrorCode string

const (
	ErrorNone              ToolErrorCode = ""
	ErrorInvalidInput      ToolErrorCode = "InvalidInput"
	ErrorNotFound          ToolErrorCode = "NotFound"
	ErrorPermissionDenied  ToolErrorCode = "PermissionDenied"
	ErrorTimeout           ToolErrorCode = "Timeout"
	ErrorRetryableServer   ToolErrorCode = "RetryableServer"
	ErrorNonRetryableServer ToolErrorCode = "NonRetryableServer"
	ErrorCancelled         ToolErrorCode = "Cancelled"
	ErrorToolBug           ToolErrorCode = "ToolBug"
)

// Retryable reports whether the Policy Engine's retry rule applies to
// this error code per the shouldRetry property.
func (c ToolErrorCode) Retryable() bool {
	return c == ErrorTimeout || c == ErrorRetryableServer
}

// ErrorDetails carries structured context about a tool failure beyond
// its error code, used by the Observation Normalizer and by the Policy
// Engine's missing-fields routing.
type ErrorDetails struct {
	Message        string   `json:"message,omitempty"`
	MissingFields  []string `json:"missing_fields,omitempty"`
}

// ToolResult is what a tool execution returns. Invariant: Ok == (ErrorCode
// == ErrorNone), and Attempt is always >= 1.
type ToolResult struct {
	ToolCallID      string          `json:"tool_call_id"`
	Ok              bool            `json:"ok"`
	ErrorCode       ToolErrorCode   `json:"error_code,omitempty"`
	ErrorDetails    *ErrorDetails   `json:"error_details,omitempty"`
	Output          json.RawMessage `json:"output,omitempty"`
	SchemaValidated bool            `json:"schema_validated"`
	Attempt         int             `json:"attempt"`
	Latency         time.Duration   `json:"latency"`
}

// Valid reports whether the result respects the Ok/ErrorCode/Attempt
// invariants the rest of the runtime assumes hold.
func (r ToolResult) Valid() bool {
	if r.Ok != (r.ErrorCode == ErrorNone) {
		return false
	}
	if r.Attempt < 1 {
		return false
	}
	return true
}

// Affordance is a closed vocabulary of next-step hints the Observation
// Normalizer can derive from a ToolResult.
type Affordance string

const (
	AffordanceRetryWithBackoff      Affordance = "retry_with_backoff"
	AffordanceFixParameters         Affordance = "fix_parameters"
	AffordanceAskUserForClarification Affordance = "ask_user_for_clarification"
	AffordanceFetchNextPage         Affordance = "fetch_next_page"
	AffordanceFetchMoreResults      Affordance = "fetch_more_results"
	AffordanceProcessResults        Affordance = "process_results"
	AffordanceUseDifferentTool      Affordance = "use_different_tool"
	AffordanceAskUserForGuidance    Affordance = "ask_user_for_guidance"
)

// Observation is the pure-function reduction of a ToolResult into what
// the planner actually needs to reason about: a short summary, a bag of
// extracted top-level scalar facts, and affordance hints. Raw retains the
// originating ToolResult so the Policy Engine can inspect ok/error_code/
// attempt without re-deriving them from the summary text.
type Observation struct {
	ToolCallID  string            `json:"tool_call_id"`
	Summary     string            `json:"summary"`
	KeyFacts    map[string]string `json:"key_facts,omitempty"`
	Affordances []Affordance      `json:"affordances,omitempty"`
	Raw         *ToolResult       `json:"raw,omitempty"`
}

// DecisionKind is the closed set of things a planner turn can decide.
type DecisionKind string

const (
	DecisionCallTool DecisionKind = "call_tool"
	DecisionStop     DecisionKind = "stop"
	DecisionReplan   DecisionKind = "replan"
	DecisionAskUser  DecisionKind = "ask_user"
)

// Decision is the planner's (or critic's) output for a turn: a tagged
// union over DecisionKind. Exactly the fields relevant to Kind are set.
type Decision struct {
	Kind DecisionKind `json:"kind"`

	// set when Kind == DecisionCallTool
	ToolName string          `json:"tool_name,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`

	// set when Kind == DecisionStop
	StopReason string `json:"stop_reason,omitempty"`

	// set when Kind == DecisionReplan
	Subgoals []string `json:"subgoals,omitempty"`
	Note     string   `json:"note,omitempty"`

	// set when Kind == DecisionAskUser
	Question string `json:"question,omitempty"`
}

// ActionKind mirrors DecisionKind but is the Policy Engine's resolved,
// executable instruction — it additionally distinguishes a retried tool
// call from a fresh one.
type ActionKind string

const (
	ActionCallTool ActionKind = "call_tool"
	ActionStop     ActionKind = "stop"
	ActionReplan   ActionKind = "replan"
	ActionAskUser  ActionKind = "ask_user"
)

// Action is what the Policy Engine hands back to the loop to execute.
type Action struct {
	Kind ActionKind `json:"kind"`

	Call    *ToolCall `json:"call,omitempty"`
	IsRetry bool      `json:"is_retry,omitempty"`

	StopReason string `json:"stop_reason,omitempty"`

	Subgoals []string `json:"subgoals,omitempty"`
	Note     string   `json:"note,omitempty"`

	Question string `json:"question,omitempty"`

	// BackoffBefore, when non-zero, is how long the loop must wait before
	// issuing Call — set by the Policy Engine on a retry.
	BackoffBefore time.Duration `json:"backoff_before,omitempty"`
}

// ErrorHandlingPolicy configures the Policy Engine's retry/stop/ask_user
// rule table.
type ErrorHandlingPolicy struct {
	MaxRetriesPerCall        int           `json:"max_retries_per_call"`
	BaseBackoff              time.Duration `json:"base_backoff"`
	MaxBackoff                time.Duration `json:"max_backoff"`
	AskUserWhenMissingFields bool          `json:"ask_user_when_missing_fields"`
}

// AgentState is the immutable-per-update value the loop carries from
// turn to turn. Updates produce a new AgentState; nothing here is
// mutated in place by the State Manager.
type AgentState struct {
	TraceID           string            `json:"trace_id"`
	Goal              AgentGoal         `json:"goal"`
	TurnIndex         int               `json:"turn_index"`
	Subgoals          []string          `json:"subgoals,omitempty"`
	WorkingMemory     map[string]string `json:"working_memory,omitempty"`
	ToolCallsIssued    int              `json:"tool_calls_issued"`
	RetryAttempts      map[string]int   `json:"retry_attempts,omitempty"` // keyed by tool_call lineage id
	LastDecision      *Decision         `json:"last_decision,omitempty"`
	LastObservation   *Observation      `json:"last_observation,omitempty"`
	Notes             []string          `json:"notes,omitempty"`
}

// AgentResult is the Agent Loop's public return value: the outcome of
// running one goal to termination.
type AgentResult struct {
	Success    bool          `json:"success"`
	StopReason string        `json:"stop_reason"`
	TotalTurns int           `json:"total_turns"`
	Duration   time.Duration `json:"duration"`
	FinalState AgentState    `json:"final_state"`
}

// Turn is one round trip through the loop: the inbound user/system
// message (only set on turn 0), the interleaved assistant/tool messages
// produced while executing, and the final assistant message for the turn.
type Turn struct {
	Index            int       `json:"index"`
	UserOrSystemMsg  *Message  `json:"user_or_system_message,omitempty"`
	ToolMessages     []Message `json:"tool_messages,omitempty"`
	AssistantMessage *Message  `json:"assistant_message,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
}

// Role is the closed set of conversation message roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the flattened, strictly chronological
// conversation history. An Assistant message that issues tool calls
// carries them in ToolCalls; a Tool message carries the matching
// ToolCallID and must appear after the Assistant message that named it.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Conversation is the append-only sequence of Turns a run accumulates.
type Conversation struct {
	TraceID string `json:"trace_id"`
	Turns   []Turn `json:"turns"`
}

// BenchmarkScenario declares a seeded end-to-end test case for the
// harness: a starting workspace, a scripted planner, and the assertions
// a successful run must satisfy.
type BenchmarkScenario struct {
	ID                     string            `json:"id"`
	Description            string            `json:"description"`
	Goal                   AgentGoal         `json:"goal"`
	WorkspaceFiles         map[string]string `json:"workspace_files,omitempty"`
	ScriptedDecisions      []Decision        `json:"scripted_decisions"`
	Budget                 Budget            `json:"budget"`
	Policy                 ErrorHandlingPolicy `json:"policy"`
	ExpectedToolInvocations []ExpectedToolInvocation `json:"expected_tool_invocations,omitempty"`
	ExpectedStopReason     string            `json:"expected_stop_reason,omitempty"`
	ExpectedWorkspaceFiles map[string]string `json:"expected_workspace_files,omitempty"`
}

// ExpectedToolInvocation is one assertion the harness checks against the
// tool calls a scenario actually issued.
type ExpectedToolInvocation struct {
	ToolName    string `json:"tool_name"`
	MinAttempts int    `json:"min_attempts,omitempty"`
	MustSucceed bool   `json:"must_succeed,omitempty"`
}

// BenchmarkResult is the harness's report for one scenario run.
type BenchmarkResult struct {
	ScenarioID        string        `json:"scenario_id"`
	Passed            bool          `json:"passed"`
	FailureReasons    []string      `json:"failure_reasons,omitempty"`
	FinalState        AgentState    `json:"final_state"`
	ToolInvocations   []ToolCall    `json:"tool_invocations"`
	Duration          time.Duration `json:"duration"`
	FinalConversation Conversation  `json:"final_conversation"`
}

// RunStats accumulates per-run counters, populated by watching the event
// stream rather than by threading counters through every component.
type RunStats struct {
	Turns              int           `json:"turns"`
	ToolCalls          int           `json:"tool_calls"`
	ToolCallFailures   int           `json:"tool_call_failures"`
	Retries            int           `json:"retries"`
	PlannerCalls       int           `json:"planner_calls"`
	ToolWallTime       time.Duration `json:"tool_wall_time"`
	PlannerWallTime    time.Duration `json:"planner_wall_time"`
	DroppedDigestKeys  int           `json:"dropped_digest_keys"`
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`
	Cancelled          bool          `json:"cancelled"`
	TimedOut           bool          `json:"timed_out"`
}

// AgentEventType is the closed set of event kinds the loop emits while a
// run progresses. Consumers (metrics, tracing, the harness, UIs) all
// subscribe to the same stream instead of being threaded through every
// component individually.
type AgentEventType string

const (
	EventRunStarted      AgentEventType = "run.started"
	EventRunFinished     AgentEventType = "run.finished"
	EventRunError        AgentEventType = "run.error"
	EventRunCancelled    AgentEventType = "run.cancelled"
	EventRunTimedOut     AgentEventType = "run.timed_out"
	EventTurnStarted     AgentEventType = "turn.started"
	EventTurnFinished    AgentEventType = "turn.finished"
	EventPlannerCalled   AgentEventType = "planner.called"
	EventCriticCalled    AgentEventType = "critic.called"
	EventToolStarted     AgentEventType = "tool.started"
	EventToolFinished    AgentEventType = "tool.finished"
	EventToolRetried     AgentEventType = "tool.retried"
	EventStateUpdated    AgentEventType = "state.updated"
)

// ToolEventPayload carries the tool-call-specific fields of an AgentEvent.
type ToolEventPayload struct {
	CallID  string        `json:"call_id"`
	Name    string        `json:"name"`
	Success bool          `json:"success,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// ErrorEventPayload carries the error-specific fields of an AgentEvent.
type ErrorEventPayload struct {
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
}

// AgentEvent is one entry in a run's event stream: a monotonically
// sequenced, timestamped record of something the loop did.
type AgentEvent struct {
	Sequence  uint64           `json:"sequence"`
	Type      AgentEventType   `json:"type"`
	Time      time.Time        `json:"time"`
	TraceID   string           `json:"trace_id"`
	TurnIndex int              `json:"turn_index"`
	Decision  *Decision        `json:"decision,omitempty"`
	Tool      *ToolEventPayload `json:"tool,omitempty"`
	Error     *ErrorEventPayload `json:"error,omitempty"`
	Stats     *RunStats        `json:"stats,omitempty"`
}
