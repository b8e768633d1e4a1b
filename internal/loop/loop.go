// Package loop implements the Agent Loop: the single-threaded, per-run
// controller that drives Planner → Policy Engine → Executor → Normalizer
// → Policy Engine → Critic → State Manager around one goal until it
// stops, exactly per the turn algorithm the rest of this module's
// packages were built to support.
package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/internal/conversation"
	"github.com/haasonsaas/agentcore/internal/critic"
	"github.com/haasonsaas/agentcore/internal/events"
	"github.com/haasonsaas/agentcore/internal/executor"
	"github.com/haasonsaas/agentcore/internal/normalize"
	"github.com/haasonsaas/agentcore/internal/planner"
	"github.com/haasonsaas/agentcore/internal/policyengine"
	"github.com/haasonsaas/agentcore/internal/retry"
	"github.com/haasonsaas/agentcore/internal/state"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// DefaultToolTimeout bounds a single tool invocation when the caller
// doesn't override it.
const DefaultToolTimeout = 30 * time.Second

// Loop runs one goal to termination under a budget, coordinating the
// Planner, Policy Engine, Executor, Normalizer, optional Critic, State
// Manager, and event sink.
type Loop struct {
	planner      *planner.Planner
	critic       *critic.Critic
	executor     *executor.Executor
	stateManager *state.Manager
	convManager  *conversation.Manager
	toolTimeout  time.Duration
}

// Config wires a Loop's collaborators. Critic is optional (nil disables
// the post-resolution review step).
type Config struct {
	Planner      *planner.Planner
	Critic       *critic.Critic
	Executor     *executor.Executor
	StateManager *state.Manager
	ConvManager  *conversation.Manager
	ToolTimeout  time.Duration
}

// New builds a Loop from cfg.
func New(cfg Config) *Loop {
	timeout := cfg.ToolTimeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &Loop{
		planner:      cfg.Planner,
		critic:       cfg.Critic,
		executor:     cfg.Executor,
		stateManager: cfg.StateManager,
		convManager:  cfg.ConvManager,
		toolTimeout:  timeout,
	}
}

// Run drives goal to termination under budget and policy, emitting
// lifecycle events to sink, and returns the terminal AgentResult.
func (l *Loop) Run(ctx context.Context, goal contracts.AgentGoal, budget contracts.Budget, policy contracts.ErrorHandlingPolicy, sink events.Sink) contracts.AgentResult {
	traceID := uuid.NewString()
	return l.run(ctx, traceID, l.stateManager.CreateInitial(traceID, goal), budget, policy, sink)
}

// Resume continues a run previously checkpointed under traceID by the
// State Manager's Save, picking up at the turn it last completed. The
// bool result is false when no checkpoint exists for traceID, in which
// case the caller should fall back to Run.
func (l *Loop) Resume(ctx context.Context, traceID string, budget contracts.Budget, policy contracts.ErrorHandlingPolicy, sink events.Sink) (contracts.AgentResult, bool) {
	saved, ok, err := l.stateManager.Load(ctx, traceID)
	if err != nil || !ok {
		return contracts.AgentResult{}, false
	}
	return l.run(ctx, traceID, saved, budget, policy, sink), true
}

func (l *Loop) run(ctx context.Context, traceID string, agentState contracts.AgentState, budget contracts.Budget, policy contracts.ErrorHandlingPolicy, sink events.Sink) contracts.AgentResult {
	emitter := events.NewEmitter(traceID, sink)
	stats := events.NewStatsCollector()

	startedAt := time.Now()

	if agentState.TurnIndex == 0 {
		l.convManager.StartTurn(traceID, 0, contracts.Message{
			Role:      contracts.RoleUser,
			Content:   agentState.Goal.Description,
			CreatedAt: startedAt,
		})
	}

	observeEvent(stats, emitter.RunStarted(ctx))

	result := l.runTurns(ctx, traceID, agentState, budget, policy, emitter, stats)
	result.Duration = time.Since(startedAt)

	// Only a successful completion clears its checkpoint: a run stopped by
	// cancellation, a budget limit, or an error leaves one behind so it can
	// be continued with Resume.
	if result.Success {
		_ = l.stateManager.Clear(ctx, traceID)
	}

	finalStats := stats.Stats()
	observeEvent(stats, emitter.RunFinished(ctx, &finalStats))
	return result
}

func observeEvent(stats *events.StatsCollector, ev contracts.AgentEvent) {
	stats.OnEvent(ev)
}

// runTurns drives the per-turn loop. Every iteration performs exactly one
// state.Manager.Update call, folding in a critic override (if any) before
// that single update rather than updating twice.
func (l *Loop) runTurns(ctx context.Context, traceID string, agentState contracts.AgentState, budget contracts.Budget, policy contracts.ErrorHandlingPolicy, emitter *events.Emitter, stats *events.StatsCollector) contracts.AgentResult {
	runStart := time.Now()

	for {
		emitter.SetTurn(agentState.TurnIndex)

		if exceeded, reason := budget.Exceeded(agentState.TurnIndex, agentState.ToolCallsIssued, 0, time.Since(runStart)); exceeded {
			observeEvent(stats, emitter.RunTimedOut(ctx, budget.MaxWallClock))
			return terminal(agentState, reason)
		}
		if err := ctx.Err(); err != nil {
			observeEvent(stats, emitter.RunCancelled(ctx))
			return terminal(agentState, "cancelled")
		}

		turnStartedAt := time.Now()
		if agentState.TurnIndex > 0 {
			l.convManager.StartTurn(traceID, agentState.TurnIndex, contracts.Message{
				Role:      contracts.RoleUser,
				CreatedAt: turnStartedAt,
			})
		}
		observeEvent(stats, emitter.TurnStarted(ctx))

		history := l.convManager.Flatten(traceID)
		decision, err := l.planner.Decide(ctx, agentState, history)
		if err != nil {
			return terminal(agentState, "error: "+err.Error())
		}
		observeEvent(stats, emitter.PlannerCalled(ctx, decision))

		actionPre := policyengine.Resolve(decision, nil, policy, agentState)

		finalDecision, observation, stopReason, isTerminal, nextState := l.execute(ctx, traceID, agentState, decision, actionPre, policy, emitter, stats)
		agentState = nextState

		if l.critic != nil {
			if override, ok, cerr := l.critic.Review(ctx, agentState, finalDecision, observation); cerr == nil && ok {
				observeEvent(stats, emitter.CriticCalled(ctx, override))
				finalDecision = override
				switch override.Kind {
				case contracts.DecisionStop:
					isTerminal = true
					stopReason = override.StopReason
				case contracts.DecisionAskUser:
					isTerminal = true
					stopReason = "ask_user: " + override.Question
				default:
					isTerminal = false
				}
			}
		}

		agentState = l.stateManager.Update(agentState, finalDecision, observation)
		l.convManager.EndTurn(traceID, time.Now())
		observeEvent(stats, emitter.TurnFinished(ctx, finalDecision))
		observeEvent(stats, emitter.StateUpdated(ctx))
		_ = l.stateManager.Save(ctx, agentState)

		if isTerminal {
			return terminal(agentState, stopReason)
		}
	}
}

// execute resolves Action_pre into what this turn's state update should
// see: the decision to record, the observation (if a tool ran), whether
// the turn ends the run, and the state reflecting any retry bookkeeping.
func (l *Loop) execute(ctx context.Context, traceID string, agentState contracts.AgentState, decision contracts.Decision, action contracts.Action, policy contracts.ErrorHandlingPolicy, emitter *events.Emitter, stats *events.StatsCollector) (contracts.Decision, *contracts.Observation, string, bool, contracts.AgentState) {
	switch action.Kind {
	case contracts.ActionStop:
		l.recordAssistantReply(traceID, "stop: "+action.StopReason)
		return decision, nil, action.StopReason, true, agentState

	case contracts.ActionReplan:
		l.recordAssistantReply(traceID, "replan: "+action.Note)
		return contracts.Decision{Kind: contracts.DecisionReplan, Subgoals: action.Subgoals, Note: action.Note}, nil, "", false, agentState

	case contracts.ActionAskUser:
		reason := action.Question
		if len(action.Subgoals) > 0 {
			reason = fmt.Sprintf("%s (missing: %s)", action.Question, strings.Join(action.Subgoals, ", "))
		}
		l.recordAssistantReply(traceID, "ask_user: "+reason)
		return decision, nil, "ask_user: " + reason, true, agentState

	case contracts.ActionCallTool:
		return l.runToolCall(ctx, traceID, agentState, decision, action, policy, emitter, stats)

	default:
		panic("unhandled ActionKind")
	}
}

// runToolCall executes the action's call, normalizes the result, and
// re-resolves through the Policy Engine (Action_post), looping the
// executor on a retrying Action_post with a PolicyBackoff delay between
// attempts until the Policy Engine settles on a non-retry outcome.
func (l *Loop) runToolCall(ctx context.Context, traceID string, agentState contracts.AgentState, decision contracts.Decision, action contracts.Action, policy contracts.ErrorHandlingPolicy, emitter *events.Emitter, stats *events.StatsCollector) (contracts.Decision, *contracts.Observation, string, bool, contracts.AgentState) {
	call := *action.Call
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.Attempt == 0 {
		call.Attempt = 1
	}
	call.IsRetry = action.IsRetry
	call.IssuedAt = time.Now()

	l.convManager.AddAssistantMessage(traceID, contracts.Message{
		Role:      contracts.RoleAssistant,
		ToolCalls: []contracts.ToolCall{call},
		CreatedAt: call.IssuedAt,
	})

	state := l.stateManager.RecordRetryAttempt(agentState, call.ID)
	observation := l.executeAndNormalize(ctx, traceID, call, emitter, stats)
	actionPost := policyengine.Resolve(decision, &observation, policy, state)

	for actionPost.Kind == contracts.ActionCallTool && actionPost.IsRetry {
		observeEvent(stats, emitter.ToolRetried(ctx, call.ID, call.ToolName, call.Attempt+1))
		if actionPost.BackoffBefore > 0 {
			backoff := retry.PolicyBackoff(call.Attempt, actionPost.BackoffBefore, policy.MaxBackoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return decision, &observation, "cancelled", true, state
			}
		}

		call.Attempt++
		call.IsRetry = true
		call.IssuedAt = time.Now()

		state = l.stateManager.RecordRetryAttempt(state, call.ID)
		observation = l.executeAndNormalize(ctx, traceID, call, emitter, stats)
		actionPost = policyengine.Resolve(decision, &observation, policy, state)
	}

	switch actionPost.Kind {
	case contracts.ActionCallTool:
		return decision, &observation, "", false, state

	case contracts.ActionStop:
		return decision, &observation, actionPost.StopReason, true, state

	case contracts.ActionReplan:
		return contracts.Decision{Kind: contracts.DecisionReplan, Subgoals: actionPost.Subgoals}, &observation, "", false, state

	case contracts.ActionAskUser:
		return contracts.Decision{Kind: contracts.DecisionAskUser, Question: actionPost.Question}, &observation, "ask_user: " + actionPost.Question, true, state

	default:
		panic("unhandled ActionKind")
	}
}

// recordAssistantReply records the assistant's reply for a turn that
// ends without calling a tool (Stop, Replan, AskUser), so the
// U_n, A_n, U_n+1 history invariant holds even when a turn never
// produces an A_n_with_tool_calls/T_n pair.
func (l *Loop) recordAssistantReply(traceID, content string) {
	l.convManager.AddAssistantMessage(traceID, contracts.Message{
		Role:      contracts.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	})
}

func (l *Loop) executeAndNormalize(ctx context.Context, traceID string, call contracts.ToolCall, emitter *events.Emitter, stats *events.StatsCollector) contracts.Observation {
	observeEvent(stats, emitter.ToolStarted(ctx, call.ID, call.ToolName))
	result := l.executor.Execute(ctx, call, l.toolTimeout)
	observeEvent(stats, emitter.ToolFinished(ctx, call.ID, call.ToolName, result.Ok, result.Latency))

	observation := normalize.Normalize(call, result)
	l.convManager.AddToolMessage(traceID, contracts.Message{
		Role:       contracts.RoleTool,
		Content:    observation.Summary,
		ToolCallID: call.ID,
		CreatedAt:  time.Now(),
	})
	return observation
}

// terminal builds the completed AgentResult for reason, classifying
// success per the completion-like/error-like taxonomy in spec §7.
func terminal(state contracts.AgentState, reason string) contracts.AgentResult {
	return contracts.AgentResult{
		Success:    isSuccessReason(reason),
		StopReason: reason,
		TotalTurns: state.TurnIndex,
		FinalState: state,
	}
}

func isSuccessReason(reason string) bool {
	switch {
	case reason == "max_turns", reason == "max_tool_calls", reason == "max_wall_clock", reason == "max_tokens":
		return false
	case reason == "cancelled":
		return false
	case reason == "planner_parse_failure":
		return false
	case strings.HasPrefix(reason, "error: "):
		return false
	case strings.HasPrefix(reason, "non-recoverable: "):
		return false
	case strings.HasPrefix(reason, "Max retries exceeded for "):
		return false
	case strings.HasPrefix(reason, "ask_user: "):
		return false
	default:
		return true
	}
}
