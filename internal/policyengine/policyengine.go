// Package policyengine implements the pure (Decision, Observation?,
// ErrorHandlingPolicy, AgentState) → Action resolution that separates
// "what the planner wants" from "what we're actually allowed to do
// given budgets and failure history". It owns every retry/stop/ask_user
// rule in the loop; the Executor itself never retries.
package policyengine

import (
	"fmt"

	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// Resolve maps a Decision plus an optional Observation into the Action
// the loop should actually take, applying the first matching rule. state
// is consulted for the lineage's retry-attempt count.
func Resolve(decision contracts.Decision, observation *contracts.Observation, policy contracts.ErrorHandlingPolicy, state contracts.AgentState) contracts.Action {
	switch decision.Kind {
	case contracts.DecisionStop:
		return contracts.Action{Kind: contracts.ActionStop, StopReason: decision.StopReason}

	case contracts.DecisionReplan:
		return contracts.Action{Kind: contracts.ActionReplan, Subgoals: decision.Subgoals, Note: decision.Note}

	case contracts.DecisionAskUser:
		return contracts.Action{Kind: contracts.ActionAskUser, Question: decision.Question}

	case contracts.DecisionCallTool:
		call := &contracts.ToolCall{ToolName: decision.ToolName, Args: decision.Args}
		return resolveCallTool(call, observation, policy, state)

	default:
		panic("unhandled Kind")
	}
}

func resolveCallTool(call *contracts.ToolCall, observation *contracts.Observation, policy contracts.ErrorHandlingPolicy, state contracts.AgentState) contracts.Action {
	// No observation yet: this is the pre-execution resolution (Action_pre)
	// or a decision that hasn't been executed. The planner is trusted to
	// have chosen a fresh call.
	if observation == nil || observation.Raw == nil {
		return contracts.Action{Kind: contracts.ActionCallTool, Call: call, IsRetry: false}
	}

	raw := observation.Raw
	if raw.Ok {
		// The planner is expected to have already advanced past this result.
		return contracts.Action{Kind: contracts.ActionCallTool, Call: call, IsRetry: false}
	}

	if shouldRetry(observation, policy.MaxRetriesPerCall) {
		return contracts.Action{
			Kind:          contracts.ActionCallTool,
			Call:          call,
			IsRetry:       true,
			BackoffBefore: policy.BaseBackoff, // caller applies exponential scaling by attempt
		}
	}

	switch raw.ErrorCode {
	case contracts.ErrorTimeout, contracts.ErrorRetryableServer:
		// retries exhausted
		return contracts.Action{Kind: contracts.ActionStop, StopReason: "Max retries exceeded for " + call.ToolName}

	case contracts.ErrorInvalidInput:
		if policy.AskUserWhenMissingFields {
			var fields []string
			if raw.ErrorDetails != nil {
				fields = raw.ErrorDetails.MissingFields
			}
			return contracts.Action{
				Kind:     contracts.ActionAskUser,
				Question: fmt.Sprintf("Tool '%s' failed with invalid input. Please provide correct parameters.", call.ToolName),
				Subgoals: fields,
			}
		}
		return contracts.Action{Kind: contracts.ActionReplan, Subgoals: []string{"fix_invalid_input_for_" + call.ToolName}}

	case contracts.ErrorToolBug, contracts.ErrorNonRetryableServer, contracts.ErrorPermissionDenied, contracts.ErrorNotFound:
		return contracts.Action{Kind: contracts.ActionStop, StopReason: "non-recoverable: " + string(raw.ErrorCode)}

	case contracts.ErrorCancelled:
		return contracts.Action{Kind: contracts.ActionStop, StopReason: "cancelled"}

	default:
		panic("unhandled ToolErrorCode")
	}
}

// shouldRetry implements the property: obs.raw.ok == false AND
// obs.raw.error_code is retryable AND obs.raw.attempt <= max_retries.
func shouldRetry(observation *contracts.Observation, maxRetries int) bool {
	raw := observation.Raw
	if raw == nil || raw.Ok {
		return false
	}
	return raw.ErrorCode.Retryable() && raw.Attempt <= maxRetries
}
