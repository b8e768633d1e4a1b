// Package critic implements the optional post-hoc reviewer that can
// override the planner's decision for the next turn only. It shares the
// planner's request/parse shape but reviews the state the policy engine
// has already resolved against, not the pre-resolution planner input.
package critic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// Critic reviews the state after a turn's action has been resolved and
// may override what would otherwise be the next planner decision.
type Critic struct {
	provider     provider.LLMProvider
	model        string
	systemPrompt string
}

// Config configures a Critic.
type Config struct {
	Provider     provider.LLMProvider
	Model        string
	SystemPrompt string
}

// New builds a Critic from cfg.
func New(cfg Config) *Critic {
	system := cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	return &Critic{provider: cfg.Provider, model: cfg.Model, systemPrompt: system}
}

const defaultSystemPrompt = `You are the critic component of an autonomous tool-using agent.
Review the current state and the action just taken. If the agent should
replan, stop, or ask the user instead of continuing as planned, respond
with exactly one JSON object:
  {"kind":"replan","subgoals":["..."],"note":"..."}
  {"kind":"stop","stop_reason":"..."}
  {"kind":"ask_user","question":"..."}
If no override is warranted, respond with exactly: {"kind":"none"}`

// Review returns an overriding Decision, or ok=false if the critic found
// nothing to override. decision is the turn's own (pre-override) Decision
// being reviewed, not a previous turn's. A malformed reply is treated the
// same as "none": a critic that can't express an opinion clearly isn't
// one the loop should act on.
func (c *Critic) Review(ctx context.Context, state contracts.AgentState, decision contracts.Decision, observation *contracts.Observation) (override contracts.Decision, ok bool, err error) {
	req := &provider.CompletionRequest{
		Model:    c.model,
		System:   c.systemPrompt,
		Messages: []provider.CompletionMessage{{Role: "user", Content: c.projectReview(state, decision, observation)}},
	}

	chunks, err := c.provider.Complete(ctx, req)
	if err != nil {
		return contracts.Decision{}, false, fmt.Errorf("critic: complete: %w", err)
	}

	text, _, _, err := provider.Collect(chunks)
	if err != nil {
		return contracts.Decision{}, false, fmt.Errorf("critic: stream: %w", err)
	}

	return parseReview(text)
}

func (c *Critic) projectReview(state contracts.AgentState, decision contracts.Decision, observation *contracts.Observation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", state.Goal.Description)
	fmt.Fprintf(&b, "Turn: %d\n", state.TurnIndex)
	fmt.Fprintf(&b, "Decision taken: %s\n", decision.Kind)
	if observation != nil {
		fmt.Fprintf(&b, "Observation: %s\n", observation.Summary)
	}
	return b.String()
}

type wireReview struct {
	Kind       string   `json:"kind"`
	StopReason string   `json:"stop_reason,omitempty"`
	Subgoals   []string `json:"subgoals,omitempty"`
	Note       string   `json:"note,omitempty"`
	Question   string   `json:"question,omitempty"`
}

func parseReview(text string) (contracts.Decision, bool, error) {
	span := extractJSONObject(text)
	if span == "" {
		return contracts.Decision{}, false, nil
	}

	var wire wireReview
	if err := json.Unmarshal([]byte(span), &wire); err != nil {
		return contracts.Decision{}, false, nil
	}

	switch wire.Kind {
	case "none", "":
		return contracts.Decision{}, false, nil
	case "replan":
		return contracts.Decision{Kind: contracts.DecisionReplan, Subgoals: wire.Subgoals, Note: wire.Note}, true, nil
	case "stop":
		return contracts.Decision{Kind: contracts.DecisionStop, StopReason: wire.StopReason}, true, nil
	case "ask_user":
		if wire.Question == "" {
			return contracts.Decision{}, false, nil
		}
		return contracts.Decision{Kind: contracts.DecisionAskUser, Question: wire.Question}, true, nil
	default:
		return contracts.Decision{}, false, nil
	}
}

// extractJSONObject mirrors planner's brace-balancing search so a critic
// reply wrapped in prose still parses.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
