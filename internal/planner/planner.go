// Package planner assembles the per-turn LLM request that produces the
// next Decision: a system prompt, a compact projection of AgentState, the
// recent conversation history, and the tool catalog, all folded into one
// provider.LLMProvider.Complete call whose streamed text is parsed as
// exactly one Decision.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/agentcore/internal/executor"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// DefaultMaxParseRetries is how many consecutive parse failures a run
// tolerates before the Planner gives up and returns Stop("planner_parse_failure").
const DefaultMaxParseRetries = 2

// Planner calls an LLMProvider to decide the agent's next move.
type Planner struct {
	provider        provider.LLMProvider
	registry        *executor.Registry
	model           string
	systemPrompt    string
	maxParseRetries int

	parseFailures map[string]int
}

// Config configures a Planner.
type Config struct {
	Provider        provider.LLMProvider
	Registry        *executor.Registry
	Model           string
	SystemPrompt    string
	MaxParseRetries int
}

// New builds a Planner from cfg, applying DefaultMaxParseRetries when
// MaxParseRetries is unset.
func New(cfg Config) *Planner {
	maxRetries := cfg.MaxParseRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxParseRetries
	}
	system := cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	return &Planner{
		provider:        cfg.Provider,
		registry:        cfg.Registry,
		model:           cfg.Model,
		systemPrompt:    system,
		maxParseRetries: maxRetries,
		parseFailures:   make(map[string]int),
	}
}

const defaultSystemPrompt = `You are the planning component of an autonomous tool-using agent.
Given the current state, decide the single next action. Respond with exactly
one JSON object and nothing else, matching one of:
  {"kind":"call_tool","tool_name":"...","args":{...}}
  {"kind":"stop","stop_reason":"..."}
  {"kind":"replan","subgoals":["..."],"note":"..."}
  {"kind":"ask_user","question":"..."}`

// Decide assembles the planning request and returns exactly one Decision.
// A malformed model reply is treated as Replan(["parse_failure_retry_planning"])
// up to maxParseRetries times per trace id, after which it becomes
// Stop("planner_parse_failure").
func (p *Planner) Decide(ctx context.Context, state contracts.AgentState, history []provider.CompletionMessage) (contracts.Decision, error) {
	req := &provider.CompletionRequest{
		Model:    p.model,
		System:   p.systemPrompt,
		Messages: append(history, provider.CompletionMessage{Role: "user", Content: p.projectState(state)}),
		Tools:    p.toolCatalog(),
	}

	chunks, err := p.provider.Complete(ctx, req)
	if err != nil {
		return contracts.Decision{}, fmt.Errorf("planner: complete: %w", err)
	}

	text, _, _, err := provider.Collect(chunks)
	if err != nil {
		return contracts.Decision{}, fmt.Errorf("planner: stream: %w", err)
	}

	decision, parseErr := parseDecision(text)
	if parseErr == nil {
		delete(p.parseFailures, state.TraceID)
		return decision, nil
	}

	p.parseFailures[state.TraceID]++
	if p.parseFailures[state.TraceID] > p.maxParseRetries {
		delete(p.parseFailures, state.TraceID)
		return contracts.Decision{Kind: contracts.DecisionStop, StopReason: "planner_parse_failure"}, nil
	}
	return contracts.Decision{Kind: contracts.DecisionReplan, Subgoals: []string{"parse_failure_retry_planning"}}, nil
}

// projectState renders the compact, LLM-facing projection of state: goal,
// subgoals, last observation summary, and the working memory digest.
func (p *Planner) projectState(state contracts.AgentState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", state.Goal.Description)
	if len(state.Goal.Constraints) > 0 {
		fmt.Fprintf(&b, "Constraints: %s\n", strings.Join(state.Goal.Constraints, "; "))
	}
	if len(state.Subgoals) > 0 {
		fmt.Fprintf(&b, "Subgoals: %s\n", strings.Join(state.Subgoals, "; "))
	}
	fmt.Fprintf(&b, "Turn: %d\n", state.TurnIndex)
	if state.LastObservation != nil {
		fmt.Fprintf(&b, "Last observation: %s\n", state.LastObservation.Summary)
		if len(state.LastObservation.Affordances) > 0 {
			affordances := make([]string, len(state.LastObservation.Affordances))
			for i, a := range state.LastObservation.Affordances {
				affordances[i] = string(a)
			}
			fmt.Fprintf(&b, "Affordances: %s\n", strings.Join(affordances, ", "))
		}
	}
	if len(state.WorkingMemory) > 0 {
		keys := make([]string, 0, len(state.WorkingMemory))
		for k := range state.WorkingMemory {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Working memory:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, state.WorkingMemory[k])
		}
	}
	return b.String()
}

// toolCatalog lists the registered tools as provider.ToolSpec. Reference
// tools expose only Name/Schema, so the description is synthesized from
// the name.
func (p *Planner) toolCatalog() []provider.ToolSpec {
	if p.registry == nil {
		return nil
	}
	names := p.registry.Names()
	sort.Strings(names)
	specs := make([]provider.ToolSpec, 0, len(names))
	for _, name := range names {
		tool, ok := p.registry.Get(name)
		if !ok {
			continue
		}
		specs = append(specs, provider.ToolSpec{
			Name:        name,
			Description: strings.ReplaceAll(name, "_", " "),
			Schema:      tool.Schema(),
		})
	}
	return specs
}

type wireDecision struct {
	Kind       string          `json:"kind"`
	ToolName   string          `json:"tool_name,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	StopReason string          `json:"stop_reason,omitempty"`
	Subgoals   []string        `json:"subgoals,omitempty"`
	Note       string          `json:"note,omitempty"`
	Question   string          `json:"question,omitempty"`
}

// parseDecision extracts the first top-level JSON object from text and
// maps it onto a contracts.Decision. Models occasionally wrap JSON in
// prose or code fences, so the search is for the outermost {...} span
// rather than requiring the whole reply to be bare JSON.
func parseDecision(text string) (contracts.Decision, error) {
	span := extractJSONObject(text)
	if span == "" {
		return contracts.Decision{}, fmt.Errorf("planner: no JSON object found in reply")
	}

	var wire wireDecision
	if err := json.Unmarshal([]byte(span), &wire); err != nil {
		return contracts.Decision{}, fmt.Errorf("planner: invalid JSON: %w", err)
	}

	switch wire.Kind {
	case "call_tool":
		if wire.ToolName == "" {
			return contracts.Decision{}, fmt.Errorf("planner: call_tool decision missing tool_name")
		}
		return contracts.Decision{Kind: contracts.DecisionCallTool, ToolName: wire.ToolName, Args: wire.Args}, nil
	case "stop":
		return contracts.Decision{Kind: contracts.DecisionStop, StopReason: wire.StopReason}, nil
	case "replan":
		return contracts.Decision{Kind: contracts.DecisionReplan, Subgoals: wire.Subgoals, Note: wire.Note}, nil
	case "ask_user":
		if wire.Question == "" {
			return contracts.Decision{}, fmt.Errorf("planner: ask_user decision missing question")
		}
		return contracts.Decision{Kind: contracts.DecisionAskUser, Question: wire.Question}, nil
	default:
		return contracts.Decision{}, fmt.Errorf("planner: unrecognized decision kind %q", wire.Kind)
	}
}

// extractJSONObject returns the substring spanning the first balanced
// top-level {...} block in text, or "" if none is found.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string, ignore braces
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
