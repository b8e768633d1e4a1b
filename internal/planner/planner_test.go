package planner

import (
	"context"
	"testing"

	"github.com/haasonsaas/agentcore/internal/executor"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

func newRegistry() *executor.Registry {
	reg := executor.NewRegistry()
	reg.Register(tools.ReadFile{})
	reg.Register(tools.WriteFile{})
	return reg
}

func TestDecideParsesCallTool(t *testing.T) {
	mock := provider.NewMockProvider("mock", `{"kind":"call_tool","tool_name":"read_file","args":{"file_path":"a.txt"}}`)
	p := New(Config{Provider: mock, Registry: newRegistry()})

	decision, err := p.Decide(context.Background(), contracts.AgentState{TraceID: "t1"}, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Kind != contracts.DecisionCallTool {
		t.Fatalf("Kind = %v, want DecisionCallTool", decision.Kind)
	}
	if decision.ToolName != "read_file" {
		t.Errorf("ToolName = %q, want read_file", decision.ToolName)
	}
}

func TestDecideParsesStopWithProseWrapper(t *testing.T) {
	mock := provider.NewMockProvider("mock", "Sure thing, here is my decision:\n"+`{"kind":"stop","stop_reason":"goal_complete"}`+"\nLet me know if you need anything else.")
	p := New(Config{Provider: mock})

	decision, err := p.Decide(context.Background(), contracts.AgentState{TraceID: "t1"}, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision.Kind != contracts.DecisionStop || decision.StopReason != "goal_complete" {
		t.Errorf("decision = %+v, want Stop(goal_complete)", decision)
	}
}

func TestDecideAskUserRequiresQuestion(t *testing.T) {
	mock := provider.NewMockProvider("mock", `{"kind":"ask_user"}`, `{"kind":"ask_user"}`, `{"kind":"ask_user"}`)
	p := New(Config{Provider: mock, MaxParseRetries: 1})

	state := contracts.AgentState{TraceID: "t1"}
	first, err := p.Decide(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if first.Kind != contracts.DecisionReplan || first.Subgoals[0] != "parse_failure_retry_planning" {
		t.Fatalf("first decision = %+v, want Replan(parse_failure_retry_planning)", first)
	}

	second, err := p.Decide(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if second.Kind != contracts.DecisionReplan {
		t.Fatalf("second decision = %+v, want another Replan (retry budget is 1)", second)
	}

	third, err := p.Decide(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if third.Kind != contracts.DecisionStop || third.StopReason != "planner_parse_failure" {
		t.Fatalf("third decision = %+v, want Stop(planner_parse_failure)", third)
	}
}

func TestDecideResetsParseFailureCountOnSuccess(t *testing.T) {
	mock := provider.NewMockProvider("mock", `not json at all`, `{"kind":"stop","stop_reason":"ok"}`)
	p := New(Config{Provider: mock, MaxParseRetries: 1})
	state := contracts.AgentState{TraceID: "t1"}

	if _, err := p.Decide(context.Background(), state, nil); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if _, err := p.Decide(context.Background(), state, nil); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if got := p.parseFailures[state.TraceID]; got != 0 {
		t.Errorf("parseFailures[%s] = %d, want 0 after a successful parse", state.TraceID, got)
	}
}

func TestDecideReturnsProviderError(t *testing.T) {
	mock := provider.NewMockProvider("mock").WithError(assertErr{})
	p := New(Config{Provider: mock})

	_, err := p.Decide(context.Background(), contracts.AgentState{TraceID: "t1"}, nil)
	if err == nil {
		t.Fatal("expected an error when the provider fails")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "provider unavailable" }

func TestToolCatalogListsRegisteredTools(t *testing.T) {
	p := New(Config{Provider: provider.NewMockProvider("mock"), Registry: newRegistry()})
	specs := p.toolCatalog()
	if len(specs) != 2 {
		t.Fatalf("len(specs) = %d, want 2", len(specs))
	}
	if specs[0].Name != "read_file" || specs[1].Name != "write_file" {
		t.Errorf("specs = %+v, want sorted [read_file write_file]", specs)
	}
}

func TestExtractJSONObjectIgnoresBracesInsideStrings(t *testing.T) {
	text := `{"kind":"replan","note":"handle the {odd} case"}`
	got := extractJSONObject(text)
	if got != text {
		t.Errorf("extractJSONObject = %q, want %q", got, text)
	}
}
