package critic

import (
	"context"
	"testing"

	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

func TestReviewReturnsNoOverrideOnNone(t *testing.T) {
	mock := provider.NewMockProvider("mock", `{"kind":"none"}`)
	c := New(Config{Provider: mock})

	decision, ok, err := c.Review(context.Background(), contracts.AgentState{}, contracts.Decision{Kind: contracts.DecisionCallTool, ToolName: "read_file"}, nil)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if ok {
		t.Errorf("expected ok=false, got decision %+v", decision)
	}
}

func TestReviewReturnsOverrideOnStop(t *testing.T) {
	mock := provider.NewMockProvider("mock", `{"kind":"stop","stop_reason":"critic_override"}`)
	c := New(Config{Provider: mock})

	decision, ok, err := c.Review(context.Background(), contracts.AgentState{}, contracts.Decision{Kind: contracts.DecisionCallTool, ToolName: "read_file"}, nil)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if decision.Kind != contracts.DecisionStop || decision.StopReason != "critic_override" {
		t.Errorf("decision = %+v, want Stop(critic_override)", decision)
	}
}

func TestReviewTreatsMalformedReplyAsNoOverride(t *testing.T) {
	mock := provider.NewMockProvider("mock", "not json")
	c := New(Config{Provider: mock})

	_, ok, err := c.Review(context.Background(), contracts.AgentState{}, contracts.Decision{Kind: contracts.DecisionCallTool, ToolName: "read_file"}, nil)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if ok {
		t.Error("expected malformed critic reply to be treated as no override")
	}
}

func TestReviewAskUserRequiresQuestion(t *testing.T) {
	mock := provider.NewMockProvider("mock", `{"kind":"ask_user"}`)
	c := New(Config{Provider: mock})

	_, ok, err := c.Review(context.Background(), contracts.AgentState{}, contracts.Decision{Kind: contracts.DecisionCallTool, ToolName: "read_file"}, nil)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if ok {
		t.Error("expected ask_user without a question to be treated as no override")
	}
}

func TestReviewReplanOverride(t *testing.T) {
	mock := provider.NewMockProvider("mock", `{"kind":"replan","subgoals":["try a different tool"],"note":"loop detected"}`)
	c := New(Config{Provider: mock})

	decision, ok, err := c.Review(context.Background(), contracts.AgentState{}, contracts.Decision{Kind: contracts.DecisionCallTool, ToolName: "read_file"}, &contracts.Observation{Summary: "stuck"})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if !ok || decision.Kind != contracts.DecisionReplan {
		t.Fatalf("decision = %+v ok=%v, want Replan override", decision, ok)
	}
}
