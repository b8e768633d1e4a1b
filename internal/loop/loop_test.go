package loop

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/agentcore/internal/conversation"
	"github.com/haasonsaas/agentcore/internal/critic"
	"github.com/haasonsaas/agentcore/internal/events"
	"github.com/haasonsaas/agentcore/internal/executor"
	"github.com/haasonsaas/agentcore/internal/planner"
	"github.com/haasonsaas/agentcore/internal/provider"
	"github.com/haasonsaas/agentcore/internal/state"
	"github.com/haasonsaas/agentcore/internal/tools"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

func newWorkspace(t *testing.T) context.Context {
	t.Helper()
	dir := t.TempDir()
	return tools.WithWorkspaceRoot(context.Background(), dir)
}

func newLoop(mock *provider.MockProvider, reg *executor.Registry, c *critic.Critic) *Loop {
	return New(Config{
		Planner:      planner.New(planner.Config{Provider: mock, Registry: reg}),
		Critic:       c,
		Executor:     executor.New(reg),
		StateManager: state.NewManager(0),
		ConvManager:  conversation.NewManager(0),
		ToolTimeout:  5 * time.Second,
	})
}

func defaultPolicy() contracts.ErrorHandlingPolicy {
	return contracts.ErrorHandlingPolicy{
		MaxRetriesPerCall: 2,
		BaseBackoff:       time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
	}
}

func TestRunCallToolThenStop(t *testing.T) {
	ctx := newWorkspace(t)
	reg := executor.NewRegistry()
	reg.Register(tools.WriteFile{})
	reg.Register(tools.ReadFile{})

	mock := provider.NewMockProvider("mock",
		`{"kind":"call_tool","tool_name":"write_file","args":{"file_path":"a.txt","content":"hello"}}`,
		`{"kind":"stop","stop_reason":"goal_complete"}`,
	)

	l := newLoop(mock, reg, nil)
	result := l.Run(ctx, contracts.AgentGoal{Description: "write a.txt"}, contracts.Budget{MaxTurns: 10}, defaultPolicy(), events.NopSink{})

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.StopReason != "goal_complete" {
		t.Errorf("StopReason = %q, want goal_complete", result.StopReason)
	}
	if result.TotalTurns != 2 {
		t.Errorf("TotalTurns = %d, want 2", result.TotalTurns)
	}
}

func TestRunStopsOnBudgetExhaustion(t *testing.T) {
	ctx := newWorkspace(t)
	reg := executor.NewRegistry()

	// A replan decision never terminates the loop on its own, so the run
	// keeps going until the budget itself cuts it off.
	mock := provider.NewMockProvider("mock",
		`{"kind":"replan","subgoals":["keep going"]}`,
	)

	l := newLoop(mock, reg, nil)
	result := l.Run(ctx, contracts.AgentGoal{Description: "loop forever"}, contracts.Budget{MaxTurns: 3}, defaultPolicy(), events.NopSink{})

	if result.Success {
		t.Fatalf("expected failure on budget exhaustion, got %+v", result)
	}
	if result.StopReason != "max_turns" {
		t.Errorf("StopReason = %q, want max_turns", result.StopReason)
	}
	if result.TotalTurns != 3 {
		t.Errorf("TotalTurns = %d, want 3", result.TotalTurns)
	}
}

func TestResumeContinuesFromCheckpointedState(t *testing.T) {
	ctx := newWorkspace(t)
	reg := executor.NewRegistry()

	mock := provider.NewMockProvider("mock",
		`{"kind":"replan","subgoals":["keep going"]}`,
		`{"kind":"stop","stop_reason":"done"}`,
	)

	l := newLoop(mock, reg, nil)
	first := l.Run(ctx, contracts.AgentGoal{Description: "resumable goal"}, contracts.Budget{MaxTurns: 1}, defaultPolicy(), events.NopSink{})

	if first.Success {
		t.Fatalf("expected the first run to stop on budget exhaustion, got %+v", first)
	}
	traceID := first.FinalState.TraceID
	if traceID == "" {
		t.Fatal("expected a trace id on the checkpointed run")
	}

	second, ok := l.Resume(ctx, traceID, contracts.Budget{MaxTurns: 10}, defaultPolicy(), events.NopSink{})
	if !ok {
		t.Fatal("expected a checkpoint to be found for the interrupted trace id")
	}
	if !second.Success {
		t.Fatalf("expected the resumed run to complete, got %+v", second)
	}
	if second.StopReason != "done" {
		t.Errorf("StopReason = %q, want done", second.StopReason)
	}
	if second.FinalState.TurnIndex != first.FinalState.TurnIndex+1 {
		t.Errorf("TurnIndex = %d, want %d (continued, not restarted)", second.FinalState.TurnIndex, first.FinalState.TurnIndex+1)
	}

	if _, found, _ := l.stateManager.Load(ctx, traceID); found {
		t.Error("expected the checkpoint to be cleared after the run completed successfully")
	}
}

func TestResumeReportsNoCheckpointForUnknownTraceID(t *testing.T) {
	ctx := newWorkspace(t)
	reg := executor.NewRegistry()
	mock := provider.NewMockProvider("mock")
	l := newLoop(mock, reg, nil)

	_, ok := l.Resume(ctx, "no-such-trace", contracts.Budget{MaxTurns: 10}, defaultPolicy(), events.NopSink{})
	if ok {
		t.Fatal("expected Resume to report no checkpoint for an unknown trace id")
	}
}

// flakyTool fails its first attempt with a retryable error, then succeeds.
type flakyTool struct {
	calls *int
}

func (flakyTool) Name() string { return "flaky_tool" }
func (flakyTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
// Invoke fails its first attempt with context.DeadlineExceeded — the
// executor classifies that as ErrorTimeout, which the Policy Engine's
// retry rule treats as retryable — then succeeds on the next attempt.
func (t flakyTool) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	*t.calls++
	if *t.calls == 1 {
		return nil, context.DeadlineExceeded
	}
	return json.RawMessage(`{"status":"ok"}`), nil
}

func TestRunRetriesTransientToolFailureThenSucceeds(t *testing.T) {
	ctx := newWorkspace(t)
	reg := executor.NewRegistry()
	calls := 0
	reg.Register(flakyTool{calls: &calls})

	mock := provider.NewMockProvider("mock",
		`{"kind":"call_tool","tool_name":"flaky_tool","args":{}}`,
		`{"kind":"stop","stop_reason":"done"}`,
	)

	l := newLoop(mock, reg, nil)
	policy := defaultPolicy()
	result := l.Run(ctx, contracts.AgentGoal{Description: "exercise flaky tool"}, contracts.Budget{MaxTurns: 10}, policy, events.NopSink{})

	if calls < 2 {
		t.Fatalf("expected the executor to retry at least once, got %d calls", calls)
	}
	if !result.Success {
		t.Fatalf("expected success after retry, got %+v", result)
	}
	if result.StopReason != "done" {
		t.Errorf("StopReason = %q, want done", result.StopReason)
	}
}

func TestRunAskUserTerminatesWithQuestion(t *testing.T) {
	ctx := newWorkspace(t)
	reg := executor.NewRegistry()

	mock := provider.NewMockProvider("mock",
		`{"kind":"ask_user","question":"Which file should I edit?"}`,
	)

	l := newLoop(mock, reg, nil)
	result := l.Run(ctx, contracts.AgentGoal{Description: "ambiguous goal"}, contracts.Budget{MaxTurns: 10}, defaultPolicy(), events.NopSink{})

	if result.Success {
		t.Fatalf("expected ask_user to be treated as non-success, got %+v", result)
	}
	if result.StopReason != "ask_user: Which file should I edit?" {
		t.Errorf("StopReason = %q, want ask_user question", result.StopReason)
	}
}

func TestRunCriticOverrideStopsRunWithoutDoubleAdvancingTurns(t *testing.T) {
	ctx := newWorkspace(t)
	reg := executor.NewRegistry()
	reg.Register(tools.WriteFile{})

	mock := provider.NewMockProvider("mock",
		`{"kind":"call_tool","tool_name":"write_file","args":{"file_path":"a.txt","content":"x"}}`,
	)
	criticMock := provider.NewMockProvider("critic", `{"kind":"stop","stop_reason":"critic_says_done"}`)
	c := critic.New(critic.Config{Provider: criticMock})

	l := newLoop(mock, reg, c)
	result := l.Run(ctx, contracts.AgentGoal{Description: "write then let critic decide"}, contracts.Budget{MaxTurns: 10}, defaultPolicy(), events.NopSink{})

	if !result.Success {
		t.Fatalf("expected success via critic override, got %+v", result)
	}
	if result.StopReason != "critic_says_done" {
		t.Errorf("StopReason = %q, want critic_says_done", result.StopReason)
	}
	if result.TotalTurns != 1 {
		t.Errorf("TotalTurns = %d, want exactly 1 (one state update per turn even with a critic override)", result.TotalTurns)
	}
}

func TestRunCancelledContextStopsLoop(t *testing.T) {
	reg := executor.NewRegistry()
	reg.Register(tools.ReadFile{})
	mock := provider.NewMockProvider("mock", `{"kind":"call_tool","tool_name":"read_file","args":{"file_path":"a.txt"}}`)

	l := newLoop(mock, reg, nil)

	ctx, cancel := context.WithCancel(tools.WithWorkspaceRoot(context.Background(), t.TempDir()))
	cancel()

	result := l.Run(ctx, contracts.AgentGoal{Description: "cancelled before start"}, contracts.Budget{MaxTurns: 10}, defaultPolicy(), events.NopSink{})
	if result.Success {
		t.Fatalf("expected cancelled run to be non-success, got %+v", result)
	}
	if result.StopReason != "cancelled" {
		t.Errorf("StopReason = %q, want cancelled", result.StopReason)
	}
}
