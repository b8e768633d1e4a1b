package harness

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/haasonsaas/agentcore/internal/executor"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

func rawArgs(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return raw
}

// Scenario 1 (spec "fs-read-file-basic"): a workspace with a single file
// and one scripted read_file call should succeed and echo the file's
// content back through the tool result.
func TestScenarioReadFileBasic(t *testing.T) {
	scenario := contracts.BenchmarkScenario{
		ID:          "fs-read-file-basic",
		Description: "Read the contents of readme.txt",
		Goal:        contracts.AgentGoal{Description: "Read the contents of readme.txt"},
		WorkspaceFiles: map[string]string{
			"readme.txt": "This is the workspace readme",
		},
		ScriptedDecisions: []contracts.Decision{
			{Kind: contracts.DecisionCallTool, ToolName: "read_file", Args: rawArgs(t, map[string]string{"file_path": "readme.txt"})},
			{Kind: contracts.DecisionStop, StopReason: "goal_complete"},
		},
		Budget:                 contracts.Budget{MaxTurns: 5},
		Policy:                 contracts.ErrorHandlingPolicy{MaxRetriesPerCall: 1, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		ExpectedToolInvocations: []contracts.ExpectedToolInvocation{{ToolName: "read_file", MinAttempts: 1, MustSucceed: true}},
		ExpectedStopReason:     "goal_complete",
	}

	r := New(Config{})
	result := r.Run(context.Background(), scenario)

	if !result.Passed {
		t.Fatalf("expected pass, got failures: %v", result.FailureReasons)
	}
}

// Scenario 2 (spec "fs-delete-file-recursive"): a nested directory must
// be gone after a recursive delete_file call.
func TestScenarioDeleteFileRecursive(t *testing.T) {
	scenario := contracts.BenchmarkScenario{
		ID:          "fs-delete-file-recursive",
		Description: "Recursively delete delete_dir",
		Goal:        contracts.AgentGoal{Description: "Delete delete_dir recursively"},
		WorkspaceFiles: map[string]string{
			"delete_dir/a.txt":         "a",
			"delete_dir/nested/b.txt":  "b",
		},
		ScriptedDecisions: []contracts.Decision{
			{Kind: contracts.DecisionCallTool, ToolName: "delete_file", Args: rawArgs(t, map[string]any{"target_path": "delete_dir", "recursive": true})},
			{Kind: contracts.DecisionStop, StopReason: "goal_complete"},
		},
		Budget: contracts.Budget{MaxTurns: 5},
		Policy: contracts.ErrorHandlingPolicy{MaxRetriesPerCall: 1, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		ExpectedToolInvocations: []contracts.ExpectedToolInvocation{{ToolName: "delete_file", MinAttempts: 1, MustSucceed: true}},
		ExpectedStopReason:     "goal_complete",
		ExpectedWorkspaceFiles: map[string]string{"delete_dir/a.txt": ""},
	}

	r := New(Config{})
	result := r.Run(context.Background(), scenario)

	if !result.Passed {
		t.Fatalf("expected pass, got failures: %v", result.FailureReasons)
	}
}

// Scenario 3 (spec "fs-write-file-no-overwrite"): writing without
// overwrite to an existing file must fail and leave the file untouched.
func TestScenarioWriteFileNoOverwrite(t *testing.T) {
	scenario := contracts.BenchmarkScenario{
		ID:          "fs-write-file-no-overwrite",
		Description: "Write New content to existing_write.txt without overwrite",
		Goal:        contracts.AgentGoal{Description: "Write New content to existing_write.txt"},
		WorkspaceFiles: map[string]string{
			"existing_write.txt": "original content",
		},
		ScriptedDecisions: []contracts.Decision{
			{Kind: contracts.DecisionCallTool, ToolName: "write_file", Args: rawArgs(t, map[string]any{
				"file_path": "existing_write.txt", "content": "New content", "overwrite": false,
			})},
		},
		Budget:                 contracts.Budget{MaxTurns: 5},
		Policy:                 contracts.ErrorHandlingPolicy{MaxRetriesPerCall: 1, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		ExpectedToolInvocations: []contracts.ExpectedToolInvocation{{ToolName: "write_file", MinAttempts: 1}},
		ExpectedWorkspaceFiles:  map[string]string{"existing_write.txt": "original content"},
	}

	r := New(Config{})
	result := r.Run(context.Background(), scenario)

	if !result.Passed {
		t.Fatalf("expected pass (failure observed as expected), got failures: %v", result.FailureReasons)
	}
}

// Scenario 4 (spec "transient retry"): a tool that fails with a
// retryable Timeout on its first two attempts and succeeds on the third
// should be retried exactly that many times and end successfully.
type flakyThriceTool struct {
	calls *int
}

func (flakyThriceTool) Name() string { return "flaky_thrice" }
func (flakyThriceTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (t flakyThriceTool) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	*t.calls++
	if *t.calls < 3 {
		return nil, context.DeadlineExceeded
	}
	return json.RawMessage(`{"status":"ok"}`), nil
}

func TestScenarioTransientRetrySucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	tool := flakyThriceTool{calls: &calls}

	scenario := contracts.BenchmarkScenario{
		ID:          "transient-retry",
		Description: "flaky_thrice times out twice then succeeds",
		Goal:        contracts.AgentGoal{Description: "exercise flaky_thrice"},
		ScriptedDecisions: []contracts.Decision{
			{Kind: contracts.DecisionCallTool, ToolName: "flaky_thrice", Args: rawArgs(t, map[string]any{})},
			{Kind: contracts.DecisionStop, StopReason: "goal_complete"},
		},
		Budget:                  contracts.Budget{MaxTurns: 10},
		Policy:                  contracts.ErrorHandlingPolicy{MaxRetriesPerCall: 3, BaseBackoff: 2 * time.Millisecond, MaxBackoff: 20 * time.Millisecond},
		ExpectedToolInvocations: []contracts.ExpectedToolInvocation{{ToolName: "flaky_thrice", MinAttempts: 3, MustSucceed: true}},
		ExpectedStopReason:      "goal_complete",
	}

	r := New(Config{ExtraTools: []executor.Invoker{tool}})
	started := time.Now()
	result := r.Run(context.Background(), scenario)
	elapsed := time.Since(started)

	if !result.Passed {
		t.Fatalf("expected pass, got failures: %v", result.FailureReasons)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want exactly 3", calls)
	}
	// base + 2*base backoff between the two retries, loosely bounded.
	if elapsed < 3*time.Millisecond {
		t.Errorf("elapsed = %v, expected at least base+2*base backoff to have been waited", elapsed)
	}
}

// Scenario 5 (spec "budget exhaustion"): a planner that always asks to
// replan never terminates on its own, so a max_turns=3 budget must cut
// the run off after exactly 3 turns with the loop's budget-exhaustion
// stop reason.
func TestScenarioBudgetExhaustion(t *testing.T) {
	scenario := contracts.BenchmarkScenario{
		ID:                "budget-exhaustion",
		Description:       "Planner loops forever; budget must cut it off",
		Goal:              contracts.AgentGoal{Description: "keep going forever"},
		ScriptedDecisions: []contracts.Decision{{Kind: contracts.DecisionReplan, Subgoals: []string{"keep going"}}},
		Budget:            contracts.Budget{MaxTurns: 3},
		Policy:            contracts.ErrorHandlingPolicy{MaxRetriesPerCall: 1, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		ExpectedStopReason: "max_turns",
	}

	r := New(Config{})
	result := r.Run(context.Background(), scenario)

	if !result.Passed {
		t.Fatalf("expected pass, got failures: %v", result.FailureReasons)
	}
	if result.FinalState.TurnIndex != 3 {
		t.Errorf("TurnIndex = %d, want 3", result.FinalState.TurnIndex)
	}
}

// Scenario 6 (spec "multi-turn conversation context"): after a tool call
// and a final assistant reply close turn 0, turn 1's flattened history
// must read U0, A0_with_tool_calls, T0, A0_final, U1 in order — this is
// the invariant internal/loop's StartTurn/EndTurn discipline exists for.
func TestScenarioMultiTurnConversationContext(t *testing.T) {
	scenario := contracts.BenchmarkScenario{
		ID:          "multi-turn-conversation-context",
		Description: "Write a.txt, then continue into a second turn",
		Goal:        contracts.AgentGoal{Description: "write a.txt"},
		ScriptedDecisions: []contracts.Decision{
			{Kind: contracts.DecisionCallTool, ToolName: "write_file", Args: rawArgs(t, map[string]any{"file_path": "a.txt", "content": "hello", "overwrite": true})},
			{Kind: contracts.DecisionReplan, Subgoals: []string{"keep going"}},
			{Kind: contracts.DecisionStop, StopReason: "goal_complete"},
		},
		Budget:             contracts.Budget{MaxTurns: 5},
		Policy:             contracts.ErrorHandlingPolicy{MaxRetriesPerCall: 1, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		ExpectedStopReason: "goal_complete",
	}

	r := New(Config{})
	result := r.Run(context.Background(), scenario)

	if !result.Passed {
		t.Fatalf("expected pass, got failures: %v", result.FailureReasons)
	}
	if result.FinalState.TurnIndex < 2 {
		t.Fatalf("expected at least 2 turns to exercise the second-turn history, got %d", result.FinalState.TurnIndex)
	}

	turns := result.FinalConversation.Turns
	if len(turns) < 2 {
		t.Fatalf("expected at least 2 recorded turns, got %d", len(turns))
	}

	turn0 := turns[0]
	if turn0.UserOrSystemMsg == nil {
		t.Fatal("turn 0: missing U0 (UserOrSystemMsg)")
	}
	if turn0.AssistantMessage == nil || len(turn0.AssistantMessage.ToolCalls) == 0 {
		t.Fatal("turn 0: missing A0_with_tool_calls")
	}
	callID := turn0.AssistantMessage.ToolCalls[0].ID
	if len(turn0.ToolMessages) == 0 || turn0.ToolMessages[0].ToolCallID != callID {
		t.Fatal("turn 0: missing T0 paired to A0's tool_calls")
	}

	turn1 := turns[1]
	if turn1.UserOrSystemMsg == nil {
		t.Fatal("turn 1: missing U1 (UserOrSystemMsg)")
	}
	if turn1.AssistantMessage == nil || turn1.AssistantMessage.Content == "" {
		t.Fatal("turn 1: missing the assistant's reply for a turn that ended in Replan rather than a tool call")
	}
}

// Verifies the universal invariant from spec §8: "Workspace directory
// created by the Harness does not exist after the scenario's Done
// state."
func TestRunnerRemovesWorkspaceAfterRun(t *testing.T) {
	parent := t.TempDir()
	scenario := contracts.BenchmarkScenario{
		ID:                "fs-read-file-basic",
		Goal:              contracts.AgentGoal{Description: "read readme.txt"},
		WorkspaceFiles:    map[string]string{"readme.txt": "hello"},
		ScriptedDecisions: []contracts.Decision{{Kind: contracts.DecisionStop, StopReason: "goal_complete"}},
		Budget:            contracts.Budget{MaxTurns: 5},
	}

	r := New(Config{WorkspaceRoot: parent})
	result := r.Run(context.Background(), scenario)
	if !result.Passed {
		t.Fatalf("expected pass, got failures: %v", result.FailureReasons)
	}

	entries, err := os.ReadDir(parent)
	if err != nil {
		t.Fatalf("read parent dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected workspace directory to be removed, found: %v", entries)
	}
}
