package contracts

import "testing"

func TestBudgetExceeded(t *testing.T) {
	cases := []struct {
		name    string
		budget  Budget
		turns   int
		calls   int
		tokens  int
		elapsed int64
		want    bool
	}{
		{"unbounded", Budget{}, 1000, 1000, 1000000, 1 << 40, false},
		{"max turns hit", Budget{MaxTurns: 5}, 5, 0, 0, 0, true},
		{"max turns under", Budget{MaxTurns: 5}, 4, 0, 0, 0, false},
		{"max tool calls hit", Budget{MaxToolCalls: 3}, 0, 3, 0, 0, true},
		{"max tokens hit", Budget{MaxTokens: 100}, 0, 0, 100, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, _ := c.budget.Exceeded(c.turns, c.calls, c.tokens, 0)
			if got != c.want {
				t.Errorf("Exceeded() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestToolResultValid(t *testing.T) {
	ok := ToolResult{Ok: true, ErrorCode: ErrorNone, Attempt: 1}
	if !ok.Valid() {
		t.Error("expected successful result to be valid")
	}

	mismatched := ToolResult{Ok: true, ErrorCode: ErrorRetryableServer, Attempt: 1}
	if mismatched.Valid() {
		t.Error("expected Ok=true with non-empty error code to be invalid")
	}

	zeroAttempt := ToolResult{Ok: false, ErrorCode: ErrorTimeout, Attempt: 0}
	if zeroAttempt.Valid() {
		t.Error("expected zero attempt count to be invalid")
	}

	failed := ToolResult{Ok: false, ErrorCode: ErrorNotFound, Attempt: 2}
	if !failed.Valid() {
		t.Error("expected well-formed failure result to be valid")
	}
}

func TestDecisionKindExhaustiveness(t *testing.T) {
	kinds := []DecisionKind{DecisionCallTool, DecisionStop, DecisionReplan, DecisionAskUser}
	for _, k := range kinds {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("unexpected panic for known kind %q: %v", k, r)
				}
			}()
			classify(k)
		}()
	}
}

// classify exercises the same switch-with-panic-default pattern every
// real consumer of DecisionKind must follow.
func classify(k DecisionKind) string {
	switch k {
	case DecisionCallTool:
		return "call"
	case DecisionStop:
		return "stop"
	case DecisionReplan:
		return "replan"
	case DecisionAskUser:
		return "ask"
	default:
		panic("unhandled Kind")
	}
}
