package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// echoTool reflects its single "value" argument back as output.
type echoTool struct{}

func (echoTool) Name() string { return "echo" }
func (echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"value": {"type": "string"}},
		"required": ["value"]
	}`)
}
func (echoTool) Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var parsed struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"echoed": parsed.Value})
}

// slowTool blocks until its context is cancelled.
type slowTool struct{}

func (slowTool) Name() string                 { return "slow" }
func (slowTool) Schema() json.RawMessage      { return json.RawMessage(`{"type":"object"}`) }
func (slowTool) Invoke(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// panicTool always panics.
type panicTool struct{}

func (panicTool) Name() string            { return "panic" }
func (panicTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (panicTool) Invoke(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	panic("boom")
}

func newExecutor(tools ...Tool) *Executor {
	reg := NewRegistry()
	for _, t := range tools {
		reg.Register(t)
	}
	return New(reg)
}

func TestExecuteSuccess(t *testing.T) {
	ex := newExecutor(echoTool{})
	call := contracts.ToolCall{ID: "c1", ToolName: "echo", Args: json.RawMessage(`{"value":"hi"}`), Attempt: 1}

	result := ex.Execute(context.Background(), call, time.Second)
	if !result.Ok {
		t.Fatalf("expected success, got %+v", result)
	}
	if !result.SchemaValidated {
		t.Error("expected SchemaValidated to be true")
	}
	if result.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", result.Attempt)
	}
}

func TestExecuteToolNotFound(t *testing.T) {
	ex := newExecutor()
	call := contracts.ToolCall{ID: "c1", ToolName: "missing", Attempt: 1}

	result := ex.Execute(context.Background(), call, time.Second)
	if result.Ok || result.ErrorCode != contracts.ErrorNotFound {
		t.Fatalf("expected NotFound, got %+v", result)
	}
}

func TestExecuteInvalidInput(t *testing.T) {
	ex := newExecutor(echoTool{})
	call := contracts.ToolCall{ID: "c1", ToolName: "echo", Args: json.RawMessage(`{}`), Attempt: 1}

	result := ex.Execute(context.Background(), call, time.Second)
	if result.Ok || result.ErrorCode != contracts.ErrorInvalidInput {
		t.Fatalf("expected InvalidInput, got %+v", result)
	}
	if result.SchemaValidated {
		t.Error("expected SchemaValidated to be false on validation failure")
	}
	if len(result.ErrorDetails.MissingFields) != 1 || result.ErrorDetails.MissingFields[0] != "value" {
		t.Errorf("expected missing field 'value', got %v", result.ErrorDetails.MissingFields)
	}
}

func TestExecuteTimeout(t *testing.T) {
	ex := newExecutor(slowTool{})
	call := contracts.ToolCall{ID: "c1", ToolName: "slow", Args: json.RawMessage(`{}`), Attempt: 1}

	result := ex.Execute(context.Background(), call, 20*time.Millisecond)
	if result.Ok || result.ErrorCode != contracts.ErrorTimeout {
		t.Fatalf("expected Timeout, got %+v", result)
	}
}

func TestExecuteCancellation(t *testing.T) {
	ex := newExecutor(slowTool{})
	ctx, cancel := context.WithCancel(context.Background())
	call := contracts.ToolCall{ID: "c1", ToolName: "slow", Args: json.RawMessage(`{}`), Attempt: 1}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := ex.Execute(ctx, call, time.Minute)
	if result.Ok || result.ErrorCode != contracts.ErrorCancelled {
		t.Fatalf("expected Cancelled, got %+v", result)
	}
}

func TestExecuteToolPanicMapsToToolBug(t *testing.T) {
	ex := newExecutor(panicTool{})
	call := contracts.ToolCall{ID: "c1", ToolName: "panic", Args: json.RawMessage(`{}`), Attempt: 1}

	result := ex.Execute(context.Background(), call, time.Second)
	if result.Ok || result.ErrorCode != contracts.ErrorToolBug {
		t.Fatalf("expected ToolBug, got %+v", result)
	}
}

func TestExecuteNeverRetries(t *testing.T) {
	calls := 0
	reg := NewRegistry()
	reg.Register(countingTool{count: &calls})
	ex := New(reg)

	call := contracts.ToolCall{ID: "c1", ToolName: "counting", Args: json.RawMessage(`{}`), Attempt: 3}
	result := ex.Execute(context.Background(), call, time.Second)

	if calls != 1 {
		t.Fatalf("expected exactly 1 invocation, executor must not self-retry, got %d", calls)
	}
	if result.Attempt != 3 {
		t.Errorf("expected Attempt to be passed through unchanged, got %d", result.Attempt)
	}
}

type countingTool struct {
	count *int
}

func (countingTool) Name() string            { return "counting" }
func (countingTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t countingTool) Invoke(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	*t.count++
	return nil, errAlwaysFails
}

var errAlwaysFails = errTestFailure("always fails")

type errTestFailure string

func (e errTestFailure) Error() string { return string(e) }
