package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// Invoker is implemented by concrete tools to perform their actual work.
// Kept separate from Tool (schema/name) so reference tools in
// internal/tools can be simple structs satisfying both.
type Invoker interface {
	Tool
	Invoke(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// Executor resolves, validates, and runs tool calls. It does not retry;
// every call to Execute runs the given attempt exactly once.
type Executor struct {
	registry *Registry
}

// New creates an Executor backed by registry.
func New(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs one tool call under timeout, returning a ToolResult. attempt
// must be supplied by the caller (the Policy Engine) since the Executor
// has no memory of prior attempts for this call.
func (e *Executor) Execute(ctx context.Context, call contracts.ToolCall, timeout time.Duration) contracts.ToolResult {
	start := time.Now()

	tool, ok := e.registry.Get(call.ToolName)
	if !ok {
		return contracts.ToolResult{
			ToolCallID: call.ID,
			Ok:         false,
			ErrorCode:  contracts.ErrorNotFound,
			ErrorDetails: &contracts.ErrorDetails{
				Message: fmt.Sprintf("tool not found: %s", call.ToolName),
			},
			Attempt: call.Attempt,
			Latency: time.Since(start),
		}
	}

	invoker, ok := tool.(Invoker)
	if !ok {
		return contracts.ToolResult{
			ToolCallID: call.ID,
			Ok:         false,
			ErrorCode:  contracts.ErrorToolBug,
			ErrorDetails: &contracts.ErrorDetails{
				Message: fmt.Sprintf("tool %s is registered without an invoke implementation", call.ToolName),
			},
			Attempt: call.Attempt,
			Latency: time.Since(start),
		}
	}

	if missing, verr := e.registry.ValidateArgs(tool, call.Args); verr != nil {
		return contracts.ToolResult{
			ToolCallID:      call.ID,
			Ok:              false,
			ErrorCode:       contracts.ErrorInvalidInput,
			SchemaValidated: false,
			ErrorDetails: &contracts.ErrorDetails{
				Message:       verr.Error(),
				MissingFields: missing,
			},
			Attempt: call.Attempt,
			Latency: time.Since(start),
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	output, err := e.runWithCancellation(callCtx, invoker, call.Args)
	latency := time.Since(start)

	if err != nil {
		return contracts.ToolResult{
			ToolCallID:      call.ID,
			Ok:              false,
			ErrorCode:       classifyError(callCtx, err),
			SchemaValidated: true,
			ErrorDetails:    &contracts.ErrorDetails{Message: err.Error()},
			Attempt:         call.Attempt,
			Latency:         latency,
		}
	}

	return contracts.ToolResult{
		ToolCallID:      call.ID,
		Ok:              true,
		SchemaValidated: true,
		Output:          output,
		Attempt:         call.Attempt,
		Latency:         latency,
	}
}

// runWithCancellation invokes the tool on its own goroutine and races it
// against ctx, so a misbehaving tool that ignores cancellation can't hang
// the caller — the result is discarded (not awaited) if ctx wins.
func (e *Executor) runWithCancellation(ctx context.Context, invoker Invoker, args json.RawMessage) (json.RawMessage, error) {
	type outcome struct {
		output json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				select {
				case done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}:
				default:
				}
			}
		}()
		output, err := invoker.Invoke(ctx, args)
		select {
		case done <- outcome{output: output, err: err}:
		default:
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		return o.output, o.err
	}
}

// classifyError maps a raw error (including ctx.Err()) to a ToolErrorCode.
func classifyError(ctx context.Context, err error) contracts.ToolErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return contracts.ErrorTimeout
	}
	if errors.Is(err, context.Canceled) {
		return contracts.ErrorCancelled
	}
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return contracts.ErrorTimeout
		}
		return contracts.ErrorCancelled
	}
	return contracts.ErrorToolBug
}
