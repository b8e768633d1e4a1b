// Package provider implements the LLM backend abstraction the Planner and
// Critic issue completion requests against, along with concrete adapters
// for Anthropic's Claude and OpenAI's GPT APIs and an in-memory mock used
// by tests and the scenario harness.
package provider

import (
	"context"
	"encoding/json"
)

// LLMProvider defines the interface for Large Language Model backends.
//
// Implementations must be safe for concurrent use: the Agent Loop may have
// a Planner and a Critic call Complete against the same provider instance
// from different goroutines within a single turn.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response. The
	// channel is closed once a CompletionChunk with Done set (or an
	// Error) has been delivered.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name, e.g. "anthropic" or "openai".
	Name() string

	// Models returns the models this provider exposes.
	Models() []Model

	// SupportsTools reports whether the provider can be given tool
	// definitions and return tool-call requests.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for an LLM completion request.
type CompletionRequest struct {
	// Model selects which model to use. If empty, the provider's default
	// is used.
	Model string `json:"model"`

	// System is the system prompt.
	System string `json:"system,omitempty"`

	// Messages is the conversation history in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools lists the tool definitions the model may call.
	Tools []ToolSpec `json:"tools,omitempty"`

	// MaxTokens caps the length of the generated response. 0 means the
	// provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls sampling randomness, when the provider
	// supports it.
	Temperature float64 `json:"temperature,omitempty"`
}

// CompletionMessage represents a single message in a conversation. Role is
// one of "user", "assistant", "tool", "system".
type CompletionMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []RequestedCall `json:"tool_calls,omitempty"`
}

// RequestedCall is a tool invocation the model is asking the caller to run.
type RequestedCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// ToolSpec describes a callable tool to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// CompletionChunk represents a single chunk of a streaming LLM response.
type CompletionChunk struct {
	Text         string `json:"text,omitempty"`
	Done         bool   `json:"done,omitempty"`
	Error        error  `json:"-"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Model describes an available model and its capabilities.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// Collect drains a completion stream into the concatenated text of every
// chunk, returning the first error encountered (if any) and the final
// token counts reported on the Done chunk.
func Collect(chunks <-chan *CompletionChunk) (text string, inputTokens, outputTokens int, err error) {
	for chunk := range chunks {
		if chunk.Error != nil {
			return text, inputTokens, outputTokens, chunk.Error
		}
		text += chunk.Text
		if chunk.Done {
			inputTokens = chunk.InputTokens
			outputTokens = chunk.OutputTokens
		}
	}
	return text, inputTokens, outputTokens, nil
}
