package provider

import "context"

// MockProvider is a deterministic LLMProvider for unit tests: each call to
// Complete returns the next scripted response in order, looping on the
// last one once exhausted.
type MockProvider struct {
	name      string
	responses []string
	calls     int
	err       error
}

// NewMockProvider builds a MockProvider that returns responses in order.
func NewMockProvider(name string, responses ...string) *MockProvider {
	return &MockProvider{name: name, responses: responses}
}

// WithError makes every subsequent Complete call fail with err.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.err = err
	return m
}

// Calls reports how many times Complete has been invoked.
func (m *MockProvider) Calls() int { return m.calls }

// Name returns the configured provider name.
func (m *MockProvider) Name() string { return m.name }

// Models returns a single placeholder mock model.
func (m *MockProvider) Models() []Model {
	return []Model{{ID: "mock-model", Name: "Mock Model", ContextSize: 100000}}
}

// SupportsTools always reports true for the mock.
func (m *MockProvider) SupportsTools() bool { return true }

// Complete returns the next scripted response as a single-chunk stream.
func (m *MockProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	text := ""
	if len(m.responses) > 0 {
		idx := m.calls - 1
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		text = m.responses[idx]
	}

	out := make(chan *CompletionChunk, 2)
	out <- &CompletionChunk{Text: text}
	out <- &CompletionChunk{Done: true, InputTokens: 10, OutputTokens: len(text)}
	close(out)
	return out, nil
}
