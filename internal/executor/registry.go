// Package executor resolves a tool name to its implementation, validates
// arguments against the tool's JSON Schema, invokes it under a per-call
// timeout, and reports the outcome as a ToolResult. It never retries on
// its own — retries are the Policy Engine's decision, reissued as a new
// Execute call with an incremented attempt.
package executor

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is a registered, invocable capability.
type Tool interface {
	Name() string
	// Schema returns the tool's JSON Schema for its arguments, as a
	// compact JSON document.
	Schema() json.RawMessage
}

// Registry is a read-only-after-init, concurrency-safe lookup from tool
// name to Tool, shared across independent runs. It also owns the
// compiled-schema cache used for argument validation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	schemaCache sync.Map // tool name -> *jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.schemaCache.Delete(t.Name())
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

// compiledSchema returns the compiled JSON Schema for t, compiling and
// caching it on first use. A tool's schema is fixed once registered, so
// the cache only needs invalidating when Register replaces the tool.
func (r *Registry) compiledSchema(t Tool) (*jsonschema.Schema, error) {
	if cached, ok := r.schemaCache.Load(t.Name()); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiler := jsonschema.NewCompiler()
	resourceName := "tool:" + t.Name()
	if err := compiler.AddResource(resourceName, bytes.NewReader(t.Schema())); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, err
	}

	actual, _ := r.schemaCache.LoadOrStore(t.Name(), schema)
	return actual.(*jsonschema.Schema), nil
}

// ValidateArgs validates args against t's schema, returning the names of
// any missing required fields on failure (best-effort, used by the
// Policy Engine's ask_user routing) alongside the validation error.
func (r *Registry) ValidateArgs(t Tool, args json.RawMessage) (missingFields []string, err error) {
	schema, err := r.compiledSchema(t)
	if err != nil {
		return nil, err
	}

	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return nil, err
	}

	if verr := schema.Validate(v); verr != nil {
		return extractMissingFields(verr), verr
	}
	return nil, nil
}

var missingPropertyPattern = regexp.MustCompile(`'([^']+)' is missing`)

// extractMissingFields walks a jsonschema ValidationError tree looking
// for "missing properties" causes and collects the field names it names.
func extractMissingFields(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil
	}
	var fields []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		for _, m := range missingPropertyPattern.FindAllStringSubmatch(e.Message, -1) {
			fields = append(fields, m[1])
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	return fields
}
