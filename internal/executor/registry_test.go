package executor

import (
	"encoding/json"
	"testing"
)

func TestRegistryRegisterGet(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})

	tool, ok := r.Get("echo")
	if !ok || tool.Name() != "echo" {
		t.Fatalf("expected to find echo tool, got %v %v", tool, ok)
	}
	if _, ok := r.Get("nope"); ok {
		t.Error("expected missing tool to return ok=false")
	}
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})
	r.Register(slowTool{})

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}

func TestValidateArgsCachesCompiledSchema(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})

	if _, err := r.ValidateArgs(echoTool{}, json.RawMessage(`{"value":"a"}`)); err != nil {
		t.Fatalf("expected valid args to pass, got %v", err)
	}

	if _, ok := r.schemaCache.Load("echo"); !ok {
		t.Error("expected schema to be cached after first validation")
	}

	// second call must reuse the cached schema without error
	if _, err := r.ValidateArgs(echoTool{}, json.RawMessage(`{"value":"b"}`)); err != nil {
		t.Fatalf("expected second validation to pass, got %v", err)
	}
}

func TestRegistryReplaceInvalidatesSchemaCache(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})
	_, _ = r.ValidateArgs(echoTool{}, json.RawMessage(`{"value":"a"}`))

	r.Register(echoTool{}) // re-register same tool
	if _, ok := r.schemaCache.Load("echo"); ok {
		t.Error("expected re-registration to evict the cached schema")
	}
}
