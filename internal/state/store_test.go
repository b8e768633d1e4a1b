package state

import (
	"context"
	"testing"

	"github.com/haasonsaas/agentcore/pkg/contracts"
)

func TestMemoryStoreSaveLoadDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key to return ok=false, got ok=%v err=%v", ok, err)
	}

	want := contracts.AgentState{TraceID: "trace-1", TurnIndex: 3}
	if err := store.Save(ctx, "trace-1", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := store.Load(ctx, "trace-1")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.TurnIndex != 3 {
		t.Errorf("TurnIndex = %d, want 3", got.TurnIndex)
	}

	if err := store.Delete(ctx, "trace-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Load(ctx, "trace-1"); ok {
		t.Error("expected key to be gone after Delete")
	}

	// deleting a missing key is not an error
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete on missing key returned error: %v", err)
	}
}

func TestMemoryStoreConcurrentDistinctKeys(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	done := make(chan struct{})

	for i := 0; i < 2; i++ {
		traceID := "trace-" + string(rune('a'+i))
		go func(id string) {
			for j := 0; j < 100; j++ {
				_ = store.Save(ctx, id, contracts.AgentState{TraceID: id, TurnIndex: j})
			}
			done <- struct{}{}
		}(traceID)
	}
	<-done
	<-done
}
