package events

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/pkg/contracts"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestChanSinkDropsWhenFull(t *testing.T) {
	ch := make(chan contracts.AgentEvent, 1)
	s := NewChanSink(ch)
	ctx := context.Background()

	s.Emit(ctx, contracts.AgentEvent{Sequence: 1})
	s.Emit(ctx, contracts.AgentEvent{Sequence: 2}) // dropped, buffer full

	if len(ch) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(ch))
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	var gotA, gotB []contracts.AgentEvent
	a := NewCallbackSink(func(ctx context.Context, e contracts.AgentEvent) { gotA = append(gotA, e) })
	b := NewCallbackSink(func(ctx context.Context, e contracts.AgentEvent) { gotB = append(gotB, e) })
	m := NewMultiSink(a, nil, b)

	m.Emit(context.Background(), contracts.AgentEvent{Sequence: 1})

	if len(gotA) != 1 || len(gotB) != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d and %d", len(gotA), len(gotB))
	}
}

func TestBackpressureSinkPrioritizesHighPri(t *testing.T) {
	sink, out := NewBackpressureSink(BackpressureConfig{HighPriBuffer: 4, LowPriBuffer: 1})
	ctx := context.Background()

	sink.Emit(ctx, contracts.AgentEvent{Type: contracts.EventStateUpdated, Sequence: 1})
	sink.Emit(ctx, contracts.AgentEvent{Type: contracts.EventStateUpdated, Sequence: 2}) // dropped
	sink.Emit(ctx, contracts.AgentEvent{Type: contracts.EventToolStarted, Sequence: 3})
	sink.Close()

	var got []contracts.AgentEvent
	for e := range out {
		got = append(got, e)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 surviving events, got %d", len(got))
	}
	if sink.DroppedCount() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", sink.DroppedCount())
	}
}

func TestBackpressureSinkCloseIsIdempotent(t *testing.T) {
	sink, out := NewBackpressureSink(DefaultBackpressureConfig())
	sink.Close()
	sink.Close() // must not panic

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected closed output channel")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for merged channel to close")
	}
}

func TestBackpressureSinkNoOpAfterClose(t *testing.T) {
	sink, _ := NewBackpressureSink(DefaultBackpressureConfig())
	sink.Close()
	sink.Emit(context.Background(), contracts.AgentEvent{Type: contracts.EventRunStarted})
	if sink.DroppedCount() != 0 {
		t.Fatalf("expected closed sink to silently discard, got %d dropped", sink.DroppedCount())
	}
}

func TestMetricsSinkRecordsToolAndRetryCounters(t *testing.T) {
	m := observability.NewMetrics()
	s := NewMetricsSink(m)
	ctx := context.Background()

	s.Emit(ctx, contracts.AgentEvent{
		Type: contracts.EventToolFinished,
		Tool: &contracts.ToolEventPayload{CallID: "call-1", Name: "read_file", Success: true, Elapsed: 10 * time.Millisecond},
	})
	s.Emit(ctx, contracts.AgentEvent{
		Type: contracts.EventToolRetried,
		Tool: &contracts.ToolEventPayload{CallID: "call-2", Name: "write_file"},
		Error: &contracts.ErrorEventPayload{Message: "timeout", Retriable: true},
	})
	s.Emit(ctx, contracts.AgentEvent{
		Type:     contracts.EventTurnFinished,
		Decision: &contracts.Decision{Kind: contracts.DecisionStop},
	})

	if count := testutil.CollectAndCount(m.ToolCallCounter); count != 1 {
		t.Errorf("expected 1 tool call counter series, got %d", count)
	}
	if count := testutil.CollectAndCount(m.RetryCounter); count != 1 {
		t.Errorf("expected 1 retry counter series, got %d", count)
	}
	if count := testutil.CollectAndCount(m.TurnCounter); count != 1 {
		t.Errorf("expected 1 turn counter series, got %d", count)
	}
}

func TestMetricsSinkNilMetricsIsNoOp(t *testing.T) {
	s := NewMetricsSink(nil)
	s.Emit(context.Background(), contracts.AgentEvent{Type: contracts.EventRunStarted}) // must not panic
}
