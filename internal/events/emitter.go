package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// Emitter builds and dispatches AgentEvents with monotonic sequencing for
// one run. Loop components call its typed methods rather than
// constructing contracts.AgentEvent by hand.
type Emitter struct {
	traceID   string
	sequence  uint64
	turnIndex int
	sink      Sink
}

// NewEmitter creates an emitter for traceID. A nil sink becomes a NopSink.
func NewEmitter(traceID string, sink Sink) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	return &Emitter{traceID: traceID, sink: sink}
}

// SetTurn updates the turn index attached to subsequent events.
func (e *Emitter) SetTurn(turnIndex int) {
	e.turnIndex = turnIndex
}

func (e *Emitter) nextSeq() uint64 {
	return atomic.AddUint64(&e.sequence, 1)
}

func (e *Emitter) base(t contracts.AgentEventType) contracts.AgentEvent {
	return contracts.AgentEvent{
		Sequence:  e.nextSeq(),
		Type:      t,
		Time:      time.Now(),
		TraceID:   e.traceID,
		TurnIndex: e.turnIndex,
	}
}

func (e *Emitter) emit(ctx context.Context, ev contracts.AgentEvent) contracts.AgentEvent {
	e.sink.Emit(ctx, ev)
	return ev
}

// RunStarted emits run.started.
func (e *Emitter) RunStarted(ctx context.Context) contracts.AgentEvent {
	return e.emit(ctx, e.base(contracts.EventRunStarted))
}

// RunFinished emits run.finished with the accumulated run stats.
func (e *Emitter) RunFinished(ctx context.Context, stats *contracts.RunStats) contracts.AgentEvent {
	ev := e.base(contracts.EventRunFinished)
	ev.Stats = stats
	return e.emit(ctx, ev)
}

// RunError emits run.error for a non-recoverable loop failure.
func (e *Emitter) RunError(ctx context.Context, message string, retriable bool) contracts.AgentEvent {
	ev := e.base(contracts.EventRunError)
	ev.Error = &contracts.ErrorEventPayload{Message: message, Retriable: retriable}
	return e.emit(ctx, ev)
}

// RunCancelled emits run.cancelled when the caller's context is cancelled.
func (e *Emitter) RunCancelled(ctx context.Context) contracts.AgentEvent {
	ev := e.base(contracts.EventRunCancelled)
	ev.Error = &contracts.ErrorEventPayload{Message: "run cancelled", Retriable: false}
	return e.emit(ctx, ev)
}

// RunTimedOut emits run.timed_out when the wall-clock budget is exceeded.
func (e *Emitter) RunTimedOut(ctx context.Context, limit time.Duration) contracts.AgentEvent {
	ev := e.base(contracts.EventRunTimedOut)
	ev.Error = &contracts.ErrorEventPayload{Message: "run exceeded wall clock budget", Retriable: false}
	return e.emit(ctx, ev)
}

// TurnStarted emits turn.started.
func (e *Emitter) TurnStarted(ctx context.Context) contracts.AgentEvent {
	return e.emit(ctx, e.base(contracts.EventTurnStarted))
}

// TurnFinished emits turn.finished carrying the turn's final decision.
func (e *Emitter) TurnFinished(ctx context.Context, d contracts.Decision) contracts.AgentEvent {
	ev := e.base(contracts.EventTurnFinished)
	ev.Decision = &d
	return e.emit(ctx, ev)
}

// PlannerCalled emits planner.called.
func (e *Emitter) PlannerCalled(ctx context.Context, d contracts.Decision) contracts.AgentEvent {
	ev := e.base(contracts.EventPlannerCalled)
	ev.Decision = &d
	return e.emit(ctx, ev)
}

// CriticCalled emits critic.called.
func (e *Emitter) CriticCalled(ctx context.Context, d contracts.Decision) contracts.AgentEvent {
	ev := e.base(contracts.EventCriticCalled)
	ev.Decision = &d
	return e.emit(ctx, ev)
}

// ToolStarted emits tool.started.
func (e *Emitter) ToolStarted(ctx context.Context, callID, name string) contracts.AgentEvent {
	ev := e.base(contracts.EventToolStarted)
	ev.Tool = &contracts.ToolEventPayload{CallID: callID, Name: name}
	return e.emit(ctx, ev)
}

// ToolFinished emits tool.finished.
func (e *Emitter) ToolFinished(ctx context.Context, callID, name string, success bool, elapsed time.Duration) contracts.AgentEvent {
	ev := e.base(contracts.EventToolFinished)
	ev.Tool = &contracts.ToolEventPayload{CallID: callID, Name: name, Success: success, Elapsed: elapsed}
	return e.emit(ctx, ev)
}

// ToolRetried emits tool.retried when the policy engine reissues a call.
func (e *Emitter) ToolRetried(ctx context.Context, callID, name string, attempt int) contracts.AgentEvent {
	ev := e.base(contracts.EventToolRetried)
	ev.Tool = &contracts.ToolEventPayload{CallID: callID, Name: name}
	return e.emit(ctx, ev)
}

// StateUpdated emits state.updated, a low-priority event droppable under
// backpressure since it is informational only.
func (e *Emitter) StateUpdated(ctx context.Context) contracts.AgentEvent {
	return e.emit(ctx, e.base(contracts.EventStateUpdated))
}

// StatsCollector accumulates RunStats by observing the event stream,
// rather than having every component thread counters through by hand.
type StatsCollector struct {
	stats      contracts.RunStats
	turnStart  time.Time
	toolStarts map[string]time.Time
}

// NewStatsCollector creates a collector with its start time set to now.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		stats:      contracts.RunStats{StartedAt: time.Now()},
		toolStarts: make(map[string]time.Time),
	}
}

// OnEvent folds one event into the accumulated stats.
func (c *StatsCollector) OnEvent(e contracts.AgentEvent) {
	switch e.Type {
	case contracts.EventRunStarted:
		c.stats.StartedAt = e.Time
	case contracts.EventTurnStarted:
		c.stats.Turns++
		c.turnStart = e.Time
	case contracts.EventPlannerCalled:
		c.stats.PlannerCalls++
	case contracts.EventToolStarted:
		c.stats.ToolCalls++
		if e.Tool != nil {
			c.toolStarts[e.Tool.CallID] = e.Time
		}
	case contracts.EventToolFinished:
		if e.Tool != nil {
			if start, ok := c.toolStarts[e.Tool.CallID]; ok {
				c.stats.ToolWallTime += e.Time.Sub(start)
				delete(c.toolStarts, e.Tool.CallID)
			}
			if !e.Tool.Success {
				c.stats.ToolCallFailures++
			}
		}
	case contracts.EventToolRetried:
		c.stats.Retries++
	case contracts.EventRunCancelled:
		c.stats.Cancelled = true
	case contracts.EventRunTimedOut:
		c.stats.TimedOut = true
	case contracts.EventRunFinished:
		c.stats.FinishedAt = e.Time
	}
}

// Stats returns a copy of the accumulated statistics, stamping FinishedAt
// if the run hasn't emitted run.finished yet.
func (c *StatsCollector) Stats() contracts.RunStats {
	s := c.stats
	if s.FinishedAt.IsZero() {
		s.FinishedAt = time.Now()
	}
	return s
}
