// Package events provides the event sinks and emitter the agent loop uses
// to publish its progress: run lifecycle, turn boundaries, planner/critic
// calls, and tool execution, as a single AgentEvent stream that metrics,
// tracing, the harness, and any attached UI all subscribe to independently
// instead of being threaded through every component.
package events

import (
	"context"
	"sync/atomic"

	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// Sink receives events during a run. Implementations must be safe to call
// from multiple goroutines and must not block the loop for long.
type Sink interface {
	Emit(ctx context.Context, e contracts.AgentEvent)
}

// NopSink discards all events silently.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(ctx context.Context, e contracts.AgentEvent) {}

// ChanSink sends events to a channel, dropping rather than blocking when
// the channel is full.
type ChanSink struct {
	ch chan<- contracts.AgentEvent
}

// NewChanSink creates a sink that sends to ch. ch should be buffered.
func NewChanSink(ch chan<- contracts.AgentEvent) *ChanSink {
	return &ChanSink{ch: ch}
}

// Emit sends e to the channel, dropping it if the channel is full or ctx
// is already done.
func (s *ChanSink) Emit(ctx context.Context, e contracts.AgentEvent) {
	select {
	case s.ch <- e:
	case <-ctx.Done():
	default:
	}
}

// MultiSink fans an event out to every wrapped sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink that dispatches to every non-nil sink given.
func NewMultiSink(sinks ...Sink) *MultiSink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

// Emit dispatches e to every wrapped sink in order.
func (s *MultiSink) Emit(ctx context.Context, e contracts.AgentEvent) {
	for _, sink := range s.sinks {
		sink.Emit(ctx, e)
	}
}

// CallbackSink wraps a function as a Sink, for inline handling in tests
// and the scenario harness.
type CallbackSink struct {
	fn func(ctx context.Context, e contracts.AgentEvent)
}

// NewCallbackSink creates a sink that calls fn for every event.
func NewCallbackSink(fn func(ctx context.Context, e contracts.AgentEvent)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

// Emit calls the wrapped function.
func (s *CallbackSink) Emit(ctx context.Context, e contracts.AgentEvent) {
	if s.fn != nil {
		s.fn(ctx, e)
	}
}

// isDroppable reports whether an event type may be dropped under
// backpressure. Lifecycle and tool-completion events never are.
func isDroppable(t contracts.AgentEventType) bool {
	switch t {
	case contracts.EventStateUpdated:
		return true
	default:
		return false
	}
}

// BackpressureConfig sizes a BackpressureSink's two lanes.
type BackpressureConfig struct {
	// HighPriBuffer sizes the lane for non-droppable events. Default 32.
	HighPriBuffer int
	// LowPriBuffer sizes the lane for droppable events. Default 256.
	LowPriBuffer int
}

// DefaultBackpressureConfig returns sensible defaults.
func DefaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{HighPriBuffer: 32, LowPriBuffer: 256}
}

// BackpressureSink gives high-priority events (run/turn/tool lifecycle) a
// lane that blocks rather than drops, and low-priority events (state
// digest updates) a lane that drops under load, so a slow listener can
// never stall the agent loop on events that matter for correctness.
type BackpressureSink struct {
	highPri chan contracts.AgentEvent
	lowPri  chan contracts.AgentEvent
	merged  chan contracts.AgentEvent
	dropped uint64
	closed  uint32
}

// NewBackpressureSink creates a backpressure-aware sink and starts its
// merge loop. The returned channel carries the merged, priority-ordered
// stream and must be drained by the caller.
func NewBackpressureSink(cfg BackpressureConfig) (*BackpressureSink, <-chan contracts.AgentEvent) {
	if cfg.HighPriBuffer <= 0 {
		cfg.HighPriBuffer = 32
	}
	if cfg.LowPriBuffer <= 0 {
		cfg.LowPriBuffer = 256
	}
	s := &BackpressureSink{
		highPri: make(chan contracts.AgentEvent, cfg.HighPriBuffer),
		lowPri:  make(chan contracts.AgentEvent, cfg.LowPriBuffer),
		merged:  make(chan contracts.AgentEvent, cfg.HighPriBuffer),
	}
	go s.mergeLoop()
	return s, s.merged
}

func (s *BackpressureSink) mergeLoop() {
	defer close(s.merged)
	for {
		select {
		case e, ok := <-s.highPri:
			if ok {
				s.merged <- e
				continue
			}
			for e := range s.lowPri {
				s.merged <- e
			}
			return
		default:
		}

		select {
		case e, ok := <-s.highPri:
			if ok {
				s.merged <- e
			} else {
				for e := range s.lowPri {
					s.merged <- e
				}
				return
			}
		case e, ok := <-s.lowPri:
			if ok {
				s.merged <- e
			}
		}
	}
}

// Emit routes e to its lane: blocking for high-priority events, dropping
// for low-priority ones when the buffer is full. No-op once closed.
func (s *BackpressureSink) Emit(ctx context.Context, e contracts.AgentEvent) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return
	}
	if isDroppable(e.Type) {
		select {
		case s.lowPri <- e:
		default:
			atomic.AddUint64(&s.dropped, 1)
		}
		return
	}
	select {
	case s.highPri <- e:
	case <-ctx.Done():
		select {
		case s.highPri <- e:
		default:
			atomic.AddUint64(&s.dropped, 1)
		}
	}
}

// DroppedCount returns the number of low-priority events dropped so far.
func (s *BackpressureSink) DroppedCount() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// Close stops the sink and closes the merged output channel. Safe to
// call more than once.
func (s *BackpressureSink) Close() {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return
	}
	close(s.highPri)
	close(s.lowPri)
}

// MetricsSink projects the event stream onto the run's Prometheus
// counters and histograms, so a run can be observed without the loop,
// executor, or planner holding a *observability.Metrics reference of
// their own.
type MetricsSink struct {
	metrics *observability.Metrics
}

// NewMetricsSink creates a sink that records m for every relevant event.
// A nil m makes Emit a no-op, so callers can wire this unconditionally
// even when metrics are disabled.
func NewMetricsSink(m *observability.Metrics) *MetricsSink {
	return &MetricsSink{metrics: m}
}

// Emit records e against the wrapped Metrics, translating the event
// stream's terms into the counters Metrics exposes.
func (s *MetricsSink) Emit(ctx context.Context, e contracts.AgentEvent) {
	if s.metrics == nil {
		return
	}
	switch e.Type {
	case contracts.EventRunStarted:
		s.metrics.RunStarted()
	case contracts.EventRunFinished, contracts.EventRunError, contracts.EventRunCancelled, contracts.EventRunTimedOut:
		s.metrics.RunFinished()
	case contracts.EventTurnFinished:
		decision := "unknown"
		if e.Decision != nil {
			decision = string(e.Decision.Kind)
		}
		s.metrics.TurnCompleted(decision)
	case contracts.EventToolFinished:
		if e.Tool != nil {
			errorCode := ""
			if !e.Tool.Success {
				errorCode = "error"
			}
			s.metrics.RecordToolCall(e.Tool.Name, errorCode, e.Tool.Elapsed.Seconds())
		}
	case contracts.EventToolRetried:
		if e.Tool != nil {
			errorCode := ""
			if e.Error != nil {
				errorCode = e.Error.Message
			}
			s.metrics.RecordRetry(e.Tool.Name, errorCode)
		}
	}
}
