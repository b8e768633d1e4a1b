// Package observability provides the metrics, logging, and tracing used by
// the agent loop, executor, planner, and harness.
//
// # Metrics
//
// Metrics use Prometheus and track turns by concluding decision, planner/
// critic LLM call latency and token usage, tool call counts and latency by
// error code, policy-engine retries, and harness scenario outcomes.
//
//	metrics := observability.NewMetrics()
//	metrics.TurnCompleted("call_tool")
//	metrics.RecordToolCall("read_file", "", elapsed.Seconds())
//
// # Logging
//
// Logging wraps log/slog and redacts API keys, tokens, and passwords from
// both messages and structured fields. trace_id, tool_call_id, and
// turn_index are pulled from context automatically.
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.AddTraceID(ctx, traceID)
//	logger.Info(ctx, "turn completed", "decision", "call_tool")
//
// # Tracing
//
// Tracing uses OpenTelemetry with an OTLP/gRPC exporter. One span wraps
// each turn, each LLM call, each tool call, and each harness scenario.
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "agentrun",
//	    Endpoint:    os.Getenv("OTEL_ENDPOINT"),
//	})
//	defer shutdown(context.Background())
//	ctx, span := tracer.TraceTurn(ctx, traceID, turnIndex)
//	defer span.End()
package observability
