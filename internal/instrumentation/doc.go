// Package instrumentation provides OpenTelemetry instrumentation for the
// mcp-dataquery server.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, tool invocations, queries,
//     response shaping, and chunk sessions
//   - Distributed tracing for tool handling and statement execution
//   - Prometheus metrics export via /metrics endpoint
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Tool Invocation Metrics:
//   - mcp_dataquery_tool_invocations_total: Counter of tool calls by tool and status
//   - mcp_dataquery_tool_duration_seconds: Histogram of tool call durations
//
// Query Metrics:
//   - mcp_dataquery_queries_total: Counter of SQL statements by database_type, verb, status
//   - mcp_dataquery_query_duration_seconds: Histogram of statement durations
//
// Response Shaping Metrics:
//   - mcp_dataquery_responses_total: Counter of tool responses by outcome (complete, chunked, error)
//   - mcp_dataquery_response_tokens: Histogram of estimated response token counts
//
// Chunk Session Metrics:
//   - mcp_dataquery_chunk_sessions_created_total: Counter of sessions opened
//   - mcp_dataquery_chunk_sessions_removed_total: Counter of sessions removed by reason
//   - mcp_dataquery_chunks_served_total: Counter of chunk retrievals
//   - mcp_dataquery_chunks_per_session: Histogram of chunk counts per session
//   - mcp_dataquery_active_chunk_sessions: Gauge of live sessions
//
// Tokenizer Cache Metrics:
//   - mcp_dataquery_tokenizer_cache_hits_total / _misses_total / _evictions_total
//
// # Cardinality Considerations
//
// Query metrics label by the classified database_type, not the raw profile
// name. The per-profile database label is attached only when detailed
// labels are switched on, for deployments where the operator knows the
// profile count is small. Statements never become metric labels; spans and
// audit records carry a truncated statement prefix instead.
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - MCP tool invocations
//   - SQL statement execution
//   - Chunk session retrieval and inspection
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: false)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, none, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: mcp-dataquery)
//   - METRICS_DETAILED_LABELS: Attach per-profile labels to query metrics (default: false)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "mcp-dataquery",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record a statement execution
//	recorder.RecordQuery(ctx, "reporting", "select", "success", time.Since(start))
//
//	// Record the shaped response
//	recorder.RecordResponse(ctx, instrumentation.OutcomeChunked, 9000)
package instrumentation
