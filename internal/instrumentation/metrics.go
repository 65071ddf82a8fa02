package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrMethod       = "method"
	attrPath         = "path"
	attrStatus       = "status"
	attrTool         = "tool"
	attrDatabase     = "database"
	attrDatabaseType = "database_type"
	attrVerb         = "verb"
	attrOutcome      = "outcome"
	attrReason       = "reason"
	attrEncoding     = "encoding"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Tool invocation metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Query metrics
	queriesTotal  metric.Int64Counter
	queryDuration metric.Float64Histogram

	// Response shaping metrics
	responsesTotal metric.Int64Counter
	responseTokens metric.Int64Histogram

	// Chunk session metrics
	sessionsCreatedTotal metric.Int64Counter
	sessionsRemovedTotal metric.Int64Counter
	chunksServedTotal    metric.Int64Counter
	chunksPerSession     metric.Int64Histogram
	activeSessions       metric.Int64Gauge

	// Tokenizer cache metrics
	tokenizerCacheHitsTotal      metric.Int64Counter
	tokenizerCacheMissesTotal    metric.Int64Counter
	tokenizerCacheEvictionsTotal metric.Int64Counter

	// Configuration
	// detailedLabels controls whether the per-profile database label is
	// included in query metrics alongside the classified database_type
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether per-profile labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// Tool Invocation Metrics
	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_dataquery_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_dataquery_tool_duration_seconds",
		metric.WithDescription("MCP tool invocation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_tool_duration_seconds histogram: %w", err)
	}

	// Query Metrics
	m.queriesTotal, err = meter.Int64Counter(
		"mcp_dataquery_queries_total",
		metric.WithDescription("Total number of SQL statements executed"),
		metric.WithUnit("{statement}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_queries_total counter: %w", err)
	}

	m.queryDuration, err = meter.Float64Histogram(
		"mcp_dataquery_query_duration_seconds",
		metric.WithDescription("SQL statement duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_query_duration_seconds histogram: %w", err)
	}

	// Response Shaping Metrics
	m.responsesTotal, err = meter.Int64Counter(
		"mcp_dataquery_responses_total",
		metric.WithDescription("Total number of formatted responses by outcome"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_responses_total counter: %w", err)
	}

	m.responseTokens, err = meter.Int64Histogram(
		"mcp_dataquery_response_tokens",
		metric.WithDescription("Estimated token size of formatted responses"),
		metric.WithUnit("{token}"),
		metric.WithExplicitBucketBoundaries(256, 1024, 4096, 9000, 16384, 32768, 65536, 131072),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_response_tokens histogram: %w", err)
	}

	// Chunk Session Metrics
	m.sessionsCreatedTotal, err = meter.Int64Counter(
		"mcp_dataquery_chunk_sessions_created_total",
		metric.WithDescription("Total number of chunk sessions created"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_chunk_sessions_created_total counter: %w", err)
	}

	m.sessionsRemovedTotal, err = meter.Int64Counter(
		"mcp_dataquery_chunk_sessions_removed_total",
		metric.WithDescription("Total number of chunk sessions removed by reason"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_chunk_sessions_removed_total counter: %w", err)
	}

	m.chunksServedTotal, err = meter.Int64Counter(
		"mcp_dataquery_chunks_served_total",
		metric.WithDescription("Total number of chunks served from sessions"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_chunks_served_total counter: %w", err)
	}

	m.chunksPerSession, err = meter.Int64Histogram(
		"mcp_dataquery_chunks_per_session",
		metric.WithDescription("Number of chunks in each created session"),
		metric.WithUnit("{chunk}"),
		metric.WithExplicitBucketBoundaries(2, 4, 8, 16, 32, 64, 128),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_chunks_per_session histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64Gauge(
		"mcp_dataquery_active_chunk_sessions",
		metric.WithDescription("Current number of live chunk sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_active_chunk_sessions gauge: %w", err)
	}

	// Tokenizer Cache Metrics
	m.tokenizerCacheHitsTotal, err = meter.Int64Counter(
		"mcp_dataquery_tokenizer_cache_hits_total",
		metric.WithDescription("Total number of tokenizer cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_tokenizer_cache_hits_total counter: %w", err)
	}

	m.tokenizerCacheMissesTotal, err = meter.Int64Counter(
		"mcp_dataquery_tokenizer_cache_misses_total",
		metric.WithDescription("Total number of tokenizer cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_tokenizer_cache_misses_total counter: %w", err)
	}

	m.tokenizerCacheEvictionsTotal, err = meter.Int64Counter(
		"mcp_dataquery_tokenizer_cache_evictions_total",
		metric.WithDescription("Total number of tokenizer cache evictions"),
		metric.WithUnit("{eviction}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_dataquery_tokenizer_cache_evictions_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolInvocation records an MCP tool invocation with its status and duration.
// Status should be one of: "success", "error".
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordQuery records an executed SQL statement with its classified verb,
// target database, status, and duration.
//
// CARDINALITY NOTE: The classified database_type label is always recorded.
// The full profile name is only added when detailedLabels is enabled, for
// deployments whose config templates many profiles.
func (m *Metrics) RecordQuery(ctx context.Context, database, verb, status string, duration time.Duration) {
	if m.queriesTotal == nil || m.queryDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrDatabaseType, ClassifyProfileName(database)),
		attribute.String(attrVerb, verb),
		attribute.String(attrStatus, status),
	}

	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrDatabase, database))
	}

	m.queriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordResponse records a formatted response with its outcome and estimated
// token size. Outcome should be one of: "complete", "chunked", "error".
// A non-positive token estimate records only the outcome counter.
func (m *Metrics) RecordResponse(ctx context.Context, outcome string, tokens int) {
	if m.responsesTotal == nil || m.responseTokens == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOutcome, outcome),
	}

	m.responsesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if tokens > 0 {
		m.responseTokens.Record(ctx, int64(tokens), metric.WithAttributes(attrs...))
	}
}

// RecordSessionCreated records the creation of a chunk session.
// Implements the chunking service's metrics recorder interface.
func (m *Metrics) RecordSessionCreated(ctx context.Context, totalChunks int) {
	if m.sessionsCreatedTotal == nil || m.chunksPerSession == nil {
		return // Instrumentation not initialized
	}

	m.sessionsCreatedTotal.Add(ctx, 1)
	m.chunksPerSession.Record(ctx, int64(totalChunks))
}

// RecordChunkServed records one chunk served from a session.
// Implements the chunking service's metrics recorder interface.
func (m *Metrics) RecordChunkServed(ctx context.Context) {
	if m.chunksServedTotal == nil {
		return // Instrumentation not initialized
	}

	m.chunksServedTotal.Add(ctx, 1)
}

// RecordSessionRemoved records a chunk session removal with its reason.
// Reason should be one of: "expired", "evicted".
// Implements the chunking service's metrics recorder interface.
func (m *Metrics) RecordSessionRemoved(ctx context.Context, reason string) {
	if m.sessionsRemovedTotal == nil {
		return // Instrumentation not initialized
	}

	m.sessionsRemovedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrReason, reason),
	))
}

// SetActiveSessions records the current chunk session table size.
// Implements the chunking service's metrics recorder interface.
func (m *Metrics) SetActiveSessions(ctx context.Context, count int) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Record(ctx, int64(count))
}

// RecordCacheHit records a tokenizer cache hit.
// Implements the token estimator's metrics recorder interface.
func (m *Metrics) RecordCacheHit(encoding string) {
	if m.tokenizerCacheHitsTotal == nil {
		return // Instrumentation not initialized
	}

	m.tokenizerCacheHitsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(attrEncoding, encoding),
	))
}

// RecordCacheMiss records a tokenizer cache miss.
// Implements the token estimator's metrics recorder interface.
func (m *Metrics) RecordCacheMiss(encoding string) {
	if m.tokenizerCacheMissesTotal == nil {
		return // Instrumentation not initialized
	}

	m.tokenizerCacheMissesTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(attrEncoding, encoding),
	))
}

// RecordCacheEviction records the eviction of a cached tokenizer.
// Implements the token estimator's metrics recorder interface.
func (m *Metrics) RecordCacheEviction(encoding string) {
	if m.tokenizerCacheEvictionsTotal == nil {
		return // Instrumentation not initialized
	}

	m.tokenizerCacheEvictionsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(attrEncoding, encoding),
	))
}
