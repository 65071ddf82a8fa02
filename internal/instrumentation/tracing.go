package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the mcp-dataquery package.
const TracerName = "github.com/lakefront-data/mcp-dataquery"

// DefaultStatementAttrLength bounds the db.statement span attribute.
const DefaultStatementAttrLength = 256

// Span attribute keys for query and chunk session operations.
const (
	// SpanAttrTool is the MCP tool name.
	SpanAttrTool = "mcp.tool"

	// SpanAttrDatabase is the database profile name.
	SpanAttrDatabase = "db.profile"

	// SpanAttrDatabaseType is the classified profile type (lower cardinality).
	SpanAttrDatabaseType = "db.profile_type"

	// SpanAttrVerb is the classified statement verb (select, explain, ...).
	SpanAttrVerb = "db.operation"

	// SpanAttrStatement is a truncated prefix of the SQL statement.
	SpanAttrStatement = "db.statement"

	// SpanAttrTable is the table a schema operation targets.
	SpanAttrTable = "db.table"

	// SpanAttrRowCount is the number of rows a query returned.
	SpanAttrRowCount = "db.row_count"

	// SpanAttrSessionID is the chunk session identifier.
	SpanAttrSessionID = "mcp.session_id"

	// SpanAttrChunkNumber is the 1-based chunk number being served.
	SpanAttrChunkNumber = "mcp.chunk_number"

	// SpanAttrChunkTotal is the total chunk count of a session.
	SpanAttrChunkTotal = "mcp.chunk_total"

	// SpanAttrOutcome is the response envelope outcome (complete, chunked, error).
	SpanAttrOutcome = "mcp.outcome"

	// SpanAttrModel is the tokenizer model used for estimation.
	SpanAttrModel = "mcp.model"

	// SpanAttrTokens is the estimated token count of a response.
	SpanAttrTokens = "mcp.tokens"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming and cardinality controls.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 10),
	}
}

// WithTool adds the MCP tool name attribute.
func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrTool, tool))
	return b
}

// WithDatabase adds database attributes with cardinality control.
// Adds both the full profile name and classified type.
func (b *SpanAttributeBuilder) WithDatabase(database string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrDatabase, database),
		attribute.String(SpanAttrDatabaseType, ClassifyProfileName(database)),
	)
	return b
}

// WithDatabaseType adds only the classified profile type (for lower cardinality).
func (b *SpanAttributeBuilder) WithDatabaseType(database string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrDatabaseType, ClassifyProfileName(database)),
	)
	return b
}

// WithVerb adds the classified statement verb attribute.
func (b *SpanAttributeBuilder) WithVerb(verb string) *SpanAttributeBuilder {
	if verb != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrVerb, verb))
	}
	return b
}

// WithStatement adds a truncated statement prefix attribute.
func (b *SpanAttributeBuilder) WithStatement(stmt string) *SpanAttributeBuilder {
	if stmt != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrStatement, TruncateStatement(stmt, DefaultStatementAttrLength)))
	}
	return b
}

// WithTable adds the target table attribute.
func (b *SpanAttributeBuilder) WithTable(table string) *SpanAttributeBuilder {
	if table != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrTable, table))
	}
	return b
}

// WithRowCount adds the returned row count attribute.
func (b *SpanAttributeBuilder) WithRowCount(rows int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int(SpanAttrRowCount, rows))
	return b
}

// WithSession adds the chunk session identifier attribute.
func (b *SpanAttributeBuilder) WithSession(sessionID string) *SpanAttributeBuilder {
	if sessionID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrSessionID, sessionID))
	}
	return b
}

// WithChunk adds chunk position attributes.
func (b *SpanAttributeBuilder) WithChunk(number, total int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.Int(SpanAttrChunkNumber, number),
		attribute.Int(SpanAttrChunkTotal, total),
	)
	return b
}

// WithOutcome adds the response outcome attribute.
func (b *SpanAttributeBuilder) WithOutcome(outcome string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrOutcome, outcome))
	return b
}

// WithModel adds the tokenizer model attribute.
func (b *SpanAttributeBuilder) WithModel(model string) *SpanAttributeBuilder {
	if model != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrModel, model))
	}
	return b
}

// WithTokens adds the estimated token count attribute.
func (b *SpanAttributeBuilder) WithTokens(tokens int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int(SpanAttrTokens, tokens))
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span with the given name and attributes.
// Returns the context with the span and the span itself.
// The caller is responsible for ending the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartToolSpan starts a span for an MCP tool invocation.
// Automatically adds the tool name and sets the server span kind.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrTool, toolName))
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "tool."+toolName,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartQuerySpan starts a span for a database statement execution.
// Includes verb and database attributes with cardinality control.
func StartQuerySpan(ctx context.Context, verb, database string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+3)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrVerb, verb),
		attribute.String(SpanAttrDatabase, database),
		attribute.String(SpanAttrDatabaseType, ClassifyProfileName(database)),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "query."+verb,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartSessionSpan starts a span for a chunk session operation such as
// chunk retrieval or session inspection.
func StartSessionSpan(ctx context.Context, operation, sessionID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	if sessionID != "" {
		allAttrs = append(allAttrs, attribute.String(SpanAttrSessionID, sessionID))
	}
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "session."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the current span in context.
// Returns empty string if no valid span is present.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}

// SpanContextString returns a human-readable trace context string.
// Format: "trace_id=X span_id=Y" or empty string if no valid context.
func SpanContextString(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return "trace_id=" + span.SpanContext().TraceID().String() +
		" span_id=" + span.SpanContext().SpanID().String()
}
