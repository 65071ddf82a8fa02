package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// AuditStatementLength bounds the statement prefix kept in audit records.
const AuditStatementLength = 512

// ToolInvocation captures a single MCP tool call for audit logging.
// It accumulates context as the call progresses and is completed once
// the handler returns.
type ToolInvocation struct {
	// Tool is the MCP tool name.
	Tool string

	// StartTime is when the invocation began.
	StartTime time.Time

	// Duration is set by Complete.
	Duration time.Duration

	// Success indicates whether the invocation succeeded.
	Success bool

	// Error holds the failure message, empty on success.
	Error string

	// Database is the profile name a query targeted, if any.
	Database string

	// Verb is the classified statement verb (select, explain, ...).
	Verb string

	// Statement is a truncated prefix of the executed SQL.
	Statement string

	// Table is the table a schema operation targeted, if any.
	Table string

	// SessionID is the chunk session involved, if any.
	SessionID string

	// ChunkNumber and ChunkTotal describe the chunk served, if any.
	ChunkNumber int
	ChunkTotal  int

	// TraceID and SpanID correlate the record with distributed traces.
	TraceID string
	SpanID  string
}

// NewToolInvocation starts tracking a tool invocation.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithDatabase records the database profile the invocation targeted.
func (ti *ToolInvocation) WithDatabase(database string) *ToolInvocation {
	ti.Database = database
	return ti
}

// WithStatement records the classified verb and a truncated statement prefix.
func (ti *ToolInvocation) WithStatement(verb, statement string) *ToolInvocation {
	ti.Verb = verb
	ti.Statement = TruncateStatement(statement, AuditStatementLength)
	return ti
}

// WithTable records the table a schema operation targeted.
func (ti *ToolInvocation) WithTable(table string) *ToolInvocation {
	ti.Table = table
	return ti
}

// WithSession records the chunk session the invocation touched.
func (ti *ToolInvocation) WithSession(sessionID string) *ToolInvocation {
	ti.SessionID = sessionID
	return ti
}

// WithChunk records the chunk position served.
func (ti *ToolInvocation) WithChunk(number, total int) *ToolInvocation {
	ti.ChunkNumber = number
	ti.ChunkTotal = total
	return ti
}

// WithSpanContext captures the trace and span IDs from the context, if a
// valid span is present.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		ti.TraceID = sc.TraceID().String()
		ti.SpanID = sc.SpanID().String()
	}
	return ti
}

// CompleteSuccess marks the invocation as succeeded.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// Complete finalizes the invocation with an explicit outcome.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// DatabaseType returns the classified database profile type for
// cardinality-safe logging.
func (ti *ToolInvocation) DatabaseType() string {
	return ClassifyProfileName(ti.Database)
}

// Status returns "success" or "error".
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns cardinality-controlled attributes suitable for regular
// operational logs.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.String("database_type", ti.DatabaseType()),
		slog.String("verb", ti.Verb),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// LogAuditAttrs returns full-detail attributes for the audit trail,
// including values deliberately excluded from LogAttrs for cardinality.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("database", ti.Database),
		slog.String("statement", ti.Statement),
		slog.String("trace_id", ti.TraceID),
		slog.String("span_id", ti.SpanID),
	}
	if ti.Table != "" {
		attrs = append(attrs, slog.String("table", ti.Table))
	}
	if ti.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", ti.SessionID))
	}
	if ti.ChunkTotal > 0 {
		attrs = append(attrs,
			slog.Int("chunk_number", ti.ChunkNumber),
			slog.Int("chunk_total", ti.ChunkTotal),
		)
	}
	return attrs
}

// AuditLogger writes structured audit records for tool invocations.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an AuditLogger. A nil logger selects the
// process-wide default.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger}
}

// LogToolInvocation emits the audit record for a completed invocation.
// Failed invocations log at warn level.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || al.logger == nil || ti == nil {
		return
	}

	attrs := append(ti.LogAttrs(), ti.LogAuditAttrs()...)
	level := slog.LevelInfo
	if !ti.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "tool invocation", attrs...)
}

// TraceIDFromContext returns the active trace ID, or empty string when the
// context carries no valid span.
func TraceIDFromContext(ctx context.Context) string {
	return GetTraceID(ctx)
}
