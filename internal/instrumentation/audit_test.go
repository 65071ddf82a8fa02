package instrumentation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestToolInvocation_NewAndComplete(t *testing.T) {
	ti := NewToolInvocation("dataquery_execute")

	// Verify initial state
	if ti.Tool != "dataquery_execute" {
		t.Errorf("Tool = %q, want %q", ti.Tool, "dataquery_execute")
	}
	if ti.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	// Complete the invocation
	time.Sleep(1 * time.Millisecond) // Ensure some duration
	ti.CompleteSuccess()

	if !ti.Success {
		t.Error("Success should be true")
	}
	if ti.Duration == 0 {
		t.Error("Duration should be non-zero")
	}
	if ti.Error != "" {
		t.Errorf("Error should be empty, got %q", ti.Error)
	}
}

func TestToolInvocation_CompleteWithError(t *testing.T) {
	ti := NewToolInvocation("dataquery_execute")
	err := errors.New("no such table: orders")

	ti.CompleteWithError(err)

	if ti.Success {
		t.Error("Success should be false")
	}
	if ti.Error != "no such table: orders" {
		t.Errorf("Error = %q, want %q", ti.Error, "no such table: orders")
	}
}

func TestToolInvocation_WithDatabase(t *testing.T) {
	ti := NewToolInvocation("dataquery_execute")
	ti.WithDatabase("prod-orders")

	if ti.Database != "prod-orders" {
		t.Errorf("Database = %q, want %q", ti.Database, "prod-orders")
	}
}

func TestToolInvocation_WithStatement(t *testing.T) {
	ti := NewToolInvocation("dataquery_execute")
	ti.WithStatement("select", "SELECT id, total FROM orders")

	if ti.Verb != "select" {
		t.Errorf("Verb = %q, want %q", ti.Verb, "select")
	}
	if ti.Statement != "SELECT id, total FROM orders" {
		t.Errorf("Statement = %q, want %q", ti.Statement, "SELECT id, total FROM orders")
	}
}

func TestToolInvocation_WithStatement_Truncates(t *testing.T) {
	long := "SELECT " + strings.Repeat("x", AuditStatementLength)
	ti := NewToolInvocation("dataquery_execute")
	ti.WithStatement("select", long)

	if len(ti.Statement) != AuditStatementLength+3 {
		t.Errorf("Statement length = %d, want %d", len(ti.Statement), AuditStatementLength+3)
	}
	if !strings.HasSuffix(ti.Statement, "...") {
		t.Errorf("Statement should end with truncation marker, got %q", ti.Statement)
	}
}

func TestToolInvocation_WithTable(t *testing.T) {
	ti := NewToolInvocation("dataquery_describe_table")
	ti.WithTable("orders")

	if ti.Table != "orders" {
		t.Errorf("Table = %q, want %q", ti.Table, "orders")
	}
}

func TestToolInvocation_WithSession(t *testing.T) {
	ti := NewToolInvocation("dataquery_get_chunk")
	ti.WithSession("1b4e28ba-2fa1-11d2-883f-0016d3cca427")

	if ti.SessionID != "1b4e28ba-2fa1-11d2-883f-0016d3cca427" {
		t.Errorf("SessionID = %q, want %q", ti.SessionID, "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	}
}

func TestToolInvocation_WithChunk(t *testing.T) {
	ti := NewToolInvocation("dataquery_get_chunk")
	ti.WithChunk(2, 5)

	if ti.ChunkNumber != 2 {
		t.Errorf("ChunkNumber = %d, want 2", ti.ChunkNumber)
	}
	if ti.ChunkTotal != 5 {
		t.Errorf("ChunkTotal = %d, want 5", ti.ChunkTotal)
	}
}

func TestToolInvocation_DatabaseType(t *testing.T) {
	tests := []struct {
		database     string
		expectedType string
	}{
		{"", "default"},
		{"prod-orders", "production"},
		{"staging-test", "staging"},
		{"dev-scratch", "development"},
		{"orders-replica", "replica"},
		{"analytics", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.database, func(t *testing.T) {
			ti := NewToolInvocation("test")
			ti.Database = tt.database

			if dt := ti.DatabaseType(); dt != tt.expectedType {
				t.Errorf("DatabaseType() = %q, want %q", dt, tt.expectedType)
			}
		})
	}
}

func TestToolInvocation_Status(t *testing.T) {
	ti := NewToolInvocation("test")

	ti.Success = true
	if status := ti.Status(); status != "success" {
		t.Errorf("Status() = %q, want %q", status, "success")
	}

	ti.Success = false
	if status := ti.Status(); status != "error" {
		t.Errorf("Status() = %q, want %q", status, "error")
	}
}

func TestToolInvocation_LogAttrs(t *testing.T) {
	ti := NewToolInvocation("dataquery_execute")
	ti.WithDatabase("prod-orders").
		WithStatement("select", "SELECT * FROM orders").
		CompleteSuccess()

	attrs := ti.LogAttrs()

	// Verify we have the expected attributes
	attrMap := make(map[string]slog.Attr)
	for _, attr := range attrs {
		attrMap[attr.Key] = attr
	}

	// Check required attributes
	requiredKeys := []string{"tool", "database_type", "verb", "duration", "success"}
	for _, key := range requiredKeys {
		if _, ok := attrMap[key]; !ok {
			t.Errorf("Missing required attribute: %s", key)
		}
	}

	// Check cardinality-controlled values
	if dt := attrMap["database_type"].Value.String(); dt != "production" {
		t.Errorf("database_type = %q, want %q", dt, "production")
	}
	if verb := attrMap["verb"].Value.String(); verb != "select" {
		t.Errorf("verb = %q, want %q", verb, "select")
	}

	// Full profile names and statements belong in the audit attrs only
	if _, ok := attrMap["database"]; ok {
		t.Error("database should not appear in LogAttrs")
	}
	if _, ok := attrMap["statement"]; ok {
		t.Error("statement should not appear in LogAttrs")
	}
}

func TestToolInvocation_LogAttrs_IncludesError(t *testing.T) {
	ti := NewToolInvocation("dataquery_execute")
	ti.CompleteWithError(errors.New("query failed"))

	attrMap := make(map[string]slog.Attr)
	for _, attr := range ti.LogAttrs() {
		attrMap[attr.Key] = attr
	}

	if errVal := attrMap["error"].Value.String(); errVal != "query failed" {
		t.Errorf("error = %q, want %q", errVal, "query failed")
	}
}

func TestToolInvocation_LogAuditAttrs(t *testing.T) {
	ti := NewToolInvocation("dataquery_get_chunk")
	ti.WithDatabase("prod-orders").
		WithStatement("select", "SELECT * FROM orders").
		WithSession("1b4e28ba-2fa1-11d2-883f-0016d3cca427").
		WithChunk(2, 5).
		CompleteSuccess()
	ti.TraceID = "abc123def456"
	ti.SpanID = "span789"

	attrs := ti.LogAuditAttrs()

	// Verify we have the expected attributes
	attrMap := make(map[string]slog.Attr)
	for _, attr := range attrs {
		attrMap[attr.Key] = attr
	}

	// Check that full values are present (not cardinality-controlled)
	if database := attrMap["database"].Value.String(); database != "prod-orders" {
		t.Errorf("database = %q, want %q", database, "prod-orders")
	}
	if stmt := attrMap["statement"].Value.String(); stmt != "SELECT * FROM orders" {
		t.Errorf("statement = %q, want %q", stmt, "SELECT * FROM orders")
	}
	if sessionID := attrMap["session_id"].Value.String(); sessionID != "1b4e28ba-2fa1-11d2-883f-0016d3cca427" {
		t.Errorf("session_id = %q, want %q", sessionID, "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	}
	if n := attrMap["chunk_number"].Value.Int64(); n != 2 {
		t.Errorf("chunk_number = %d, want 2", n)
	}
	if total := attrMap["chunk_total"].Value.Int64(); total != 5 {
		t.Errorf("chunk_total = %d, want 5", total)
	}

	// Check trace context
	if traceID := attrMap["trace_id"].Value.String(); traceID != "abc123def456" {
		t.Errorf("trace_id = %q, want %q", traceID, "abc123def456")
	}
	if spanID := attrMap["span_id"].Value.String(); spanID != "span789" {
		t.Errorf("span_id = %q, want %q", spanID, "span789")
	}
}

func TestToolInvocation_LogAuditAttrs_OmitsUnsetFields(t *testing.T) {
	ti := NewToolInvocation("dataquery_list_databases")
	ti.CompleteSuccess()

	attrMap := make(map[string]slog.Attr)
	for _, attr := range ti.LogAuditAttrs() {
		attrMap[attr.Key] = attr
	}

	for _, key := range []string{"table", "session_id", "chunk_number", "chunk_total"} {
		if _, ok := attrMap[key]; ok {
			t.Errorf("Attribute %s should be omitted when unset", key)
		}
	}
}

func TestToolInvocation_MethodChaining(t *testing.T) {
	ti := NewToolInvocation("dataquery_execute").
		WithDatabase("staging-orders").
		WithStatement("select", "SELECT count(*) FROM orders").
		WithTable("orders").
		CompleteSuccess()

	if ti.Tool != "dataquery_execute" {
		t.Errorf("Tool = %q, want %q", ti.Tool, "dataquery_execute")
	}
	if ti.Database != "staging-orders" {
		t.Errorf("Database = %q, want %q", ti.Database, "staging-orders")
	}
	if ti.Table != "orders" {
		t.Errorf("Table = %q, want %q", ti.Table, "orders")
	}
	if !ti.Success {
		t.Error("Success should be true")
	}
}

func TestAuditLogger_New(t *testing.T) {
	// Test with nil logger (should use default)
	al := NewAuditLogger(nil)
	if al.logger == nil {
		t.Error("logger should not be nil when created with nil")
	}

	// Test with custom logger
	logger := slog.Default()
	al = NewAuditLogger(logger)
	if al.logger != logger {
		t.Error("logger should be the provided logger")
	}
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ti := NewToolInvocation("dataquery_execute").
		WithDatabase("prod-orders").
		WithStatement("select", "SELECT * FROM orders").
		CompleteSuccess()
	al.LogToolInvocation(context.Background(), ti)

	out := buf.String()
	if !strings.Contains(out, `"level":"INFO"`) {
		t.Errorf("Expected INFO level record, got %q", out)
	}
	if !strings.Contains(out, `"tool":"dataquery_execute"`) {
		t.Errorf("Expected tool attribute, got %q", out)
	}
	if !strings.Contains(out, `"database":"prod-orders"`) {
		t.Errorf("Expected database attribute, got %q", out)
	}
}

func TestAuditLogger_LogToolInvocation_Failure(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ti := NewToolInvocation("dataquery_execute").
		CompleteWithError(errors.New("read-only profile"))
	al.LogToolInvocation(context.Background(), ti)

	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) {
		t.Errorf("Expected WARN level record, got %q", out)
	}
	if !strings.Contains(out, `"error":"read-only profile"`) {
		t.Errorf("Expected error attribute, got %q", out)
	}
}

func TestAuditLogger_LogToolInvocation_NilSafe(t *testing.T) {
	var al *AuditLogger

	// Should not panic on nil receiver or nil invocation
	al.LogToolInvocation(context.Background(), NewToolInvocation("test"))
	NewAuditLogger(nil).LogToolInvocation(context.Background(), nil)
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	ctx := context.Background()
	traceID := TraceIDFromContext(ctx)

	if traceID != "" {
		t.Errorf("TraceIDFromContext with no span = %q, want empty string", traceID)
	}
}

func TestToolInvocation_WithSpanContext_NoSpan(t *testing.T) {
	ctx := context.Background()
	ti := NewToolInvocation("test").WithSpanContext(ctx)

	if ti.TraceID != "" {
		t.Errorf("TraceID = %q, want empty string", ti.TraceID)
	}
	if ti.SpanID != "" {
		t.Errorf("SpanID = %q, want empty string", ti.SpanID)
	}
}

func TestToolInvocation_Complete_NilError(t *testing.T) {
	ti := NewToolInvocation("test")
	ti.Complete(true, nil)

	if ti.Error != "" {
		t.Errorf("Error = %q, want empty string", ti.Error)
	}
}
