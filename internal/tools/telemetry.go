package tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lakefront-data/mcp-dataquery/internal/database"
	"github.com/lakefront-data/mcp-dataquery/internal/instrumentation"
	"github.com/lakefront-data/mcp-dataquery/internal/server"
)

// WrapWithTelemetry wraps a tool handler with tracing, metrics, and audit
// logging. The wrapper automatically captures:
//   - A server-kind span covering the invocation
//   - Tool invocation timing and success/error status
//   - Database, statement, and session information from request arguments
//   - OpenTelemetry trace context for correlation
//
// If no instrumentation provider is available or it is disabled, the handler
// is called bare.
func WrapWithTelemetry(
	toolName string,
	handler ToolHandler,
	sc *server.ServerContext,
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		provider := sc.InstrumentationProvider()
		if provider == nil || !provider.Enabled() {
			return handler(ctx, request, sc)
		}

		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx)

		extractInvocationInfo(invocation, request.GetArguments())

		result, err := handler(ctx, request, sc)

		switch {
		case err != nil:
			invocation.CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			// MCP tool errors are returned in the result, not as Go errors.
			invocation.Complete(false, nil)
			if len(result.Content) > 0 {
				if textContent, ok := result.Content[0].(mcp.TextContent); ok {
					invocation.Error = textContent.Text
				}
			}
			msg := invocation.Error
			if msg == "" {
				msg = "tool returned an error result"
			}
			instrumentation.SetSpanError(span, errors.New(msg))
		default:
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, invocation.Status(), invocation.Duration)
		provider.AuditLogger().LogToolInvocation(ctx, invocation)

		return result, err
	}
}

// extractInvocationInfo extracts database, statement, table, and session
// information from tool request arguments for audit logging. Values record
// what the caller sent; handlers log resolved profiles separately.
func extractInvocationInfo(invocation *instrumentation.ToolInvocation, args map[string]any) {
	if db, ok := args["database"].(string); ok && db != "" {
		invocation.WithDatabase(db)
	}

	if stmt, ok := args["sql"].(string); ok && stmt != "" {
		verb := ""
		if v, err := database.ClassifyStatement(stmt); err == nil {
			verb = v
		}
		invocation.WithStatement(verb, stmt)
	}

	if table, ok := args["table"].(string); ok && table != "" {
		invocation.WithTable(table)
	}

	if sessionID, ok := args["session_id"].(string); ok && sessionID != "" {
		invocation.WithSession(sessionID)
	}
}
