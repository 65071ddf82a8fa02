package query

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lakefront-data/mcp-dataquery/internal/instrumentation"
	"github.com/lakefront-data/mcp-dataquery/internal/logging"
	"github.com/lakefront-data/mcp-dataquery/internal/response"
	"github.com/lakefront-data/mcp-dataquery/internal/server"
	"github.com/lakefront-data/mcp-dataquery/internal/tools"
)

// handleListTables lists the tables and views of one database.
func handleListTables(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	client, profile, err := tools.GetDatabaseClient(args, sc)
	if err != nil {
		return tools.ErrorResult(ctx, sc, err, response.KindUnknownDatabase), nil
	}

	queryCtx, span := instrumentation.StartQuerySpan(ctx, "show", profile.Name)
	defer span.End()

	start := time.Now()
	tables, err := client.ListTables(queryCtx)
	duration := time.Since(start)

	if err != nil {
		instrumentation.SetSpanError(span, err)
		sc.Metrics().RecordQuery(ctx, profile.Name, "show", instrumentation.StatusError, duration)
		sc.Logger().Warn("list tables failed",
			logging.Database(profile.Name),
			logging.Err(err))
		return tools.ErrorResult(ctx, sc, err, response.KindQueryFailed), nil
	}

	instrumentation.SetSpanSuccess(span)
	sc.Metrics().RecordQuery(ctx, profile.Name, "show", instrumentation.StatusSuccess, duration)

	env := sc.Formatter().Format(ctx, map[string]interface{}{
		"database": profile.Name,
		"tables":   tables,
		"count":    len(tables),
	})
	return tools.EnvelopeResult(ctx, sc, env, ""), nil
}

// handleDescribeTable returns the column schema of one table.
func handleDescribeTable(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	table, ok := args["table"].(string)
	if !ok || table == "" {
		return mcp.NewToolResultError("table is required"), nil
	}

	client, profile, err := tools.GetDatabaseClient(args, sc)
	if err != nil {
		return tools.ErrorResult(ctx, sc, err, response.KindUnknownDatabase), nil
	}

	queryCtx, span := instrumentation.StartQuerySpan(ctx, "describe", profile.Name,
		instrumentation.NewSpanAttributeBuilder().
			WithTable(table).
			Build()...)
	defer span.End()

	start := time.Now()
	schema, err := client.DescribeTable(queryCtx, table)
	duration := time.Since(start)

	if err != nil {
		instrumentation.SetSpanError(span, err)
		sc.Metrics().RecordQuery(ctx, profile.Name, "describe", instrumentation.StatusError, duration)
		sc.Logger().Warn("describe table failed",
			logging.Database(profile.Name),
			logging.Table(table),
			logging.Err(err))
		return tools.ErrorResult(ctx, sc, err, response.KindUnknownTable), nil
	}

	instrumentation.SetSpanSuccess(span)
	sc.Metrics().RecordQuery(ctx, profile.Name, "describe", instrumentation.StatusSuccess, duration)

	env := sc.Formatter().Format(ctx, map[string]interface{}{
		"database": profile.Name,
		"table":    schema.Table,
		"columns":  schema.Columns,
	})
	return tools.EnvelopeResult(ctx, sc, env, ""), nil
}
