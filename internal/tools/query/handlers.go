package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lakefront-data/mcp-dataquery/internal/database"
	"github.com/lakefront-data/mcp-dataquery/internal/instrumentation"
	"github.com/lakefront-data/mcp-dataquery/internal/logging"
	"github.com/lakefront-data/mcp-dataquery/internal/response"
	"github.com/lakefront-data/mcp-dataquery/internal/server"
	"github.com/lakefront-data/mcp-dataquery/internal/tools"
)

// handleExecute runs a SQL statement and formats the result under the
// token budget.
func handleExecute(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	statement, ok := args["sql"].(string)
	if !ok || strings.TrimSpace(statement) == "" {
		return mcp.NewToolResultError("sql is required"), nil
	}

	model, _ := args["model"].(string)
	maxTokens := tools.IntArg(args, "max_tokens")
	maxRows := tools.IntArg(args, "max_rows")
	autoChunk := tools.BoolArg(args, "auto_chunk", true)

	client, profile, err := tools.GetDatabaseClient(args, sc)
	if err != nil {
		return tools.ErrorResult(ctx, sc, err, response.KindUnknownDatabase), nil
	}

	// Classify before executing so rejected statements never reach the
	// database and the span carries the verb.
	verb, err := database.ClassifyStatement(statement)
	if err != nil {
		return tools.ErrorResult(ctx, sc, err, response.KindInvalidRequest), nil
	}

	queryCtx, span := instrumentation.StartQuerySpan(ctx, verb, profile.Name,
		instrumentation.NewSpanAttributeBuilder().
			WithStatement(statement).
			WithModel(model).
			Build()...)
	defer span.End()

	start := time.Now()
	result, err := client.Query(queryCtx, statement, maxRows)
	duration := time.Since(start)

	if err != nil {
		instrumentation.SetSpanError(span, err)
		sc.Metrics().RecordQuery(ctx, profile.Name, verb, instrumentation.StatusError, duration)
		sc.Logger().Warn("query failed",
			logging.Database(profile.Name),
			logging.Verb(verb),
			logging.Duration(duration),
			logging.Err(err))
		return tools.ErrorResult(ctx, sc, err, response.KindQueryFailed), nil
	}

	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithRowCount(result.RowCount).
		Build()...)
	instrumentation.SetSpanSuccess(span)
	sc.Metrics().RecordQuery(ctx, profile.Name, verb, instrumentation.StatusSuccess, duration)
	sc.Logger().Debug("query executed",
		logging.Database(profile.Name),
		logging.Verb(verb),
		slog.Int("rows", result.RowCount),
		logging.Duration(duration))

	env := sc.Formatter().FormatWithOptions(ctx, result.Payload(), response.FormatOptions{
		Model:           model,
		MaxTokens:       maxTokens,
		DisableChunking: !autoChunk,
	})
	return tools.EnvelopeResult(ctx, sc, env, model), nil
}

// handleListDatabases lists the configured profiles. Small and static, so
// budgeting is bypassed.
func handleListDatabases(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	profiles := sc.Registry().Profiles()

	payload := map[string]interface{}{
		"databases": profiles,
		"count":     len(profiles),
	}
	if def := sc.Config().DefaultDatabase; def != "" {
		payload["default"] = def
	}

	env := sc.Formatter().FormatComplete(payload)
	return tools.EnvelopeResult(ctx, sc, env, ""), nil
}
