package query

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lakefront-data/mcp-dataquery/internal/instrumentation"
	"github.com/lakefront-data/mcp-dataquery/internal/response"
	"github.com/lakefront-data/mcp-dataquery/internal/server"
	"github.com/lakefront-data/mcp-dataquery/internal/tools"
)

// handleGetChunk fetches one chunk of a live session.
func handleGetChunk(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	chunkNumber := tools.IntArg(args, "chunk_number")
	if chunkNumber < 1 {
		return mcp.NewToolResultError("chunk_number is required and must be at least 1"), nil
	}

	sessionCtx, span := instrumentation.StartSessionSpan(ctx, "get_chunk", sessionID)
	defer span.End()

	chunk, err := sc.Chunking().GetChunk(sessionCtx, sessionID, chunkNumber)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return tools.ErrorResult(ctx, sc, err, response.KindInternalError), nil
	}

	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithChunk(chunk.ChunkNumber, chunk.TotalChunks).
		Build()...)
	instrumentation.SetSpanSuccess(span)

	env := sc.Formatter().FormatComplete(chunk)
	return tools.EnvelopeResult(ctx, sc, env, ""), nil
}

// handleGetSessionInfo reports chunk count and expiry for a live session.
func handleGetSessionInfo(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	sessionCtx, span := instrumentation.StartSessionSpan(ctx, "info", sessionID)
	defer span.End()

	info, err := sc.Chunking().GetSessionInfo(sessionCtx, sessionID)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return tools.ErrorResult(ctx, sc, err, response.KindSessionNotFound), nil
	}

	instrumentation.SetSpanSuccess(span)

	env := sc.Formatter().FormatComplete(map[string]interface{}{
		"session_id":         sessionID,
		"total_chunks":       info.TotalChunks,
		"created_at":         info.CreatedAt,
		"expires_in_seconds": info.ExpiresInSeconds,
	})
	return tools.EnvelopeResult(ctx, sc, env, ""), nil
}
