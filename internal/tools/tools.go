package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lakefront-data/mcp-dataquery/internal/database"
	"github.com/lakefront-data/mcp-dataquery/internal/response"
	"github.com/lakefront-data/mcp-dataquery/internal/server"
)

// ToolHandler is the signature for MCP tool handler functions that take ServerContext.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// ResolveDatabase returns the profile name a tool call targets. An empty or
// missing database argument falls back to the server's configured default;
// an empty default defers to the registry, which resolves a sole configured
// profile or the one named "default".
func ResolveDatabase(args map[string]any, sc *server.ServerContext) string {
	if name, ok := args["database"].(string); ok && name != "" {
		return name
	}
	return sc.Config().DefaultDatabase
}

// GetDatabaseClient resolves the database argument to a profile and returns
// the profile's client, opening it on first use.
//
// Tool handlers should use this function instead of reading the registry
// directly so every tool applies the same default-profile resolution.
//
// Returns (client, profile, nil) on success. Failures return an error
// suitable for ErrorResult; unknown profile names carry
// database.ErrUnknownProfile in the chain.
func GetDatabaseClient(args map[string]any, sc *server.ServerContext) (database.Client, database.Profile, error) {
	name := ResolveDatabase(args, sc)

	profile, err := sc.Registry().Profile(name)
	if err != nil {
		return nil, database.Profile{}, err
	}

	client, err := sc.Registry().Client(profile.Name)
	if err != nil {
		return nil, profile, err
	}
	return client, profile, nil
}

// ErrorResult renders err as an error envelope in a text result. Sentinel
// errors anywhere in err's chain map to their wire kinds; anything else
// takes the fallback kind.
//
// Domain failures cross the tool boundary this way rather than as Go errors
// so agents receive a structured error_kind they can branch on. The result
// is not marked as a protocol error: the tool call itself succeeded.
func ErrorResult(ctx context.Context, sc *server.ServerContext, err error, fallback response.ErrorKind) *mcp.CallToolResult {
	f := sc.Formatter()
	env := f.ErrorFrom(err, fallback)

	sc.Metrics().RecordResponse(ctx, env.Outcome(), 0)

	return mcp.NewToolResultText(f.Render(env))
}

// EnvelopeResult renders a formatted envelope as a text result and records
// the response outcome with the rendered size in tokens. An empty model
// counts under the formatter's configured default.
func EnvelopeResult(ctx context.Context, sc *server.ServerContext, env *response.Envelope, model string) *mcp.CallToolResult {
	rendered := sc.Formatter().Render(env)

	if model == "" {
		model = sc.Formatter().Config().Model
	}
	sc.Metrics().RecordResponse(ctx, env.Outcome(), sc.Estimator().CountTokens(rendered, model))

	return mcp.NewToolResultText(rendered)
}
