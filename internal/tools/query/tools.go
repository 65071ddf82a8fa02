package query

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/lakefront-data/mcp-dataquery/internal/server"
	"github.com/lakefront-data/mcp-dataquery/internal/tools"
)

// RegisterQueryTools registers all query, schema, and chunk session tools
// with the MCP server.
func RegisterQueryTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// The database parameter depends on the configured profiles
	databaseParam := tools.AddDatabaseParam(sc)

	// dataquery_execute tool
	executeOpts := []mcp.ToolOption{
		mcp.WithDescription(`Execute a read-only SQL statement against a configured database.

Responses are token-budgeted: results that fit the budget come back complete,
larger results come back as chunk 1 of a session. Fetch the remaining chunks
with dataquery_get_chunk using the returned session_id.

Only read statements are accepted (SELECT, VALUES, EXPLAIN, SHOW, DESCRIBE).
Write statements are rejected before reaching the database unless the target
profile explicitly disables read-only mode.`),
	}
	executeOpts = append(executeOpts, databaseParam...)
	executeOpts = append(executeOpts,
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("SQL statement to execute"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Token budget for this response (optional, defaults to the configured budget)"),
		),
		mcp.WithString("model",
			mcp.Description("Tokenizer model for size estimation (optional, e.g. 'gpt-4')"),
		),
		mcp.WithBoolean("auto_chunk",
			mcp.Description("Split oversized results into a chunk session (default: true). When false, oversized results are returned whole."),
		),
		mcp.WithNumber("max_rows",
			mcp.Description("Maximum number of rows to return (optional, capped by the profile's row limit)"),
		),
	)
	executeTool := mcp.NewTool("dataquery_execute", executeOpts...)

	s.AddTool(executeTool, tools.WrapWithTelemetry("dataquery_execute", handleExecute, sc))

	// dataquery_get_chunk tool
	getChunkTool := mcp.NewTool("dataquery_get_chunk",
		mcp.WithDescription(`Fetch one chunk of a previously chunked result.

Chunks are numbered from 1. The session_id comes from the first chunk returned
by dataquery_execute. Sessions expire after the configured TTL; an expired or
unknown session returns a session_not_found error.`),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier returned with the first chunk"),
		),
		mcp.WithNumber("chunk_number",
			mcp.Required(),
			mcp.Description("1-based chunk number to fetch"),
		),
	)

	s.AddTool(getChunkTool, tools.WrapWithTelemetry("dataquery_get_chunk", handleGetChunk, sc))

	// dataquery_get_session_info tool
	getSessionInfoTool := mcp.NewTool("dataquery_get_session_info",
		mcp.WithDescription("Inspect a chunk session: total chunks, creation time, and seconds until expiry."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier to inspect"),
		),
	)

	s.AddTool(getSessionInfoTool, tools.WrapWithTelemetry("dataquery_get_session_info", handleGetSessionInfo, sc))

	// dataquery_list_databases tool
	listDatabasesTool := mcp.NewTool("dataquery_list_databases",
		mcp.WithDescription("List the configured database profiles. Connection strings are never included."),
	)

	s.AddTool(listDatabasesTool, tools.WrapWithTelemetry("dataquery_list_databases", handleListDatabases, sc))

	// dataquery_list_tables tool
	listTablesOpts := []mcp.ToolOption{
		mcp.WithDescription("List the tables and views of a database, sorted by name."),
	}
	listTablesOpts = append(listTablesOpts, databaseParam...)
	listTablesTool := mcp.NewTool("dataquery_list_tables", listTablesOpts...)

	s.AddTool(listTablesTool, tools.WrapWithTelemetry("dataquery_list_tables", handleListTables, sc))

	// dataquery_describe_table tool
	describeTableOpts := []mcp.ToolOption{
		mcp.WithDescription("Describe the column schema of one table: names, types, nullability, and primary key membership."),
	}
	describeTableOpts = append(describeTableOpts, databaseParam...)
	describeTableOpts = append(describeTableOpts,
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name to describe"),
		),
	)
	describeTableTool := mcp.NewTool("dataquery_describe_table", describeTableOpts...)

	s.AddTool(describeTableTool, tools.WrapWithTelemetry("dataquery_describe_table", handleDescribeTable, sc))

	return nil
}
