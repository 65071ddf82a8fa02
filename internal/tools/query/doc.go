// Package query implements the MCP tools for executing SQL and navigating
// token-budgeted results.
//
// The package registers six tools: dataquery_execute runs a read-only
// statement, dataquery_get_chunk and dataquery_get_session_info navigate
// chunk sessions, and dataquery_list_databases, dataquery_list_tables, and
// dataquery_describe_table expose the configured profiles and their schemas.
//
// # Response Shape
//
// Every tool returns JSON. A result that fits the token budget comes back
// as-is:
//
//	{"columns": ["id", "name"], "rows": [...], "row_count": 42}
//
// An oversized result opens a chunk session and returns the first chunk:
//
//	{
//	  "chunk_number": 1,
//	  "total_chunks": 5,
//	  "session_id": "f81d4fae-7dec-11d0-a765-00a0c91e6bf6",
//	  "data": {...},
//	  "message": "Showing chunk 1 of 5. Request the remaining chunks ..."
//	}
//
// Domain failures (unknown profile, rejected statement, expired session)
// come back as error envelopes in the result text, not as MCP protocol
// errors:
//
//	{"status": "error", "error_kind": "session_not_found", "message": "..."}
//
// # Usage Examples
//
// Run a query against the sole configured database:
//
//	{"sql": "SELECT id, name FROM users LIMIT 10"}
//
// Run against a named profile with a tighter budget:
//
//	{
//	  "sql": "SELECT * FROM orders WHERE created_at > '2026-01-01'",
//	  "database": "warehouse",
//	  "max_tokens": 4000
//	}
//
// Fetch the third chunk of a session:
//
//	{"session_id": "f81d4fae-7dec-11d0-a765-00a0c91e6bf6", "chunk_number": 3}
package query
