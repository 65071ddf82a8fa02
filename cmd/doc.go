// Package cmd provides the command-line interface for mcp-dataquery.
//
// This package implements a Cobra-based CLI with multiple subcommands:
//   - serve: Starts the MCP server (default behavior when no subcommand is provided)
//   - version: Displays the application version
//   - self-update: Updates the binary to the latest version from GitHub releases
//
// The CLI runs the serve command when no subcommand is specified, so MCP
// clients can point at the bare executable.
//
// Command Structure:
//
//	mcp-dataquery [flags]                 # Starts the MCP server (default)
//	mcp-dataquery serve [flags]           # Explicitly starts the MCP server
//	mcp-dataquery version                 # Shows version information
//	mcp-dataquery self-update             # Updates to latest release
//	mcp-dataquery help [command]          # Shows help information
//
// The serve command supports multiple transport options:
//   - stdio: Standard input/output (default) - for command-line integration
//   - sse: Server-Sent Events over HTTP - for web-based clients
//   - streamable-http: Streamable HTTP transport - for HTTP-based integration
//
// Transport Configuration Examples:
//
//	mcp-dataquery serve --database main=./app.db
//	mcp-dataquery serve --config /etc/mcp-dataquery/config.yaml --transport sse --http-addr :8080
//	mcp-dataquery serve --transport streamable-http --http-addr :9000 --http-endpoint /mcp
//
// Database profiles come from the YAML config file or repeated --database
// name=dsn flags. The serve command also exposes the response engine's
// tuning: token budget, tokenizer model, chunk session TTL, and session
// table capacity. Every flag has an MCP_DATAQUERY_* environment fallback.
package cmd
