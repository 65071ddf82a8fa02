// Package tools provides shared utilities and types for MCP tool
// implementations: the handler signature, database resolution, envelope
// rendering, and the telemetry wrapper applied to every registered tool.
package tools
