package tools

import (
	"fmt"

	mcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/lakefront-data/mcp-dataquery/internal/server"
)

// AddDatabaseParam returns the tool option for the shared database
// parameter. The description names the server's configured default profile
// so agents know when the argument can be omitted.
//
// Usage in tool registration:
//
//	opts := []mcp.ToolOption{
//	    mcp.WithDescription("..."),
//	}
//	opts = append(opts, tools.AddDatabaseParam(sc)...)
//	opts = append(opts, /* tool-specific params */...)
//	tool := mcp.NewTool("tool_name", opts...)
func AddDatabaseParam(sc *server.ServerContext) []mcp.ToolOption {
	desc := "Database profile to target (optional; defaults to the sole configured profile or the one named \"default\")"
	if def := sc.Config().DefaultDatabase; def != "" {
		desc = fmt.Sprintf("Database profile to target (optional, default %q)", def)
	}

	return []mcp.ToolOption{
		mcp.WithString("database",
			mcp.Description(desc),
		),
	}
}

// IntArg reads an integer argument. Numbers arrive as float64 through the
// JSON layer. Returns 0 when the argument is absent or not numeric.
func IntArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// BoolArg reads a boolean argument, returning def when the argument is
// absent or not a boolean.
func BoolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
