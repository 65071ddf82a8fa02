package logging

import (
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyTool      = "tool"
	KeyDatabase  = "database"
	KeyTable     = "table"
	KeySessionID = "session_id"
	KeyModel     = "model"
	KeyVerb      = "verb"
	KeyChunks    = "chunks"
	KeyTokens    = "tokens"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyTransport = "transport"
	KeyDSN       = "dsn"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// dsnKVPattern matches credential-bearing key=value pairs in plain
// connection strings.
var dsnKVPattern = regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|token|_auth_pass)\s*=\s*[^;\s&]+`)

// New creates a leveled slog.Logger writing to w. Format "json" selects
// JSON output, anything else text. Unknown levels default to info.
//
// Transports that own stdout (the stdio MCP transport) must pass stderr,
// or log lines corrupt the protocol stream.
func New(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// WithDatabase returns a logger with the database attribute set.
func WithDatabase(logger *slog.Logger, database string) *slog.Logger {
	return logger.With(slog.String(KeyDatabase, database))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Tool returns a slog attribute for the tool name.
func Tool(name string) slog.Attr {
	return slog.String(KeyTool, name)
}

// Database returns a slog attribute for the database profile name.
func Database(name string) slog.Attr {
	return slog.String(KeyDatabase, name)
}

// Table returns a slog attribute for the table name.
func Table(name string) slog.Attr {
	return slog.String(KeyTable, name)
}

// SessionID returns a slog attribute for a chunk session id.
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// Model returns a slog attribute for the tokenizer model.
func Model(model string) slog.Attr {
	return slog.String(KeyModel, model)
}

// Verb returns a slog attribute for the classified statement verb.
func Verb(verb string) slog.Attr {
	return slog.String(KeyVerb, verb)
}

// Chunks returns a slog attribute for a chunk count.
func Chunks(n int) slog.Attr {
	return slog.Int(KeyChunks, n)
}

// Tokens returns a slog attribute for a token count.
func Tokens(n int) slog.Attr {
	return slog.Int(KeyTokens, n)
}

// Duration returns a slog attribute for an operation duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Transport returns a slog attribute for the serving transport.
func Transport(name string) slog.Attr {
	return slog.String(KeyTransport, name)
}

// DSN returns a slog attribute with the connection string sanitized.
func DSN(dsn string) slog.Attr {
	return slog.String(KeyDSN, SanitizeDSN(dsn))
}

// SanitizeDSN returns a form of the connection string safe for logs.
// URL-style DSNs have their password and credential-bearing query
// parameters redacted; plain key=value strings have credential values
// masked; bare file paths pass through unchanged.
//
// Examples:
//   - "postgres://app:hunter2@db:5432/x" -> "postgres://app:xxxxx@db:5432/x"
//   - "file:data.db?_auth_pass=hunter2" -> "file:data.db?_auth_pass=xxxxx"
//   - "/var/lib/analytics.db" -> "/var/lib/analytics.db"
//   - "" -> "<empty>"
func SanitizeDSN(dsn string) string {
	if dsn == "" {
		return "<empty>"
	}

	if strings.Contains(dsn, "://") || strings.HasPrefix(dsn, "file:") {
		if parsed, err := url.Parse(dsn); err == nil && parsed.Scheme != "" {
			query := parsed.Query()
			changed := false
			for key := range query {
				switch strings.ToLower(key) {
				case "password", "passwd", "pwd", "secret", "token", "_auth_pass":
					query.Set(key, "xxxxx")
					changed = true
				}
			}
			if changed {
				parsed.RawQuery = query.Encode()
			}
			return parsed.Redacted()
		}
	}

	return dsnKVPattern.ReplaceAllString(dsn, "${1}=xxxxx")
}
