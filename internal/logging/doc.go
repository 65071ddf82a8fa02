// Package logging provides structured logging utilities for the
// mcp-dataquery application.
//
// This package centralizes logging patterns to ensure consistent,
// structured logging throughout the codebase using the standard library's
// slog package.
//
// # Key Features
//
//   - One constructor for leveled text/JSON handlers
//   - Consistent attribute naming across the codebase
//   - DSN sanitization so connection strings never leak credentials
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithTool(slog.Default(), "dataquery_execute")
//	logger.Info("query executed",
//	    logging.Database("analytics"),
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("profile configured",
//	    logging.DSN(profile.DSN))
//
// # Security Considerations
//
// Connection strings may embed credentials. Always log them through DSN or
// SanitizeDSN, never directly.
package logging
