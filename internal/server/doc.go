// Package server provides the ServerContext pattern and related infrastructure
// for the mcp-dataquery MCP server.
//
// This package implements the core server architecture patterns including:
//
//   - ServerContext: Encapsulates all server dependencies and lifecycle management
//   - Functional Options: Clean dependency injection and configuration
//   - HealthChecker: Liveness, readiness, and detailed health endpoints
//   - MetricsServer: Dedicated prometheus scrape listener
//
// The ServerContext Pattern:
//
// The ServerContext struct follows the context pattern commonly used in Go
// applications to encapsulate dependencies and provide clean separation of
// concerns. It includes:
//
//   - Database profile registry
//   - Token estimator, chunk session service, and response formatter
//   - Structured logger
//   - Configuration settings
//   - OpenTelemetry instrumentation provider
//   - Context for cancellation and timeouts
//   - Lifecycle management (shutdown, cleanup)
//
// All dependencies are injected using functional options. Only the registry
// is mandatory; the token engine pieces are built with defaults when not
// supplied, wired to the instrumentation provider if one is present.
//
// Example usage:
//
//	// Create a server context with custom configuration
//	ctx := context.Background()
//	serverCtx, err := NewServerContext(ctx,
//		WithRegistry(registry),
//		WithLogger(logger),
//		WithDefaultDatabase("warehouse"),
//		WithLogLevel("debug"),
//	)
//	if err != nil {
//		return err
//	}
//	defer serverCtx.Shutdown()
//
//	// Use the context in MCP tools
//	client, err := serverCtx.Registry().Client("warehouse")
//	formatter := serverCtx.Formatter()
//	logger := serverCtx.Logger()
//
// Shutdown closes every open database client and cancels the server
// context; it is safe to call more than once.
//
// Health Endpoints:
//
// HealthChecker serves /healthz (liveness), /readyz (readiness), and
// /healthz/detailed. The detailed endpoint pings each configured database
// profile and reports chunk session table usage, so it is heavier than the
// probe endpoints.
package server
