package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lakefront-data/mcp-dataquery/internal/chunking"
	"github.com/lakefront-data/mcp-dataquery/internal/database"
	"github.com/lakefront-data/mcp-dataquery/internal/instrumentation"
	"github.com/lakefront-data/mcp-dataquery/internal/response"
	"github.com/lakefront-data/mcp-dataquery/internal/tokens"
)

// DefaultShutdownTimeout bounds graceful shutdown of the HTTP transports.
const DefaultShutdownTimeout = 30 * time.Second

// ServerContext encapsulates all dependencies needed by the MCP server
// and provides a clean abstraction for dependency injection and lifecycle management.
type ServerContext struct {
	// Core dependencies
	registry  *database.Registry
	estimator *tokens.Estimator
	chunking  *chunking.Service
	formatter *response.Formatter
	logger    *slog.Logger
	config    *Config

	// Instrumentation
	instrumentationProvider *instrumentation.Provider

	// Context management
	ctx    context.Context
	cancel context.CancelFunc

	// Lifecycle management
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new ServerContext with default values.
// Use the provided functional options to customize the context.
//
// A database registry is required. The token estimator, chunking service,
// and response formatter are constructed with defaults when not injected,
// so most callers only supply WithRegistry and WithConfig.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	// Create a cancellable context
	serverCtx, cancel := context.WithCancel(ctx)

	// Initialize with defaults
	sc := &ServerContext{
		ctx:    serverCtx,
		cancel: cancel,
		config: NewDefaultConfig(),
		logger: NewDefaultLogger(),
	}

	// Apply functional options
	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}

	// Validate required dependencies
	if err := sc.validate(); err != nil {
		cancel()
		return nil, err
	}

	// Build the engine pieces that were not injected. Order matters: the
	// chunking service needs the estimator and the formatter needs both.
	if sc.estimator == nil {
		sc.estimator = tokens.NewEstimator(
			tokens.WithMetrics(sc.instrumentationProvider.Metrics()),
		)
	}
	if sc.chunking == nil {
		sc.chunking = chunking.NewService(sc.estimator,
			chunking.WithLogger(sc.logger),
			chunking.WithMetrics(sc.instrumentationProvider.Metrics()),
		)
	}
	if sc.formatter == nil {
		sc.formatter = response.NewFormatter(sc.estimator, sc.chunking, nil)
	}

	return sc, nil
}

// Context returns the server context for cancellation and deadlines.
func (sc *ServerContext) Context() context.Context {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.ctx
}

// Registry returns the database profile registry.
func (sc *ServerContext) Registry() *database.Registry {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.registry
}

// Estimator returns the token estimator.
func (sc *ServerContext) Estimator() *tokens.Estimator {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.estimator
}

// Chunking returns the chunk session service.
func (sc *ServerContext) Chunking() *chunking.Service {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.chunking
}

// Formatter returns the response formatter.
func (sc *ServerContext) Formatter() *response.Formatter {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.formatter
}

// Logger returns the structured logger.
func (sc *ServerContext) Logger() *slog.Logger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.logger
}

// Config returns the server configuration.
func (sc *ServerContext) Config() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// InstrumentationProvider returns the OpenTelemetry provider, or nil when
// instrumentation was not configured.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.instrumentationProvider
}

// Metrics returns the metrics recorder. Never nil; recording on a context
// without instrumentation is a no-op.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.instrumentationProvider.Metrics()
}

// AuditLogger returns the audit logger for tool invocations.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.instrumentationProvider.AuditLogger()
}

// ActiveSessionCount returns the number of live chunk sessions.
func (sc *ServerContext) ActiveSessionCount() int {
	sc.mu.RLock()
	chunker := sc.chunking
	sc.mu.RUnlock()

	if chunker == nil {
		return 0
	}
	return chunker.SessionCount()
}

// SessionStats returns chunk session table statistics for monitoring.
func (sc *ServerContext) SessionStats() chunking.Stats {
	sc.mu.RLock()
	chunker := sc.chunking
	sc.mu.RUnlock()

	if chunker == nil {
		return chunking.Stats{}
	}
	return chunker.Stats()
}

// Shutdown gracefully shuts down the server context.
// This cancels the context and closes all database connections.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	activeSessions := 0
	if sc.chunking != nil {
		activeSessions = sc.chunking.SessionCount()
	}
	sc.logger.Info("shutting down server context",
		slog.Int("active_sessions", activeSessions))

	var err error
	if sc.registry != nil {
		err = sc.registry.Close()
	}

	// Cancel the context
	if sc.cancel != nil {
		sc.cancel()
	}

	// Mark as shutdown
	sc.shutdown = true

	sc.logger.Info("server context shutdown complete")
	return err
}

// IsShutdown returns true if the server context has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// validate ensures all required dependencies are set.
func (sc *ServerContext) validate() error {
	if sc.registry == nil {
		return ErrMissingRegistry
	}
	if sc.logger == nil {
		return ErrMissingLogger
	}
	if sc.config == nil {
		return ErrMissingConfig
	}
	return nil
}

// Config holds the server configuration.
type Config struct {
	// Server settings
	ServerName string `json:"serverName"`
	Version    string `json:"version"`

	// DefaultDatabase is the profile used when a tool call omits the
	// database argument. Empty defers to the registry's resolution: the
	// sole profile when only one is configured, otherwise the profile
	// named "default".
	DefaultDatabase string `json:"defaultDatabase"`

	// Logging settings
	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`
}

// NewDefaultConfig creates a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName: "mcp-dataquery",
		Version:    "0.1.0",
		LogLevel:   "info",
		LogFormat:  "json",
	}
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	return &clone
}
