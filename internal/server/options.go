package server

import (
	"errors"
	"log/slog"
	"os"

	"github.com/lakefront-data/mcp-dataquery/internal/chunking"
	"github.com/lakefront-data/mcp-dataquery/internal/database"
	"github.com/lakefront-data/mcp-dataquery/internal/instrumentation"
	"github.com/lakefront-data/mcp-dataquery/internal/logging"
	"github.com/lakefront-data/mcp-dataquery/internal/response"
	"github.com/lakefront-data/mcp-dataquery/internal/tokens"
)

// Option is a functional option for configuring ServerContext.
type Option func(*ServerContext) error

// WithRegistry sets the database profile registry for the ServerContext.
func WithRegistry(registry *database.Registry) Option {
	return func(sc *ServerContext) error {
		if registry == nil {
			return ErrMissingRegistry
		}
		sc.registry = registry
		return nil
	}
}

// WithLogger sets the logger for the ServerContext.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return ErrMissingLogger
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig sets the configuration for the ServerContext.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return ErrMissingConfig
		}
		sc.config = config.Clone()
		return nil
	}
}

// WithServerName sets the server name in the configuration.
func WithServerName(name string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.ServerName = name
		return nil
	}
}

// WithDefaultDatabase sets the profile used when tool calls omit the
// database argument.
func WithDefaultDatabase(name string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.DefaultDatabase = name
		return nil
	}
}

// WithLogLevel sets the logging level.
func WithLogLevel(level string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.LogLevel = level
		return nil
	}
}

// WithEstimator sets the token estimator for the ServerContext.
func WithEstimator(estimator *tokens.Estimator) Option {
	return func(sc *ServerContext) error {
		if estimator == nil {
			return errors.New("token estimator cannot be nil")
		}
		sc.estimator = estimator
		return nil
	}
}

// WithChunking sets the chunk session service for the ServerContext.
func WithChunking(service *chunking.Service) Option {
	return func(sc *ServerContext) error {
		if service == nil {
			return errors.New("chunking service cannot be nil")
		}
		sc.chunking = service
		return nil
	}
}

// WithFormatter sets the response formatter for the ServerContext.
func WithFormatter(formatter *response.Formatter) Option {
	return func(sc *ServerContext) error {
		if formatter == nil {
			return errors.New("response formatter cannot be nil")
		}
		sc.formatter = formatter
		return nil
	}
}

// WithInstrumentationProvider sets the OpenTelemetry instrumentation provider.
// This enables production-grade observability including metrics and tracing.
func WithInstrumentationProvider(provider *instrumentation.Provider) Option {
	return func(sc *ServerContext) error {
		sc.instrumentationProvider = provider
		return nil
	}
}

// Error definitions for ServerContext validation and operations.
var (
	ErrMissingRegistry = errors.New("database registry is required")
	ErrMissingLogger   = errors.New("logger is required")
	ErrMissingConfig   = errors.New("configuration is required")
)

// NewDefaultLogger creates the fallback logger: text format at info level
// on standard error.
func NewDefaultLogger() *slog.Logger {
	return logging.New(os.Stderr, "info", "text")
}
