package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/lakefront-data/mcp-dataquery/internal/chunking"
	"github.com/lakefront-data/mcp-dataquery/internal/config"
	"github.com/lakefront-data/mcp-dataquery/internal/database"
	"github.com/lakefront-data/mcp-dataquery/internal/instrumentation"
	"github.com/lakefront-data/mcp-dataquery/internal/logging"
	"github.com/lakefront-data/mcp-dataquery/internal/response"
	"github.com/lakefront-data/mcp-dataquery/internal/server"
	"github.com/lakefront-data/mcp-dataquery/internal/tokens"
	"github.com/lakefront-data/mcp-dataquery/internal/tools/query"
)

// serverName is the MCP server implementation name reported to clients.
const serverName = "mcp-dataquery"

// Transport type constants for the MCP server.
const (
	transportStdio          = "stdio"
	transportSSE            = "sse"
	transportStreamableHTTP = "streamable-http"
)

// chunkRetrievalHint names the tool that fetches the remaining chunks of an
// oversized result. It is embedded in the first chunk's message.
const chunkRetrievalHint = "Request the remaining chunks with dataquery_get_chunk using this session_id."

// parseIntEnv parses an integer from an environment variable value.
// Returns the parsed int and true if successful, or zero and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseIntEnv(value, envName string) (int, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer in environment variable",
			slog.String("var", envName), slog.String("value", value), logging.Err(err))
		return 0, false
	}
	return n, true
}

// parseBoolEnv parses a boolean from an environment variable value.
// Returns the parsed bool and true if successful, or false and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseBoolEnv(value, envName string) (bool, bool) {
	if value == "" {
		return false, false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("invalid boolean in environment variable",
			slog.String("var", envName), slog.String("value", value), logging.Err(err))
		return false, false
	}
	return b, true
}

// newServeCmd creates the Cobra command for starting the MCP server.
func newServeCmd() *cobra.Command {
	var serveConfig ServeConfig

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP data query server",
		Long: `Start the MCP data query server to provide read-oriented SQL tools
via the Model Context Protocol.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - sse: Server-Sent Events over HTTP
  - streamable-http: Streamable HTTP transport

Database profiles come from a YAML config file (--config) or from repeated
--database name=dsn flags. Command-line profiles use the built-in sqlite
driver and are read-only unless --allow-writes is set.

Query results are token-budgeted. Responses that fit the budget come back
complete; oversized results are split into chunk sessions retrievable with
dataquery_get_chunk. The budget, tokenizer model, and session retention are
tunable per deployment.

Every flag has an MCP_DATAQUERY_* environment fallback, applied when the
flag is not set explicitly (for example MCP_DATAQUERY_TRANSPORT or
MCP_DATAQUERY_DATABASE).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyEnvOverrides(cmd, &serveConfig)
			return runServe(serveConfig)
		},
	}

	// Database and config flags
	cmd.Flags().StringVar(&serveConfig.ConfigFile, "config", "", "Path of the YAML configuration file (profiles and output settings)")
	cmd.Flags().StringArrayVar(&serveConfig.Databases, "database", nil, "Database profile as name=dsn; repeatable (sqlite driver)")
	cmd.Flags().StringVar(&serveConfig.DefaultDatabase, "default-database", "", "Profile used when a tool call omits the database argument")
	cmd.Flags().BoolVar(&serveConfig.AllowWrites, "allow-writes", false, "Allow write statements on command-line profiles (default: false)")

	// Engine flags; zero values defer to the config file and built-in defaults
	cmd.Flags().IntVar(&serveConfig.MaxTokens, "max-tokens", 0, "Per-response token budget (default: 9000)")
	cmd.Flags().IntVar(&serveConfig.SessionTTLMinutes, "session-ttl-minutes", 0, "Minutes a chunk session stays retrievable (default: 60)")
	cmd.Flags().StringVar(&serveConfig.Model, "model", "", "Tokenizer model for size estimation (default: gpt-4)")
	cmd.Flags().IntVar(&serveConfig.MaxSessions, "max-sessions", 0, "Maximum concurrently live chunk sessions (default: 256)")
	cmd.Flags().IntVar(&serveConfig.MaxRows, "max-rows", 0, "Row cap for profiles that do not set their own (default: 10000)")

	// Transport flags
	cmd.Flags().StringVar(&serveConfig.Transport, "transport", transportStdio, "Transport type: stdio, sse, or streamable-http")
	cmd.Flags().StringVar(&serveConfig.HTTPAddr, "http-addr", ":8080", "HTTP server address (for sse and streamable-http transports)")
	cmd.Flags().StringVar(&serveConfig.SSEEndpoint, "sse-endpoint", "/sse", "SSE endpoint path (for sse transport)")
	cmd.Flags().StringVar(&serveConfig.MessageEndpoint, "message-endpoint", "/message", "Message endpoint path (for sse transport)")
	cmd.Flags().StringVar(&serveConfig.HTTPEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http transport)")

	// Observability flags
	cmd.Flags().BoolVar(&serveConfig.DebugMode, "debug", false, "Enable debug logging (default: false)")
	cmd.Flags().StringVar(&serveConfig.LogFormat, "log-format", "text", "Log format: text or json")
	cmd.Flags().BoolVar(&serveConfig.Metrics.Enabled, "enable-metrics", false, "Serve Prometheus metrics on a dedicated listener (requires INSTRUMENTATION_ENABLED=true)")
	cmd.Flags().StringVar(&serveConfig.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Listen address of the dedicated metrics server")

	return cmd
}

// applyEnvOverrides fills configuration from MCP_DATAQUERY_* environment
// variables. An environment value applies only when the corresponding flag
// was not explicitly set, so flags always win.
func applyEnvOverrides(cmd *cobra.Command, serveConfig *ServeConfig) {
	stringVars := []struct {
		flag   string
		env    string
		target *string
	}{
		{"config", "MCP_DATAQUERY_CONFIG", &serveConfig.ConfigFile},
		{"default-database", "MCP_DATAQUERY_DEFAULT_DATABASE", &serveConfig.DefaultDatabase},
		{"model", "MCP_DATAQUERY_MODEL", &serveConfig.Model},
		{"transport", "MCP_DATAQUERY_TRANSPORT", &serveConfig.Transport},
		{"http-addr", "MCP_DATAQUERY_HTTP_ADDR", &serveConfig.HTTPAddr},
		{"sse-endpoint", "MCP_DATAQUERY_SSE_ENDPOINT", &serveConfig.SSEEndpoint},
		{"message-endpoint", "MCP_DATAQUERY_MESSAGE_ENDPOINT", &serveConfig.MessageEndpoint},
		{"http-endpoint", "MCP_DATAQUERY_HTTP_ENDPOINT", &serveConfig.HTTPEndpoint},
		{"log-format", "MCP_DATAQUERY_LOG_FORMAT", &serveConfig.LogFormat},
		{"metrics-addr", "MCP_DATAQUERY_METRICS_ADDR", &serveConfig.Metrics.Addr},
	}
	for _, v := range stringVars {
		if cmd.Flags().Changed(v.flag) {
			continue
		}
		if value := os.Getenv(v.env); value != "" {
			*v.target = value
		}
	}

	intVars := []struct {
		flag   string
		env    string
		target *int
	}{
		{"max-tokens", "MCP_DATAQUERY_MAX_TOKENS", &serveConfig.MaxTokens},
		{"session-ttl-minutes", "MCP_DATAQUERY_SESSION_TTL_MINUTES", &serveConfig.SessionTTLMinutes},
		{"max-sessions", "MCP_DATAQUERY_MAX_SESSIONS", &serveConfig.MaxSessions},
		{"max-rows", "MCP_DATAQUERY_MAX_ROWS", &serveConfig.MaxRows},
	}
	for _, v := range intVars {
		if cmd.Flags().Changed(v.flag) {
			continue
		}
		if n, ok := parseIntEnv(os.Getenv(v.env), v.env); ok {
			*v.target = n
		}
	}

	boolVars := []struct {
		flag   string
		env    string
		target *bool
	}{
		{"allow-writes", "MCP_DATAQUERY_ALLOW_WRITES", &serveConfig.AllowWrites},
		{"debug", "MCP_DATAQUERY_DEBUG", &serveConfig.DebugMode},
		{"enable-metrics", "MCP_DATAQUERY_ENABLE_METRICS", &serveConfig.Metrics.Enabled},
	}
	for _, v := range boolVars {
		if cmd.Flags().Changed(v.flag) {
			continue
		}
		if b, ok := parseBoolEnv(os.Getenv(v.env), v.env); ok {
			*v.target = b
		}
	}

	// The database spec env carries a single profile and only applies when
	// no --database flag was given.
	if !cmd.Flags().Changed("database") && len(serveConfig.Databases) == 0 {
		if spec := os.Getenv("MCP_DATAQUERY_DATABASE"); spec != "" {
			serveConfig.Databases = append(serveConfig.Databases, spec)
		}
	}
}

// buildConfig merges the config file, command-line profiles, and engine
// flag overrides into the validated runtime configuration.
func buildConfig(serveConfig ServeConfig) (*config.Config, error) {
	var cfg *config.Config
	if serveConfig.ConfigFile != "" {
		loaded, err := config.Load(serveConfig.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	for _, spec := range serveConfig.Databases {
		profile, err := parseProfileSpec(spec, serveConfig.AllowWrites)
		if err != nil {
			return nil, err
		}
		cfg.Profiles = append(cfg.Profiles, profile)
	}

	if len(cfg.Profiles) == 0 {
		return nil, errors.New("at least one database profile is required (--database name=dsn or --config)")
	}

	// Engine flags override the file's output block.
	if serveConfig.MaxTokens > 0 {
		cfg.Output.MaxTokens = serveConfig.MaxTokens
	}
	if serveConfig.SessionTTLMinutes > 0 {
		cfg.Output.SessionTTLMinutes = serveConfig.SessionTTLMinutes
	}
	if serveConfig.Model != "" {
		cfg.Output.Model = serveConfig.Model
	}
	if serveConfig.MaxSessions > 0 {
		cfg.Output.MaxSessions = serveConfig.MaxSessions
	}

	// A global row cap applies to profiles that did not set their own.
	if serveConfig.MaxRows > 0 {
		for i := range cfg.Profiles {
			if cfg.Profiles[i].MaxRows == 0 {
				cfg.Profiles[i].MaxRows = serveConfig.MaxRows
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runServe contains the main server logic with support for multiple transports.
func runServe(serveConfig ServeConfig) error {
	cfg, err := buildConfig(serveConfig)
	if err != nil {
		return err
	}

	// Logs go to stderr on every transport; in stdio mode stdout carries
	// the protocol stream and must stay clean.
	logLevel := "info"
	if serveConfig.DebugMode {
		logLevel = "debug"
	}
	logger := logging.New(os.Stderr, logLevel, serveConfig.LogFormat)
	slog.SetDefault(logger)

	// Setup graceful shutdown - listen for both SIGINT and SIGTERM
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize OpenTelemetry instrumentation provider
	instrumentationConfig := instrumentation.DefaultConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	if err := instrumentationConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}
	instrumentationProvider, err := instrumentation.NewProvider(shutdownCtx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if shutdownErr := instrumentationProvider.Shutdown(context.Background()); shutdownErr != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(shutdownErr))
		}
	}()

	if instrumentationProvider.Enabled() {
		logger.Info("instrumentation enabled",
			slog.String("metrics_exporter", instrumentationConfig.MetricsExporter),
			slog.String("tracing_exporter", instrumentationConfig.TracingExporter))
	}

	registry, err := database.NewRegistry(cfg.Profiles, database.WithRegistryLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create database registry: %w", err)
	}

	// Build the response engine explicitly so the config file's output
	// block reaches every stage. Order matters: the chunking service needs
	// the estimator and the formatter needs both.
	estimator := tokens.NewEstimator(
		tokens.WithMetrics(instrumentationProvider.Metrics()),
	)
	chunkConfig := cfg.Output.ChunkingConfig()
	chunkConfig.RetrievalHint = chunkRetrievalHint
	chunker := chunking.NewService(estimator,
		chunking.WithConfig(chunkConfig),
		chunking.WithLogger(logger),
		chunking.WithMetrics(instrumentationProvider.Metrics()),
	)
	formatter := response.NewFormatter(estimator, chunker, cfg.Output.FormatterConfig())

	serverConfig := server.NewDefaultConfig()
	serverConfig.ServerName = serverName
	serverConfig.Version = rootCmd.Version
	serverConfig.DefaultDatabase = serveConfig.DefaultDatabase
	serverConfig.LogLevel = logLevel
	serverConfig.LogFormat = serveConfig.LogFormat

	serverContext, err := server.NewServerContext(shutdownCtx,
		server.WithRegistry(registry),
		server.WithLogger(logger),
		server.WithConfig(serverConfig),
		server.WithEstimator(estimator),
		server.WithChunking(chunker),
		server.WithFormatter(formatter),
		server.WithInstrumentationProvider(instrumentationProvider),
	)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("error during server context shutdown", logging.Err(err))
		}
	}()

	logger.Info("database profiles configured",
		slog.Int("count", len(cfg.Profiles)),
		slog.Int("max_tokens", cfg.Output.MaxTokens),
		logging.Model(cfg.Output.Model),
		slog.Int("session_ttl_minutes", cfg.Output.SessionTTLMinutes))

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer(serverName, rootCmd.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	if err := query.RegisterQueryTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register query tools: %w", err)
	}

	// Start the appropriate server based on transport type
	switch serveConfig.Transport {
	case transportStdio:
		// Don't print startup messages in stdio mode as stdout carries the
		// MCP stream.
		return runStdioServer(mcpSrv)
	case transportSSE:
		logger.Info("starting MCP server",
			logging.Transport(transportSSE),
			slog.String("addr", serveConfig.HTTPAddr))
		return runSSEServer(shutdownCtx, mcpSrv, serveConfig.HTTPAddr, serveConfig.SSEEndpoint, serveConfig.MessageEndpoint)
	case transportStreamableHTTP:
		logger.Info("starting MCP server",
			logging.Transport(transportStreamableHTTP),
			slog.String("addr", serveConfig.HTTPAddr))
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serveConfig.HTTPAddr, serveConfig.HTTPEndpoint, instrumentationProvider, serverContext, serveConfig.Metrics)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse, streamable-http)", serveConfig.Transport)
	}
}
