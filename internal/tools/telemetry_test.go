package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakefront-data/mcp-dataquery/internal/database"
	"github.com/lakefront-data/mcp-dataquery/internal/instrumentation"
	"github.com/lakefront-data/mcp-dataquery/internal/server"
)

func TestWrapWithTelemetry_CapturesToolName(t *testing.T) {
	provider := createTestProvider(t)
	sc := createTestServerContext(t, provider)

	handler := func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := WrapWithTelemetry("dataquery_execute", handler, sc)

	request := createTestRequest(nil)
	_, err := wrapped(context.Background(), request)
	require.NoError(t, err)

	auditLogger := provider.AuditLogger()
	require.NotNil(t, auditLogger)
}

func TestWrapWithTelemetry_MeasuresDuration(t *testing.T) {
	provider := createTestProvider(t)
	sc := createTestServerContext(t, provider)

	handler := func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
		time.Sleep(10 * time.Millisecond)
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := WrapWithTelemetry("dataquery_execute", handler, sc)

	request := createTestRequest(nil)
	start := time.Now()
	_, err := wrapped(context.Background(), request)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
}

func TestWrapWithTelemetry_HandlesSuccess(t *testing.T) {
	provider := createTestProvider(t)
	sc := createTestServerContext(t, provider)

	handler := func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := WrapWithTelemetry("dataquery_execute", handler, sc)

	request := createTestRequest(nil)
	result, err := wrapped(context.Background(), request)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
}

func TestWrapWithTelemetry_HandlesGoError(t *testing.T) {
	provider := createTestProvider(t)
	sc := createTestServerContext(t, provider)

	expectedErr := errors.New("handler error")
	handler := func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	wrapped := WrapWithTelemetry("dataquery_execute", handler, sc)

	request := createTestRequest(nil)
	result, err := wrapped(context.Background(), request)

	require.Error(t, err)
	assert.Equal(t, expectedErr, err)
	assert.Nil(t, result)
}

func TestWrapWithTelemetry_HandlesMCPToolError(t *testing.T) {
	provider := createTestProvider(t)
	sc := createTestServerContext(t, provider)

	handler := func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("sql is required"), nil
	}

	wrapped := WrapWithTelemetry("dataquery_execute", handler, sc)

	request := createTestRequest(nil)
	result, err := wrapped(context.Background(), request)

	require.NoError(t, err) // No Go error
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

func TestWrapWithTelemetry_NoProvider(t *testing.T) {
	sc := createTestServerContext(t, nil)

	handler := func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := WrapWithTelemetry("dataquery_execute", handler, sc)

	request := createTestRequest(nil)
	result, err := wrapped(context.Background(), request)

	// Should still work, just without telemetry.
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
}

func TestWrapWithTelemetry_DisabledProvider(t *testing.T) {
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{})
	require.NoError(t, err)
	sc := createTestServerContext(t, provider)

	called := false
	handler := func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := WrapWithTelemetry("dataquery_execute", handler, sc)

	request := createTestRequest(nil)
	_, err = wrapped(context.Background(), request)

	require.NoError(t, err)
	assert.True(t, called)
}

func TestWrapWithTelemetry_PassesArguments(t *testing.T) {
	provider := createTestProvider(t)
	sc := createTestServerContext(t, provider)

	var gotSQL string
	handler := func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
		gotSQL, _ = request.GetArguments()["sql"].(string)
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := WrapWithTelemetry("dataquery_execute", handler, sc)

	request := createTestRequest(map[string]interface{}{
		"sql":      "SELECT 1",
		"database": "default",
	})
	_, err := wrapped(context.Background(), request)

	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", gotSQL)
}

func TestExtractInvocationInfo(t *testing.T) {
	tests := []struct {
		name            string
		args            map[string]interface{}
		expectDatabase  string
		expectVerb      string
		expectStatement string
		expectTable     string
		expectSession   string
	}{
		{
			name: "query arguments",
			args: map[string]interface{}{
				"database": "prod-orders",
				"sql":      "SELECT * FROM orders",
			},
			expectDatabase:  "prod-orders",
			expectVerb:      "select",
			expectStatement: "SELECT * FROM orders",
		},
		{
			name: "statement with leading comment classifies",
			args: map[string]interface{}{
				"sql": "-- cleanup\nDELETE FROM staging_rows",
			},
			expectVerb:      "delete",
			expectStatement: "-- cleanup\nDELETE FROM staging_rows",
		},
		{
			name: "unclassifiable statement still recorded",
			args: map[string]interface{}{
				"sql": "??? not sql",
			},
			expectVerb:      "",
			expectStatement: "??? not sql",
		},
		{
			name: "schema arguments",
			args: map[string]interface{}{
				"database": "analytics",
				"table":    "events",
			},
			expectDatabase: "analytics",
			expectTable:    "events",
		},
		{
			name: "session arguments",
			args: map[string]interface{}{
				"session_id": "4f2c9a1e-6d18-4b6f-8f3a-2b9be1b4a7c0",
			},
			expectSession: "4f2c9a1e-6d18-4b6f-8f3a-2b9be1b4a7c0",
		},
		{
			name: "empty args",
			args: map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invocation := instrumentation.NewToolInvocation("test")
			extractInvocationInfo(invocation, tt.args)

			assert.Equal(t, tt.expectDatabase, invocation.Database)
			assert.Equal(t, tt.expectVerb, invocation.Verb)
			assert.Equal(t, tt.expectStatement, invocation.Statement)
			assert.Equal(t, tt.expectTable, invocation.Table)
			assert.Equal(t, tt.expectSession, invocation.SessionID)
		})
	}
}

// Helper functions

func createTestProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	config := instrumentation.Config{
		Enabled:         true,
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	}
	provider, err := instrumentation.NewProvider(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	return provider
}

func createTestServerContext(t *testing.T, provider *instrumentation.Provider) *server.ServerContext {
	t.Helper()

	registry, err := database.NewRegistry([]database.Profile{{
		Name:   "default",
		Driver: database.DriverSQLite,
		DSN:    ":memory:",
	}})
	require.NoError(t, err)

	opts := []server.Option{
		server.WithRegistry(registry),
		server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if provider != nil {
		opts = append(opts, server.WithInstrumentationProvider(provider))
	}

	sc, err := server.NewServerContext(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sc.Shutdown()
	})
	return sc
}

func createTestRequest(args map[string]interface{}) mcp.CallToolRequest {
	if args == nil {
		args = map[string]interface{}{}
	}
	request := mcp.CallToolRequest{}
	request.Params.Name = "dataquery_execute"
	request.Params.Arguments = args
	return request
}
