package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakefront-data/mcp-dataquery/internal/database"
	"github.com/lakefront-data/mcp-dataquery/internal/response"
	"github.com/lakefront-data/mcp-dataquery/internal/server"
)

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func newServerContext(t *testing.T, profiles []database.Profile, opts ...server.Option) *server.ServerContext {
	t.Helper()

	registry, err := database.NewRegistry(profiles)
	require.NoError(t, err)

	opts = append([]server.Option{
		server.WithRegistry(registry),
		server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)

	sc, err := server.NewServerContext(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sc.Shutdown()
	})
	return sc
}

func TestResolveDatabase(t *testing.T) {
	tests := []struct {
		name            string
		args            map[string]interface{}
		defaultDatabase string
		expected        string
	}{
		{
			name:     "explicit argument wins",
			args:     map[string]interface{}{"database": "analytics"},
			expected: "analytics",
		},
		{
			name:            "explicit argument wins over configured default",
			args:            map[string]interface{}{"database": "analytics"},
			defaultDatabase: "primary",
			expected:        "analytics",
		},
		{
			name:            "empty argument falls back to configured default",
			args:            map[string]interface{}{"database": ""},
			defaultDatabase: "primary",
			expected:        "primary",
		},
		{
			name:            "missing argument falls back to configured default",
			args:            map[string]interface{}{},
			defaultDatabase: "primary",
			expected:        "primary",
		},
		{
			name:     "no argument and no default defers to registry",
			args:     map[string]interface{}{},
			expected: "",
		},
		{
			name:            "non-string argument falls back",
			args:            map[string]interface{}{"database": 42},
			defaultDatabase: "primary",
			expected:        "primary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []server.Option
			if tt.defaultDatabase != "" {
				opts = append(opts, server.WithDefaultDatabase(tt.defaultDatabase))
			}
			sc := newServerContext(t, []database.Profile{{
				Name:   "default",
				Driver: database.DriverSQLite,
				DSN:    ":memory:",
			}}, opts...)

			assert.Equal(t, tt.expected, ResolveDatabase(tt.args, sc))
		})
	}
}

func TestGetDatabaseClient_SoleProfile(t *testing.T) {
	sc := newServerContext(t, []database.Profile{{
		Name:   "warehouse",
		Driver: database.DriverSQLite,
		DSN:    ":memory:",
	}})

	client, profile, err := GetDatabaseClient(map[string]interface{}{}, sc)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "warehouse", profile.Name)
}

func TestGetDatabaseClient_UnknownProfile(t *testing.T) {
	sc := newServerContext(t, []database.Profile{{
		Name:   "default",
		Driver: database.DriverSQLite,
		DSN:    ":memory:",
	}})

	client, _, err := GetDatabaseClient(map[string]interface{}{"database": "nope"}, sc)
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrUnknownProfile)
	assert.Nil(t, client)
}

func TestGetDatabaseClient_DefaultFromConfig(t *testing.T) {
	sc := newServerContext(t, []database.Profile{
		{Name: "default", Driver: database.DriverSQLite, DSN: ":memory:"},
		{Name: "analytics", Driver: database.DriverSQLite, DSN: ":memory:"},
	}, server.WithDefaultDatabase("analytics"))

	client, profile, err := GetDatabaseClient(map[string]interface{}{}, sc)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "analytics", profile.Name)
}

func TestErrorResult(t *testing.T) {
	sc := newServerContext(t, []database.Profile{{
		Name:   "default",
		Driver: database.DriverSQLite,
		DSN:    ":memory:",
	}})

	err := fmt.Errorf("resolve profile %q: %w", "nope", database.ErrUnknownProfile)
	result := ErrorResult(context.Background(), sc, err, response.KindInternalError)

	require.NotNil(t, result)
	// Domain failures are data, not protocol errors.
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, `"status":"error"`)
	assert.Contains(t, text, `"error_kind":"unknown_database"`)
	assert.Contains(t, text, "nope")
}

func TestErrorResult_FallbackKind(t *testing.T) {
	sc := newServerContext(t, []database.Profile{{
		Name:   "default",
		Driver: database.DriverSQLite,
		DSN:    ":memory:",
	}})

	result := ErrorResult(context.Background(), sc, errors.New("boom"), response.KindQueryFailed)

	require.NotNil(t, result)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, `"error_kind":"query_failed"`)
	assert.Contains(t, text, "boom")
}

func TestEnvelopeResult(t *testing.T) {
	sc := newServerContext(t, []database.Profile{{
		Name:   "default",
		Driver: database.DriverSQLite,
		DSN:    ":memory:",
	}})

	env := sc.Formatter().FormatComplete(map[string]interface{}{
		"rows":  []interface{}{map[string]interface{}{"id": 1}},
		"count": 1,
	})

	result := EnvelopeResult(context.Background(), sc, env, "")
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, `"count":1`)
	assert.Contains(t, text, `"rows"`)
}
