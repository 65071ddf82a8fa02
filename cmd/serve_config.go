package cmd

import (
	"fmt"
	"strings"

	"github.com/lakefront-data/mcp-dataquery/internal/database"
)

// ServeConfig holds all configuration for the serve command.
type ServeConfig struct {
	// Transport settings
	Transport string
	HTTPAddr  string

	// Endpoint paths
	SSEEndpoint     string
	MessageEndpoint string
	HTTPEndpoint    string

	// ConfigFile is the path of the YAML configuration file. Empty means
	// flags and defaults only.
	ConfigFile string

	// Databases are profile specs given on the command line, of the form
	// name=dsn. They are merged with the config file's profiles.
	Databases []string

	// DefaultDatabase is the profile used when a tool call omits the
	// database argument.
	DefaultDatabase string

	// AllowWrites lifts the read-only gate on command-line profiles.
	// Config file profiles carry their own readOnly setting.
	AllowWrites bool

	// Engine overrides. Zero values defer to the config file and built-in
	// defaults.
	MaxTokens         int
	SessionTTLMinutes int
	Model             string
	MaxSessions       int
	MaxRows           int

	// Logging settings
	DebugMode bool
	LogFormat string

	// Metrics server configuration
	Metrics MetricsServeConfig
}

// MetricsServeConfig holds the dedicated metrics listener configuration.
// Metrics are served on their own port so operational traffic never shares
// a listener with the MCP transport.
type MetricsServeConfig struct {
	Enabled bool
	Addr    string
}

// parseProfileSpec parses a command-line database spec of the form name=dsn
// into a profile. Command-line profiles use the sqlite driver and are
// read-only unless allowWrites is set.
func parseProfileSpec(spec string, allowWrites bool) (database.Profile, error) {
	name, dsn, found := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	dsn = strings.TrimSpace(dsn)
	if !found || name == "" || dsn == "" {
		return database.Profile{}, fmt.Errorf("invalid database spec %q: expected name=dsn", spec)
	}

	return database.Profile{
		Name:     name,
		Driver:   database.DriverSQLite,
		DSN:      dsn,
		ReadOnly: !allowWrites,
	}, nil
}
