package database

import (
	"context"
	"errors"
	"fmt"
)

// Driver names accepted by Profile.Validate.
const (
	// DriverSQLite is the modernc.org/sqlite driver name.
	DriverSQLite = "sqlite"
)

// Default limits for query execution.
const (
	// DefaultMaxRows caps result sets for profiles that do not set their
	// own limit.
	DefaultMaxRows = 10000

	// AbsoluteMaxRows is the hard cap on rows per query regardless of
	// configuration. This bounds memory for a single result set even when
	// profiles request higher limits.
	AbsoluteMaxRows = 100000

	// DefaultProfileName is the profile selected when a tool call does not
	// name a database and more than one profile is configured.
	DefaultProfileName = "default"
)

// Sentinel errors returned by this package. Callers classify failures with
// errors.Is.
var (
	// ErrReadOnly indicates a mutating statement reached a read-only
	// profile.
	ErrReadOnly = errors.New("statement not allowed on read-only database")

	// ErrUnknownProfile indicates a database name with no configured
	// profile.
	ErrUnknownProfile = errors.New("unknown database profile")

	// ErrUnknownTable indicates a table name the database does not have.
	ErrUnknownTable = errors.New("unknown table")

	// ErrEmptyQuery indicates a statement with no content after comment
	// stripping.
	ErrEmptyQuery = errors.New("empty query")

	// ErrUnsupported indicates an introspection operation the profile's
	// driver has no implementation for.
	ErrUnsupported = errors.New("operation not supported for driver")
)

// Profile describes one configured database connection.
type Profile struct {
	// Name identifies the profile in tool calls and logs.
	Name string `json:"name" yaml:"name"`

	// Driver is the database/sql driver name. Supported: "sqlite".
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the driver-specific connection string. Excluded from
	// serialization; it may embed credentials.
	DSN string `json:"-" yaml:"dsn"`

	// ReadOnly blocks every statement outside the read-only verb set.
	ReadOnly bool `json:"readOnly" yaml:"readOnly"`

	// MaxRows caps rows returned per query.
	// Default: DefaultMaxRows, absolute max: AbsoluteMaxRows.
	MaxRows int `json:"maxRows" yaml:"maxRows"`
}

// Validate checks that the profile can be opened.
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	if p.DSN == "" {
		return fmt.Errorf("profile %q: dsn is required", p.Name)
	}
	switch p.Driver {
	case DriverSQLite:
		return nil
	case "":
		return fmt.Errorf("profile %q: driver is required", p.Name)
	default:
		return fmt.Errorf("profile %q: unsupported driver %q", p.Name, p.Driver)
	}
}

// effectiveMaxRows returns the profile's row cap with defaults and the
// absolute maximum applied.
func (p Profile) effectiveMaxRows() int {
	limit := p.MaxRows
	if limit <= 0 {
		limit = DefaultMaxRows
	}
	if limit > AbsoluteMaxRows {
		limit = AbsoluteMaxRows
	}
	return limit
}

// QueryResult is the normalized outcome of one statement, shaped so the
// response layer can budget and split it. Rows is the collection the
// chunking engine targets when the result is oversized.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
}

// Payload returns the result in the generic map form consumed by the
// response formatter.
func (r *QueryResult) Payload() map[string]any {
	p := map[string]any{
		"columns":   r.Columns,
		"rows":      r.Rows,
		"row_count": r.RowCount,
	}
	if r.Truncated {
		p["truncated"] = true
	}
	return p
}

// TableInfo describes one table or view.
type TableInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Default    string `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// TableSchema describes the columns of one table.
type TableSchema struct {
	Table   string       `json:"table"`
	Columns []ColumnInfo `json:"columns"`
}

// Client executes statements against one database. Implementations are
// safe for concurrent use.
type Client interface {
	// Query runs a statement and returns the normalized result. maxRows
	// further restricts the profile's row cap for this call; zero selects
	// the profile cap.
	Query(ctx context.Context, query string, maxRows int) (*QueryResult, error)

	// ListTables returns the tables and views of the database, sorted by
	// name.
	ListTables(ctx context.Context) ([]TableInfo, error)

	// DescribeTable returns the column schema of one table.
	DescribeTable(ctx context.Context, table string) (*TableSchema, error)

	// Ping verifies the connection is usable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}
