package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// sqlClient implements Client over a database/sql connection pool.
type sqlClient struct {
	db      *sql.DB
	profile Profile
	logger  *slog.Logger
}

// Open creates a Client for the profile. The connection pool is
// established lazily; use Ping to verify reachability.
func Open(profile Profile, logger *slog.Logger) (Client, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(profile.Driver, profile.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", profile.Name, err)
	}

	// SQLite allows a single writer; a wider pool just trades lock errors
	// for queueing.
	if profile.Driver == DriverSQLite && !profile.ReadOnly {
		db.SetMaxOpenConns(1)
	}

	return &sqlClient{
		db:      db,
		profile: profile,
		logger:  logger.With("database", profile.Name),
	}, nil
}

func (c *sqlClient) Query(ctx context.Context, query string, maxRows int) (*QueryResult, error) {
	verb, err := ClassifyStatement(query)
	if err != nil {
		return nil, err
	}
	if err := checkVerb(c.profile, verb); err != nil {
		return nil, err
	}

	limit := c.profile.effectiveMaxRows()
	if maxRows > 0 && maxRows < limit {
		limit = maxRows
	}

	start := time.Now()

	var result *QueryResult
	if readOnlyVerbs[verb] {
		result, err = c.queryRows(ctx, query, limit)
	} else {
		result, err = c.execStatement(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "statement executed",
		"verb", verb,
		"rows", result.RowCount,
		"truncated", result.Truncated,
		"duration", time.Since(start),
	)

	return result, nil
}

// queryRows runs a row-returning statement, scanning up to limit rows into
// generic maps.
func (c *sqlClient) queryRows(ctx context.Context, query string, limit int) (*QueryResult, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	result := &QueryResult{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for rows.Next() {
		if len(result.Rows) >= limit {
			result.Truncated = true
			break
		}
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(result.Rows)+1, err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// execStatement runs a non-returning statement and reports the affected
// row count in result shape so all statements produce one format.
func (c *sqlClient) execStatement(ctx context.Context, query string) (*QueryResult, error) {
	res, err := c.db.ExecContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		affected = -1
	}

	return &QueryResult{
		Columns:  []string{"rows_affected"},
		Rows:     []map[string]any{{"rows_affected": affected}},
		RowCount: 1,
	}, nil
}

func (c *sqlClient) ListTables(ctx context.Context) ([]TableInfo, error) {
	switch c.profile.Driver {
	case DriverSQLite:
		return c.sqliteListTables(ctx)
	default:
		return nil, fmt.Errorf("%w: list tables on %q", ErrUnsupported, c.profile.Driver)
	}
}

func (c *sqlClient) DescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	switch c.profile.Driver {
	case DriverSQLite:
		return c.sqliteDescribeTable(ctx, table)
	default:
		return nil, fmt.Errorf("%w: describe table on %q", ErrUnsupported, c.profile.Driver)
	}
}

func (c *sqlClient) sqliteListTables(ctx context.Context) ([]TableInfo, error) {
	const listQuery = `SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	rows, err := c.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]TableInfo, 0)
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name, &t.Type); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

func (c *sqlClient) sqliteDescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	// pragma_table_info accepts the table name as a bind parameter, unlike
	// the bare PRAGMA form, so no identifier quoting is needed.
	const describeQuery = `SELECT name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?) ORDER BY cid`

	rows, err := c.db.QueryContext(ctx, describeQuery, table)
	if err != nil {
		return nil, fmt.Errorf("describe table %q: %w", table, err)
	}
	defer rows.Close()

	schema := &TableSchema{Table: table, Columns: make([]ColumnInfo, 0)}
	for rows.Next() {
		var (
			col        ColumnInfo
			notNull    int
			defaultVal sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &defaultVal, &primaryKey); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}
		col.Nullable = notNull == 0
		col.Default = defaultVal.String
		col.PrimaryKey = primaryKey > 0
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	if len(schema.Columns) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return schema, nil
}

func (c *sqlClient) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database %q: %w", c.profile.Name, err)
	}
	return nil
}

func (c *sqlClient) Close() error {
	return c.db.Close()
}

// normalizeValue converts driver values to JSON-friendly types. BLOBs and
// TEXT arrive as byte slices and become strings; time values are
// normalized to UTC RFC 3339.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
