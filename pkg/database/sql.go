package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gerhard-ee/klondike/internal/dialect"
	"github.com/gerhard-ee/klondike/internal/logger"
	"github.com/gerhard-ee/klondike/pkg/table"
)

// tableOps is the statement surface prepareTable needs from a connector
type tableOps interface {
	exec(ctx context.Context, query string, args ...any) error
	exists(ctx context.Context, name table.Name) (bool, error)
}

// prepareTable applies the if_exists policy and creates the table from
// schema when it is missing
func prepareTable(ctx context.Context, ops tableOps, d *dialect.Dialect, name table.Name, schema table.Schema, policy IfExists) error {
	exists, err := ops.exists(ctx, name)
	if err != nil {
		return err
	}

	if exists {
		switch policy {
		case Fail:
			return fmt.Errorf("%w: %s", ErrTableExists, name)
		case Append:
			return nil
		case Truncate:
			return ops.exec(ctx, d.TruncateTable(name))
		case Drop:
			if err := ops.exec(ctx, d.DropTable(name)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown if_exists policy %q", ErrInvalidOption, policy)
		}
	}
	return ops.exec(ctx, d.CreateTable(name, schema))
}

// sqlConnector implements Connector on top of database/sql for the
// warehouses loaded with multi-row INSERT statements
type sqlConnector struct {
	dbType  string
	db      *sql.DB
	dialect *dialect.Dialect
}

func openSQL(ctx context.Context, dbType, driver, dsn string) (*sqlConnector, error) {
	d, err := dialect.New(dbType)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &sqlConnector{dbType: dbType, db: db, dialect: d}, nil
}

// Close closes the database connection
func (c *sqlConnector) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *sqlConnector) exec(ctx context.Context, query string, args ...any) error {
	logger.Log.Debugf("Executing %s", query)
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute %q: %w", query, err)
	}
	return nil
}

func (c *sqlConnector) exists(ctx context.Context, name table.Name) (bool, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.TableExists(), dialect.SchemaName(name.Namespace), name.Table)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	defer rows.Close()
	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return found, nil
}

// Query executes a query and returns the results
func (c *sqlConnector) Query(ctx context.Context, query string, args ...any) (*table.Batch, error) {
	logger.Log.Debugf("Running query %s", query)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Read runs a query that must return rows
func (c *sqlConnector) Read(ctx context.Context, query string) (*table.Batch, error) {
	return read(ctx, c, query)
}

// TableExists reports whether the qualified table exists
func (c *sqlConnector) TableExists(ctx context.Context, tableName string) (bool, error) {
	name, err := parseName(tableName)
	if err != nil {
		return false, err
	}
	return c.exists(ctx, name)
}

// ListTables returns the tables of one schema
func (c *sqlConnector) ListTables(ctx context.Context, namespace string) ([]string, error) {
	batch, err := c.Query(ctx, c.dialect.ListTables(), dialect.SchemaName(namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return firstColumn(batch), nil
}

// Write writes the batch with chunked multi-row INSERT statements
func (c *sqlConnector) Write(ctx context.Context, batch *table.Batch, tableName string, opts WriteOptions) error {
	o, err := sqlOptions(c.dbType, opts)
	if err != nil {
		return err
	}
	name, err := parseName(tableName)
	if err != nil {
		return err
	}

	logger.Log.Infof("Writing to %s...", tableName)
	if err := prepareTable(ctx, c, c.dialect, name, batch.Schema, o.policy()); err != nil {
		return err
	}

	width := len(batch.Schema.Columns)
	chunk := c.dialect.RowsPerInsert(o.chunkSize(), width)
	for start := 0; start < batch.Len(); start += chunk {
		end := min(start+chunk, batch.Len())
		rows := batch.Rows[start:end]
		args := make([]any, 0, len(rows)*width)
		for _, row := range rows {
			args = append(args, row...)
		}
		if err := c.exec(ctx, c.dialect.Insert(name, batch.Schema, len(rows)), args...); err != nil {
			return fmt.Errorf("failed to insert rows %d-%d: %w", start+1, end, err)
		}
	}

	logger.Log.Infof("Successfully wrote %d rows to %s", batch.Len(), tableName)
	return nil
}

func scanRows(rows *sql.Rows) (*table.Batch, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var values [][]any
	for rows.Next() {
		row := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return table.FromValues(names, values), nil
}

type querier interface {
	Query(ctx context.Context, query string, args ...any) (*table.Batch, error)
}

func read(ctx context.Context, q querier, query string) (*table.Batch, error) {
	batch, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(batch.Schema.Columns) == 0 {
		return nil, fmt.Errorf("query returned no result set")
	}
	if batch.Len() == 0 {
		logger.Log.Warn("Query returned no results")
	}
	return batch, nil
}

func firstColumn(batch *table.Batch) []string {
	names := make([]string, 0, batch.Len())
	for _, row := range batch.Rows {
		if len(row) > 0 && row[0] != nil {
			names = append(names, table.Format(row[0]))
		}
	}
	return names
}
