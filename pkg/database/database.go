package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/gerhard-ee/klondike/internal/config"
	"github.com/gerhard-ee/klondike/pkg/table"
)

var (
	// ErrTableExists is returned by writes using the fail policy when the
	// destination table already exists
	ErrTableExists = errors.New("table already exists")

	// ErrInvalidOption is returned for unknown or malformed write options
	ErrInvalidOption = errors.New("invalid write option")
)

// Writer writes one batch into a destination table
type Writer interface {
	// Write writes batch into tableName, given in <namespace>.<table> form.
	// A nil opts applies the destination defaults.
	Write(ctx context.Context, batch *table.Batch, tableName string, opts WriteOptions) error
}

// Connector defines the operations every warehouse connector supports
type Connector interface {
	Writer

	// Query executes a statement and returns its result set, which has no
	// columns when the statement returns none
	Query(ctx context.Context, query string, args ...any) (*table.Batch, error)

	// Read executes a query that must return a result set
	Read(ctx context.Context, query string) (*table.Batch, error)

	// TableExists reports whether the qualified table exists
	TableExists(ctx context.Context, tableName string) (bool, error)

	// ListTables returns the table names of one namespace
	ListTables(ctx context.Context, namespace string) ([]string, error)

	// Close closes the underlying client or pool
	Close() error
}

// NewConnector creates a new connector based on cfg.Type
func NewConnector(ctx context.Context, cfg *config.Config) (Connector, error) {
	var (
		conn Connector
		err  error
	)
	switch cfg.Type {
	case "bigquery":
		conn, err = NewBigQuery(ctx, cfg)
	case "snowflake":
		conn, err = NewSnowflake(ctx, cfg)
	case "postgres":
		conn, err = NewPostgres(ctx, cfg)
	case "redshift":
		conn, err = NewRedshift(ctx, cfg)
	case "mssql":
		conn, err = NewMSSQL(ctx, cfg)
	case "databricks":
		conn, err = NewDatabricks(ctx, cfg)
	case "duckdb":
		conn, err = NewDuckDB(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func parseName(tableName string) (table.Name, error) {
	name, err := table.ParseName(tableName)
	if err != nil {
		return table.Name{}, fmt.Errorf("invalid table name format, expected 'namespace.table': %w", err)
	}
	return name, nil
}
