package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gerhard-ee/klondike/internal/config"
	"github.com/gerhard-ee/klondike/internal/dialect"
	"github.com/gerhard-ee/klondike/internal/logger"
	"github.com/gerhard-ee/klondike/pkg/table"
)

// Postgres implements the Connector interface for PostgreSQL. Batches are
// written with the COPY protocol.
type Postgres struct {
	pool    *pgxpool.Pool
	dialect *dialect.Dialect
}

// NewPostgres creates a new PostgreSQL instance
func NewPostgres(ctx context.Context, cfg *config.Config) (*Postgres, error) {
	d, err := dialect.New("postgres")
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, postgresURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Postgres{pool: pool, dialect: d}, nil
}

func postgresURL(cfg *config.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host + ":" + strconv.Itoa(port),
		Path:   "/" + cfg.Database,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Postgres) exec(ctx context.Context, query string, args ...any) error {
	logger.Log.Debugf("Executing %s", query)
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute %q: %w", query, err)
	}
	return nil
}

func (p *Postgres) exists(ctx context.Context, name table.Name) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		"SELECT EXISTS ("+p.dialect.TableExists()+")",
		dialect.SchemaName(name.Namespace), name.Table,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return exists, nil
}

// Query executes a query and returns the results
func (p *Postgres) Query(ctx context.Context, query string, args ...any) (*table.Batch, error) {
	logger.Log.Debugf("Running query %s", query)
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	var values [][]any
	for rows.Next() {
		row, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return table.FromValues(names, values), nil
}

// Read runs a query that must return rows
func (p *Postgres) Read(ctx context.Context, query string) (*table.Batch, error) {
	return read(ctx, p, query)
}

// TableExists reports whether the qualified table or view exists
func (p *Postgres) TableExists(ctx context.Context, tableName string) (bool, error) {
	name, err := parseName(tableName)
	if err != nil {
		return false, err
	}
	return p.exists(ctx, name)
}

// ListTables returns the tables of one schema
func (p *Postgres) ListTables(ctx context.Context, namespace string) ([]string, error) {
	batch, err := p.Query(ctx, p.dialect.ListTables(), dialect.SchemaName(namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return firstColumn(batch), nil
}

// Write copies the batch into the table with COPY FROM STDIN
func (p *Postgres) Write(ctx context.Context, batch *table.Batch, tableName string, opts WriteOptions) error {
	o, err := postgresOptions(opts)
	if err != nil {
		return err
	}
	name, err := parseName(tableName)
	if err != nil {
		return err
	}

	logger.Log.Infof("Writing to %s...", tableName)
	if err := prepareTable(ctx, p, p.dialect, name, batch.Schema, o.policy()); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	ident := append(pgx.Identifier(strings.Split(name.Namespace, ".")), name.Table)
	n, err := p.pool.CopyFrom(ctx, ident, batch.Schema.Names(), pgx.CopyFromRows(batch.Rows))
	if err != nil {
		return fmt.Errorf("failed to copy rows into %s: %w", tableName, err)
	}

	logger.Log.Infof("Successfully wrote %d rows to %s", n, tableName)
	return nil
}
