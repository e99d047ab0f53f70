package database

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IfExists is the policy applied when the destination table already exists
type IfExists string

const (
	// Fail refuses to write into an existing table
	Fail IfExists = "fail"
	// Append adds rows to an existing table
	Append IfExists = "append"
	// Truncate removes existing rows before writing
	Truncate IfExists = "truncate"
	// Drop removes the existing table before writing
	Drop IfExists = "drop"
)

// ParseIfExists validates an if_exists value
func ParseIfExists(s string) (IfExists, error) {
	switch v := IfExists(strings.ToLower(strings.TrimSpace(s))); v {
	case Fail, Append, Truncate, Drop:
		return v, nil
	default:
		return "", fmt.Errorf("%w: if_exists must be one of fail, append, truncate, drop, got %q", ErrInvalidOption, s)
	}
}

// WriteOptions is one of BigQueryOptions, PostgresOptions or SQLOptions
type WriteOptions interface {
	writeOptions()
}

// DefaultChunkSize is the number of rows per INSERT statement
const DefaultChunkSize = 1000

// SchemaField overrides the type of one BigQuery column
type SchemaField struct {
	Name string
	Type string
	// Mode is NULLABLE, REQUIRED or REPEATED
	Mode string
}

// BigQueryOptions configures BigQuery load jobs
type BigQueryOptions struct {
	// IfExists defaults to Fail. Drop deletes the table and then behaves as Fail.
	IfExists IfExists
	// MaxBadRecords is the number of rows the load job may reject
	MaxBadRecords int64
	// TableSchema replaces the schema inferred from the Parquet file
	TableSchema []SchemaField
}

func (BigQueryOptions) writeOptions() {}

func (o BigQueryOptions) policy() IfExists {
	if o.IfExists == "" {
		return Fail
	}
	return o.IfExists
}

// PostgresOptions configures COPY based Postgres writes
type PostgresOptions struct {
	// IfExists defaults to Append
	IfExists IfExists
}

func (PostgresOptions) writeOptions() {}

func (o PostgresOptions) policy() IfExists {
	if o.IfExists == "" {
		return Append
	}
	return o.IfExists
}

// SQLOptions configures INSERT based writes for Snowflake, Redshift,
// MSSQL, Databricks and DuckDB
type SQLOptions struct {
	// IfExists defaults to Append
	IfExists IfExists
	// ChunkSize is the maximum rows per INSERT, DefaultChunkSize when zero
	ChunkSize int
}

func (SQLOptions) writeOptions() {}

func (o SQLOptions) policy() IfExists {
	if o.IfExists == "" {
		return Append
	}
	return o.IfExists
}

func (o SQLOptions) chunkSize() int {
	if o.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return o.ChunkSize
}

// ParseOptions builds the typed write options of dbType from string
// key/value pairs, as given on the command line or in a job file
func ParseOptions(dbType string, raw map[string]string) (WriteOptions, error) {
	switch dbType {
	case "bigquery":
		var opts BigQueryOptions
		err := eachOption(dbType, raw, func(key, value string) error {
			var err error
			switch key {
			case "if_exists":
				opts.IfExists, err = ParseIfExists(value)
			case "max_bad_records":
				opts.MaxBadRecords, err = parseNonNegative(key, value)
			case "table_schema":
				opts.TableSchema, err = ParseTableSchema(value)
			default:
				return unknownOption(dbType, key)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return opts, nil

	case "postgres":
		var opts PostgresOptions
		err := eachOption(dbType, raw, func(key, value string) error {
			if key != "if_exists" {
				return unknownOption(dbType, key)
			}
			var err error
			opts.IfExists, err = ParseIfExists(value)
			return err
		})
		if err != nil {
			return nil, err
		}
		return opts, nil

	case "snowflake", "redshift", "mssql", "databricks", "duckdb":
		var opts SQLOptions
		err := eachOption(dbType, raw, func(key, value string) error {
			var err error
			switch key {
			case "if_exists":
				opts.IfExists, err = ParseIfExists(value)
			case "chunk_size":
				var n int64
				n, err = parseNonNegative(key, value)
				if err == nil && n == 0 {
					err = fmt.Errorf("%w: chunk_size must be positive", ErrInvalidOption)
				}
				opts.ChunkSize = int(n)
			default:
				return unknownOption(dbType, key)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return opts, nil

	case "gcs":
		if err := eachOption(dbType, raw, func(key, _ string) error {
			return unknownOption(dbType, key)
		}); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: unsupported database type: %s", ErrInvalidOption, dbType)
	}
}

// eachOption visits raw in key order so the first reported error is stable
func eachOption(dbType string, raw map[string]string, fn func(key, value string) error) error {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(strings.ToLower(k), raw[k]); err != nil {
			return err
		}
	}
	return nil
}

func unknownOption(dbType, key string) error {
	return fmt.Errorf("%w: %s does not accept option %q", ErrInvalidOption, dbType, key)
}

func parseNonNegative(key, value string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", ErrInvalidOption, key, value)
	}
	return n, nil
}

// ParseTableSchema parses "name:TYPE[:MODE],..." into BigQuery schema fields
func ParseTableSchema(s string) ([]SchemaField, error) {
	var fields []SchemaField
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segs := strings.Split(part, ":")
		if len(segs) < 2 || len(segs) > 3 || segs[0] == "" || segs[1] == "" {
			return nil, fmt.Errorf("%w: table_schema entry must be name:TYPE[:MODE], got %q", ErrInvalidOption, part)
		}
		field := SchemaField{Name: segs[0], Type: strings.ToUpper(segs[1]), Mode: "NULLABLE"}
		if len(segs) == 3 {
			field.Mode = strings.ToUpper(segs[2])
			switch field.Mode {
			case "NULLABLE", "REQUIRED", "REPEATED":
			default:
				return nil, fmt.Errorf("%w: unknown mode %q for field %s", ErrInvalidOption, segs[2], segs[0])
			}
		}
		fields = append(fields, field)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: table_schema is empty", ErrInvalidOption)
	}
	return fields, nil
}

func bigQueryOptions(opts WriteOptions) (BigQueryOptions, error) {
	switch o := opts.(type) {
	case nil:
		return BigQueryOptions{}, nil
	case BigQueryOptions:
		return o, nil
	case *BigQueryOptions:
		return *o, nil
	default:
		return BigQueryOptions{}, fmt.Errorf("%w: bigquery cannot use %T", ErrInvalidOption, opts)
	}
}

func postgresOptions(opts WriteOptions) (PostgresOptions, error) {
	switch o := opts.(type) {
	case nil:
		return PostgresOptions{}, nil
	case PostgresOptions:
		return o, nil
	case *PostgresOptions:
		return *o, nil
	case SQLOptions:
		return PostgresOptions{IfExists: o.IfExists}, nil
	default:
		return PostgresOptions{}, fmt.Errorf("%w: postgres cannot use %T", ErrInvalidOption, opts)
	}
}

func sqlOptions(dbType string, opts WriteOptions) (SQLOptions, error) {
	switch o := opts.(type) {
	case nil:
		return SQLOptions{}, nil
	case SQLOptions:
		return o, nil
	case *SQLOptions:
		return *o, nil
	default:
		return SQLOptions{}, fmt.Errorf("%w: %s cannot use %T", ErrInvalidOption, dbType, opts)
	}
}
