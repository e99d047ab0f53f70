package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/gerhard-ee/klondike/internal/config"
	"github.com/gerhard-ee/klondike/internal/logger"
	"github.com/gerhard-ee/klondike/pkg/table"
)

// BigQuery implements the Connector interface for Google BigQuery.
// Batches are loaded as Parquet files through load jobs.
type BigQuery struct {
	client *bigquery.Client
}

// NewBigQuery creates a new BigQuery instance
func NewBigQuery(ctx context.Context, cfg *config.Config) (*BigQuery, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	return &BigQuery{client: client}, nil
}

// Close closes the BigQuery client
func (b *BigQuery) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// dataset resolves "dataset" or "project.dataset"
func (b *BigQuery) dataset(namespace string) (*bigquery.Dataset, error) {
	parts := strings.Split(namespace, ".")
	switch len(parts) {
	case 1:
		return b.client.Dataset(parts[0]), nil
	case 2:
		return b.client.DatasetInProject(parts[0], parts[1]), nil
	default:
		return nil, fmt.Errorf("invalid dataset format, expected 'dataset' or 'project.dataset', got %s", namespace)
	}
}

func (b *BigQuery) table(tableName string) (*bigquery.Table, error) {
	name, err := parseName(tableName)
	if err != nil {
		return nil, err
	}
	ds, err := b.dataset(name.Namespace)
	if err != nil {
		return nil, err
	}
	return ds.Table(name.Table), nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// Query executes a query and returns the results
func (b *BigQuery) Query(ctx context.Context, query string, args ...any) (*table.Batch, error) {
	logger.Log.Debugf("Running query %s", query)
	q := b.client.Query(query)
	for _, arg := range args {
		q.Parameters = append(q.Parameters, bigquery.QueryParameter{Value: arg})
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}

	var values [][]any
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read results: %w", err)
		}
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		values = append(values, cells)
	}

	names := make([]string, len(it.Schema))
	for i, field := range it.Schema {
		names[i] = field.Name
	}
	return table.FromValues(names, values), nil
}

// Read runs a query that must return rows
func (b *BigQuery) Read(ctx context.Context, query string) (*table.Batch, error) {
	return read(ctx, b, query)
}

// TableExists reports whether the table exists. Names may be
// dataset.table or project.dataset.table.
func (b *BigQuery) TableExists(ctx context.Context, tableName string) (bool, error) {
	t, err := b.table(tableName)
	if err != nil {
		return false, err
	}
	if _, err := t.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get table metadata: %w", err)
	}
	return true, nil
}

// ListTables returns the table IDs of a dataset
func (b *BigQuery) ListTables(ctx context.Context, namespace string) ([]string, error) {
	ds, err := b.dataset(namespace)
	if err != nil {
		return nil, err
	}

	var tables []string
	it := ds.Tables(ctx)
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		tables = append(tables, t.TableID)
	}
	return tables, nil
}

// Write loads the batch into the table with a Parquet load job
func (b *BigQuery) Write(ctx context.Context, batch *table.Batch, tableName string, opts WriteOptions) error {
	o, err := bigQueryOptions(opts)
	if err != nil {
		return err
	}
	t, err := b.table(tableName)
	if err != nil {
		return err
	}
	if _, err := ParquetSchema(batch.Schema); err != nil {
		return err
	}

	policy := o.policy()
	disposition, err := writeDisposition(policy)
	if err != nil {
		return err
	}
	if policy == Drop {
		if err := t.Delete(ctx); err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to drop table %s: %w", tableName, err)
		}
	}

	tmp, err := os.CreateTemp("", "klondike-*.parquet")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := WriteParquet(path, batch); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer f.Close()

	source := bigquery.NewReaderSource(f)
	source.SourceFormat = bigquery.Parquet
	source.MaxBadRecords = o.MaxBadRecords
	if len(o.TableSchema) > 0 {
		source.Schema = bigQuerySchema(o.TableSchema)
	}

	loader := t.LoaderFrom(source)
	loader.WriteDisposition = disposition
	loader.CreateDisposition = bigquery.CreateIfNeeded

	logger.Log.Infof("Writing to %s...", tableName)
	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to start load job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for load job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job failed: %w", err)
	}

	logger.Log.Infof("Successfully wrote %d rows to %s", batch.Len(), tableName)
	return nil
}

// writeDisposition maps the if_exists policy onto a load job disposition.
// Drop has already removed the table and loads as Fail.
func writeDisposition(policy IfExists) (bigquery.TableWriteDisposition, error) {
	switch policy {
	case Fail, Drop:
		return bigquery.WriteEmpty, nil
	case Append:
		return bigquery.WriteAppend, nil
	case Truncate:
		return bigquery.WriteTruncate, nil
	default:
		return "", fmt.Errorf("%w: unknown if_exists policy %q", ErrInvalidOption, policy)
	}
}

func bigQuerySchema(fields []SchemaField) bigquery.Schema {
	schema := make(bigquery.Schema, len(fields))
	for i, f := range fields {
		schema[i] = &bigquery.FieldSchema{
			Name:     f.Name,
			Type:     bigquery.FieldType(f.Type),
			Required: f.Mode == "REQUIRED",
			Repeated: f.Mode == "REPEATED",
		}
	}
	return schema
}
