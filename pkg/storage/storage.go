// Package storage implements a Google Cloud Storage connector. Blobs are
// exchanged as CSV with a header row.
package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/gerhard-ee/klondike/internal/config"
	"github.com/gerhard-ee/klondike/internal/logger"
	"github.com/gerhard-ee/klondike/pkg/table"
)

// Storage wraps a Cloud Storage client
type Storage struct {
	client  *storage.Client
	project string
}

// New creates a Cloud Storage connector from cfg. ProjectID is only
// needed for ListBuckets.
func New(ctx context.Context, cfg *config.Config) (*Storage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new GCS client: %w", err)
	}
	return &Storage{client: client, project: cfg.ProjectID}, nil
}

// Close closes the client
func (s *Storage) Close() error {
	return s.client.Close()
}

// ListBuckets returns the bucket names of the project
func (s *Storage) ListBuckets(ctx context.Context) ([]string, error) {
	if s.project == "" {
		return nil, errors.New("project is required to list buckets")
	}

	var names []string
	it := s.client.Buckets(ctx, s.project)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list buckets: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// ListBlobs returns the names of objects under prefix whose name contains
// pattern. Empty prefix and pattern match everything.
func (s *Storage) ListBlobs(ctx context.Context, bucket, prefix, pattern string) ([]string, error) {
	var names []string
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs in %s: %w", bucket, err)
		}
		if strings.Contains(attrs.Name, pattern) {
			names = append(names, attrs.Name)
		}
	}
	return names, nil
}

// GetBlob downloads a CSV blob and returns it as a text batch
func (s *Storage) GetBlob(ctx context.Context, bucket, blob string) (*table.Batch, error) {
	r, err := s.client.Bucket(bucket).Object(blob).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get reader for (bucket=%q, object=%q): %w", bucket, blob, err)
	}
	defer r.Close()

	batch, err := DecodeCSV(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, blob, err)
	}
	logger.Log.Infof("Downloaded %d rows from gs://%s/%s", batch.Len(), bucket, blob)
	return batch, nil
}

// PutBlob uploads the batch as a CSV blob
func (s *Storage) PutBlob(ctx context.Context, batch *table.Batch, bucket, blob string) error {
	w := s.client.Bucket(bucket).Object(blob).NewWriter(ctx)
	w.ContentType = "text/csv"

	if err := EncodeCSV(w, batch); err != nil {
		w.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", bucket, blob, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload gs://%s/%s: %w", bucket, blob, err)
	}
	return nil
}

// EncodeCSV writes the header and rows of batch. Null cells are empty.
func EncodeCSV(w io.Writer, batch *table.Batch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(batch.Schema.Names()); err != nil {
		return err
	}
	record := make([]string, len(batch.Schema.Columns))
	for _, row := range batch.Rows {
		for i, v := range row {
			record[i] = table.Format(v)
		}
		if err := cw.Write(record[:len(row)]); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeCSV reads a CSV document with a header row into a text batch.
// An empty document yields an empty batch without columns.
func DecodeCSV(r io.Reader) (*table.Batch, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return &table.Batch{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	schema := table.TextSchema(header)
	batch := &table.Batch{Schema: schema}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse: %w", err)
		}
		row, err := schema.Convert(record)
		if err != nil {
			return nil, err
		}
		batch.Rows = append(batch.Rows, row)
	}
	return batch, nil
}

// ParseURI splits gs://bucket/path/to/object into bucket and object
func ParseURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	if trimmed == uri {
		return "", "", fmt.Errorf("expected %q to start with `gs://`", uri)
	}
	split := strings.SplitN(trimmed, "/", 2)
	if len(split) != 2 || split[0] == "" || split[1] == "" {
		return "", "", fmt.Errorf("path has incorrect format (expected form: `gs://bucket/path/to/object`): %q", uri)
	}
	return split[0], split[1], nil
}
