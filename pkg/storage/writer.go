package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/gerhard-ee/klondike/internal/logger"
	"github.com/gerhard-ee/klondike/pkg/database"
	"github.com/gerhard-ee/klondike/pkg/table"
)

type blobPutter interface {
	PutBlob(ctx context.Context, batch *table.Batch, bucket, blob string) error
}

// BlobWriter writes each batch to its own CSV blob. The destination
// "bucket.prefix" produces prefix-00001.csv, prefix-00002.csv and so on.
type BlobWriter struct {
	// Offset is added to every blob number, so a resumed job continues
	// after the blobs it already wrote.
	Offset int

	store blobPutter

	mu   sync.Mutex
	next map[string]int
}

var _ database.Writer = (*BlobWriter)(nil)

// NewBlobWriter creates a writer that uploads through s
func NewBlobWriter(s *Storage) *BlobWriter {
	return newBlobWriter(s)
}

func newBlobWriter(p blobPutter) *BlobWriter {
	return &BlobWriter{store: p, next: make(map[string]int)}
}

// BlobName returns the name of the n-th (1-based) blob under prefix
func BlobName(prefix string, n int) string {
	return fmt.Sprintf("%s-%05d.csv", prefix, n)
}

// Write uploads batch as the next blob of the destination. Cloud Storage
// writes take no options.
func (w *BlobWriter) Write(ctx context.Context, batch *table.Batch, destination string, opts database.WriteOptions) error {
	if opts != nil {
		return fmt.Errorf("%w: gcs destinations take no write options", database.ErrInvalidOption)
	}
	name, err := table.ParseName(destination)
	if err != nil {
		return fmt.Errorf("invalid destination format, expected 'bucket.prefix': %w", err)
	}

	w.mu.Lock()
	w.next[destination]++
	n := w.Offset + w.next[destination]
	w.mu.Unlock()

	blob := BlobName(name.Table, n)
	logger.Log.Infof("Writing to gs://%s/%s...", name.Namespace, blob)
	if err := w.store.PutBlob(ctx, batch, name.Namespace, blob); err != nil {
		return err
	}
	logger.Log.Infof("Successfully wrote %d rows to gs://%s/%s", batch.Len(), name.Namespace, blob)
	return nil
}
