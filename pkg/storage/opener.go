package storage

import (
	"context"
	"io"
)

// Opener opens gs:// URIs for the batch reader
type Opener struct {
	s *Storage
}

// Opener returns a source opener backed by this connector
func (s *Storage) Opener() Opener {
	return Opener{s: s}
}

// Open streams the object behind uri
func (o Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return o.s.client.Bucket(bucket).Object(object).NewReader(ctx)
}
