package stream

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Opener opens a source URI for reading
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// FileOpener opens local paths and file:// URIs
type FileOpener struct{}

// Open opens the local file behind uri
func (FileOpener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return os.Open(strings.TrimPrefix(uri, "file://"))
}

// SchemeOpener dispatches on the URI scheme. Paths without a scheme and
// file:// URIs fall back to FileOpener unless a "file" entry is present.
type SchemeOpener map[string]Opener

// Open opens uri with the opener registered for its scheme
func (m SchemeOpener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	scheme := "file"
	if idx := strings.Index(uri, "://"); idx > 0 {
		scheme = uri[:idx]
	}
	if o, ok := m[scheme]; ok {
		return o.Open(ctx, uri)
	}
	if scheme == "file" {
		return FileOpener{}.Open(ctx, uri)
	}
	return nil, fmt.Errorf("unsupported source scheme %q", scheme)
}
