package stream

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gerhard-ee/klondike/pkg/table"
)

// BatchReader is a forward-only, finite producer of row batches. Next
// returns io.EOF once the source is exhausted; no empty batch is ever
// returned alongside a nil error by the readers in this package.
type BatchReader interface {
	Next(ctx context.Context) (*table.Batch, error)
	Close() error
}

// NewReader returns the batch reader selected by src.Strategy. A nil
// opener reads local files only. Nothing is opened until the first Next.
func NewReader(src SourceDescriptor, opener Opener) (BatchReader, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if opener == nil {
		opener = FileOpener{}
	}
	if src.Strategy == Reread {
		return &rereadReader{src: src, opener: opener}, nil
	}
	return &partitionReader{src: src, opener: opener}, nil
}

// scan walks the data rows of one opened source, replaying the
// inference sample before reading further records
type scan struct {
	rc      io.ReadCloser
	cr      *csv.Reader
	header  []string
	schema  table.Schema
	pending [][]string
	row     int64
}

// openScan opens the source, reads the header and infers the schema from
// the first src.InferenceRowBudget data rows. An empty source yields a scan
// with no header.
func openScan(ctx context.Context, opener Opener, src SourceDescriptor) (*scan, error) {
	rc, err := opener.Open(ctx, src.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrSourceUnavailable, src.Path, err)
	}

	cr := csv.NewReader(rc)
	cr.Comma = src.Separator
	cr.FieldsPerRecord = -1

	s := &scan{rc: rc, cr: cr}
	header, err := cr.Read()
	if err == io.EOF {
		return s, nil
	}
	if err != nil {
		rc.Close()
		return nil, readError(src.Path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	s.header = header

	for len(s.pending) < src.InferenceRowBudget {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rc.Close()
			return nil, readError(src.Path, err)
		}
		s.pending = append(s.pending, record)
	}
	s.schema = table.Infer(header, s.pending)
	return s, nil
}

func readError(path string, err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return fmt.Errorf("%w: failed to read %s: %v", ErrSourceUnavailable, path, err)
}

// next returns the next raw record and its 1-based data row number
func (s *scan) next() ([]string, int64, error) {
	if s.header == nil {
		return nil, 0, io.EOF
	}
	var record []string
	if len(s.pending) > 0 {
		record = s.pending[0]
		s.pending = s.pending[1:]
	} else {
		var err error
		record, err = s.cr.Read()
		if err != nil {
			return nil, 0, err
		}
	}
	s.row++
	return record, s.row, nil
}

func (s *scan) skip(n int64) error {
	for i := int64(0); i < n; i++ {
		if _, _, err := s.next(); err != nil {
			return err
		}
	}
	return nil
}

// take reads up to limit rows into a batch converted through schema.
// It returns io.EOF only when no rows were read.
func (s *scan) take(path string, schema table.Schema, limit, batchIndex int) (*table.Batch, error) {
	batch := &table.Batch{Schema: schema, Rows: make([][]any, 0, min(limit, 1024))}
	for len(batch.Rows) < limit {
		record, row, err := s.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, readError(path, err)
		}
		values, err := schema.Convert(record)
		if err != nil {
			return nil, &SchemaMismatchError{BatchIndex: batchIndex, Row: row, Err: err}
		}
		batch.Rows = append(batch.Rows, values)
	}
	if len(batch.Rows) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (s *scan) close() error {
	return s.rc.Close()
}

// partitionReader opens the source once and materializes one slice of
// BatchSize rows per call
type partitionReader struct {
	src     SourceDescriptor
	opener  Opener
	scan    *scan
	batches int
	done    bool
}

func (r *partitionReader) Next(ctx context.Context) (*table.Batch, error) {
	if r.done {
		return nil, io.EOF
	}
	if r.scan == nil {
		s, err := openScan(ctx, r.opener, r.src)
		if err != nil {
			r.done = true
			return nil, err
		}
		r.scan = s
		if err := s.skip(r.src.SkipRows); err != nil && err != io.EOF {
			r.done = true
			return nil, readError(r.src.Path, err)
		}
	}

	batch, err := r.scan.take(r.src.Path, r.scan.schema, r.src.BatchSize, r.batches+1)
	if err != nil {
		r.done = true
		r.Close()
		return nil, err
	}
	r.batches++
	if batch.Len() < r.src.BatchSize {
		r.done = true
		r.Close()
	}
	return batch, nil
}

func (r *partitionReader) Close() error {
	if r.scan == nil {
		return nil
	}
	s := r.scan
	r.scan = nil
	r.done = true
	return s.close()
}

// rereadReader reopens the source on every call, skips the rows consumed
// so far and reads up to BatchSize new rows. The schema is re-inferred from
// the same leading window each time and must match the first inference.
type rereadReader struct {
	src      SourceDescriptor
	opener   Opener
	schema   *table.Schema
	consumed int64
	batches  int
	done     bool
}

func (r *rereadReader) Next(ctx context.Context) (*table.Batch, error) {
	if r.done {
		return nil, io.EOF
	}

	s, err := openScan(ctx, r.opener, r.src)
	if err != nil {
		r.done = true
		return nil, err
	}
	defer s.close()

	batchIndex := r.batches + 1
	if r.schema == nil {
		r.schema = &s.schema
	} else if !r.schema.Equal(s.schema) {
		r.done = true
		return nil, &SchemaMismatchError{
			BatchIndex: batchIndex,
			Err:        fmt.Errorf("re-inferred columns %v differ from %v", s.schema.Columns, r.schema.Columns),
		}
	}

	if err := s.skip(r.src.SkipRows + r.consumed); err != nil {
		r.done = true
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, readError(r.src.Path, err)
	}

	batch, err := s.take(r.src.Path, *r.schema, r.src.BatchSize, batchIndex)
	if err != nil {
		r.done = true
		return nil, err
	}
	r.batches++
	r.consumed += int64(batch.Len())
	return batch, nil
}

func (r *rereadReader) Close() error {
	r.done = true
	return nil
}
