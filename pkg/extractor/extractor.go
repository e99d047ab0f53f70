package extractor

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gerhard-ee/klondike/internal/logger"
	"github.com/gerhard-ee/klondike/pkg/database"
	"github.com/gerhard-ee/klondike/pkg/table"
)

// Querier runs a query and returns its result set. Every
// database.Connector satisfies it.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*table.Batch, error)
}

// Output formats
const (
	CSV     = "csv"
	Parquet = "parquet"
)

// Extractor writes the result of a query to a file
type Extractor struct {
	// BatchSize pages the query with LIMIT/OFFSET when positive. Zero runs
	// the query once.
	BatchSize int64

	conn       Querier
	query      string
	outputFile string
	format     string
	checkpoint *Checkpoint
}

// Checkpoint represents the extraction progress
type Checkpoint struct {
	Query      string `json:"query"`
	LastOffset int64  `json:"last_offset"`
}

// New creates a new Extractor instance
func New(conn Querier, query, outputFile, format string) *Extractor {
	return &Extractor{
		conn:       conn,
		query:      query,
		outputFile: outputFile,
		format:     format,
	}
}

type pageWriter interface {
	write(batch *table.Batch) error
	close() error
}

// Extract runs the query and writes the output file
func (e *Extractor) Extract(ctx context.Context) error {
	if e.format != CSV && e.format != Parquet {
		return fmt.Errorf("unsupported format: %s", e.format)
	}
	offset := e.offset()

	var (
		w     pageWriter
		total int64
		pages int
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := e.conn.Query(ctx, e.page(offset))
		if err != nil {
			return fmt.Errorf("failed to extract batch: %w", err)
		}
		if w == nil {
			w, err = e.open(batch.Schema, offset > 0)
			if err != nil {
				return err
			}
			defer func() {
				if w != nil {
					w.close()
				}
			}()
		}

		if err := w.write(batch); err != nil {
			return fmt.Errorf("failed to write %s: %w", e.format, err)
		}
		n := int64(batch.Len())
		total += n
		offset += n
		pages++
		e.checkpoint = &Checkpoint{Query: e.query, LastOffset: offset}

		if e.BatchSize <= 0 || n < e.BatchSize {
			break
		}
		logger.Log.WithField("rows", total).Debugf("Extracted page %d", pages)
	}

	err := w.close()
	w = nil
	if err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	logger.Log.Infof("Extracted %d rows to %s", total, e.outputFile)
	return nil
}

// Run loads the checkpoint, extracts, and saves the checkpoint again. The
// checkpoint is saved when a page fails too, so a rerun continues after
// the last page written.
func (e *Extractor) Run(ctx context.Context) error {
	if err := e.LoadCheckpoint(); err != nil {
		return err
	}
	if err := e.Extract(ctx); err != nil {
		if cerr := e.SaveCheckpoint(); cerr != nil {
			logger.Log.Warnf("Failed to save checkpoint: %v", cerr)
		}
		return err
	}
	return e.SaveCheckpoint()
}

// offset is where a resumed extraction starts. Unpaged queries and
// Parquet files always start over.
func (e *Extractor) offset() int64 {
	if e.checkpoint == nil || e.BatchSize <= 0 || e.format == Parquet {
		return 0
	}
	return e.checkpoint.LastOffset
}

func (e *Extractor) page(offset int64) string {
	if e.BatchSize <= 0 {
		return e.query
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS extract_page LIMIT %d OFFSET %d", e.query, e.BatchSize, offset)
}

func (e *Extractor) open(schema table.Schema, resume bool) (pageWriter, error) {
	if e.format == Parquet {
		f, err := database.CreateParquet(e.outputFile, schema)
		if err != nil {
			return nil, err
		}
		return &parquetPages{file: f, schema: schema}, nil
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if resume {
		flags = os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(e.outputFile, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	w := &csvPages{file: file, w: csv.NewWriter(file)}
	if !resume {
		if err := w.w.Write(schema.Names()); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	return w, nil
}

type csvPages struct {
	file *os.File
	w    *csv.Writer
}

func (c *csvPages) write(batch *table.Batch) error {
	record := make([]string, len(batch.Schema.Columns))
	for _, row := range batch.Rows {
		for i, v := range row {
			record[i] = table.Format(v)
		}
		if err := c.w.Write(record[:len(row)]); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvPages) close() error {
	c.w.Flush()
	err := c.w.Error()
	if cerr := c.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// parquetPages keeps the schema of the first page. Later pages are
// conformed to it since per-page typing can differ.
type parquetPages struct {
	file   *database.ParquetFile
	schema table.Schema
}

func (p *parquetPages) write(batch *table.Batch) error {
	conformed, err := conform(batch, p.schema)
	if err != nil {
		return err
	}
	return p.file.Write(conformed)
}

func (p *parquetPages) close() error {
	return p.file.Close()
}

// conform converts batch to schema. A column typed differently on this
// page is accepted when it is entirely null or when schema types it Text.
func conform(batch *table.Batch, schema table.Schema) (*table.Batch, error) {
	if batch.Schema.Equal(schema) || batch.Len() == 0 {
		return &table.Batch{Schema: schema, Rows: batch.Rows}, nil
	}
	if len(batch.Schema.Columns) != len(schema.Columns) {
		return nil, fmt.Errorf("page has %d columns, expected %d", len(batch.Schema.Columns), len(schema.Columns))
	}

	for i, col := range schema.Columns {
		got := batch.Schema.Columns[i]
		if got.Type == col.Type {
			continue
		}
		for _, row := range batch.Rows {
			switch {
			case row[i] == nil:
			case col.Type == table.Text:
				row[i] = table.Format(row[i])
			default:
				return nil, fmt.Errorf("column %s changed type from %s to %s", col.Name, col.Type, got.Type)
			}
		}
	}
	return &table.Batch{Schema: schema, Rows: batch.Rows}, nil
}

// SaveCheckpoint saves the current extraction progress
func (e *Extractor) SaveCheckpoint() error {
	if e.checkpoint == nil {
		e.checkpoint = &Checkpoint{Query: e.query}
	}

	file, err := os.Create(e.checkpointFile())
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(e.checkpoint); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint loads the last saved extraction progress
func (e *Extractor) LoadCheckpoint() error {
	file, err := os.Open(e.checkpointFile())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}

	if checkpoint.Query != e.query {
		return fmt.Errorf("checkpoint query mismatch: got %q, want %q", checkpoint.Query, e.query)
	}

	e.checkpoint = &checkpoint
	return nil
}

func (e *Extractor) checkpointFile() string {
	dir := filepath.Dir(e.outputFile)
	base := filepath.Base(e.outputFile)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(dir, fmt.Sprintf("%s.checkpoint", name))
}
