package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/gerhard-ee/klondike/pkg/table"
)

// ErrInvalidColumnName is returned for column names that cannot be
// stored in Parquet metadata
var ErrInvalidColumnName = errors.New("invalid parquet column name")

// ParquetSchema returns the CSV writer metadata describing the batch
// columns. Every column is optional so empty cells stay null.
func ParquetSchema(schema table.Schema) ([]string, error) {
	md := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		// the metadata is a comma separated key=value list
		if strings.TrimSpace(col.Name) != col.Name || col.Name == "" || strings.ContainsAny(col.Name, ",=") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidColumnName, col.Name)
		}
		var typ string
		switch col.Type {
		case table.Int64:
			typ = "type=INT64"
		case table.Float64:
			typ = "type=DOUBLE"
		case table.Bool:
			typ = "type=BOOLEAN"
		default:
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		md[i] = fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", col.Name, typ)
	}
	return md, nil
}

// ParquetFile writes batches sharing one schema to a Parquet file
type ParquetFile struct {
	fw     source.ParquetFile
	pw     *writer.CSVWriter
	schema table.Schema
	rows   int64
}

// CreateParquet creates the file at path for batches of schema
func CreateParquet(path string, schema table.Schema) (*ParquetFile, error) {
	md, err := ParquetSchema(schema)
	if err != nil {
		return nil, err
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	pw, err := writer.NewCSVWriter(md, fw, 4)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &ParquetFile{fw: fw, pw: pw, schema: schema}, nil
}

// Write appends the rows of batch
func (f *ParquetFile) Write(batch *table.Batch) error {
	if !batch.Schema.Equal(f.schema) {
		return fmt.Errorf("batch schema %v does not match parquet schema %v", batch.Schema.Names(), f.schema.Names())
	}
	for _, row := range batch.Rows {
		f.rows++
		if err := f.pw.Write(row); err != nil {
			return fmt.Errorf("failed to write parquet row %d: %w", f.rows, err)
		}
	}
	return nil
}

// Close writes the footer and closes the file
func (f *ParquetFile) Close() error {
	err := f.pw.WriteStop()
	if cerr := f.fw.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

// WriteParquet writes the batch to a Parquet file at path
func WriteParquet(path string, batch *table.Batch) error {
	f, err := CreateParquet(path, batch.Schema)
	if err != nil {
		return err
	}
	if err := f.Write(batch); err != nil {
		f.fw.Close()
		return err
	}
	return f.Close()
}
