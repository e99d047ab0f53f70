package database

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gerhard-ee/klondike/pkg/table"
)

func TestParquetSchema(t *testing.T) {
	got, err := ParquetSchema(testBatch().Schema)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"name=id, type=INT64, repetitiontype=OPTIONAL",
		"name=name, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
		"name=price, type=DOUBLE, repetitiontype=OPTIONAL",
		"name=active, type=BOOLEAN, repetitiontype=OPTIONAL",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParquetSchema() mismatch (-want +got):\n%s", diff)
	}
}

func TestParquetSchemaInvalidNames(t *testing.T) {
	for _, name := range []string{"a,b", "k=v", " padded", ""} {
		schema := table.TextSchema([]string{"id", name})
		if _, err := ParquetSchema(schema); !errors.Is(err, ErrInvalidColumnName) {
			t.Errorf("ParquetSchema(%q) error = %v, want ErrInvalidColumnName", name, err)
		}
		path := filepath.Join(t.TempDir(), "bad.parquet")
		if _, err := CreateParquet(path, schema); !errors.Is(err, ErrInvalidColumnName) {
			t.Errorf("CreateParquet(%q) error = %v, want ErrInvalidColumnName", name, err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("CreateParquet(%q) left a file behind", name)
		}
	}
}

func TestWriteParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.parquet")
	batch := testBatch(
		[]any{int64(1), "widget", 9.5, true},
		[]any{int64(2), nil, nil, false},
	)

	if err := WriteParquet(path, batch); err != nil {
		t.Fatalf("WriteParquet failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read parquet file: %v", err)
	}
	magic := []byte("PAR1")
	if !bytes.HasPrefix(data, magic) || !bytes.HasSuffix(data, magic) {
		t.Errorf("output is not a parquet file (%d bytes)", len(data))
	}
}

func TestWriteParquetBadPath(t *testing.T) {
	batch := &table.Batch{Schema: table.TextSchema([]string{"a"})}
	if err := WriteParquet(filepath.Join(t.TempDir(), "missing", "x.parquet"), batch); err == nil {
		t.Error("expected error for unwritable path")
	}
}

func TestParquetFileRejectsOtherSchema(t *testing.T) {
	f, err := CreateParquet(filepath.Join(t.TempDir(), "pages.parquet"), testBatch().Schema)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Write(testBatch([]any{int64(1), "a", 1.5, true})); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	other := &table.Batch{Schema: table.TextSchema([]string{"id"}), Rows: [][]any{{"1"}}}
	if err := f.Write(other); err == nil {
		t.Error("expected error for mismatched schema")
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
