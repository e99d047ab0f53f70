package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gerhard-ee/klondike/internal/config"
	"github.com/gerhard-ee/klondike/pkg/table"
)

func setupDuckDB(t *testing.T) *DuckDB {
	t.Helper()
	cfg := &config.Config{Type: "duckdb", Database: filepath.Join(t.TempDir(), "test.duckdb")}
	db, err := NewDuckDB(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open DuckDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testBatch(rows ...[]any) *table.Batch {
	return &table.Batch{
		Schema: table.Schema{Columns: []table.Column{
			{Name: "id", Type: table.Int64},
			{Name: "name", Type: table.Text},
			{Name: "price", Type: table.Float64},
			{Name: "active", Type: table.Bool},
		}},
		Rows: rows,
	}
}

func TestDuckDBWriteAndRead(t *testing.T) {
	ctx := context.Background()
	db := setupDuckDB(t)

	exists, err := db.TableExists(ctx, "main.orders")
	if err != nil {
		t.Fatalf("TableExists failed: %v", err)
	}
	if exists {
		t.Fatal("expected main.orders to be missing")
	}

	batch := testBatch(
		[]any{int64(1), "widget", 9.5, true},
		[]any{int64(2), nil, 3.25, false},
		[]any{int64(3), "gizmo", nil, nil},
	)
	if err := db.Write(ctx, batch, "main.orders", SQLOptions{ChunkSize: 2}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := db.Read(ctx, "SELECT id, name, price, active FROM main.orders ORDER BY id")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if diff := cmp.Diff(batch.Rows, got.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(batch.Schema, got.Schema); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}

	tables, err := db.ListTables(ctx, "main")
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	if diff := cmp.Diff([]string{"orders"}, tables); diff != "" {
		t.Errorf("ListTables mismatch (-want +got):\n%s", diff)
	}
}

func TestDuckDBIfExists(t *testing.T) {
	ctx := context.Background()
	db := setupDuckDB(t)

	first := testBatch([]any{int64(1), "a", 1.0, true})
	if err := db.Write(ctx, first, "main.items", SQLOptions{IfExists: Fail}); err != nil {
		t.Fatalf("initial Write failed: %v", err)
	}

	err := db.Write(ctx, first, "main.items", SQLOptions{IfExists: Fail})
	if !errors.Is(err, ErrTableExists) {
		t.Fatalf("expected ErrTableExists, got %v", err)
	}

	count := func() int64 {
		t.Helper()
		b, err := db.Read(ctx, "SELECT COUNT(*) AS n FROM main.items")
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		return b.Rows[0][0].(int64)
	}

	if err := db.Write(ctx, first, "main.items", nil); err != nil {
		t.Fatalf("append Write failed: %v", err)
	}
	if n := count(); n != 2 {
		t.Errorf("after append: %d rows, want 2", n)
	}

	if err := db.Write(ctx, first, "main.items", SQLOptions{IfExists: Truncate}); err != nil {
		t.Fatalf("truncate Write failed: %v", err)
	}
	if n := count(); n != 1 {
		t.Errorf("after truncate: %d rows, want 1", n)
	}

	renamed := &table.Batch{
		Schema: table.Schema{Columns: []table.Column{{Name: "sku", Type: table.Text}}},
		Rows:   [][]any{{"x"}, {"y"}, {"z"}},
	}
	if err := db.Write(ctx, renamed, "main.items", SQLOptions{IfExists: Drop}); err != nil {
		t.Fatalf("drop Write failed: %v", err)
	}
	got, err := db.Read(ctx, "SELECT sku FROM main.items ORDER BY sku")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if diff := cmp.Diff(renamed.Rows, got.Rows); diff != "" {
		t.Errorf("rows mismatch after drop (-want +got):\n%s", diff)
	}
}

func TestDuckDBErrors(t *testing.T) {
	ctx := context.Background()
	db := setupDuckDB(t)

	if err := db.Write(ctx, testBatch(), "orders", nil); !errors.Is(err, table.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
	if err := db.Write(ctx, testBatch(), "main.orders", BigQueryOptions{}); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
	empty, err := db.Read(ctx, "SELECT 1 AS x WHERE 1 = 0")
	if err != nil {
		t.Errorf("Read of an empty result failed: %v", err)
	} else if empty.Len() != 0 || len(empty.Schema.Columns) != 1 {
		t.Errorf("unexpected empty result: %+v", empty)
	}
	if _, err := db.Query(ctx, "SELECT * FROM main.missing"); err == nil {
		t.Error("expected query against a missing table to fail")
	}
}

func TestNewConnectorUnsupported(t *testing.T) {
	if _, err := NewConnector(context.Background(), &config.Config{Type: "oracle"}); err == nil {
		t.Error("expected error for unsupported database type")
	}
}

func TestNewConnectorDuckDB(t *testing.T) {
	conn, err := NewConnector(context.Background(), &config.Config{Type: "duckdb"})
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}
	defer conn.Close()
	if _, ok := conn.(*DuckDB); !ok {
		t.Errorf("expected *DuckDB, got %T", conn)
	}
}
