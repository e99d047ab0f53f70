package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gerhard-ee/klondike/pkg/table"
)

// fakeQuerier serves rows and honours the LIMIT/OFFSET page wrapper
type fakeQuerier struct {
	names   []string
	rows    [][]any
	queries []string
	err     error
	// failFrom fails page queries starting at or past this offset
	failFrom int
}

func (f *fakeQuerier) Query(ctx context.Context, query string, args ...any) (*table.Batch, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	rows := f.rows
	if idx := strings.LastIndex(query, " LIMIT "); idx >= 0 {
		var limit, offset int
		if _, err := fmt.Sscanf(query[idx:], " LIMIT %d OFFSET %d", &limit, &offset); err != nil {
			return nil, err
		}
		if f.failFrom > 0 && offset >= f.failFrom {
			return nil, fmt.Errorf("page at offset %d failed", offset)
		}
		rows = rows[min(offset, len(rows)):min(offset+limit, len(rows))]
	}
	page := make([][]any, len(rows))
	for i, r := range rows {
		page[i] = append([]any(nil), r...)
	}
	return table.FromValues(f.names, page), nil
}

func users(n int) *fakeQuerier {
	f := &fakeQuerier{names: []string{"id", "name", "age"}}
	for i := 0; i < n; i++ {
		f.rows = append(f.rows, []any{int64(i + 1), fmt.Sprintf("Test User %d", i), int64(20 + i)})
	}
	return f
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}
	return string(data)
}

func TestExtractor_CSV(t *testing.T) {
	output := filepath.Join(t.TempDir(), "test.csv")
	q := users(3)
	q.rows[1][1] = nil

	e := New(q, "SELECT id, name, age FROM test_table", output, CSV)
	if err := e.Extract(context.Background()); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := "id,name,age\n1,Test User 0,20\n2,,21\n3,Test User 2,22\n"
	if diff := cmp.Diff(want, readFile(t, output)); diff != "" {
		t.Errorf("CSV mismatch (-want +got):\n%s", diff)
	}
	if len(q.queries) != 1 || q.queries[0] != "SELECT id, name, age FROM test_table" {
		t.Errorf("queries = %v", q.queries)
	}
}

func TestExtractor_EmptyResult(t *testing.T) {
	output := filepath.Join(t.TempDir(), "empty.csv")
	e := New(users(0), "SELECT * FROM test_table", output, CSV)
	if err := e.Extract(context.Background()); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := readFile(t, output); got != "id,name,age\n" {
		t.Errorf("expected header only, got %q", got)
	}
}

func TestExtractor_Batches(t *testing.T) {
	tests := []struct {
		name      string
		rows      int
		batchSize int64
		queries   int
	}{
		{"partial last page", 100, 30, 4},
		{"exact pages", 90, 30, 4},
		{"single page", 10, 30, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := filepath.Join(t.TempDir(), "out.csv")
			q := users(tt.rows)
			e := New(q, "SELECT * FROM test_table", output, CSV)
			e.BatchSize = tt.batchSize
			if err := e.Extract(context.Background()); err != nil {
				t.Fatalf("Extract failed: %v", err)
			}

			lines := strings.Split(strings.TrimSpace(readFile(t, output)), "\n")
			if len(lines) != tt.rows+1 {
				t.Errorf("got %d lines, want %d", len(lines), tt.rows+1)
			}
			if len(q.queries) != tt.queries {
				t.Errorf("ran %d queries, want %d", len(q.queries), tt.queries)
			}
			if !strings.HasPrefix(q.queries[0], "SELECT * FROM (SELECT * FROM test_table) AS extract_page LIMIT") {
				t.Errorf("unexpected page query %q", q.queries[0])
			}
		})
	}
}

func TestExtractor_Parquet(t *testing.T) {
	output := filepath.Join(t.TempDir(), "test.parquet")
	q := users(25)
	// a page where age is entirely null types it differently
	for i := 10; i < 20; i++ {
		q.rows[i][2] = nil
	}
	e := New(q, "SELECT * FROM test_table", output, Parquet)
	e.BatchSize = 10
	if err := e.Extract(context.Background()); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	data := []byte(readFile(t, output))
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Errorf("output is not a parquet file")
	}
}

func TestExtractor_Checkpoint(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "resume.csv")
	q := users(5)
	first := New(q, "SELECT * FROM test_table", output, CSV)
	first.BatchSize = 2
	if err := first.Extract(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := first.SaveCheckpoint(); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "resume.checkpoint")); err != nil {
		t.Errorf("checkpoint file missing: %v", err)
	}

	// new rows arrive; a resumed run appends only those
	q.rows = append(q.rows, []any{int64(6), "late", int64(40)})
	resumed := New(q, "SELECT * FROM test_table", output, CSV)
	resumed.BatchSize = 2
	if err := resumed.LoadCheckpoint(); err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if err := resumed.Extract(context.Background()); err != nil {
		t.Fatalf("resumed Extract failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(readFile(t, output)), "\n")
	if len(lines) != 7 || lines[6] != "6,late,40" {
		t.Errorf("unexpected output after resume: %q", lines)
	}

	other := New(q, "SELECT 1", output, CSV)
	if err := other.LoadCheckpoint(); err == nil {
		t.Error("expected checkpoint query mismatch")
	}
}

func TestExtractor_Errors(t *testing.T) {
	dir := t.TempDir()
	if err := New(users(1), "q", filepath.Join(dir, "x.json"), "json").Extract(context.Background()); err == nil {
		t.Error("expected error for unsupported format")
	}

	boom := errors.New("boom")
	err := New(&fakeQuerier{err: boom}, "q", filepath.Join(dir, "x.csv"), CSV).Extract(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("expected query error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(users(1), "q", filepath.Join(dir, "y.csv"), CSV).Extract(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	if err := New(users(1), "q", filepath.Join(dir, "missing", "z.csv"), CSV).Extract(context.Background()); err == nil {
		t.Error("expected error for unwritable output")
	}
}

func TestExtractor_UnpagedIgnoresCheckpoint(t *testing.T) {
	output := filepath.Join(t.TempDir(), "full.csv")
	for i := 0; i < 2; i++ {
		e := New(users(3), "SELECT * FROM test_table", output, CSV)
		if err := e.LoadCheckpoint(); err != nil {
			t.Fatal(err)
		}
		if err := e.Extract(context.Background()); err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if err := e.SaveCheckpoint(); err != nil {
			t.Fatal(err)
		}
	}
	lines := strings.Split(strings.TrimSpace(readFile(t, output)), "\n")
	if len(lines) != 4 {
		t.Errorf("got %d lines after rerun, want 4", len(lines))
	}
}

func TestExtractor_RunResumesAfterFailure(t *testing.T) {
	output := filepath.Join(t.TempDir(), "partial.csv")
	q := users(5)
	q.failFrom = 4

	e := New(q, "SELECT * FROM test_table", output, CSV)
	e.BatchSize = 2
	if err := e.Run(context.Background()); err == nil {
		t.Fatal("expected the third page to fail")
	}
	if got := len(strings.Split(strings.TrimSpace(readFile(t, output)), "\n")); got != 5 {
		t.Fatalf("got %d lines after failure, want header and 4 rows", got)
	}

	q.failFrom = 0
	q.queries = nil
	resumed := New(q, "SELECT * FROM test_table", output, CSV)
	resumed.BatchSize = 2
	if err := resumed.Run(context.Background()); err != nil {
		t.Fatalf("resumed Run failed: %v", err)
	}
	want := []string{"SELECT * FROM (SELECT * FROM test_table) AS extract_page LIMIT 2 OFFSET 4"}
	if diff := cmp.Diff(want, q.queries); diff != "" {
		t.Errorf("resumed queries mismatch (-want +got):\n%s", diff)
	}
	lines := strings.Split(strings.TrimSpace(readFile(t, output)), "\n")
	if len(lines) != 6 || lines[5] != "5,Test User 4,24" {
		t.Errorf("unexpected output after resume: %q", lines)
	}
}

func TestExtractor_ParquetRerun(t *testing.T) {
	output := filepath.Join(t.TempDir(), "users.parquet")
	for i := 0; i < 2; i++ {
		q := users(3)
		e := New(q, "SELECT * FROM test_table", output, Parquet)
		e.BatchSize = 2
		if err := e.Run(context.Background()); err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
		if !strings.HasSuffix(q.queries[0], "OFFSET 0") {
			t.Errorf("run %d started at %q, want offset 0", i+1, q.queries[0])
		}
	}
}
