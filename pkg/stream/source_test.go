package stream

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSeparator(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{"", ',', false},
		{",", ',', false},
		{"|", '|', false},
		{`\t`, '\t', false},
		{"tab", '\t', false},
		{";", ';', false},
		{"§", '§', false},
		{"ab", 0, true},
		{`"`, 0, true},
		{"\n", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSeparator(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("ParseSeparator(%q) error = %v, want ErrInvalidConfiguration", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSeparator(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSeparator(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewSourceDefaults(t *testing.T) {
	src := NewSource("data.csv")
	if src.BatchSize != DefaultBatchSize || src.Separator != ',' || src.InferenceRowBudget != 0 || src.Strategy != Partition {
		t.Errorf("unexpected defaults: %+v", src)
	}
	if err := src.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

type stubOpener string

func (s stubOpener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

func TestSchemeOpener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.csv")
	if err := os.WriteFile(path, []byte("local"), 0644); err != nil {
		t.Fatal(err)
	}

	opener := SchemeOpener{"gs": stubOpener("remote")}
	tests := []struct {
		uri  string
		want string
	}{
		{path, "local"},
		{"file://" + path, "local"},
		{"gs://bucket/object.csv", "remote"},
	}
	for _, tt := range tests {
		rc, err := opener.Open(context.Background(), tt.uri)
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", tt.uri, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != tt.want {
			t.Errorf("Open(%q) read %q, want %q", tt.uri, data, tt.want)
		}
	}

	if _, err := opener.Open(context.Background(), "s3://bucket/key"); err == nil {
		t.Error("expected error for unregistered scheme")
	}
}

func TestNewReaderValidates(t *testing.T) {
	src := NewSource("data.csv")
	src.BatchSize = 0
	if _, err := NewReader(src, nil); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestReaderReturnsEOFAfterExhaustion(t *testing.T) {
	path := writeCSV(t, 3)
	for _, strategy := range strategies {
		r, err := NewReader(source(path, 2, strategy), nil)
		if err != nil {
			t.Fatal(err)
		}
		var sizes []int
		for {
			b, err := r.Next(context.Background())
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("%s: Next failed: %v", strategy, err)
			}
			sizes = append(sizes, b.Len())
		}
		if len(sizes) != 2 || sizes[0] != 2 || sizes[1] != 1 {
			t.Errorf("%s: batch sizes %v, want [2 1]", strategy, sizes)
		}
		if _, err := r.Next(context.Background()); err != io.EOF {
			t.Errorf("%s: Next after EOF = %v, want io.EOF", strategy, err)
		}
		if err := r.Close(); err != nil {
			t.Errorf("%s: Close failed: %v", strategy, err)
		}
	}
}

func TestMalformedQuoting(t *testing.T) {
	path := writeFile(t, "a,b\n1,\"unterminated\n")
	r, err := NewReader(source(path, 10, Partition), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	_, err = r.Next(context.Background())
	if err == nil || errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected a parse error, got %v", err)
	}
}
