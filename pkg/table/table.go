package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned when a qualified table name cannot be parsed
var ErrInvalidName = errors.New("invalid table name")

// Type is the logical type of a column
type Type string

const (
	Text    Type = "TEXT"
	Int64   Type = "INT64"
	Float64 Type = "FLOAT64"
	Bool    Type = "BOOL"
)

// Column represents a named, typed column
type Column struct {
	Name string
	Type Type
}

// Schema is the ordered column layout shared by every row of a batch
type Schema struct {
	Columns []Column
}

// TextSchema returns a schema typing every named column as Text
func TextSchema(names []string) Schema {
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Type: Text}
	}
	return Schema{Columns: cols}
}

// Names returns the column names in order
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// Equal reports whether both schemas have the same columns in the same order
func (s Schema) Equal(other Schema) bool {
	if len(s.Columns) != len(other.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// Batch is an ordered, rectangular slice of rows sharing one schema.
// Cell values are nil, string, int64, float64 or bool.
type Batch struct {
	Schema Schema
	Rows   [][]any
}

// Len returns the number of rows in the batch
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Name is a qualified destination name in <namespace>.<table> form
type Name struct {
	// Namespace is the dataset, schema or bucket part. It may itself be
	// dotted, e.g. "project.dataset" for BigQuery.
	Namespace string
	Table     string
}

// ParseName splits a qualified name on its last dot
func ParseName(qualified string) (Name, error) {
	idx := strings.LastIndex(qualified, ".")
	if idx <= 0 || idx == len(qualified)-1 {
		return Name{}, fmt.Errorf("%w: expected '<namespace>.<table>', got %q", ErrInvalidName, qualified)
	}
	for _, part := range strings.Split(qualified, ".") {
		if strings.TrimSpace(part) == "" {
			return Name{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidName, qualified)
		}
	}
	return Name{Namespace: qualified[:idx], Table: qualified[idx+1:]}, nil
}

func (n Name) String() string {
	return n.Namespace + "." + n.Table
}
