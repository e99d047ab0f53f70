package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Infer derives a schema from a header and a sample of raw records.
//
// Each column gets the narrowest type that parses every non-empty sample
// cell, tried in the order Int64, Float64, Bool. Columns with no non-empty
// sample cells, and every column when the sample is empty, are Text.
func Infer(header []string, sample [][]string) Schema {
	schema := TextSchema(header)
	if len(sample) == 0 {
		return schema
	}

	for i := range schema.Columns {
		schema.Columns[i].Type = inferColumn(sample, i)
	}
	return schema
}

func inferColumn(sample [][]string, idx int) Type {
	candidates := []Type{Int64, Float64, Bool}
	seen := false
	for _, record := range sample {
		if idx >= len(record) || record[idx] == "" {
			continue
		}
		seen = true
		kept := candidates[:0]
		for _, t := range candidates {
			if _, err := parse(t, record[idx]); err == nil {
				kept = append(kept, t)
			}
		}
		candidates = kept
		if len(candidates) == 0 {
			return Text
		}
	}
	if !seen {
		return Text
	}
	return candidates[0]
}

// ConversionError describes a cell that does not fit its column
type ConversionError struct {
	Column string
	Want   Type
	Value  string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("column %s: value %q is not %s", e.Column, e.Value, e.Want)
}

// WidthError describes a record whose field count differs from the schema
type WidthError struct {
	Want int
	Got  int
}

func (e *WidthError) Error() string {
	return fmt.Sprintf("expected %d fields, got %d", e.Want, e.Got)
}

// Convert turns one raw record into typed values. Empty cells become nil.
func (s Schema) Convert(record []string) ([]any, error) {
	if len(record) != len(s.Columns) {
		return nil, &WidthError{Want: len(s.Columns), Got: len(record)}
	}

	row := make([]any, len(record))
	for i, raw := range record {
		if raw == "" {
			continue
		}
		v, err := parse(s.Columns[i].Type, raw)
		if err != nil {
			return nil, &ConversionError{Column: s.Columns[i].Name, Want: s.Columns[i].Type, Value: raw}
		}
		row[i] = v
	}
	return row, nil
}

func parse(t Type, raw string) (any, error) {
	switch t {
	case Int64:
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case Float64:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case Bool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid bool %q", raw)
	default:
		return raw, nil
	}
}

// Format renders a typed cell back to its delimited text form
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
