package table

import (
	"fmt"
	"time"
)

// Normalize maps a driver value onto the cell types a Batch carries.
// Integers widen to int64, floats to float64, byte slices and timestamps
// become strings and anything else is formatted with fmt.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, int64, float64, bool:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// FromValues builds a batch from driver rows. Each column takes the type
// shared by all of its non-nil cells; columns mixing types are typed Text
// and their cells formatted.
func FromValues(names []string, rows [][]any) *Batch {
	types := make([]Type, len(names))
	seen := make([]bool, len(names))
	for _, row := range rows {
		for i := range names {
			if i >= len(row) {
				continue
			}
			row[i] = Normalize(row[i])
			t, ok := typeOf(row[i])
			if !ok {
				continue
			}
			if !seen[i] {
				types[i], seen[i] = t, true
			} else if types[i] != t {
				types[i] = Text
			}
		}
	}

	cols := make([]Column, len(names))
	for i, name := range names {
		if !seen[i] {
			types[i] = Text
		}
		cols[i] = Column{Name: name, Type: types[i]}
	}

	for _, row := range rows {
		for i := range cols {
			if i < len(row) && cols[i].Type == Text && row[i] != nil {
				row[i] = Format(row[i])
			}
		}
	}
	return &Batch{Schema: Schema{Columns: cols}, Rows: rows}
}

func typeOf(v any) (Type, bool) {
	switch v.(type) {
	case string:
		return Text, true
	case int64:
		return Int64, true
	case float64:
		return Float64, true
	case bool:
		return Bool, true
	default:
		return "", false
	}
}
