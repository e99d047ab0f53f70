package stream

import (
	"fmt"
	"unicode/utf8"
)

const (
	// DefaultBatchSize is the number of rows per write when none is given
	DefaultBatchSize = 10_000
	// DefaultSeparator is the field separator when none is given
	DefaultSeparator = ','
)

// Strategy selects how the batch reader walks the source
type Strategy string

const (
	// Partition opens the source once and slices it lazily
	Partition Strategy = "partition"
	// Reread reopens the source for every batch and skips what was consumed
	Reread Strategy = "reread"
)

// SourceDescriptor describes a delimited source file. It must not change
// once streaming starts.
type SourceDescriptor struct {
	// Path is a local path, a file:// URI or any URI the configured Opener handles
	Path string
	// Separator is the single field separator rune
	Separator rune
	// InferenceRowBudget is the number of leading data rows sampled to infer
	// column types. Zero types every column as text.
	InferenceRowBudget int
	// BatchSize is the maximum number of rows per batch
	BatchSize int
	// SkipRows skips this many leading data rows, used to resume a stream
	SkipRows int64
	// Strategy defaults to Partition when empty
	Strategy Strategy
}

// NewSource returns a descriptor for path with default separator and batch size
func NewSource(path string) SourceDescriptor {
	return SourceDescriptor{
		Path:      path,
		Separator: DefaultSeparator,
		BatchSize: DefaultBatchSize,
		Strategy:  Partition,
	}
}

// Validate checks the descriptor without touching the source
func (s SourceDescriptor) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("%w: source path is required", ErrInvalidConfiguration)
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfiguration, s.BatchSize)
	}
	if s.InferenceRowBudget < 0 {
		return fmt.Errorf("%w: inference row budget must not be negative, got %d", ErrInvalidConfiguration, s.InferenceRowBudget)
	}
	if s.SkipRows < 0 {
		return fmt.Errorf("%w: skip rows must not be negative, got %d", ErrInvalidConfiguration, s.SkipRows)
	}
	if !validSeparator(s.Separator) {
		return fmt.Errorf("%w: unsupported separator %q", ErrInvalidConfiguration, s.Separator)
	}
	switch s.Strategy {
	case "", Partition, Reread:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfiguration, s.Strategy)
	}
	return nil
}

// ParseSeparator turns a flag or config value into a separator rune.
// The escapes `\t` and "tab" are accepted for tab-separated files.
func ParseSeparator(s string) (rune, error) {
	switch s {
	case "":
		return DefaultSeparator, nil
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || !validSeparator(r) {
		return 0, fmt.Errorf("%w: separator must be a single character, got %q", ErrInvalidConfiguration, s)
	}
	return r, nil
}

func validSeparator(r rune) bool {
	return r != 0 && r != '"' && r != '\r' && r != '\n' && utf8.ValidRune(r) && r != utf8.RuneError
}
