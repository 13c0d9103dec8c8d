// Package record reads and writes line-delimited sequence records. A record
// is its own sort key: plain lexicographic byte comparison of the line text.
package record

import (
	"errors"
	"fmt"
)

const (
	// DefaultMaxLength bounds a single record. Sequence reads in practice
	// stay around 100 characters; the default leaves generous headroom.
	DefaultMaxLength = 1024

	DefaultBufferSize = 1024 * 1024 // 1MB
)

// ErrTooLong reports an input line exceeding the configured maximum record
// length. Oversize lines are rejected, never truncated.
var ErrTooLong = errors.New("record exceeds maximum length")

// Options controls record reading.
type Options struct {
	MaxLength  int
	BufferSize int
}

func (o Options) withDefaults() Options {
	if o.MaxLength <= 0 {
		o.MaxLength = DefaultMaxLength
	}
	if o.BufferSize < o.MaxLength {
		o.BufferSize = max(DefaultBufferSize, o.MaxLength)
	}
	return o
}

// Validate checks a single line against the maximum record length.
func Validate(line string, maxLength int) error {
	if len(line) > maxLength {
		return fmt.Errorf("%w: %d > %d", ErrTooLong, len(line), maxLength)
	}
	return nil
}
