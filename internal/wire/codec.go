// Package wire encodes the payloads exchanged between workers: batches of
// length-prefixed records, count vectors, and the run status header. All
// framing uses protobuf varint encoding via protowire.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Status opens every run and tells non-coordinator workers whether the
// coordinator managed to read the input.
type Status uint64

const (
	StatusOK    Status = 0
	StatusAbort Status = 1
)

var ErrTruncated = errors.New("truncated payload")

// AppendRecords appends records to buf, each as a varint length prefix
// followed by the record bytes.
func AppendRecords(buf []byte, records []string) []byte {
	for _, rec := range records {
		buf = protowire.AppendString(buf, rec)
	}
	return buf
}

// ConsumeRecords decodes every record in buf.
func ConsumeRecords(buf []byte) ([]string, error) {
	var records []string
	for len(buf) > 0 {
		rec, n := protowire.ConsumeString(buf)
		if n < 0 {
			return nil, fmt.Errorf("record %d: %w", len(records), ErrTruncated)
		}
		records = append(records, rec)
		buf = buf[n:]
	}
	return records, nil
}

// AppendCounts appends a vector of non-negative counts as varints.
func AppendCounts(buf []byte, counts []int) []byte {
	for _, c := range counts {
		buf = protowire.AppendVarint(buf, uint64(c))
	}
	return buf
}

// ConsumeCounts decodes exactly want counts from buf.
func ConsumeCounts(buf []byte, want int) ([]int, error) {
	counts := make([]int, 0, want)
	for len(counts) < want {
		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return nil, fmt.Errorf("count %d of %d: %w", len(counts), want, ErrTruncated)
		}
		counts = append(counts, int(v))
		buf = buf[n:]
	}
	if len(buf) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after %d counts", len(buf), want)
	}
	return counts, nil
}

// AppendHeader appends the run header: status followed by the total record
// count.
func AppendHeader(buf []byte, status Status, total int) []byte {
	buf = protowire.AppendVarint(buf, uint64(status))
	buf = protowire.AppendVarint(buf, uint64(total))
	return buf
}

// ConsumeHeader decodes a run header.
func ConsumeHeader(buf []byte) (Status, int, error) {
	s, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, 0, fmt.Errorf("header status: %w", ErrTruncated)
	}
	buf = buf[n:]

	total, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, 0, fmt.Errorf("header total: %w", ErrTruncated)
	}

	return Status(s), int(total), nil
}
