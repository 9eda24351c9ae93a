// Package jsonutil provides size-capped body reading with JSON compaction for
// upstream payloads that are passed through verbatim.
package jsonutil

import (
	"fmt"
	"io"

	"pkt.systems/jpact"
)

// CompactToBuffer reads JSON from r, stripping insignificant whitespace.
// maxBytes limits the number of bytes read (<=0 disables the limit). Invalid
// JSON is an error.
func CompactToBuffer(r io.Reader, maxBytes int64) ([]byte, error) {
	return jpact.CompactToBuffer(r, maxBytes)
}

// ReadCapped reads at most maxBytes from r without requiring JSON. maxBytes
// <=0 disables the limit. The payload is returned as-is; exceeding the cap is
// an error rather than a truncation.
func ReadCapped(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("jsonutil: payload exceeds %d bytes", maxBytes)
	}
	return data, nil
}
