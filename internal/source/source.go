// Package source implements the Byte Source abstraction: a uniform
// len/read_at/poll/chunk_hint capability consumed by internal/indexedlog,
// with three concrete adapters (plain file, zstd-framed file, unseekable
// stream) behind the same interface.
package source

import (
	"fmt"
	"time"
)

// Source is the uniform capability the core consumes over a byte stream
// that may be a local file, a compressed file, or a growing pipe/stdin.
type Source interface {
	// Len returns the current logical length. It may grow between calls.
	Len() uint64

	// ReadAt is a best-effort positioned read. Short reads are permitted at
	// EOF or under stream backpressure; err is nil unless no bytes at all
	// could be produced.
	ReadAt(buf []byte, offset uint64) (n int, err error)

	// Poll asks the source to advance its notion of Len if it has pending
	// data, waiting at most until deadline. It reports whether Len grew.
	Poll(deadline time.Time) bool

	// ChunkHint advises the natural alignment to read around target: a
	// fixed window for plain files, a frame's bounds for compressed files,
	// or a fixed window for streams. The caller clamps to its own bounds.
	ChunkHint(target uint64) (start, end uint64)

	// Name identifies the source for IndexStats and error messages.
	Name() string

	// Close releases any underlying file handle or background goroutine.
	Close() error
}

// UnsupportedFormatError reports that a file presented to the compressed
// adapter did not carry a recognizable frame header.
type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("source: %s: not a recognized compressed format", e.Path)
}

// DecoderFailureError reports a decode error from the compressed adapter.
type DecoderFailureError struct {
	Detail string
}

func (e *DecoderFailureError) Error() string {
	return fmt.Sprintf("source: decoder failure: %s", e.Detail)
}
