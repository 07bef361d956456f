// Package storage defines the seekable byte storage abstraction consumed by
// the TIFF reader and writer, together with the in-memory implementations
// used to bridge non-seekable sources and bounded encode targets.
//
// Read and write counts follow the callback contract of the codec layer:
// operations report how many bytes they actually moved and are clamped at
// the storage bounds rather than failing. Seeks are the only fallible
// cursor operations; a failed seek never mutates state.
package storage

import "errors"

// SeekMode selects how a Seek offset is interpreted.
type SeekMode int

const (
	// SeekSet positions the cursor relative to the start of the storage.
	SeekSet SeekMode = iota
	// SeekCurrent positions the cursor relative to its current value.
	SeekCurrent
	// SeekEnd positions relative to the logical end. For SeekableBuffer
	// this extends the logical size instead of moving the cursor; see its
	// documentation.
	SeekEnd
)

// ErrSeekRange is returned by Seek when the target position falls outside
// the storage bounds. The cursor is left unchanged.
var ErrSeekRange = errors.New("storage: seek out of range")

// Reader is a byte source with optional random access.
//
// Read copies up to len(p) bytes and returns the count actually copied;
// zero means the source is exhausted. Sources reporting CanSeek() == false
// only guarantee a single forward pass; Seek and Tell on such sources are
// best-effort and callers are expected to buffer them first (see Drain).
type Reader interface {
	Read(p []byte) int
	Seek(offset int64, mode SeekMode) error
	Tell() uint64
	CanSeek() bool
}

// Writer is a byte sink with cursor and size bookkeeping.
//
// Write copies up to len(p) bytes at the cursor and returns the count
// actually written; a short count means the sink is out of capacity.
// Bytes exposes the backing buffer when the sink is memory-backed.
// BytesWritten reports the logical size: the furthest byte ever produced,
// which can exceed the current cursor after a backward seek.
type Writer interface {
	Write(p []byte) int
	Seek(offset int64, mode SeekMode) error
	Tell() uint64
	Bytes() ([]byte, bool)
	BytesWritten() uint64
}
