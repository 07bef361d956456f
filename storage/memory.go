package storage

// MemoryReader is a read-only, seekable Reader over a byte slice. The slice
// is not copied; the caller must keep it alive for the reader's lifetime.
type MemoryReader struct {
	data []byte
	pos  uint64
}

// NewMemoryReader returns a MemoryReader over data.
func NewMemoryReader(data []byte) *MemoryReader {
	return &MemoryReader{data: data}
}

// Read copies up to len(p) bytes from the current position.
func (m *MemoryReader) Read(p []byte) int {
	if m.pos >= uint64(len(m.data)) {
		return 0
	}
	n := copy(p, m.data[m.pos:])
	m.pos += uint64(n)
	return n
}

// Seek repositions the read cursor. All three modes are conventional:
// SeekEnd positions relative to the end of the data.
func (m *MemoryReader) Seek(offset int64, mode SeekMode) error {
	size := int64(len(m.data))
	var target int64
	switch mode {
	case SeekCurrent:
		target = int64(m.pos) + offset
	case SeekEnd:
		target = size + offset
	default:
		target = offset
	}
	if target < 0 || target > size {
		return ErrSeekRange
	}
	m.pos = uint64(target)
	return nil
}

// Tell returns the current read position.
func (m *MemoryReader) Tell() uint64 { return m.pos }

// CanSeek reports true; MemoryReader supports random access.
func (m *MemoryReader) CanSeek() bool { return true }

// Len returns the total number of bytes backing the reader.
func (m *MemoryReader) Len() uint64 { return uint64(len(m.data)) }

// Buffer is a growable in-memory Writer. Writes append at the cursor,
// growing the buffer as needed. It backs the decode driver's private copy
// of non-seekable sources and generic byte-level format copies.
type Buffer struct {
	data []byte
	pos  uint64
}

// NewBuffer returns an empty Buffer with room for at least capacity bytes
// before reallocating.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Write copies p at the cursor, growing the buffer when the write extends
// past the current end. It always writes len(p) bytes.
func (b *Buffer) Write(p []byte) int {
	end := b.pos + uint64(len(p))
	if end > uint64(len(b.data)) {
		if end > uint64(cap(b.data)) {
			grown := make([]byte, end)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p)
}

// Seek repositions the write cursor within the already-written range.
func (b *Buffer) Seek(offset int64, mode SeekMode) error {
	size := int64(len(b.data))
	var target int64
	switch mode {
	case SeekCurrent:
		target = int64(b.pos) + offset
	case SeekEnd:
		target = size + offset
	default:
		target = offset
	}
	if target < 0 || target > size {
		return ErrSeekRange
	}
	b.pos = uint64(target)
	return nil
}

// Tell returns the current cursor position.
func (b *Buffer) Tell() uint64 { return b.pos }

// Bytes returns the written bytes. The slice aliases the buffer's storage.
func (b *Buffer) Bytes() ([]byte, bool) { return b.data, true }

// BytesWritten returns the logical size of the buffer.
func (b *Buffer) BytesWritten() uint64 { return uint64(len(b.data)) }

// SeekableBuffer is a fixed-capacity read/write sink over a caller-supplied
// buffer. It tracks two values: the cursor ("used", moved by reads, writes
// and Set/Current seeks) and the high-water mark ("written", the furthest
// byte ever produced). The codec sizes its output by seeking past the
// logical end and later seeks backward to patch headers, so the logical
// size must survive cursor movement; BytesWritten reports it.
//
// The buffer never grows. Writes and reads are clamped at the capacity and
// report short counts; overflowing the capacity is a caller sizing error.
type SeekableBuffer struct {
	buf     []byte
	used    uint64
	written uint64
}

// NewSeekableBuffer wraps buf, whose length is the sink's fixed capacity.
func NewSeekableBuffer(buf []byte) *SeekableBuffer {
	return &SeekableBuffer{buf: buf}
}

// Write copies p at the cursor, clamped at capacity, and raises the
// high-water mark when the cursor passes it.
func (s *SeekableBuffer) Write(p []byte) int {
	if s.used >= uint64(len(s.buf)) {
		return 0
	}
	n := copy(s.buf[s.used:], p)
	s.used += uint64(n)
	if s.used > s.written {
		s.written = s.used
	}
	return n
}

// Read copies up to len(p) bytes from the cursor, clamped at capacity.
func (s *SeekableBuffer) Read(p []byte) int {
	if s.used >= uint64(len(s.buf)) {
		return 0
	}
	n := copy(p, s.buf[s.used:])
	s.used += uint64(n)
	return n
}

// Seek adjusts the cursor or, for SeekEnd, the logical size:
//
//   - SeekSet moves the cursor to offset; fails when offset exceeds the
//     capacity.
//   - SeekCurrent moves the cursor by offset; fails when the result falls
//     outside [0, capacity].
//   - SeekEnd adds offset to the high-water mark without moving the
//     cursor; fails when the result falls outside [0, capacity]. This is
//     how the codec extends the logical file length.
//
// A failed seek leaves both values untouched.
func (s *SeekableBuffer) Seek(offset int64, mode SeekMode) error {
	total := int64(len(s.buf))
	switch mode {
	case SeekCurrent:
		target := int64(s.used) + offset
		if target < 0 || target > total {
			return ErrSeekRange
		}
		s.used = uint64(target)
	case SeekEnd:
		target := int64(s.written) + offset
		if target < 0 || target > total {
			return ErrSeekRange
		}
		s.written = uint64(target)
	default:
		if offset < 0 || offset > total {
			return ErrSeekRange
		}
		s.used = uint64(offset)
	}
	return nil
}

// Tell returns the cursor position.
func (s *SeekableBuffer) Tell() uint64 { return s.used }

// CanSeek reports true.
func (s *SeekableBuffer) CanSeek() bool { return true }

// Bytes returns the full backing buffer; its length is the capacity.
func (s *SeekableBuffer) Bytes() ([]byte, bool) { return s.buf, true }

// BytesWritten returns the logical size: the high-water mark of bytes
// produced, independent of the current cursor.
func (s *SeekableBuffer) BytesWritten() uint64 { return s.written }

// drainChunkSize matches the read granularity used when buffering
// non-seekable sources.
const drainChunkSize = 1024

// Drain fully reads src into an owned buffer and returns a seekable
// read-only view over the drained bytes, together with the byte count.
// Every byte drained is available to the returned reader.
func Drain(src Reader) (*MemoryReader, uint64) {
	buf := NewBuffer(drainChunkSize)
	chunk := make([]byte, drainChunkSize)
	var total uint64
	for {
		n := src.Read(chunk)
		if n <= 0 {
			break
		}
		buf.Write(chunk[:n])
		total += uint64(n)
	}
	data, _ := buf.Bytes()
	return NewMemoryReader(data[:total]), total
}
