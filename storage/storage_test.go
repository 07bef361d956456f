package storage

import (
	"bytes"
	"testing"
)

// --- SeekableBuffer tests ---

func TestSeekableBuffer_WriteAdvancesCursorAndHighWater(t *testing.T) {
	s := NewSeekableBuffer(make([]byte, 16))
	if n := s.Write([]byte("abcdefgh")); n != 8 {
		t.Fatalf("write = %d, want 8", n)
	}
	if s.Tell() != 8 {
		t.Errorf("tell = %d, want 8", s.Tell())
	}
	if s.BytesWritten() != 8 {
		t.Errorf("bytes written = %d, want 8", s.BytesWritten())
	}
}

func TestSeekableBuffer_WriteClampsAtCapacity(t *testing.T) {
	s := NewSeekableBuffer(make([]byte, 4))
	if n := s.Write([]byte("abcdefgh")); n != 4 {
		t.Fatalf("write = %d, want 4", n)
	}
	if n := s.Write([]byte("x")); n != 0 {
		t.Errorf("write past capacity = %d, want 0", n)
	}
	if s.Tell() != 4 || s.BytesWritten() != 4 {
		t.Errorf("tell/written = %d/%d, want 4/4", s.Tell(), s.BytesWritten())
	}
}

func TestSeekableBuffer_BackwardSeekKeepsHighWater(t *testing.T) {
	s := NewSeekableBuffer(make([]byte, 32))
	s.Write(bytes.Repeat([]byte{0xAB}, 20))
	if err := s.Seek(4, SeekSet); err != nil {
		t.Fatal(err)
	}
	// Patch 4 bytes in the middle, the way the codec rewrites a header.
	s.Write([]byte{1, 2, 3, 4})
	if s.Tell() != 8 {
		t.Errorf("tell = %d, want 8", s.Tell())
	}
	if s.BytesWritten() != 20 {
		t.Errorf("bytes written = %d, want 20 (high water must survive patch)", s.BytesWritten())
	}
}

func TestSeekableBuffer_SeekSetBounds(t *testing.T) {
	s := NewSeekableBuffer(make([]byte, 10))
	if err := s.Seek(10, SeekSet); err != nil {
		t.Errorf("seek to capacity should succeed: %v", err)
	}
	if s.Tell() != 10 {
		t.Errorf("tell = %d, want 10", s.Tell())
	}
	if err := s.Seek(11, SeekSet); err == nil {
		t.Error("seek past capacity should fail")
	}
	if s.Tell() != 10 {
		t.Errorf("failed seek moved cursor to %d", s.Tell())
	}
	if err := s.Seek(-1, SeekSet); err == nil {
		t.Error("negative set seek should fail")
	}
}

func TestSeekableBuffer_SeekCurrentBounds(t *testing.T) {
	s := NewSeekableBuffer(make([]byte, 10))
	s.Write([]byte{1, 2, 3, 4})
	if err := s.Seek(-2, SeekCurrent); err != nil {
		t.Fatal(err)
	}
	if s.Tell() != 2 {
		t.Errorf("tell = %d, want 2", s.Tell())
	}
	if err := s.Seek(9, SeekCurrent); err == nil {
		t.Error("current seek past capacity should fail")
	}
	if err := s.Seek(-3, SeekCurrent); err == nil {
		t.Error("current seek below zero should fail")
	}
	if s.Tell() != 2 {
		t.Errorf("failed seeks moved cursor to %d", s.Tell())
	}
}

func TestSeekableBuffer_EndSeekExtendsLogicalSizeOnly(t *testing.T) {
	s := NewSeekableBuffer(make([]byte, 64))
	s.Write(bytes.Repeat([]byte{1}, 10))
	s.Seek(0, SeekSet)

	if err := s.Seek(30, SeekEnd); err != nil {
		t.Fatal(err)
	}
	if s.BytesWritten() != 40 {
		t.Errorf("bytes written = %d, want 40", s.BytesWritten())
	}
	if s.Tell() != 0 {
		t.Errorf("end seek moved cursor to %d, want 0", s.Tell())
	}

	// Extending past capacity must fail without mutating either value.
	if err := s.Seek(25, SeekEnd); err == nil {
		t.Error("end seek past capacity should fail")
	}
	if s.BytesWritten() != 40 || s.Tell() != 0 {
		t.Errorf("failed end seek mutated state: written=%d tell=%d", s.BytesWritten(), s.Tell())
	}
}

func TestSeekableBuffer_ReadClampsAndAdvances(t *testing.T) {
	backing := []byte{10, 20, 30, 40}
	s := NewSeekableBuffer(backing)
	s.Seek(2, SeekSet)
	dst := make([]byte, 8)
	if n := s.Read(dst); n != 2 {
		t.Fatalf("read = %d, want 2", n)
	}
	if dst[0] != 30 || dst[1] != 40 {
		t.Errorf("read bytes = %v, want [30 40]", dst[:2])
	}
	if s.Tell() != 4 {
		t.Errorf("tell = %d, want 4", s.Tell())
	}
	if n := s.Read(dst); n != 0 {
		t.Errorf("read at end = %d, want 0", n)
	}
}

func TestSeekableBuffer_InvariantsUnderMixedOps(t *testing.T) {
	const total = 24
	s := NewSeekableBuffer(make([]byte, total))
	ops := []func(){
		func() { s.Write(bytes.Repeat([]byte{7}, 30)) },
		func() { s.Seek(0, SeekSet) },
		func() { s.Read(make([]byte, 50)) },
		func() { s.Seek(5, SeekEnd) },
		func() { s.Seek(-100, SeekCurrent) },
		func() { s.Seek(3, SeekSet) },
		func() { s.Write([]byte{1, 2}) },
	}
	for i, op := range ops {
		op()
		if s.Tell() > total {
			t.Fatalf("op %d: used %d > total %d", i, s.Tell(), total)
		}
		if s.BytesWritten() > total {
			t.Fatalf("op %d: written %d > total %d", i, s.BytesWritten(), total)
		}
	}
}

// --- MemoryReader tests ---

func TestMemoryReader_SequentialAndSeek(t *testing.T) {
	m := NewMemoryReader([]byte("hello world"))
	if !m.CanSeek() {
		t.Fatal("memory reader must be seekable")
	}
	p := make([]byte, 5)
	if n := m.Read(p); n != 5 || string(p) != "hello" {
		t.Fatalf("read = %d %q", n, p[:n])
	}
	if err := m.Seek(-5, SeekEnd); err != nil {
		t.Fatal(err)
	}
	if n := m.Read(p); n != 5 || string(p) != "world" {
		t.Fatalf("read after end seek = %d %q", n, p[:n])
	}
	if n := m.Read(p); n != 0 {
		t.Errorf("read at end = %d, want 0", n)
	}
	if err := m.Seek(100, SeekSet); err == nil {
		t.Error("seek past end should fail")
	}
	if m.Tell() != 11 {
		t.Errorf("failed seek moved position to %d", m.Tell())
	}
}

// --- Buffer tests ---

func TestBuffer_GrowAndOverwrite(t *testing.T) {
	b := NewBuffer(4)
	b.Write([]byte("abcdefgh"))
	if b.BytesWritten() != 8 {
		t.Fatalf("bytes written = %d, want 8", b.BytesWritten())
	}
	if err := b.Seek(2, SeekSet); err != nil {
		t.Fatal(err)
	}
	b.Write([]byte("XY"))
	data, ok := b.Bytes()
	if !ok {
		t.Fatal("buffer must be memory backed")
	}
	if string(data) != "abXYefgh" {
		t.Errorf("data = %q, want %q", data, "abXYefgh")
	}
	if b.BytesWritten() != 8 {
		t.Errorf("overwrite changed size to %d", b.BytesWritten())
	}
}

// --- Drain tests ---

// pipeReader is a deliberately non-seekable source that hands out data in
// small uneven chunks.
type pipeReader struct {
	data []byte
	pos  int
}

func (p *pipeReader) Read(dst []byte) int {
	if p.pos >= len(p.data) {
		return 0
	}
	n := len(dst)
	if n > 3 {
		n = 3
	}
	n = copy(dst[:n], p.data[p.pos:])
	p.pos += n
	return n
}

func (p *pipeReader) Seek(int64, SeekMode) error { return ErrSeekRange }
func (p *pipeReader) Tell() uint64               { return uint64(p.pos) }
func (p *pipeReader) CanSeek() bool              { return false }

func TestDrain_CopiesEveryByte(t *testing.T) {
	src := bytes.Repeat([]byte{0x5A, 0x3C, 0x99}, 1000)
	mr, n := Drain(&pipeReader{data: src})
	if n != uint64(len(src)) {
		t.Fatalf("drained %d bytes, want %d", n, len(src))
	}
	got := make([]byte, len(src))
	if rn := mr.Read(got); rn != len(src) {
		t.Fatalf("read back %d bytes, want %d", rn, len(src))
	}
	if !bytes.Equal(got, src) {
		t.Error("drained bytes differ from source")
	}
}

func TestDrain_EmptySource(t *testing.T) {
	mr, n := Drain(&pipeReader{})
	if n != 0 {
		t.Fatalf("drained %d bytes from empty source", n)
	}
	if mr.Len() != 0 {
		t.Errorf("reader length = %d, want 0", mr.Len())
	}
}
