package tiff

import (
	"io"
	"testing"

	"go.uber.org/zap"

	"github.com/tilepress/tiff/storage"
)

func TestReaderClient_SizePreservesCursor(t *testing.T) {
	src := storage.NewMemoryReader(make([]byte, 100))
	src.Seek(40, storage.SeekSet)

	c := &readerClient{src: src, log: zap.NewNop()}
	if size := c.Size(); size != 100 {
		t.Errorf("Size = %d, want 100", size)
	}
	if src.Tell() != 40 {
		t.Errorf("Size moved cursor to %d, want 40", src.Tell())
	}
}

func TestReaderClient_WriteRejected(t *testing.T) {
	c := &readerClient{src: storage.NewMemoryReader(make([]byte, 8)), log: zap.NewNop()}
	if n := c.Write([]byte{1, 2, 3}); n != 0 {
		t.Errorf("Write through decode bridge accepted %d bytes", n)
	}
}

func TestReaderClient_SentinelSeekUnresolved(t *testing.T) {
	src := storage.NewMemoryReader(make([]byte, 64))
	src.Seek(17, storage.SeekSet)

	c := &readerClient{src: src, log: zap.NewNop()}
	if pos := c.Seek(seekSentinel, io.SeekStart); pos != seekSentinel {
		t.Errorf("sentinel seek = %#x, want the sentinel back", pos)
	}
	if src.Tell() != 17 {
		t.Errorf("sentinel seek moved cursor to %d", src.Tell())
	}
}

func TestWriterClient_ReadsBackWrittenBytes(t *testing.T) {
	dst := storage.NewSeekableBuffer(make([]byte, 32))
	c := &writerClient{dst: dst, log: zap.NewNop()}

	if n := c.Write([]byte("header!!")); n != 8 {
		t.Fatalf("write = %d", n)
	}
	if pos := c.Seek(0, io.SeekStart); pos != 0 {
		t.Fatalf("seek = %d", pos)
	}
	got := make([]byte, 8)
	if n := c.Read(got); n != 8 || string(got) != "header!!" {
		t.Fatalf("read back = %d %q", n, got[:n])
	}
	if c.Size() != 8 {
		t.Errorf("Size = %d, want 8", c.Size())
	}
}

func TestWriterClient_SentinelSeekUnresolved(t *testing.T) {
	dst := storage.NewSeekableBuffer(make([]byte, 32))
	c := &writerClient{dst: dst, log: zap.NewNop()}
	c.Write([]byte{1, 2, 3})

	if pos := c.Seek(seekSentinel, io.SeekStart); pos != seekSentinel {
		t.Errorf("sentinel seek = %#x, want the sentinel back", pos)
	}
	if dst.Tell() != 3 {
		t.Errorf("sentinel seek moved cursor to %d", dst.Tell())
	}
}

func TestWriterClient_EndSeekExtendsSize(t *testing.T) {
	dst := storage.NewSeekableBuffer(make([]byte, 32))
	c := &writerClient{dst: dst, log: zap.NewNop()}
	c.Write([]byte{1, 2, 3, 4, 5})
	c.Seek(0, io.SeekStart)

	c.Seek(3, io.SeekEnd)
	if c.Size() != 8 {
		t.Errorf("Size after end seek = %d, want 8", c.Size())
	}
	if dst.Tell() != 0 {
		t.Errorf("end seek moved cursor to %d", dst.Tell())
	}
}
