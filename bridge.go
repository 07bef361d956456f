package tiff

import (
	"io"

	"go.uber.org/zap"

	"github.com/tilepress/tiff/storage"
)

// seekSentinel is an offset value the codec hands to Seek when it has no
// real target. It is returned unresolved and never forwarded to the
// storage, so the cursor does not move.
const seekSentinel = 0xFFFFFFFF

// readerClient bridges a storage.Reader into the codec's Client contract.
// The bridge is strictly read-only: a decode must never produce bytes, so
// Write reports a contract violation and accepts nothing.
type readerClient struct {
	src storage.Reader
	log *zap.Logger
}

func (b *readerClient) Read(p []byte) int { return b.src.Read(p) }

func (b *readerClient) Write(p []byte) int {
	b.log.Error("write issued through a decode bridge", zap.Int("bytes", len(p)))
	return 0
}

func (b *readerClient) Seek(offset int64, whence int) int64 {
	if offset == seekSentinel {
		return seekSentinel
	}
	b.src.Seek(offset, seekMode(whence))
	return int64(b.src.Tell())
}

// Size reports the total length of the source by seeking to the end and
// restoring the cursor afterwards.
func (b *readerClient) Size() int64 {
	pos := b.src.Tell()
	if err := b.src.Seek(0, storage.SeekEnd); err != nil {
		return 0
	}
	size := b.src.Tell()
	b.src.Seek(int64(pos), storage.SeekSet)
	return int64(size)
}

// Close is a no-op; the source storage belongs to the caller.
func (b *readerClient) Close() error { return nil }

// writerClient bridges a storage.Writer into the codec's Client contract.
// Reads are served from the writer's backing memory so the codec can
// verify what it produced.
type writerClient struct {
	dst storage.Writer
	log *zap.Logger
}

func (b *writerClient) Write(p []byte) int { return b.dst.Write(p) }

func (b *writerClient) Read(p []byte) int {
	data, ok := b.dst.Bytes()
	if !ok {
		b.log.Error("read issued through a non-memory encode bridge")
		return 0
	}
	pos := b.dst.Tell()
	if pos >= uint64(len(data)) {
		return 0
	}
	n := copy(p, data[pos:])
	b.dst.Seek(int64(n), storage.SeekCurrent)
	return n
}

func (b *writerClient) Seek(offset int64, whence int) int64 {
	if offset == seekSentinel {
		return seekSentinel
	}
	b.dst.Seek(offset, seekMode(whence))
	return int64(b.dst.Tell())
}

func (b *writerClient) Size() int64 { return int64(b.dst.BytesWritten()) }

func (b *writerClient) Close() error { return nil }

func seekMode(whence int) storage.SeekMode {
	switch whence {
	case io.SeekCurrent:
		return storage.SeekCurrent
	case io.SeekEnd:
		return storage.SeekEnd
	}
	return storage.SeekSet
}
