// Package codec implements the TIFF engine behind the public reader and
// writer. It is driven exclusively through the Client callback contract:
// the engine never touches files or memory maps, only the five operations
// a Client provides. Decoding covers baseline 8-bit contiguous RGB/RGBA
// images in strips or tiles, uncompressed or Deflate-compressed; encoding
// produces the same class of files tile-by-tile or scanline-by-scanline.
package codec

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Client is the five-callback protocol the engine performs all I/O
// through. Read and Write return the count of bytes actually moved and
// are clamped by the underlying storage. Seek uses io.SeekStart,
// io.SeekCurrent and io.SeekEnd whence values and returns the resulting
// cursor position. Size reports the current logical size of the
// underlying storage without disturbing the cursor.
//
// There is deliberately no memory-mapping operation; the engine always
// takes the read/seek path.
type Client interface {
	Read(p []byte) int
	Write(p []byte) int
	Seek(offset int64, whence int) int64
	Size() int64
	Close() error
}

// Mode selects the direction a handle is opened in.
type Mode int

const (
	// ModeRead opens an existing image: the header and first directory
	// are parsed immediately.
	ModeRead Mode = iota
	// ModeWrite prepares an empty image: the header is written
	// immediately and the directory is assembled by Flush.
	ModeWrite
)

// Tag identifies a TIFF directory field.
type Tag uint16

const (
	TagImageWidth      Tag = 256
	TagImageLength     Tag = 257
	TagBitsPerSample   Tag = 258
	TagCompression     Tag = 259
	TagPhotometric     Tag = 262
	TagStripOffsets    Tag = 273
	TagOrientation     Tag = 274
	TagSamplesPerPixel Tag = 277
	TagRowsPerStrip    Tag = 278
	TagStripByteCounts Tag = 279
	TagPlanarConfig    Tag = 284
	TagPredictor       Tag = 317
	TagTileWidth       Tag = 322
	TagTileLength      Tag = 323
	TagTileOffsets     Tag = 324
	TagTileByteCounts  Tag = 325
	TagExtraSamples    Tag = 338
)

// Well-known field values.
const (
	CompressionNone    = 1
	CompressionDeflate = 8
	// Legacy Deflate code emitted by some writers; accepted on read.
	compressionOldDeflate = 32946

	PhotometricRGB = 2

	PlanarContig = 1

	OrientationTopLeft = 1

	PredictorNone       = 1
	PredictorHorizontal = 2

	// ExtraSampleUnassAlpha marks the fourth sample as unassociated
	// (non-premultiplied) alpha.
	ExtraSampleUnassAlpha = 2
)

// Errors returned by the engine.
var (
	ErrNotTIFF     = errors.New("codec: not a TIFF stream")
	ErrBadMode     = errors.New("codec: operation not valid in this mode")
	ErrUnsupported = errors.New("codec: unsupported image layout")
	ErrShortWrite  = errors.New("codec: storage accepted fewer bytes than required")
	ErrClosed      = errors.New("codec: handle is closed")
)

// headerSize is the fixed TIFF file header: byte order, magic, first
// directory offset.
const headerSize = 8

// TIFF is an open engine handle. A handle is single-threaded and owns no
// storage; the Client's backing storage belongs to the caller.
type TIFF struct {
	c      Client
	mode   Mode
	log    *zap.Logger
	closed bool

	// Scalar directory fields, by tag.
	fields map[Tag]uint32

	// Array-valued directory fields.
	bitsPerSample []uint16
	extraSamples  []uint16

	// Read side.
	order        byteOrder
	stripOffsets []uint32
	stripCounts  []uint32
	tileOffsets  []uint32
	tileCounts   []uint32

	// Write side.
	w *writeState
}

// Open creates a handle over c. In ModeRead the header and first
// directory are parsed before Open returns; in ModeWrite the header is
// written immediately with a zero directory offset, patched later by
// Flush. A nil logger silences all engine diagnostics.
func Open(c Client, mode Mode, log *zap.Logger) (*TIFF, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &TIFF{
		c:      c,
		mode:   mode,
		log:    log,
		fields: make(map[Tag]uint32),
	}
	switch mode {
	case ModeRead:
		if err := t.readHeaderAndDirectory(); err != nil {
			return nil, err
		}
	case ModeWrite:
		if err := t.writeHeader(); err != nil {
			return nil, err
		}
	default:
		return nil, ErrBadMode
	}
	return t, nil
}

// Field returns the scalar value of tag and whether it is present.
func (t *TIFF) Field(tag Tag) (uint32, bool) {
	v, ok := t.fields[tag]
	return v, ok
}

// SetField records a scalar directory field. Only valid on write handles;
// fields must be set before the first tile or scanline is written.
func (t *TIFF) SetField(tag Tag, v uint32) error {
	if t.closed {
		return ErrClosed
	}
	if t.mode != ModeWrite {
		return ErrBadMode
	}
	if t.w != nil && t.w.dataStarted {
		return fmt.Errorf("codec: cannot set tag %d after image data", tag)
	}
	t.fields[tag] = v
	return nil
}

// SetExtraSamples records the meaning of samples beyond the RGB triple.
func (t *TIFF) SetExtraSamples(vals []uint16) error {
	if t.mode != ModeWrite {
		return ErrBadMode
	}
	t.extraSamples = append([]uint16(nil), vals...)
	return nil
}

// ExtraSamples returns the extra-sample declarations, if any.
func (t *TIFF) ExtraSamples() []uint16 { return t.extraSamples }

// Close releases the handle and closes the Client exactly once. It is
// safe to call multiple times and after failed operations.
func (t *TIFF) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.w = nil
	return t.c.Close()
}

// seekTo positions the Client cursor at off via an absolute seek and
// verifies the reported position.
func (t *TIFF) seekTo(off uint64) error {
	if got := t.c.Seek(int64(off), io.SeekStart); got != int64(off) {
		return fmt.Errorf("codec: seek to %d landed at %d", off, got)
	}
	return nil
}

// readAt reads exactly n bytes starting at off.
func (t *TIFF) readAt(off uint64, n int) ([]byte, error) {
	if err := t.seekTo(off); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if got := t.c.Read(buf); got != n {
		return nil, fmt.Errorf("codec: truncated read at %d: got %d of %d bytes", off, got, n)
	}
	return buf, nil
}

// writeFull writes all of p at the current cursor.
func (t *TIFF) writeFull(p []byte) error {
	if n := t.c.Write(p); n != len(p) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(p))
	}
	return nil
}
