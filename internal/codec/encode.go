package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"
)

// writeState tracks an encode in progress. pos is the engine's append
// point; segments are written forward and the directory is appended by
// Flush, which then seeks back to patch the header.
type writeState struct {
	pos         uint64
	dataStarted bool
	flushed     bool

	stripOffsets []uint32
	stripCounts  []uint32
	tileOffsets  []uint32
	tileCounts   []uint32
}

// writeHeader emits the fixed file header with a zero first-directory
// offset; Flush patches the real offset in later. Output is always
// little-endian.
func (t *TIFF) writeHeader() error {
	t.w = &writeState{pos: headerSize}
	hdr := [headerSize]byte{'I', 'I', 42, 0, 0, 0, 0, 0}
	if err := t.seekTo(0); err != nil {
		return err
	}
	return t.writeFull(hdr[:])
}

// appendSegment writes p at the current append point and returns the
// offset it landed at and the count the storage accepted.
func (t *TIFF) appendSegment(p []byte) (off uint64, n int, err error) {
	off = t.w.pos
	if err := t.seekTo(off); err != nil {
		return 0, 0, err
	}
	n = t.c.Write(p)
	t.w.pos += uint64(n)
	return off, n, nil
}

// compressSegment applies the directory's compression scheme to p.
func (t *TIFF) compressSegment(p []byte) ([]byte, error) {
	switch c := t.compression(); c {
	case CompressionNone:
		return p, nil
	case CompressionDeflate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(p); err != nil {
			return nil, fmt.Errorf("codec: deflate: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("codec: deflate: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}
}

// TileSize returns the number of uncompressed bytes in one tile, or 0
// when the directory does not describe a tiled image.
func (t *TIFF) TileSize() int {
	tw := int(t.fields[TagTileWidth])
	tl := int(t.fields[TagTileLength])
	spp := int(t.fields[TagSamplesPerPixel])
	if tw <= 0 || tl <= 0 || spp <= 0 {
		return 0
	}
	return tw * tl * spp
}

// WriteTile compresses and stores one tile whose top-left pixel sits at
// (x, y) on the tile grid. buf must hold TileSize bytes. On success the
// returned count equals TileSize; a smaller count means the backing
// storage ran out of capacity mid-tile.
func (t *TIFF) WriteTile(buf []byte, x, y uint32) (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	if t.mode != ModeWrite || t.w.flushed {
		return 0, ErrBadMode
	}
	width := t.fields[TagImageWidth]
	height := t.fields[TagImageLength]
	tw := t.fields[TagTileWidth]
	tl := t.fields[TagTileLength]
	ts := t.TileSize()
	if ts == 0 || width == 0 || height == 0 {
		return 0, fmt.Errorf("%w: tile geometry tags not set", ErrUnsupported)
	}
	if x%tw != 0 || y%tl != 0 || x >= width || y >= height {
		return 0, fmt.Errorf("codec: tile origin (%d,%d) off the %dx%d grid", x, y, tw, tl)
	}
	if len(buf) < ts {
		return 0, fmt.Errorf("codec: tile buffer holds %d bytes, need %d", len(buf), ts)
	}

	across := (width + tw - 1) / tw
	down := (height + tl - 1) / tl
	if t.w.tileOffsets == nil {
		t.w.tileOffsets = make([]uint32, across*down)
		t.w.tileCounts = make([]uint32, across*down)
	}
	t.w.dataStarted = true

	comp, err := t.compressSegment(buf[:ts])
	if err != nil {
		return 0, err
	}
	off, n, err := t.appendSegment(comp)
	if err != nil {
		return 0, err
	}
	idx := (y/tl)*across + x/tw
	t.w.tileOffsets[idx] = uint32(off)
	t.w.tileCounts[idx] = uint32(n)
	if n != len(comp) {
		t.log.Warn("tile truncated by storage",
			zap.Uint32("x", x), zap.Uint32("y", y),
			zap.Int("accepted", n), zap.Int("compressed", len(comp)))
		return n, nil
	}
	return ts, nil
}

// WriteScanline compresses and stores one image row. Rows become
// single-row strips; Flush records the matching RowsPerStrip. buf must
// hold width*samples bytes.
func (t *TIFF) WriteScanline(buf []byte, row uint32) error {
	if t.closed {
		return ErrClosed
	}
	if t.mode != ModeWrite || t.w.flushed {
		return ErrBadMode
	}
	width := t.fields[TagImageWidth]
	height := t.fields[TagImageLength]
	spp := t.fields[TagSamplesPerPixel]
	if width == 0 || height == 0 || spp == 0 {
		return fmt.Errorf("%w: image geometry tags not set", ErrUnsupported)
	}
	if row >= height {
		return fmt.Errorf("codec: scanline %d beyond image height %d", row, height)
	}
	rowBytes := int(width * spp)
	if len(buf) < rowBytes {
		return fmt.Errorf("codec: scanline buffer holds %d bytes, need %d", len(buf), rowBytes)
	}

	if t.w.stripOffsets == nil {
		t.w.stripOffsets = make([]uint32, height)
		t.w.stripCounts = make([]uint32, height)
	}
	t.w.dataStarted = true

	comp, err := t.compressSegment(buf[:rowBytes])
	if err != nil {
		return err
	}
	off, n, err := t.appendSegment(comp)
	if err != nil {
		return err
	}
	t.w.stripOffsets[row] = uint32(off)
	t.w.stripCounts[row] = uint32(n)
	if n != len(comp) {
		return fmt.Errorf("%w: scanline %d: wrote %d of %d bytes", ErrShortWrite, row, n, len(comp))
	}
	return nil
}

// Flush finishes the encode: it even-aligns the directory position by
// extending the logical file with an end-relative seek, appends the
// directory and its out-of-line values, and patches the header's first
// directory offset. Flush then re-reads the header so a repeated Flush is
// a verification, not a rewrite.
func (t *TIFF) Flush() error {
	if t.closed {
		return ErrClosed
	}
	if t.mode != ModeWrite {
		return ErrBadMode
	}
	if t.w.flushed {
		return t.verifyHeader()
	}

	// Directories must start on a word boundary. Extending the logical
	// size through the end-relative seek keeps the pad byte out of the
	// cursor's way.
	if t.w.pos%2 == 1 {
		t.c.Seek(1, io.SeekEnd)
		t.w.pos++
	}
	ifdOff := t.w.pos

	dir, err := t.buildDirectory(uint32(ifdOff))
	if err != nil {
		return err
	}
	if _, n, err := t.appendSegment(dir); err != nil {
		return err
	} else if n != len(dir) {
		return fmt.Errorf("%w: directory: wrote %d of %d bytes", ErrShortWrite, n, len(dir))
	}

	// Back-patch the first-directory offset at byte 4.
	var offBuf [4]byte
	binary.LittleEndian.PutUint32(offBuf[:], uint32(ifdOff))
	if err := t.seekTo(4); err != nil {
		return err
	}
	if err := t.writeFull(offBuf[:]); err != nil {
		return err
	}

	t.w.flushed = true
	return t.verifyHeader()
}

// verifyHeader re-reads the file header through the Client and checks the
// byte-order mark and magic survived the encode.
func (t *TIFF) verifyHeader() error {
	hdr, err := t.readAt(0, headerSize)
	if err != nil {
		return err
	}
	if hdr[0] != 'I' || hdr[1] != 'I' || binary.LittleEndian.Uint16(hdr[2:4]) != 42 {
		return fmt.Errorf("%w: header corrupted during encode", ErrNotTIFF)
	}
	return nil
}

// dirEntry is one directory record plus its raw little-endian payload.
// Payloads of four bytes or fewer are stored inline; larger ones are
// appended after the entry table.
type dirEntry struct {
	tag     Tag
	typ     uint16
	count   uint32
	payload []byte
}

func shortEntry(tag Tag, vals ...uint16) dirEntry {
	p := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(p[i*2:], v)
	}
	return dirEntry{tag: tag, typ: typeShort, count: uint32(len(vals)), payload: p}
}

func longEntry(tag Tag, vals ...uint32) dirEntry {
	p := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(p[i*4:], v)
	}
	return dirEntry{tag: tag, typ: typeLong, count: uint32(len(vals)), payload: p}
}

// buildDirectory serializes the IFD for the written image. ifdOff is the
// absolute offset the directory will land at, needed to compute the
// offsets of out-of-line payloads.
func (t *TIFF) buildDirectory(ifdOff uint32) ([]byte, error) {
	spp := uint16(t.fields[TagSamplesPerPixel])
	if spp == 0 {
		return nil, fmt.Errorf("%w: samples per pixel not set", ErrUnsupported)
	}

	bits := make([]uint16, spp)
	for i := range bits {
		bits[i] = uint16(t.fields[TagBitsPerSample])
	}

	var ents []dirEntry
	ents = append(ents,
		longEntry(TagImageWidth, t.fields[TagImageWidth]),
		longEntry(TagImageLength, t.fields[TagImageLength]),
		shortEntry(TagBitsPerSample, bits...),
		shortEntry(TagCompression, uint16(t.compression())),
		shortEntry(TagPhotometric, uint16(t.fields[TagPhotometric])),
	)
	if len(t.w.stripOffsets) > 0 {
		ents = append(ents, longEntry(TagStripOffsets, t.w.stripOffsets...))
	}
	if o, ok := t.fields[TagOrientation]; ok {
		ents = append(ents, shortEntry(TagOrientation, uint16(o)))
	}
	ents = append(ents, shortEntry(TagSamplesPerPixel, spp))
	if len(t.w.stripOffsets) > 0 {
		// Scanline encodes emit one strip per row.
		ents = append(ents,
			longEntry(TagRowsPerStrip, 1),
			longEntry(TagStripByteCounts, t.w.stripCounts...),
		)
	}
	if pc, ok := t.fields[TagPlanarConfig]; ok {
		ents = append(ents, shortEntry(TagPlanarConfig, uint16(pc)))
	}
	if len(t.w.tileOffsets) > 0 {
		ents = append(ents,
			longEntry(TagTileWidth, t.fields[TagTileWidth]),
			longEntry(TagTileLength, t.fields[TagTileLength]),
			longEntry(TagTileOffsets, t.w.tileOffsets...),
			longEntry(TagTileByteCounts, t.w.tileCounts...),
		)
	}
	if len(t.extraSamples) > 0 {
		ents = append(ents, shortEntry(TagExtraSamples, t.extraSamples...))
	}

	// Entry table layout: count, entries sorted by tag (the slice above
	// is already ascending), next-directory offset, then out-of-line
	// payloads.
	tableSize := 2 + len(ents)*12 + 4
	extOff := ifdOff + uint32(tableSize)

	table := make([]byte, 0, tableSize)
	var ext []byte

	var cnt [2]byte
	binary.LittleEndian.PutUint16(cnt[:], uint16(len(ents)))
	table = append(table, cnt[:]...)

	for _, e := range ents {
		var rec [12]byte
		binary.LittleEndian.PutUint16(rec[0:2], uint16(e.tag))
		binary.LittleEndian.PutUint16(rec[2:4], e.typ)
		binary.LittleEndian.PutUint32(rec[4:8], e.count)
		if len(e.payload) <= 4 {
			copy(rec[8:12], e.payload)
		} else {
			binary.LittleEndian.PutUint32(rec[8:12], extOff+uint32(len(ext)))
			ext = append(ext, e.payload...)
			if len(e.payload)%2 == 1 {
				ext = append(ext, 0)
			}
		}
		table = append(table, rec[:]...)
	}
	table = append(table, 0, 0, 0, 0) // no next directory
	return append(table, ext...), nil
}
