package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"

	"github.com/tilepress/tiff/internal/pool"
)

type byteOrder = binary.ByteOrder

// TIFF directory entry field types.
const (
	typeByte  = 1
	typeASCII = 2
	typeShort = 3
	typeLong  = 4
)

func typeSize(typ uint16) int {
	switch typ {
	case typeByte, typeASCII:
		return 1
	case typeShort:
		return 2
	case typeLong:
		return 4
	}
	return 0
}

// readHeaderAndDirectory parses the file header and the first image
// directory, populating the handle's field tables.
func (t *TIFF) readHeaderAndDirectory() error {
	hdr, err := t.readAt(0, headerSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotTIFF, err)
	}
	switch {
	case hdr[0] == 'I' && hdr[1] == 'I':
		t.order = binary.LittleEndian
	case hdr[0] == 'M' && hdr[1] == 'M':
		t.order = binary.BigEndian
	default:
		return ErrNotTIFF
	}
	if t.order.Uint16(hdr[2:4]) != 42 {
		return ErrNotTIFF
	}

	ifdOff := t.order.Uint32(hdr[4:8])
	if ifdOff < headerSize {
		return fmt.Errorf("%w: directory offset %d inside header", ErrNotTIFF, ifdOff)
	}

	cntBuf, err := t.readAt(uint64(ifdOff), 2)
	if err != nil {
		return fmt.Errorf("codec: reading directory count: %w", err)
	}
	count := int(t.order.Uint16(cntBuf))
	entries, err := t.readAt(uint64(ifdOff)+2, count*12)
	if err != nil {
		return fmt.Errorf("codec: reading directory entries: %w", err)
	}

	for i := 0; i < count; i++ {
		e := entries[i*12 : i*12+12]
		if err := t.parseEntry(e); err != nil {
			return err
		}
	}
	return nil
}

// parseEntry decodes one 12-byte directory entry and records the tags the
// engine understands. Unknown tags are skipped, not errors.
func (t *TIFF) parseEntry(e []byte) error {
	tag := Tag(t.order.Uint16(e[0:2]))
	typ := t.order.Uint16(e[2:4])
	count := t.order.Uint32(e[4:8])

	switch tag {
	case TagImageWidth, TagImageLength, TagBitsPerSample, TagCompression,
		TagPhotometric, TagStripOffsets, TagOrientation, TagSamplesPerPixel,
		TagRowsPerStrip, TagStripByteCounts, TagPlanarConfig, TagPredictor,
		TagTileWidth, TagTileLength, TagTileOffsets, TagTileByteCounts,
		TagExtraSamples:
	default:
		return nil
	}

	vals, err := t.entryValues(e, typ, count)
	if err != nil {
		return fmt.Errorf("codec: tag %d: %w", tag, err)
	}
	if len(vals) == 0 {
		return nil
	}

	switch tag {
	case TagBitsPerSample:
		t.bitsPerSample = toUint16(vals)
	case TagExtraSamples:
		t.extraSamples = toUint16(vals)
	case TagStripOffsets:
		t.stripOffsets = vals
	case TagStripByteCounts:
		t.stripCounts = vals
	case TagTileOffsets:
		t.tileOffsets = vals
	case TagTileByteCounts:
		t.tileCounts = vals
	default:
		t.fields[tag] = vals[0]
	}
	return nil
}

// entryValues materializes an entry's values as uint32s, following the
// value offset when the payload does not fit in the entry itself.
func (t *TIFF) entryValues(e []byte, typ uint16, count uint32) ([]uint32, error) {
	sz := typeSize(typ)
	if sz == 0 {
		return nil, nil
	}
	total := int(count) * sz

	var raw []byte
	if total <= 4 {
		raw = e[8 : 8+total]
	} else {
		off := t.order.Uint32(e[8:12])
		var err error
		raw, err = t.readAt(uint64(off), total)
		if err != nil {
			return nil, err
		}
	}

	vals := make([]uint32, count)
	for i := range vals {
		switch typ {
		case typeByte, typeASCII:
			vals[i] = uint32(raw[i])
		case typeShort:
			vals[i] = uint32(t.order.Uint16(raw[i*2:]))
		case typeLong:
			vals[i] = t.order.Uint32(raw[i*4:])
		}
	}
	return vals, nil
}

func toUint16(vals []uint32) []uint16 {
	out := make([]uint16, len(vals))
	for i, v := range vals {
		out[i] = uint16(v)
	}
	return out
}

// RGBASession is an open generic-RGBA decode session. It validates that
// the directory describes an image the engine can hand over as RGBA and
// reports whether an alpha channel is present.
type RGBASession struct {
	t     *TIFF
	alpha bool
}

// RGBABegin validates the current directory for RGBA decoding.
func (t *TIFF) RGBABegin() (*RGBASession, error) {
	if t.mode != ModeRead {
		return nil, ErrBadMode
	}
	spp, ok := t.fields[TagSamplesPerPixel]
	if !ok || (spp != 3 && spp != 4) {
		return nil, fmt.Errorf("%w: %d samples per pixel", ErrUnsupported, spp)
	}
	for _, b := range t.bitsPerSample {
		if b != 8 {
			return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupported, b)
		}
	}
	if pm, ok := t.fields[TagPhotometric]; !ok || pm != PhotometricRGB {
		return nil, fmt.Errorf("%w: photometric %d", ErrUnsupported, pm)
	}
	if pc, ok := t.fields[TagPlanarConfig]; ok && pc != PlanarContig {
		return nil, fmt.Errorf("%w: planar configuration %d", ErrUnsupported, pc)
	}
	switch c := t.compression(); c {
	case CompressionNone, CompressionDeflate, compressionOldDeflate:
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}
	if p, ok := t.fields[TagPredictor]; ok && p != PredictorNone && p != PredictorHorizontal {
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupported, p)
	}
	if len(t.stripOffsets) == 0 && len(t.tileOffsets) == 0 {
		return nil, fmt.Errorf("%w: no strip or tile offsets", ErrUnsupported)
	}
	return &RGBASession{t: t, alpha: spp == 4}, nil
}

// Alpha reports whether the image carries an alpha channel.
func (s *RGBASession) Alpha() bool { return s.alpha }

// End closes the session. The handle stays usable.
func (s *RGBASession) End() {}

func (t *TIFF) compression() uint32 {
	if c, ok := t.fields[TagCompression]; ok {
		return c
	}
	return CompressionNone
}

// ReadRGBA decodes the whole frame into dst as 4-byte RGBA pixels with the
// requested display orientation. Only OrientationTopLeft is supported;
// source orientation metadata is normalized away during the copy.
// dst must hold width*height*4 bytes.
func (t *TIFF) ReadRGBA(dst []byte, orientation uint32) error {
	if t.mode != ModeRead {
		return ErrBadMode
	}
	if orientation != OrientationTopLeft {
		return fmt.Errorf("%w: requested orientation %d", ErrUnsupported, orientation)
	}
	width := int(t.fields[TagImageWidth])
	height := int(t.fields[TagImageLength])
	spp := int(t.fields[TagSamplesPerPixel])
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d image", ErrUnsupported, width, height)
	}
	if len(dst) < width*height*4 {
		return fmt.Errorf("codec: destination holds %d bytes, need %d", len(dst), width*height*4)
	}

	raw := pool.Get(width * height * spp)
	defer pool.Put(raw)
	clear(raw)
	var err error
	if len(t.tileOffsets) > 0 {
		err = t.assembleTiles(raw, width, height, spp)
	} else {
		err = t.assembleStrips(raw, width, height, spp)
	}
	if err != nil {
		return err
	}

	if p, ok := t.fields[TagPredictor]; ok && p == PredictorHorizontal {
		undoHorizontalPredictor(raw, width, height, spp)
	}

	srcOrient := uint32(OrientationTopLeft)
	if o, ok := t.fields[TagOrientation]; ok {
		srcOrient = o
	}
	if srcOrient > 4 {
		// Transposed orientations are not representable without swapping
		// the raster dimensions; treat them as top-left like libtiff's
		// RGBA path does.
		t.log.Warn("unsupported transposed orientation, assuming top-left",
			zap.Uint32("orientation", srcOrient))
		srcOrient = OrientationTopLeft
	}
	expandToRGBA(dst, raw, width, height, spp, srcOrient)
	return nil
}

// assembleStrips concatenates all strips into raw, top to bottom.
func (t *TIFF) assembleStrips(raw []byte, width, height, spp int) error {
	if len(t.stripCounts) < len(t.stripOffsets) {
		return fmt.Errorf("%w: %d strip offsets but %d byte counts",
			ErrUnsupported, len(t.stripOffsets), len(t.stripCounts))
	}
	rowBytes := width * spp
	rowsPerStrip := height
	if rps, ok := t.fields[TagRowsPerStrip]; ok && rps > 0 && int(rps) < height {
		rowsPerStrip = int(rps)
	}

	for i, off := range t.stripOffsets {
		top := i * rowsPerStrip
		if top >= height {
			break
		}
		rows := rowsPerStrip
		if top+rows > height {
			rows = height - top
		}
		want := rows * rowBytes
		data, err := t.segment(off, t.stripCounts[i], want)
		if err != nil {
			return fmt.Errorf("codec: strip %d: %w", i, err)
		}
		copy(raw[top*rowBytes:top*rowBytes+want], data)
	}
	return nil
}

// assembleTiles places each tile's pixels into raw, clipping tiles that
// overhang the right and bottom edges.
func (t *TIFF) assembleTiles(raw []byte, width, height, spp int) error {
	tw := int(t.fields[TagTileWidth])
	tl := int(t.fields[TagTileLength])
	if tw <= 0 || tl <= 0 {
		return fmt.Errorf("%w: tile size %dx%d", ErrUnsupported, tw, tl)
	}
	if len(t.tileCounts) < len(t.tileOffsets) {
		return fmt.Errorf("%w: %d tile offsets but %d byte counts",
			ErrUnsupported, len(t.tileOffsets), len(t.tileCounts))
	}
	across := (width + tw - 1) / tw
	tileRowBytes := tw * spp
	rowBytes := width * spp

	for i, off := range t.tileOffsets {
		x0 := (i % across) * tw
		y0 := (i / across) * tl
		if y0 >= height {
			break
		}
		data, err := t.segment(off, t.tileCounts[i], tl*tileRowBytes)
		if err != nil {
			return fmt.Errorf("codec: tile %d: %w", i, err)
		}
		copyW := tw
		if x0+copyW > width {
			copyW = width - x0
		}
		copyH := tl
		if y0+copyH > height {
			copyH = height - y0
		}
		for y := 0; y < copyH; y++ {
			src := data[y*tileRowBytes : y*tileRowBytes+copyW*spp]
			dstOff := (y0+y)*rowBytes + x0*spp
			copy(raw[dstOff:dstOff+copyW*spp], src)
		}
	}
	return nil
}

// segment reads and decompresses one strip or tile. A decompressed
// segment shorter than expected is padded with zero pixels and logged,
// matching the engine's non-fatal handling of damaged data.
func (t *TIFF) segment(off, count uint32, expect int) ([]byte, error) {
	comp, err := t.readAt(uint64(off), int(count))
	if err != nil {
		return nil, err
	}

	var data []byte
	switch t.compression() {
	case CompressionDeflate, compressionOldDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(comp))
		if err != nil {
			return nil, fmt.Errorf("inflate: %w", err)
		}
		data, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("inflate: %w", err)
		}
	default:
		data = comp
	}

	if len(data) < expect {
		t.log.Warn("short image segment",
			zap.Int("got", len(data)), zap.Int("want", expect))
		padded := make([]byte, expect)
		copy(padded, data)
		data = padded
	}
	return data[:expect], nil
}

// undoHorizontalPredictor reverses per-row horizontal differencing.
func undoHorizontalPredictor(raw []byte, width, height, spp int) {
	rowBytes := width * spp
	for y := 0; y < height; y++ {
		row := raw[y*rowBytes : (y+1)*rowBytes]
		for i := spp; i < len(row); i++ {
			row[i] += row[i-spp]
		}
	}
}

// expandToRGBA converts raw spp-byte pixels into 4-byte RGBA in dst,
// applying the source orientation so dst is always top-left.
func expandToRGBA(dst, raw []byte, width, height, spp int, srcOrient uint32) {
	flipH := srcOrient == 2 || srcOrient == 3
	flipV := srcOrient == 3 || srcOrient == 4
	rowBytes := width * spp

	for y := 0; y < height; y++ {
		sy := y
		if flipV {
			sy = height - 1 - y
		}
		srcRow := raw[sy*rowBytes : (sy+1)*rowBytes]
		dstRow := dst[y*width*4 : (y+1)*width*4]
		for x := 0; x < width; x++ {
			sx := x
			if flipH {
				sx = width - 1 - x
			}
			sp := srcRow[sx*spp:]
			dp := dstRow[x*4:]
			dp[0] = sp[0]
			dp[1] = sp[1]
			dp[2] = sp[2]
			if spp == 4 {
				dp[3] = sp[3]
			} else {
				dp[3] = 0xFF
			}
		}
	}
}
