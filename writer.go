package tiff

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"go.uber.org/zap"

	"github.com/tilepress/tiff/internal/codec"
	"github.com/tilepress/tiff/internal/pool"
	"github.com/tilepress/tiff/storage"
)

// Sizing for the private encode buffer. encodeSlack covers the header,
// the directory entry table and out-of-line tag values; segmentSlack is
// the per-strip/per-tile cost on top of the pixel bytes (zlib framing
// plus the directory's 8 bytes of offset and byte-count entries).
const (
	encodeSlack  = 1024
	segmentSlack = 64
)

// Writer encodes a TIFF image into caller-owned storage. The encoder
// assembles the complete file in a private buffer and delivers it to the
// output with a single final copy, so a failed encode never leaves a
// partial file behind. Writers are single-use and not safe for concurrent
// access.
type Writer struct {
	log  *zap.Logger
	opts *EncoderOptions

	out storage.Writer
}

// NewWriter returns an unattached encoder. A nil opts selects
// DefaultOptions; a nil logger silences all diagnostics.
func NewWriter(opts *EncoderOptions, log *zap.Logger) *Writer {
	if opts == nil {
		opts = DefaultOptions()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{log: log, opts: opts}
}

// InitWithStorage attaches the encoder to out. The output must be
// memory-backed: the final copy and the lossless path read the assembled
// bytes back through Bytes.
func (w *Writer) InitWithStorage(out storage.Writer) error {
	if w.out != nil {
		return fmt.Errorf("tiff: writer already attached")
	}
	if _, ok := out.Bytes(); !ok {
		return fmt.Errorf("%w: output storage is not memory backed", ErrUnsupported)
	}
	w.out = out
	return nil
}

// WriteImage encodes img as a complete TIFF file. Opaque images are
// compacted to three samples per pixel; images with transparency keep
// four samples and declare unassociated alpha. The tile grid or
// row-by-row layout follows the encoder options.
func (w *Writer) WriteImage(img image.Image) error {
	if w.out == nil {
		return ErrNotInit
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: empty %dx%d image", ErrUnsupported, width, height)
	}

	alpha := imageHasAlpha(img)
	spp := 3
	if alpha {
		spp = 4
	}
	raster := rasterize(img, spp)

	segments := height
	tileSize := 0
	if !w.opts.Progressive {
		var err error
		tileSize, err = w.resolveTileSize(width, height)
		if err != nil {
			return err
		}
		segments = (width / tileSize) * (height / tileSize)
	}

	scratch := storage.NewSeekableBuffer(make([]byte, w.scratchCapacity(len(raster), segments)))
	h, err := codec.Open(&writerClient{dst: scratch, log: w.log}, codec.ModeWrite, w.log)
	if err != nil {
		return fmt.Errorf("tiff: %w", err)
	}
	defer h.Close()

	compression := uint32(codec.CompressionDeflate)
	if w.opts.Uncompressed {
		compression = codec.CompressionNone
	}
	fields := []struct {
		tag codec.Tag
		val uint32
	}{
		{codec.TagImageWidth, uint32(width)},
		{codec.TagImageLength, uint32(height)},
		{codec.TagBitsPerSample, 8},
		{codec.TagCompression, compression},
		{codec.TagPhotometric, codec.PhotometricRGB},
		{codec.TagOrientation, codec.OrientationTopLeft},
		{codec.TagSamplesPerPixel, uint32(spp)},
		{codec.TagPlanarConfig, codec.PlanarContig},
	}
	for _, f := range fields {
		if err := h.SetField(f.tag, f.val); err != nil {
			return fmt.Errorf("tiff: %w", err)
		}
	}
	if alpha {
		if err := h.SetExtraSamples([]uint16{codec.ExtraSampleUnassAlpha}); err != nil {
			return fmt.Errorf("tiff: %w", err)
		}
	}

	if w.opts.Progressive {
		err = w.writeRows(h, raster, width, height, spp)
	} else {
		err = w.writeTiles(h, raster, width, height, spp, tileSize)
	}
	if err != nil {
		return err
	}

	if err := h.Flush(); err != nil {
		return fmt.Errorf("tiff: %w", err)
	}
	return w.deliver(scratch)
}

// scratchCapacity sizes the private encode buffer from the file layout
// about to be written. A fixed-capacity output bounds the buffer so that
// storage exhaustion surfaces during the encode, not only at the final
// copy.
func (w *Writer) scratchCapacity(rasterBytes, segments int) int {
	capacity := rasterBytes + segments*segmentSlack + encodeSlack
	if sb, ok := w.out.(*storage.SeekableBuffer); ok {
		if backing, ok := sb.Bytes(); ok && len(backing) < capacity {
			capacity = len(backing)
		}
	}
	return capacity
}

// resolveTileSize validates an explicit tile edge or selects one
// automatically. The edge must evenly divide both dimensions; partially
// filled tiles are not supported.
func (w *Writer) resolveTileSize(width, height int) (int, error) {
	ts := w.opts.TileSize
	if ts == 0 {
		ts = determineTileSize(width, height)
		if ts == 0 {
			return 0, fmt.Errorf("%w: no tile size in [%d,%d] divides %dx%d",
				ErrUnsupported, minTileSize, maxTileSize, width, height)
		}
		return ts, nil
	}
	if ts < minTileSize || ts > maxTileSize {
		return 0, fmt.Errorf("%w: tile size %d outside [%d,%d]",
			ErrUnsupported, ts, minTileSize, maxTileSize)
	}
	if width%ts != 0 || height%ts != 0 {
		return 0, fmt.Errorf("%w: tile size %d does not divide %dx%d",
			ErrUnsupported, ts, width, height)
	}
	return ts, nil
}

// writeTiles encodes the raster as a grid of square ts-pixel tiles. The
// grid covers the image exactly; resolveTileSize rejected any edge that
// would leave partial tiles.
func (w *Writer) writeTiles(h *codec.TIFF, raster []byte, width, height, spp, ts int) error {
	if err := h.SetField(codec.TagTileWidth, uint32(ts)); err != nil {
		return fmt.Errorf("tiff: %w", err)
	}
	if err := h.SetField(codec.TagTileLength, uint32(ts)); err != nil {
		return fmt.Errorf("tiff: %w", err)
	}

	tile := pool.Get(ts * ts * spp)
	defer pool.Put(tile)
	rowBytes := width * spp
	tileRow := ts * spp
	for y := 0; y < height; y += ts {
		for x := 0; x < width; x += ts {
			for ty := 0; ty < ts; ty++ {
				src := raster[(y+ty)*rowBytes+x*spp:]
				copy(tile[ty*tileRow:(ty+1)*tileRow], src[:tileRow])
			}
			n, err := h.WriteTile(tile, uint32(x), uint32(y))
			if err != nil {
				return fmt.Errorf("tiff: %w", err)
			}
			if n != len(tile) {
				if !w.opts.TolerateShortWrites {
					return fmt.Errorf("%w: tile (%d,%d) truncated", ErrShortWrite, x, y)
				}
				w.log.Warn("continuing past truncated tile",
					zap.Int("x", x), zap.Int("y", y), zap.Int("accepted", n))
			}
		}
	}
	return nil
}

// writeRows encodes the raster row by row as single-row strips.
func (w *Writer) writeRows(h *codec.TIFF, raster []byte, width, height, spp int) error {
	rowBytes := width * spp
	for y := 0; y < height; y++ {
		err := h.WriteScanline(raster[y*rowBytes:(y+1)*rowBytes], uint32(y))
		if err != nil {
			if errors.Is(err, codec.ErrShortWrite) && w.opts.TolerateShortWrites {
				w.log.Warn("continuing past truncated scanline", zap.Int("row", y))
				continue
			}
			return fmt.Errorf("tiff: %w", err)
		}
	}
	return nil
}

// deliver copies the assembled file from the private buffer to the
// output in one write. A short copy fails the encode.
func (w *Writer) deliver(scratch *storage.SeekableBuffer) error {
	backing, _ := scratch.Bytes()
	encoded := backing[:scratch.BytesWritten()]
	if err := w.out.Seek(0, storage.SeekSet); err != nil {
		return fmt.Errorf("tiff: rewinding output: %w", err)
	}
	if n := w.out.Write(encoded); n != len(encoded) {
		return fmt.Errorf("%w: delivered %d of %d bytes", ErrShortWrite, n, len(encoded))
	}
	return nil
}

// CopyLossless transfers an already-encoded TIFF file from src to the
// output byte for byte, without recompressing. The source must start
// with a TIFF signature.
func (w *Writer) CopyLossless(src storage.Reader) error {
	if w.out == nil {
		return ErrNotInit
	}
	buffered, n := storage.Drain(src)
	if n == 0 {
		return fmt.Errorf("%w: empty source", ErrUnsupported)
	}
	data := make([]byte, n)
	buffered.Read(data)
	if !MatchesSignature(data) {
		return fmt.Errorf("%w: source is not a TIFF file", ErrUnsupported)
	}
	if err := w.out.Seek(0, storage.SeekSet); err != nil {
		return fmt.Errorf("tiff: rewinding output: %w", err)
	}
	if written := w.out.Write(data); written != len(data) {
		return fmt.Errorf("%w: copied %d of %d bytes", ErrShortWrite, written, len(data))
	}
	return nil
}

// BeginWrite starts an incremental row-streaming encode. The encoder
// assembles complete frames only; use WriteImage instead.
func (w *Writer) BeginWrite(width, height int, model ColorModel) error {
	return fmt.Errorf("%w: incremental row streaming", ErrUnsupported)
}

// WriteRows is the incremental counterpart of BeginWrite and is equally
// unsupported.
func (w *Writer) WriteRows(rows []byte, count int) error {
	return fmt.Errorf("%w: incremental row streaming", ErrUnsupported)
}

// EndWrite finishes an incremental encode started with BeginWrite.
func (w *Writer) EndWrite() error {
	return fmt.Errorf("%w: incremental row streaming", ErrUnsupported)
}

// Close releases the encoder. The output storage stays open and owned by
// the caller.
func (w *Writer) Close() error {
	w.out = nil
	return nil
}

// determineTileSize picks the largest 16px-aligned tile edge in
// [minTileSize, maxTileSize] that evenly divides both dimensions, or 0
// when the image is not 16px aligned and tiling is impossible.
func determineTileSize(width, height int) int {
	for ts := maxTileSize; ts >= minTileSize; ts -= 16 {
		if width%ts == 0 && height%ts == 0 {
			return ts
		}
	}
	return 0
}

// imageHasAlpha reports whether the image has any pixel with alpha < 255.
func imageHasAlpha(img image.Image) bool {
	if op, ok := img.(interface{ Opaque() bool }); ok {
		return !op.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xFFFF {
				return true
			}
		}
	}
	return false
}

// rasterize packs img into tightly packed spp-byte non-premultiplied
// pixels, dropping the alpha byte when spp is 3.
func rasterize(img image.Image, spp int) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*spp)

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < h; y++ {
			srcOff := (y+b.Min.Y-nrgba.Rect.Min.Y)*nrgba.Stride + (b.Min.X-nrgba.Rect.Min.X)*4
			dstOff := y * w * spp
			for x := 0; x < w; x++ {
				copy(out[dstOff:dstOff+spp], nrgba.Pix[srcOff:srcOff+4])
				srcOff += 4
				dstOff += spp
			}
		}
		return out
	}

	for y := 0; y < h; y++ {
		dstOff := y * w * spp
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			out[dstOff] = c.R
			out[dstOff+1] = c.G
			out[dstOff+2] = c.B
			if spp == 4 {
				out[dstOff+3] = c.A
			}
			dstOff += spp
		}
	}
	return out
}
