package tiff

import (
	"errors"
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"

	"github.com/tilepress/tiff/internal/codec"
	"github.com/tilepress/tiff/storage"
)

// Errors returned by the package.
var (
	ErrUnsupported = errors.New("tiff: unsupported format")
	ErrShortWrite  = errors.New("tiff: output storage too small")
	ErrNotInit     = errors.New("tiff: storage not attached")
)

// Reader decodes a TIFF image from caller-owned storage. A Reader is
// prepared with NewReader, attached to a source with InitWithStorage, and
// then queried for the image properties and pixels. Readers are
// single-use and not safe for concurrent access.
type Reader struct {
	log *zap.Logger

	src storage.Reader
	h   *codec.TIFF

	width  int
	height int
	alpha  bool
}

// NewReader returns an unattached decoder. A nil logger silences all
// diagnostics.
func NewReader(log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{log: log}
}

// InitWithStorage attaches the decoder to src and parses the file header
// and first directory. A source that cannot seek is drained into an
// owned in-memory copy first; the original source is read to exhaustion
// but otherwise untouched.
func (r *Reader) InitWithStorage(src storage.Reader) error {
	if r.h != nil {
		return fmt.Errorf("tiff: reader already attached")
	}
	if !src.CanSeek() {
		buffered, n := storage.Drain(src)
		r.log.Debug("buffered non-seekable source", zap.Uint64("bytes", n))
		src = buffered
	}
	r.src = src

	h, err := codec.Open(&readerClient{src: src, log: r.log}, codec.ModeRead, r.log)
	if err != nil {
		return fmt.Errorf("tiff: %w", err)
	}
	r.h = h
	return r.readHeader()
}

// readHeader validates the directory's geometry and pixel layout and
// caches the properties the accessors report.
func (r *Reader) readHeader() error {
	w, _ := r.h.Field(codec.TagImageWidth)
	l, _ := r.h.Field(codec.TagImageLength)
	if w == 0 || l == 0 || w > math.MaxInt32 || l > math.MaxInt32 {
		return fmt.Errorf("%w: image dimensions %dx%d", ErrUnsupported, w, l)
	}
	r.width = int(w)
	r.height = int(l)

	sess, err := r.h.RGBABegin()
	if err != nil {
		return fmt.Errorf("tiff: %w", err)
	}
	r.alpha = sess.Alpha()
	sess.End()
	return nil
}

// Width returns the image width in pixels.
func (r *Reader) Width() int { return r.width }

// Height returns the image height in pixels.
func (r *Reader) Height() int { return r.height }

// HasAlpha reports whether the file stores an alpha channel.
func (r *Reader) HasAlpha() bool { return r.alpha }

// NativeColorModel returns the layout the pixels decode to: RGBA when the
// file has alpha, RGBX otherwise.
func (r *Reader) NativeColorModel() ColorModel {
	if r.alpha {
		return ColorModelRGBA
	}
	return ColorModelRGBX
}

// ReadImage decodes the full frame. The result is always 4 bytes per
// pixel; for RGBX sources the alpha byte is opaque padding. Source
// orientation metadata is normalized so the returned image is top-left.
func (r *Reader) ReadImage() (*image.NRGBA, error) {
	if r.h == nil {
		return nil, ErrNotInit
	}
	img := image.NewNRGBA(image.Rect(0, 0, r.width, r.height))
	if err := r.h.ReadRGBA(img.Pix, codec.OrientationTopLeft); err != nil {
		return nil, fmt.Errorf("tiff: %w", err)
	}
	return img, nil
}

// Close releases the decoder. Safe to call multiple times; the source
// storage stays open and owned by the caller.
func (r *Reader) Close() error {
	if r.h == nil {
		return nil
	}
	err := r.h.Close()
	r.h = nil
	return err
}
