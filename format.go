package tiff

import (
	"bytes"
	"strings"
)

// FormatName is the name this package registers with the image package.
const FormatName = "tiff"

// ColorModel identifies the pixel layout a decoded or encoded image uses.
type ColorModel int

const (
	// ColorModelRGBA is 4 bytes per pixel with a meaningful alpha channel.
	ColorModelRGBA ColorModel = iota
	// ColorModelRGBX is 4 bytes per pixel with the fourth byte opaque
	// padding; the file stores three samples per pixel.
	ColorModelRGBX
)

func (m ColorModel) String() string {
	switch m {
	case ColorModelRGBA:
		return "rgba"
	case ColorModelRGBX:
		return "rgbx"
	}
	return "unknown"
}

// Little- and big-endian TIFF signatures: byte-order mark plus magic 42.
var (
	sigLittleEndian = []byte{'I', 'I', 42, 0}
	sigBigEndian    = []byte{'M', 'M', 0, 42}
)

// MatchesSignature reports whether data starts with a TIFF file signature
// in either byte order.
func MatchesSignature(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return bytes.Equal(data[:4], sigLittleEndian) || bytes.Equal(data[:4], sigBigEndian)
}

// MatchesExtension reports whether name is a TIFF file extension, with
// or without the leading dot, or a filename carrying one.
// Case-insensitive.
func MatchesExtension(name string) bool {
	ext := strings.ToLower(name)
	if i := strings.LastIndexByte(ext, '.'); i >= 0 {
		ext = ext[i+1:]
	}
	return ext == "tif" || ext == "tiff"
}

// SupportsInputColorModel reports whether the encoder accepts pixels in
// the given model.
func SupportsInputColorModel(m ColorModel) bool {
	return m == ColorModelRGBA || m == ColorModelRGBX
}

// SupportsOutputColorModel reports whether the decoder can hand pixels
// over in the given model.
func SupportsOutputColorModel(m ColorModel) bool {
	return m == ColorModelRGBA || m == ColorModelRGBX
}
