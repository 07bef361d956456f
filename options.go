package tiff

import "go.uber.org/zap"

// Packed write-option flags. Callers that carry encoder settings as a
// single word use this layout; ParseWriteOptions unpacks it into an
// EncoderOptions.
const (
	// OptProgressive selects row-by-row output (one strip per row)
	// instead of tiles.
	OptProgressive uint32 = 0x00000200

	// The tile edge length is carried in bits 16-24.
	optTileSizeMask  uint32 = 0x01FF0000
	optTileSizeShift        = 16

	optKnownMask = OptProgressive | optTileSizeMask
)

// Tile edge lengths the encoder accepts.
const (
	minTileSize = 16
	maxTileSize = 256
)

// EncoderOptions controls TIFF encoding.
type EncoderOptions struct {
	// Progressive writes the image row by row as single-row strips.
	// When false, the image is written as a grid of tiles.
	Progressive bool

	// TileSize is the tile edge length in pixels (16-256). Zero selects
	// the largest edge in that range that evenly divides both image
	// dimensions. Ignored when Progressive is set.
	TileSize int

	// Uncompressed disables Deflate compression of the pixel data.
	Uncompressed bool

	// TolerateShortWrites keeps encoding when the output storage accepts
	// fewer bytes than a full tile. The default treats a short write as
	// a fatal encoding error.
	TolerateShortWrites bool
}

// DefaultOptions returns encoding options for tiled, Deflate-compressed
// output with an automatically chosen tile size.
func DefaultOptions() *EncoderOptions {
	return &EncoderOptions{}
}

// ParseWriteOptions unpacks a packed option word. Unknown flag bits are
// reported and ignored; a tile size outside the accepted range is
// reported and reset to automatic selection. A nil logger silences the
// diagnostics.
func ParseWriteOptions(packed uint32, log *zap.Logger) *EncoderOptions {
	if log == nil {
		log = zap.NewNop()
	}
	if unknown := packed &^ optKnownMask; unknown != 0 {
		log.Warn("ignoring unknown write option flags", zap.Uint32("flags", unknown))
	}

	opts := DefaultOptions()
	opts.Progressive = packed&OptProgressive != 0

	ts := int(packed & optTileSizeMask >> optTileSizeShift)
	if ts != 0 && (ts < minTileSize || ts > maxTileSize) {
		log.Warn("tile size out of range, using automatic selection", zap.Int("tileSize", ts))
		ts = 0
	}
	opts.TileSize = ts
	return opts
}

// Pack converts the options back into the packed word layout. Fields
// without a packed representation are dropped.
func (o *EncoderOptions) Pack() uint32 {
	var packed uint32
	if o.Progressive {
		packed |= OptProgressive
	}
	if o.TileSize >= minTileSize && o.TileSize <= maxTileSize {
		packed |= uint32(o.TileSize) << optTileSizeShift & optTileSizeMask
	}
	return packed
}
