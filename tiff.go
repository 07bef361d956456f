package tiff

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/tilepress/tiff/internal/codec"
	"github.com/tilepress/tiff/storage"
)

func init() {
	image.RegisterFormat(FormatName, "II\x2A\x00", Decode, DecodeConfig)
	image.RegisterFormat(FormatName, "MM\x00\x2A", Decode, DecodeConfig)
}

// Features describes a TIFF file's properties without decoding pixels.
type Features struct {
	Width      int
	Height     int
	HasAlpha   bool
	Tiled      bool
	TileSize   int // tile edge length, 0 for strip layouts
	Compressed bool
	Model      ColorModel
}

// readAll reads all data from r. If r implements Len() int (e.g.
// *bytes.Reader), a single exact-sized allocation is used instead of the
// repeated doublings that io.ReadAll performs.
func readAll(r io.Reader) ([]byte, error) {
	if lr, ok := r.(interface{ Len() int }); ok {
		n := lr.Len()
		if n > 0 {
			data := make([]byte, n)
			_, err := io.ReadFull(r, data)
			return data, err
		}
	}
	return io.ReadAll(r)
}

// openReader attaches a Reader to data and parses the header.
func openReader(data []byte) (*Reader, error) {
	r := NewReader(nil)
	if err := r.InitWithStorage(storage.NewMemoryReader(data)); err != nil {
		return nil, err
	}
	return r, nil
}

// Decode reads a TIFF image from r and returns it as an *image.NRGBA.
func Decode(r io.Reader) (image.Image, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, fmt.Errorf("tiff: reading data: %w", err)
	}
	dec, err := openReader(data)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.ReadImage()
}

// DecodeConfig returns the color model and dimensions of a TIFF image
// without decoding the entire image.
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := readAll(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("tiff: reading data: %w", err)
	}
	dec, err := openReader(data)
	if err != nil {
		return image.Config{}, err
	}
	defer dec.Close()

	// Decode always produces *image.NRGBA; opaque files simply decode
	// with a saturated alpha channel.
	return image.Config{
		ColorModel: color.NRGBAModel,
		Width:      dec.Width(),
		Height:     dec.Height(),
	}, nil
}

// GetFeatures reads TIFF features without decoding pixel data.
func GetFeatures(r io.Reader) (*Features, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, fmt.Errorf("tiff: reading data: %w", err)
	}
	dec, err := openReader(data)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	tileWidth, tiled := dec.h.Field(codec.TagTileWidth)
	compression, ok := dec.h.Field(codec.TagCompression)
	compressed := ok && compression != codec.CompressionNone

	return &Features{
		Width:      dec.Width(),
		Height:     dec.Height(),
		HasAlpha:   dec.HasAlpha(),
		Tiled:      tiled,
		TileSize:   int(tileWidth),
		Compressed: compressed,
		Model:      dec.NativeColorModel(),
	}, nil
}

// Encode writes the image img to w in TIFF format. If opts is nil,
// DefaultOptions() is used.
func Encode(w io.Writer, img image.Image, opts *EncoderOptions) error {
	bounds := img.Bounds()
	out := storage.NewBuffer(bounds.Dx()*bounds.Dy()*4 + encodeSlack)

	enc := NewWriter(opts, nil)
	if err := enc.InitWithStorage(out); err != nil {
		return err
	}
	defer enc.Close()
	if err := enc.WriteImage(img); err != nil {
		return err
	}

	data, _ := out.Bytes()
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("tiff: writing output: %w", err)
	}
	return nil
}
