package tiff

import (
	"bytes"
	"image"
	"testing"

	xtiff "golang.org/x/image/tiff"
)

// The x/image decoder and encoder act as an independent reference
// implementation for the files this package produces and consumes.

func TestInterop_XImageDecodesOurOutput(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts *EncoderOptions
	}{
		{"progressive deflate", &EncoderOptions{Progressive: true}},
		{"progressive uncompressed", &EncoderOptions{Progressive: true, Uncompressed: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := makeNRGBA(t, 40, 24, false)
			data := encodeToBuffer(t, src, tc.opts)

			img, err := xtiff.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("x/image decode: %v", err)
			}
			b := img.Bounds()
			if b.Dx() != 40 || b.Dy() != 24 {
				t.Fatalf("bounds = %v", b)
			}
			for y := 0; y < b.Dy(); y++ {
				for x := 0; x < b.Dx(); x++ {
					gr, gg, gb, _ := img.At(x, y).RGBA()
					wr, wg, wb, _ := src.At(x, y).RGBA()
					if gr != wr || gg != wg || gb != wb {
						t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, img.At(x, y), src.At(x, y))
					}
				}
			}
		})
	}
}

func TestInterop_WeDecodeXImageOutput(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts *xtiff.Options
	}{
		{"deflate", &xtiff.Options{Compression: xtiff.Deflate}},
		{"deflate with predictor", &xtiff.Options{Compression: xtiff.Deflate, Predictor: true}},
		{"uncompressed", &xtiff.Options{Compression: xtiff.Uncompressed}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := makeNRGBA(t, 37, 29, true)
			var buf bytes.Buffer
			if err := xtiff.Encode(&buf, src, tc.opts); err != nil {
				t.Fatalf("x/image encode: %v", err)
			}

			img, err := Decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			got := img.(*image.NRGBA)
			if !bytes.Equal(got.Pix, src.Pix) {
				t.Error("pixels differ after x/image encode")
			}
		})
	}
}
