package tiff

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tilepress/tiff/storage"
)

func TestWriter_AutoTileSelection(t *testing.T) {
	src := makeNRGBA(t, 512, 384, false)
	data := encodeToBuffer(t, src, nil)

	feat, err := GetFeatures(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	// 128 is the largest edge in range dividing both 512 and 384.
	if feat.TileSize != 128 {
		t.Errorf("auto tile size = %d, want 128", feat.TileSize)
	}
}

func TestWriter_AutoTileSelectionFails(t *testing.T) {
	src := makeNRGBA(t, 17, 17, false)
	w := NewWriter(nil, nil)
	if err := w.InitWithStorage(storage.NewBuffer(1 << 12)); err != nil {
		t.Fatal(err)
	}
	err := w.WriteImage(src)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("WriteImage = %v, want ErrUnsupported", err)
	}
}

func TestWriter_ExplicitTileSizeValidated(t *testing.T) {
	src := makeNRGBA(t, 64, 64, false)
	for _, ts := range []int{8, 512} {
		w := NewWriter(&EncoderOptions{TileSize: ts}, nil)
		if err := w.InitWithStorage(storage.NewBuffer(1 << 12)); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteImage(src); !errors.Is(err, ErrUnsupported) {
			t.Errorf("tile size %d: WriteImage = %v, want ErrUnsupported", ts, err)
		}
	}
}

func TestWriter_ExplicitTileSizeMustDivide(t *testing.T) {
	// 32 is in range but leaves partial tiles on a 48x40 image.
	src := makeNRGBA(t, 48, 40, true)
	w := NewWriter(&EncoderOptions{TileSize: 32}, nil)
	if err := w.InitWithStorage(storage.NewBuffer(1 << 12)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteImage(src); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("WriteImage = %v, want ErrUnsupported", err)
	}
}

func TestWriter_ProgressiveTallImage(t *testing.T) {
	// One strip per row: the directory alone carries 8 bytes per row, so
	// a tall uncompressed encode exercises the scratch sizing.
	src := makeNRGBA(t, 16, 600, false)
	data := encodeToBuffer(t, src, &EncoderOptions{Progressive: true, Uncompressed: true})

	r, img := decodeFromBytes(t, data)
	defer r.Close()
	if !bytes.Equal(img.Pix, src.Pix) {
		t.Error("decoded pixels differ from source")
	}
}

func TestWriter_ShortStorageFailsEncode(t *testing.T) {
	src := makeNRGBA(t, 64, 64, true)
	out := storage.NewSeekableBuffer(make([]byte, 256))

	w := NewWriter(&EncoderOptions{TileSize: 64, Uncompressed: true}, nil)
	if err := w.InitWithStorage(out); err != nil {
		t.Fatal(err)
	}
	err := w.WriteImage(src)
	if !errors.Is(err, ErrShortWrite) {
		t.Fatalf("WriteImage = %v, want ErrShortWrite", err)
	}
}

func TestWriter_RequiresMemoryBackedOutput(t *testing.T) {
	w := NewWriter(nil, nil)
	err := w.InitWithStorage(&sinkWithoutMemory{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("InitWithStorage = %v, want ErrUnsupported", err)
	}
}

// sinkWithoutMemory is a Writer whose bytes cannot be read back.
type sinkWithoutMemory struct{}

func (s *sinkWithoutMemory) Write(p []byte) int                 { return len(p) }
func (s *sinkWithoutMemory) Seek(int64, storage.SeekMode) error { return nil }
func (s *sinkWithoutMemory) Tell() uint64                       { return 0 }
func (s *sinkWithoutMemory) Bytes() ([]byte, bool)              { return nil, false }
func (s *sinkWithoutMemory) BytesWritten() uint64               { return 0 }

func TestWriter_WriteImageWithoutInit(t *testing.T) {
	w := NewWriter(nil, nil)
	if err := w.WriteImage(makeNRGBA(t, 16, 16, false)); !errors.Is(err, ErrNotInit) {
		t.Fatalf("WriteImage = %v, want ErrNotInit", err)
	}
}

func TestCopyLossless(t *testing.T) {
	original := encodeToBuffer(t, makeNRGBA(t, 32, 32, true), nil)

	out := storage.NewBuffer(len(original))
	w := NewWriter(nil, nil)
	if err := w.InitWithStorage(out); err != nil {
		t.Fatal(err)
	}
	if err := w.CopyLossless(storage.NewMemoryReader(original)); err != nil {
		t.Fatalf("CopyLossless: %v", err)
	}

	copied, _ := out.Bytes()
	if !bytes.Equal(copied, original) {
		t.Error("lossless copy altered bytes")
	}
}

func TestCopyLossless_RejectsNonTIFF(t *testing.T) {
	out := storage.NewBuffer(64)
	w := NewWriter(nil, nil)
	if err := w.InitWithStorage(out); err != nil {
		t.Fatal(err)
	}
	err := w.CopyLossless(storage.NewMemoryReader([]byte("PNG would go here")))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("CopyLossless = %v, want ErrUnsupported", err)
	}
	if out.BytesWritten() != 0 {
		t.Error("rejected copy still produced output")
	}
}

func TestWriter_IncrementalAPIUnsupported(t *testing.T) {
	w := NewWriter(nil, nil)
	if err := w.InitWithStorage(storage.NewBuffer(64)); err != nil {
		t.Fatal(err)
	}
	if err := w.BeginWrite(16, 16, ColorModelRGBA); !errors.Is(err, ErrUnsupported) {
		t.Errorf("BeginWrite = %v", err)
	}
	if err := w.WriteRows(nil, 0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("WriteRows = %v", err)
	}
	if err := w.EndWrite(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("EndWrite = %v", err)
	}
}

func TestDetermineTileSize(t *testing.T) {
	cases := []struct {
		w, h, want int
	}{
		{512, 384, 128},
		{256, 256, 256},
		{64, 64, 64},
		{96, 48, 48},
		{48, 40, 0}, // 8 divides both but is below the minimum
		{17, 17, 0},
		{34, 34, 0}, // 17 and 34 divide both but are not 16px aligned
		{1024, 768, 256},
	}
	for _, c := range cases {
		if got := determineTileSize(c.w, c.h); got != c.want {
			t.Errorf("determineTileSize(%d, %d) = %d, want %d", c.w, c.h, got, c.want)
		}
	}
}
