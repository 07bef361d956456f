// Package tiff provides a pure Go encoder and decoder for baseline TIFF
// images, built around caller-owned in-memory storage.
//
// The package reads 8-bit contiguous RGB and RGBA images stored in strips
// or tiles, uncompressed or Deflate-compressed, and writes the same class
// of files either tile-by-tile or row-by-row. It registers itself with the
// standard library's image package so that image.Decode can transparently
// read TIFF files.
//
// Beyond the image.Decode/Encode conveniences, the Reader and Writer types
// expose the storage-driven API: decoding from any storage.Reader
// (non-seekable sources are buffered automatically) and encoding into any
// memory-backed storage.Writer, with the finished file produced by a
// single final copy.
//
// Basic usage for decoding:
//
//	img, err := tiff.Decode(reader)
//
// Basic usage for encoding:
//
//	err := tiff.Encode(writer, img, &tiff.EncoderOptions{TileSize: 64})
package tiff
