// Package codec compresses spilled shards and frames the records inside them
package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-sif/geopart/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
)

const (
	// LZ4 is the default spill codec
	LZ4 = "lz4"
	// Zstd trades speed for a smaller spill
	Zstd = "zstd"
	// Snappy is the fastest codec
	Snappy = "snappy"
)

// A Codec wraps streams in a compressor or decompressor
type Codec interface {
	Name() string
	NewWriter(w io.Writer) (io.WriteCloser, error) // Closing the writer flushes it, but does not close w
	NewReader(r io.Reader) (io.ReadCloser, error)  // Closing the reader releases it, but does not close r
}

// ForName returns the Codec with the given name. The empty name means LZ4.
func ForName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", LZ4:
		return lz4Codec{}, nil
	case Zstd:
		return zstdCodec{}, nil
	case Snappy:
		return snappyCodec{}, nil
	}
	return nil, errors.ConfigError{Field: "spill_codec", Reason: fmt.Sprintf("unknown codec %q", name)}
}

type lz4Codec struct{}

func (lz4Codec) Name() string { return LZ4 }

func (lz4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (lz4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return Zstd }

func (zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
}

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

type snappyCodec struct{}

func (snappyCodec) Name() string { return Snappy }

func (snappyCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (snappyCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}
