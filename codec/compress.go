package codec

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compression selects an optional payload compression stage.
type Compression string

const (
	// CompressionNone sends payloads as-is (the default).
	CompressionNone Compression = "none"
	// CompressionZstd compresses payloads with zstd before framing.
	CompressionZstd Compression = "zstd"
)

// maxDecodedSize bounds zstd decoder memory for a single payload.
const maxDecodedSize = 1 << 30

// ParseCompression parses a compression string. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", string(CompressionNone):
		return CompressionNone, nil
	case string(CompressionZstd):
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("invalid compression %q (must be none or zstd)", s)
	}
}

// Compressor applies the configured compression to payloads.
// A nil *Compressor is a passthrough.
type Compressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCompressor creates a compressor. CompressionNone returns nil, which
// is a valid passthrough compressor.
func NewCompressor(c Compression) (*Compressor, error) {
	switch c {
	case CompressionNone, "":
		return nil, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
		if err != nil {
			_ = enc.Close()
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return &Compressor{enc: enc, dec: dec}, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

// Enabled reports whether payloads are transformed.
func (c *Compressor) Enabled() bool {
	return c != nil
}

// Compress returns the compressed payload.
func (c *Compressor) Compress(payload []byte) []byte {
	if c == nil {
		return payload
	}
	return c.enc.EncodeAll(payload, make([]byte, 0, len(payload)/2))
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(payload []byte) ([]byte, error) {
	if c == nil {
		return payload, nil
	}
	out, err := c.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

// Close releases encoder and decoder resources.
func (c *Compressor) Close() error {
	if c == nil {
		return nil
	}
	c.dec.Close()
	return c.enc.Close()
}
