package structchunk

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/qri-io/dataset/compression"
)

// Compressor ids understood by CompressionMeta.
const (
	CompressorGzip = "gzip"
	CompressorZstd = "zst"
	CompressorLZ4  = "lz4"
)

// CompressionMeta defines the generic compressor a block store applies to
// a block's stored bytes. A nil *CompressionMeta stores bytes as-is.
type CompressionMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

// DefaultCompression is deflate at level 9.
var DefaultCompression = CompressionMeta{ID: CompressorGzip, Level: 9}

func (m *CompressionMeta) Validate() error {
	switch m.ID {
	case CompressorGzip:
		if m.Level < gzip.HuffmanOnly || m.Level > gzip.BestCompression {
			return fmt.Errorf("gzip level must be between %d and %d. got %d", gzip.HuffmanOnly, gzip.BestCompression, m.Level)
		}
	case CompressorZstd:
		if m.Level < 0 || m.Level > 22 {
			return fmt.Errorf("zstd level must be between 0 and 22. got %d", m.Level)
		}
	case CompressorLZ4:
		if m.Level < 0 || m.Level > 9 {
			return fmt.Errorf("lz4 level must be between 0 and 9. got %d", m.Level)
		}
	default:
		return fmt.Errorf("unsupported compressor %q", m.ID)
	}
	return nil
}

func (m *CompressionMeta) String() string {
	return fmt.Sprintf("%s-%d", m.ID, m.Level)
}

// Compressor wraps w so that bytes written to it are compressed. Callers
// must Close the writer to flush it.
func (m *CompressionMeta) Compressor(w io.Writer) (io.WriteCloser, error) {
	switch m.ID {
	case CompressorGzip:
		return gzip.NewWriterLevel(w, m.Level)
	case CompressorZstd:
		level := zstd.SpeedDefault
		if m.Level > 0 {
			level = zstd.EncoderLevelFromZstd(m.Level)
		}
		return zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	case CompressorLZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4Levels[m.Level])); err != nil {
			return nil, err
		}
		return zw, nil
	}
	return nil, fmt.Errorf("unsupported compressor %q", m.ID)
}

// Decompressor wraps a reader of compressed bytes.
func (m *CompressionMeta) Decompressor(r io.Reader) (io.ReadCloser, error) {
	if m.ID == CompressorLZ4 {
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return compression.Decompressor(m.ID, r)
}

// Compress returns the compressed form of b.
func (m *CompressionMeta) Compress(b []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w, err := m.Compressor(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress returns the uncompressed form of b.
func (m *CompressionMeta) Decompress(b []byte) ([]byte, error) {
	r, err := m.Decompressor(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}
