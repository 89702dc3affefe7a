package source

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// Decoder decompresses zstd stream files.
type Decoder struct {
	zstdDecoder *zstd.Decoder
}

// NewDecoder creates a new decoder.
func NewDecoder() (*Decoder, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Decoder{zstdDecoder: dec}, nil
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	if d.zstdDecoder != nil {
		d.zstdDecoder.Close()
	}
}

// Decode returns the uncompressed content of a file. Files without the
// zstd suffix are returned as is.
func (d *Decoder) Decode(name streamfile.FileName, data []byte) ([]byte, error) {
	if !name.Compressed {
		return data, nil
	}
	raw, err := d.zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return raw, nil
}
