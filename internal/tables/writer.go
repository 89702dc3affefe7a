package tables

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// ErrChecksumMismatch is returned when an archived table does not match the
// checksum its manifest recorded.
var ErrChecksumMismatch = errors.New("table checksum mismatch")

// Checksum is the manifest checksum of an encoded table: "sha256:<hex>".
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// WriteTransactions encodes rows as a parquet file.
func WriteTransactions(rows []TransactionRow, cfg ParquetConfig) ([]byte, error) {
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[TransactionRow](&buf, parquet.Compression(codec))
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadTransactions decodes a parquet file written by WriteTransactions. A
// non-empty checksum, as recorded in the manifest, is verified first.
func ReadTransactions(data []byte, checksum string) ([]TransactionRow, error) {
	if checksum != "" {
		if got := Checksum(data); got != checksum {
			return nil, fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, checksum)
		}
	}
	rows, err := parquet.Read[TransactionRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows, nil
}

func compressionCodec(name string) (compress.Codec, error) {
	switch name {
	case "", "zstd":
		return &parquet.Zstd, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "none":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unknown parquet compression %q", name)
	}
}
