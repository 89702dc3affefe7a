package streamfile

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownFileName is returned for names matching neither convention.
var ErrUnknownFileName = errors.New("unrecognized stream file name")

// Record file naming: consensus time of the first transaction.
// Example: 2024-01-02T03_04_05.123456789Z.rcd.zst
var recordFilePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}_\d{2}_\d{2}\.\d{9}Z)\.rcd(\.zst)?$`)

// Block file naming: zero-padded 36 digit block number.
// Example: 000000000000000000000000000000000042.blk.zst
var blockFilePattern = regexp.MustCompile(`^(\d{36})\.blk(\.zst)?$`)

const recordTimeLayout = "2006-01-02T15_04_05.000000000Z"

// FileName is the identity a stream file name encodes.
type FileName struct {
	Name        string
	Format      Format
	Timestamp   time.Time // record files
	BlockNumber uint64    // block files
	Compressed  bool
}

// ParseFileName classifies a name by convention. Directories are ignored.
func ParseFileName(name string) (FileName, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))

	if m := recordFilePattern.FindStringSubmatch(base); m != nil {
		ts, err := time.Parse(recordTimeLayout, m[1])
		if err != nil {
			return FileName{}, fmt.Errorf("%w: %s: %v", ErrUnknownFileName, base, err)
		}
		return FileName{Name: base, Format: FormatRecord, Timestamp: ts, Compressed: m[2] != ""}, nil
	}

	if m := blockFilePattern.FindStringSubmatch(base); m != nil {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return FileName{}, fmt.Errorf("%w: %s: %v", ErrUnknownFileName, base, err)
		}
		return FileName{Name: base, Format: FormatBlock, BlockNumber: n, Compressed: m[2] != ""}, nil
	}

	return FileName{}, fmt.Errorf("%w: %s", ErrUnknownFileName, base)
}

// Less orders names of the same format by timestamp or block number.
func (n FileName) Less(other FileName) bool {
	if n.Format != other.Format {
		return n.Format < other.Format
	}
	if n.Format == FormatBlock {
		return n.BlockNumber < other.BlockNumber
	}
	return n.Timestamp.Before(other.Timestamp)
}

// RecordFileName returns the canonical name of a record file.
func RecordFileName(t time.Time) string {
	return t.UTC().Format(recordTimeLayout) + ".rcd"
}

// BlockFileName returns the canonical name of a block file.
func BlockFileName(number uint64) string {
	return fmt.Sprintf("%036d.blk", number)
}

// IsCompressed checks if a name carries the zstd suffix.
func IsCompressed(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zst")
}

// Canonical returns the uncompressed name of the file.
func (n FileName) Canonical() string {
	if n.Format == FormatBlock {
		return BlockFileName(n.BlockNumber)
	}
	return RecordFileName(n.Timestamp)
}
