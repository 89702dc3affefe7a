// Package streamfile reads record and block stream files into StreamFiles
// and validates their integrity and linkage to the previously accepted file.
package streamfile

import (
	"crypto/sha512"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/bloom"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/recorditem"
)

// Format is the container layout of a stream file.
type Format int

const (
	FormatUnknown Format = iota
	FormatRecord
	FormatBlock
)

func (f Format) String() string {
	switch f {
	case FormatRecord:
		return "record"
	case FormatBlock:
		return "block"
	default:
		return "unknown"
	}
}

// DigestAlgorithm identifies the hash a file is digested with.
type DigestAlgorithm int

const (
	DigestSHA384 DigestAlgorithm = iota + 1
)

// digestTypeSHA384 is the on-disk identifier record files v5 use.
const digestTypeSHA384 = 0x58ff811b

func (d DigestAlgorithm) String() string {
	if d == DigestSHA384 {
		return "SHA-384"
	}
	return fmt.Sprintf("digest(%d)", int(d))
}

// Size is the digest length in bytes.
func (d DigestAlgorithm) Size() int {
	if d == DigestSHA384 {
		return sha512.Size384
	}
	return 0
}

// Sum digests data. Unknown algorithms return nil.
func (d DigestAlgorithm) Sum(data []byte) []byte {
	if d != DigestSHA384 {
		return nil
	}
	sum := sha512.Sum384(data)
	return sum[:]
}

// StreamFile is one reconstructed stream file. It is immutable once read.
type StreamFile struct {
	Name        string
	Format      Format
	Version     int
	HapiVersion *semver.Version

	// Index is the block number for block files; for record files it is
	// assigned by the caller from its own sequence.
	Index uint64

	// Bytes is the uncompressed content the digest is taken over.
	Bytes           []byte
	DigestAlgorithm DigestAlgorithm
	Hash            []byte
	// ExpectedHash is the digest published for the file by whoever supplied
	// it, such as a sidecar next to the file. The digest check compares
	// against it when set.
	ExpectedHash []byte
	PreviousHash []byte
	// RunningHash is the end running hash of a v5 record file. When set it,
	// rather than Hash, is what the next file's PreviousHash refers to.
	RunningHash []byte

	ConsensusStart int64
	ConsensusEnd   int64
	RoundStart     uint64
	RoundEnd       uint64

	// Count is the number of raw pairs the container declared.
	Count int
	Items []*recorditem.RecordItem

	// LogsBloom is the merge of every item bloom; empty when no item
	// emitted logs.
	LogsBloom  []byte
	BlockProof []byte

	Unresolved int
	Corrected  int
}

// ChainHash is the hash the following file must carry as PreviousHash.
func (f *StreamFile) ChainHash() []byte {
	if len(f.RunningHash) > 0 {
		return f.RunningHash
	}
	return f.Hash
}

// CouldContain reports whether the file may hold logs matching a serialized
// bloom candidate. An empty candidate always matches.
func (f *StreamFile) CouldContain(candidate []byte) bool {
	filter, err := bloom.FromBytes(f.LogsBloom)
	if err != nil {
		return false
	}
	return filter.CouldContainBytes(candidate)
}

// Successful returns the number of items with a success status.
func (f *StreamFile) Successful() int {
	n := 0
	for _, item := range f.Items {
		if item.Successful {
			n++
		}
	}
	return n
}
