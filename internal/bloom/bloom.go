// Package bloom aggregates contract log addresses and topics into 2048-bit
// bloom filters, one per transaction and one per stream file.
package bloom

import (
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	// Size is the filter width in bytes.
	Size = 256

	hashCount  = 3
	bitMaskLen = 0x07
)

// Filter is a mutable bloom accumulator. It is not safe for concurrent use.
type Filter struct {
	b   [Size]byte
	set bool
}

// New returns an empty filter.
func New() *Filter {
	return &Filter{}
}

// FromBytes builds a filter from a serialized form. An empty slice is an
// empty filter; any other length must be exactly Size.
func FromBytes(b []byte) (*Filter, error) {
	f := New()
	if len(b) == 0 {
		return f, nil
	}
	if len(b) != Size {
		return nil, fmt.Errorf("bloom: want %d bytes, got %d", Size, len(b))
	}
	copy(f.b[:], b)
	f.set = !allZero(f.b[:])
	return f, nil
}

// Insert hashes data with Keccak-256 and sets the three derived bits.
func (f *Filter) Insert(data []byte) {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	sum := h.Sum(nil)

	for i := 0; i < hashCount*2; i += 2 {
		bit := (uint(sum[i]&bitMaskLen) << 8) | uint(sum[i+1])
		f.b[Size-1-bit/8] |= 1 << (bit % 8)
	}
	f.set = true
}

// Merge ORs other into f.
func (f *Filter) Merge(other *Filter) {
	if other == nil || !other.set {
		return
	}
	for i := range f.b {
		f.b[i] |= other.b[i]
	}
	f.set = true
}

// MergeBytes ORs a serialized filter into f. An empty slice is a no-op.
func (f *Filter) MergeBytes(b []byte) error {
	other, err := FromBytes(b)
	if err != nil {
		return err
	}
	f.Merge(other)
	return nil
}

// CouldContain reports whether every bit set in candidate is also set in f.
// A nil or empty candidate matches anything.
func (f *Filter) CouldContain(candidate *Filter) bool {
	if candidate == nil || !candidate.set {
		return true
	}
	for i := range f.b {
		if candidate.b[i]&f.b[i] != candidate.b[i] {
			return false
		}
	}
	return true
}

// CouldContainBytes is CouldContain for a serialized candidate. Malformed
// candidates never match.
func (f *Filter) CouldContainBytes(b []byte) bool {
	candidate, err := FromBytes(b)
	if err != nil {
		return false
	}
	return f.CouldContain(candidate)
}

// IsEmpty reports whether no bit is set.
func (f *Filter) IsEmpty() bool {
	return !f.set
}

// Bytes returns a copy of the filter. A filter with no bits set serializes
// to an empty slice, so "no logs" is distinguishable from 256 zero bytes.
func (f *Filter) Bytes() []byte {
	if !f.set {
		return []byte{}
	}
	out := make([]byte, Size)
	copy(out, f.b[:])
	return out
}

// InsertLog adds a log's emitting address and each of its topics.
func (f *Filter) InsertLog(address []byte, topics [][]byte) {
	if len(address) > 0 {
		f.Insert(address)
	}
	for _, topic := range topics {
		f.Insert(topic)
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
