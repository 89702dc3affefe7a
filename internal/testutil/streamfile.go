package testutil

import (
	"encoding/binary"

	"google.golang.org/protobuf/encoding/protowire"
)

// Pair is one raw transaction with its execution record.
type Pair struct {
	Transaction []byte
	Record      []byte
}

const (
	hashClassID         = 0xf422da83a251741e
	recordStreamClassID = 0xe370929ba5429d8b
	digestTypeSHA384    = 0x58ff811b
)

type fileWriter struct {
	buf []byte
}

func (w *fileWriter) int32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *fileWriter) int64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *fileWriter) raw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *fileWriter) sized(b []byte) {
	w.int32(int32(len(b)))
	w.raw(b)
}

// RecordFileV2 encodes a version 2 record file.
func RecordFileV2(hapiMajor int32, previousHash []byte, pairs []Pair) []byte {
	w := &fileWriter{}
	w.int32(2)
	w.int32(hapiMajor)
	w.raw([]byte{0x01})
	w.raw(previousHash)
	for _, p := range pairs {
		w.raw([]byte{0x02})
		w.sized(p.Transaction)
		w.sized(p.Record)
	}
	return w.buf
}

// RecordFileV5 encodes a version 5 record file framed by start and end
// running hashes.
func RecordFileV5(hapi [3]int32, startHash, endHash []byte, pairs []Pair) []byte {
	w := &fileWriter{}
	w.int32(5)
	w.int32(hapi[0])
	w.int32(hapi[1])
	w.int32(hapi[2])
	w.int32(1)

	writeHash := func(h []byte) {
		w.int64(hashClassID)
		w.int32(1)
		w.int32(digestTypeSHA384)
		w.sized(h)
	}

	writeHash(startHash)
	for _, p := range pairs {
		w.int64(recordStreamClassID)
		w.int32(1)
		w.sized(p.Record)
		w.sized(p.Transaction)
	}
	writeHash(endHash)
	return w.buf
}

// Block describes a block file fixture.
type Block struct {
	Number         uint64
	Hapi           [3]uint64
	FirstConsensus int64
	PreviousHash   []byte
	Rounds         []uint64
	Pairs          []Pair
	Proof          []byte
}

// Encode returns the protobuf encoding of the block. The first round header
// precedes every pair; further rounds follow them.
func (b Block) Encode() []byte {
	version := NewEncoder().
		Varint(1, b.Hapi[0]).
		Varint(2, b.Hapi[1]).
		Varint(3, b.Hapi[2]).
		Build()
	header := NewEncoder().
		Bytes(1, version).
		Varint(3, b.Number).
		Bytes(4, Timestamp(b.FirstConsensus)).
		Bytes(5, b.PreviousHash).
		Varint(6, 1).
		Build()

	e := NewEncoder().Bytes(1, NewEncoder().Bytes(1, header).Build())
	round := func(n uint64) {
		item := NewEncoder().Bytes(3, NewEncoder().Varint(1, n).Build()).Build()
		e.Bytes(1, item)
	}

	if len(b.Rounds) > 0 {
		round(b.Rounds[0])
	}
	for _, p := range b.Pairs {
		event := NewEncoder().Bytes(1, p.Transaction).Build()
		e.Bytes(1, NewEncoder().Bytes(4, event).Build())
		e.Bytes(1, NewEncoder().Bytes(5, p.Record).Build())
	}
	for i := 1; i < len(b.Rounds); i++ {
		round(b.Rounds[i])
	}
	if b.Proof != nil {
		e.Bytes(1, NewEncoder().Bytes(9, b.Proof).Build())
	}
	return e.Build()
}

// Pairs builds n signed crypto-transfer pairs with consecutive consensus
// timestamps starting at start. Parents maps a pair index to the index of
// the pair it declares as parent.
func Pairs(n int, start int64, parents map[int]int) []Pair {
	validStart := start - 1_000_000_000
	out := make([]Pair, n)
	for i := range out {
		rec := Record{
			Consensus:  start + int64(i),
			Status:     22,
			Payer:      1001,
			ValidStart: validStart,
		}
		if p, ok := parents[i]; ok {
			rec.Parent = start + int64(p)
		}
		out[i] = Pair{
			Transaction: SignedEnvelope(CryptoTransfer(1001, validStart)),
			Record:      rec.Encode(),
		}
	}
	return out
}

// CryptoTransfer encodes a crypto transfer body paid by 0.0.payer.
func CryptoTransfer(payer, validStart int64) []byte {
	transfers := NewEncoder().Bytes(1, NewEncoder().Bytes(1, EntityID(0, 0, payer)).Build()).Build()
	return Body{
		Payer:      payer,
		ValidStart: validStart,
		Node:       3,
		Fee:        100_000,
		Data:       map[protowire.Number][]byte{14: transfers},
	}.Encode()
}
