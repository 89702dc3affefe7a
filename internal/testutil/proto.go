// Package testutil builds protobuf and stream-file fixtures for tests.
package testutil

import (
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encoder appends protobuf fields in call order.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Varint appends a varint field.
func (e *Encoder) Varint(num protowire.Number, v uint64) *Encoder {
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
	return e
}

// Bytes appends a length-delimited field.
func (e *Encoder) Bytes(num protowire.Number, v []byte) *Encoder {
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
	return e
}

// String appends a string field.
func (e *Encoder) String(num protowire.Number, v string) *Encoder {
	return e.Bytes(num, []byte(v))
}

// Build returns the encoded bytes.
func (e *Encoder) Build() []byte {
	return e.buf
}

// Timestamp encodes nanoseconds since the epoch as {seconds, nanos}.
func Timestamp(ns int64) []byte {
	return NewEncoder().
		Varint(1, uint64(ns/1_000_000_000)).
		Varint(2, uint64(ns%1_000_000_000)).
		Build()
}

// EntityID encodes shard.realm.num.
func EntityID(shard, realm, num int64) []byte {
	return NewEncoder().
		Varint(1, uint64(shard)).
		Varint(2, uint64(realm)).
		Varint(3, uint64(num)).
		Build()
}

// TransactionID encodes a transaction id paid by 0.0.payer.
func TransactionID(validStart, payer int64) []byte {
	return NewEncoder().
		Bytes(1, Timestamp(validStart)).
		Bytes(2, EntityID(0, 0, payer)).
		Build()
}

// Body describes a transaction body fixture.
type Body struct {
	Payer      int64
	ValidStart int64
	Node       int64
	Fee        uint64
	Memo       string
	// Data maps a data one-of field number to its payload. Zero or several
	// entries produce bodies the type resolver must reject.
	Data map[protowire.Number][]byte
}

// Encode returns the protobuf encoding of the body. Data fields are written
// in ascending field number order.
func (b Body) Encode() []byte {
	e := NewEncoder().Bytes(1, TransactionID(b.ValidStart, b.Payer))
	if b.Node != 0 {
		e.Bytes(2, EntityID(0, 0, b.Node))
	}
	if b.Fee != 0 {
		e.Varint(3, b.Fee)
	}
	if b.Memo != "" {
		e.String(6, b.Memo)
	}
	for _, num := range sortedNumbers(b.Data) {
		e.Bytes(num, b.Data[num])
	}
	return e.Build()
}

func sortedNumbers(m map[protowire.Number][]byte) []protowire.Number {
	out := make([]protowire.Number, 0, len(m))
	for num := range m {
		out = append(out, num)
	}
	slices.Sort(out)
	return out
}

// SignedEnvelope wraps a body in the signed-transaction encoding.
func SignedEnvelope(body []byte) []byte {
	signed := NewEncoder().Bytes(1, body).Bytes(2, []byte{0x0a, 0x00}).Build()
	return NewEncoder().Bytes(5, signed).Build()
}

// BodyBytesEnvelope wraps a body in the legacy body-bytes encoding.
func BodyBytesEnvelope(body []byte) []byte {
	return NewEncoder().Bytes(4, body).Bytes(3, []byte{0x0a, 0x00}).Build()
}

// StructuredEnvelope wraps a body in the oldest structured-body encoding.
func StructuredEnvelope(body []byte) []byte {
	return NewEncoder().Bytes(1, body).Build()
}

// Log describes a contract log fixture.
type Log struct {
	Contract int64
	Bloom    []byte
	Topics   [][]byte
	Data     []byte
}

// Record describes an execution record fixture.
type Record struct {
	Consensus  int64
	Parent     int64
	Status     int32
	Payer      int64
	ValidStart int64
	Hash       []byte
	Memo       string
	Fee        uint64
	Create     bool
	Contract   int64
	GasUsed    uint64
	Logs       []Log
}

// Encode returns the protobuf encoding of the record.
func (r Record) Encode() []byte {
	receipt := NewEncoder().Varint(1, uint64(r.Status))
	if r.Contract != 0 {
		receipt.Bytes(4, EntityID(0, 0, r.Contract))
	}

	e := NewEncoder().Bytes(1, receipt.Build())
	if len(r.Hash) > 0 {
		e.Bytes(2, r.Hash)
	}
	if r.Consensus != 0 {
		e.Bytes(3, Timestamp(r.Consensus))
	}
	e.Bytes(4, TransactionID(r.ValidStart, r.Payer))
	if r.Memo != "" {
		e.String(5, r.Memo)
	}
	if r.Fee != 0 {
		e.Varint(6, r.Fee)
	}

	if r.Contract != 0 || len(r.Logs) > 0 {
		result := NewEncoder().Bytes(1, EntityID(0, 0, r.Contract))
		if r.GasUsed != 0 {
			result.Varint(5, r.GasUsed)
		}
		for _, l := range r.Logs {
			log := NewEncoder().Bytes(1, EntityID(0, 0, l.Contract))
			if len(l.Bloom) > 0 {
				log.Bytes(2, l.Bloom)
			}
			for _, topic := range l.Topics {
				log.Bytes(3, topic)
			}
			if len(l.Data) > 0 {
				log.Bytes(4, l.Data)
			}
			result.Bytes(6, log.Build())
		}
		num := protowire.Number(7)
		if r.Create {
			num = 8
		}
		e.Bytes(num, result.Build())
	}

	if r.Parent != 0 {
		e.Bytes(15, Timestamp(r.Parent))
	}
	return e.Build()
}
