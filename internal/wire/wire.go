// Package wire scans protobuf-encoded messages into ordered field lists.
//
// Stream files carry transactions, execution records and block items as
// protobuf messages whose schema evolves faster than this importer. The
// scanner keeps every field, including ones it has no name for, so callers
// can reason about unknown field numbers instead of silently dropping them.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when bytes are not a valid protobuf encoding.
var ErrMalformed = errors.New("malformed protobuf encoding")

// Field is a single decoded field occurrence.
type Field struct {
	Number protowire.Number
	Type   protowire.Type
	Varint uint64 // varint, fixed32 and fixed64 payloads
	Bytes  []byte // length-delimited and group payloads
}

// IsDefault reports whether the field carries its type's zero value.
func (f Field) IsDefault() bool {
	switch f.Type {
	case protowire.BytesType, protowire.StartGroupType:
		return len(f.Bytes) == 0
	default:
		return f.Varint == 0
	}
}

// Message is a parsed message in wire order.
type Message struct {
	Fields []Field
}

// Parse decodes b into a Message. An empty input is a valid empty message.
func Parse(b []byte) (Message, error) {
	var m Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := Field{Number: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fieldError(num, n)
			}
			f.Varint = v
			b = b[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return Message{}, fieldError(num, n)
			}
			f.Varint = uint64(v)
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Message{}, fieldError(num, n)
			}
			f.Varint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Message{}, fieldError(num, n)
			}
			f.Bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, fieldError(num, n)
			}
			f.Bytes = b[:n]
			b = b[n:]
		}
		m.Fields = append(m.Fields, f)
	}
	return m, nil
}

func fieldError(num protowire.Number, n int) error {
	return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
}

// IsDefault reports whether every field holds its zero value. A message
// with no fields is default.
func (m Message) IsDefault() bool {
	for _, f := range m.Fields {
		if !f.IsDefault() {
			return false
		}
	}
	return true
}

// Has reports whether the field number occurs at least once.
func (m Message) Has(num protowire.Number) bool {
	_, ok := m.last(num)
	return ok
}

// Varint returns the last occurrence of a scalar field.
func (m Message) Varint(num protowire.Number) (uint64, bool) {
	f, ok := m.last(num)
	if !ok || f.Type == protowire.BytesType {
		return 0, false
	}
	return f.Varint, true
}

// Int64 returns a scalar field interpreted as a signed two's complement value.
func (m Message) Int64(num protowire.Number) int64 {
	v, _ := m.Varint(num)
	return int64(v)
}

// Bool returns a scalar field interpreted as a bool.
func (m Message) Bool(num protowire.Number) bool {
	v, _ := m.Varint(num)
	return v != 0
}

// Bytes returns the last occurrence of a length-delimited field.
func (m Message) Bytes(num protowire.Number) ([]byte, bool) {
	f, ok := m.last(num)
	if !ok || f.Type != protowire.BytesType {
		return nil, false
	}
	return f.Bytes, true
}

// String returns a length-delimited field as a string.
func (m Message) String(num protowire.Number) string {
	b, _ := m.Bytes(num)
	return string(b)
}

// Message parses the last occurrence of an embedded message field. The
// boolean is false when the field is absent.
func (m Message) Message(num protowire.Number) (Message, bool, error) {
	b, ok := m.Bytes(num)
	if !ok {
		return Message{}, false, nil
	}
	sub, err := Parse(b)
	if err != nil {
		return Message{}, true, fmt.Errorf("field %d: %w", num, err)
	}
	return sub, true, nil
}

// All returns every occurrence of a field, in wire order.
func (m Message) All(num protowire.Number) []Field {
	var out []Field
	for _, f := range m.Fields {
		if f.Number == num {
			out = append(out, f)
		}
	}
	return out
}

// Numbers returns the distinct field numbers present, in first-seen order.
func (m Message) Numbers() []protowire.Number {
	seen := make(map[protowire.Number]bool, len(m.Fields))
	var out []protowire.Number
	for _, f := range m.Fields {
		if !seen[f.Number] {
			seen[f.Number] = true
			out = append(out, f.Number)
		}
	}
	return out
}

func (m Message) last(num protowire.Number) (Field, bool) {
	for i := len(m.Fields) - 1; i >= 0; i-- {
		if m.Fields[i].Number == num {
			return m.Fields[i], true
		}
	}
	return Field{}, false
}
