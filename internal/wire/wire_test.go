package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestParseKeepsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	b = protowire.AppendTag(b, 9999, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))
	b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)

	m, err := Parse(b)
	require.NoError(t, err)
	require.Len(t, m.Fields, 3)

	v, ok := m.Varint(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), v)

	raw, ok := m.Bytes(9999)
	assert.True(t, ok)
	assert.Equal(t, []byte("future"), raw)

	assert.Equal(t, []protowire.Number{1, 9999, 3}, m.Numbers())
	assert.False(t, m.IsDefault())
}

func TestParseLastOccurrenceWins(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 5)

	m, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.Int64(2))
	assert.Len(t, m.All(2), 2)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"truncated tag", []byte{0xff}},
		{"truncated length", []byte{0x0a, 0x05, 0x01}},
		{"stray end group", []byte{0x0c}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestIsDefault(t *testing.T) {
	m, err := Parse(nil)
	require.NoError(t, err)
	assert.True(t, m.IsDefault())

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 0)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)

	m, err = Parse(b)
	require.NoError(t, err)
	assert.True(t, m.IsDefault())
}

func TestEmbeddedMessage(t *testing.T) {
	var inner []byte
	inner = protowire.AppendTag(inner, 1, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 3)

	var outer []byte
	outer = protowire.AppendTag(outer, 4, protowire.BytesType)
	outer = protowire.AppendBytes(outer, inner)

	m, err := Parse(outer)
	require.NoError(t, err)

	sub, ok, err := m.Message(4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), sub.Int64(1))

	_, ok, err = m.Message(5)
	assert.NoError(t, err)
	assert.False(t, ok)
}
