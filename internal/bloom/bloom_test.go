package bloom

import (
	"math/bits"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filterOf(items ...string) *Filter {
	f := New()
	for _, item := range items {
		f.Insert([]byte(item))
	}
	return f
}

func popCount(b []byte) int {
	n := 0
	for _, v := range b {
		n += bits.OnesCount8(v)
	}
	return n
}

func TestInsertSetsAtMostThreeBits(t *testing.T) {
	f := filterOf("topic")
	raw := f.Bytes()
	require.Len(t, raw, Size)

	n := popCount(raw)
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 3)
}

func TestRoundTrip(t *testing.T) {
	f := filterOf("s1", "s2")

	assert.True(t, f.CouldContain(filterOf("s1")))
	assert.True(t, f.CouldContain(filterOf("s2")))
	assert.True(t, f.CouldContain(filterOf("s1", "s2")))
	assert.False(t, f.CouldContain(filterOf("an unrelated third topic")))

	restored, err := FromBytes(f.Bytes())
	require.NoError(t, err)
	assert.Equal(t, f.Bytes(), restored.Bytes())
	assert.True(t, restored.CouldContainBytes(filterOf("s1").Bytes()))
}

func TestEmptyFilter(t *testing.T) {
	f := New()
	assert.True(t, f.IsEmpty())
	assert.Equal(t, []byte{}, f.Bytes())

	zero, err := FromBytes(make([]byte, Size))
	require.NoError(t, err)
	assert.True(t, zero.IsEmpty())
	assert.Equal(t, []byte{}, zero.Bytes())

	fromEmpty, err := FromBytes(nil)
	require.NoError(t, err)
	assert.True(t, filterOf("x").CouldContain(fromEmpty))
	assert.True(t, New().CouldContain(fromEmpty))
	assert.True(t, New().CouldContain(nil))
	assert.True(t, New().CouldContainBytes(nil))
	assert.False(t, New().CouldContain(filterOf("x")))
}

func TestFromBytesRejectsBadLength(t *testing.T) {
	_, err := FromBytes([]byte{0x01, 0x02})
	assert.Error(t, err)
	assert.False(t, New().CouldContainBytes([]byte{0x01}))
}

func TestMerge(t *testing.T) {
	a := filterOf("a")
	b := filterOf("b")

	merged := New()
	merged.Merge(a)
	require.NoError(t, merged.MergeBytes(b.Bytes()))
	require.NoError(t, merged.MergeBytes(nil))
	merged.Merge(nil)

	assert.Equal(t, filterOf("a", "b").Bytes(), merged.Bytes())
	assert.Error(t, merged.MergeBytes([]byte{0x01}))
}

func TestInsertLog(t *testing.T) {
	f := New()
	f.InsertLog(nil, nil)
	assert.True(t, f.IsEmpty())

	f.InsertLog([]byte("address"), [][]byte{[]byte("t0"), []byte("t1")})
	assert.Equal(t, filterOf("address", "t0", "t1").Bytes(), f.Bytes())
}

func TestFilterProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a filter contains every subset of its inputs", prop.ForAll(
		func(items []string, pick int) bool {
			if len(items) == 0 {
				return true
			}
			f := filterOf(items...)
			return f.CouldContain(filterOf(items[pick%len(items)]))
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 1000),
	))

	properties.Property("merge is commutative", prop.ForAll(
		func(a, b []string) bool {
			ab := filterOf(a...)
			ab.Merge(filterOf(b...))
			ba := filterOf(b...)
			ba.Merge(filterOf(a...))
			return string(ab.Bytes()) == string(ba.Bytes())
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
