package streamfile

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/bloom"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/errata"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/recorditem"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/testutil"
)

func readV2(t *testing.T, start int64, previousHash []byte, pairs []testutil.Pair) *StreamFile {
	t.Helper()
	file, err := newReader().Read(recordName(start), testutil.RecordFileV2(30, previousHash, pairs))
	require.NoError(t, err)
	return file
}

func requireCheck(t *testing.T, err error, check Check, sentinel error) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, check, verr.Check)
}

func TestValidateEndToEnd(t *testing.T) {
	lastKnown := hash(0x5a)
	pairs := testutil.Pairs(3, base, map[int]int{1: 0})

	file := readV2(t, base, lastKnown, pairs)

	assert.Equal(t, base, file.ConsensusStart)
	assert.Equal(t, base+2, file.ConsensusEnd)
	assert.Equal(t, 3, file.Count)
	assert.Equal(t, file.Items[0], file.Items[1].Parent(file.Items))

	previous := &StreamFile{Hash: lastKnown}
	assert.NoError(t, NewValidator(nil).Validate(file, previous))
	assert.NoError(t, NewValidator(nil).Validate(file, nil))
}

func TestValidateHashChain(t *testing.T) {
	f1 := readV2(t, base, hash(0x01), testutil.Pairs(2, base, nil))

	linked := readV2(t, base+10, f1.Hash, testutil.Pairs(2, base+10, nil))
	assert.NoError(t, NewValidator(nil).Validate(linked, f1))

	broken := readV2(t, base+10, hash(0x02), testutil.Pairs(2, base+10, nil))
	requireCheck(t, NewValidator(nil).Validate(broken, f1), CheckHashChain, ErrHashChainBroken)
}

func TestValidateHashChainV5UsesRunningHash(t *testing.T) {
	r := newReader()
	f1, err := r.Read(recordName(base), testutil.RecordFileV5([3]int32{0, 47, 0}, hash(1), hash(2), testutil.Pairs(1, base, nil)))
	require.NoError(t, err)

	f2, err := r.Read(recordName(base+5), testutil.RecordFileV5([3]int32{0, 47, 0}, hash(2), hash(3), testutil.Pairs(1, base+5, nil)))
	require.NoError(t, err)
	assert.NoError(t, NewValidator(nil).Validate(f2, f1))

	f3, err := r.Read(recordName(base+9), testutil.RecordFileV5([3]int32{0, 47, 0}, f2.Hash, hash(4), testutil.Pairs(1, base+9, nil)))
	require.NoError(t, err)
	requireCheck(t, NewValidator(nil).Validate(f3, f2), CheckHashChain, ErrHashChainBroken)
}

func TestValidateCountMismatch(t *testing.T) {
	file := readV2(t, base, hash(0x01), testutil.Pairs(3, base, nil))
	file.Count = 4

	// Count is checked first, so a broken chain does not mask it.
	requireCheck(t, NewValidator(nil).Validate(file, &StreamFile{Hash: hash(0x09)}), CheckCount, ErrCountMismatch)
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *StreamFile)
		prev   *StreamFile
	}{
		{"inverted", func(f *StreamFile) { f.ConsensusStart, f.ConsensusEnd = f.ConsensusEnd, f.ConsensusStart }, nil},
		{"item after end", func(f *StreamFile) { f.ConsensusEnd-- }, nil},
		{"item before start", func(f *StreamFile) { f.ConsensusStart++ }, nil},
		{"not after previous", func(*StreamFile) {}, &StreamFile{Hash: hash(0x01), ConsensusEnd: base + 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := readV2(t, base, hash(0x01), testutil.Pairs(3, base, nil))
			tt.mutate(file)
			requireCheck(t, NewValidator(nil).Validate(file, tt.prev), CheckBounds, ErrOutOfBounds)
		})
	}
}

func TestValidateCorruptFile(t *testing.T) {
	data := testutil.RecordFileV2(30, hash(0x01), testutil.Pairs(2, base, nil))
	published := DigestSHA384.Sum(data)

	intact, err := newReader().Read(recordName(base), data)
	require.NoError(t, err)
	intact.ExpectedHash = published
	assert.NoError(t, NewValidator(nil).Validate(intact, nil))

	// One flipped byte inside the header still decodes.
	damaged := bytes.Clone(data)
	damaged[12] ^= 0xff
	file, err := newReader().Read(recordName(base), damaged)
	require.NoError(t, err)
	file.ExpectedHash = published
	requireCheck(t, NewValidator(nil).Validate(file, nil), CheckDigest, ErrCorruptFile)

	file, err = newReader().Read(recordName(base), data)
	require.NoError(t, err)
	file.Bytes = bytes.Clone(damaged)
	requireCheck(t, NewValidator(nil).Validate(file, nil), CheckDigest, ErrCorruptFile)

	file, err = newReader().Read(recordName(base), data)
	require.NoError(t, err)
	file.Bytes = nil
	requireCheck(t, NewValidator(nil).Validate(file, nil), CheckDigest, ErrCorruptFile)
}

func TestValidateBlockFileDigest(t *testing.T) {
	block := testutil.Block{
		Number:         3,
		FirstConsensus: base,
		PreviousHash:   hash(0x0b),
		Rounds:         []uint64{4},
		Pairs:          testutil.Pairs(1, base, nil),
	}
	data := block.Encode()
	published := DigestSHA384.Sum(data)

	damaged := bytes.Clone(data)
	at := bytes.Index(damaged, hash(0x0b))
	require.Positive(t, at)
	damaged[at] ^= 0xff

	file, err := newReader().Read(BlockFileName(3), damaged)
	require.NoError(t, err)
	assert.NoError(t, NewValidator(nil).Validate(file, nil), "no published digest to compare")

	file.ExpectedHash = published
	requireCheck(t, NewValidator(nil).Validate(file, nil), CheckDigest, ErrCorruptFile)
}

func TestValidateFileWithShiftedItems(t *testing.T) {
	table, err := errata.Parse([]byte(`entries: [{network: mainnet, timestamp: 1700000000000000000, kind: timestamp_shift, offset_nanos: 7}]`))
	require.NoError(t, err)
	reader := NewReader(recorditem.NewBuilder(recorditem.Options{
		Network: "mainnet",
		Errata:  table,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))

	lastKnown := hash(0x5a)
	file, err := reader.Read(recordName(base), testutil.RecordFileV2(30, lastKnown, testutil.Pairs(3, base, map[int]int{1: 0})))
	require.NoError(t, err)

	assert.Equal(t, 1, file.Corrected)
	assert.Zero(t, file.Unresolved)
	assert.Equal(t, file.Items[0], file.Items[1].Parent(file.Items))
	assert.Equal(t, base+1, file.ConsensusStart)
	assert.Equal(t, base+7, file.ConsensusEnd)

	assert.NoError(t, NewValidator(nil).Validate(file, &StreamFile{Hash: lastKnown}))
}

func TestValidateBlockFile(t *testing.T) {
	block := testutil.Block{
		Number:         7,
		FirstConsensus: base,
		PreviousHash:   hash(0x0b),
		Rounds:         []uint64{10, 11},
		Pairs:          testutil.Pairs(2, base, nil),
		Proof:          []byte("proof"),
	}
	file, err := newReader().Read(BlockFileName(7), block.Encode())
	require.NoError(t, err)

	// A block does not chain by content hash at this layer.
	previous := &StreamFile{Format: FormatBlock, Index: 6, Hash: hash(0xff)}
	assert.NoError(t, NewValidator(TrustedProofs).Validate(file, previous))

	var seen *StreamFile
	reject := ProofVerifierFunc(func(f, prev *StreamFile) bool {
		seen = prev
		return !bytes.Equal(f.BlockProof, []byte("proof"))
	})
	requireCheck(t, NewValidator(reject).Validate(file, previous), CheckBlockProof, ErrInvalidBlockProof)
	assert.Same(t, previous, seen)

	file.RoundStart, file.RoundEnd = 12, 11
	requireCheck(t, NewValidator(nil).Validate(file, nil), CheckBounds, ErrOutOfBounds)
}

func TestStreamFileCouldContain(t *testing.T) {
	topic := bytes.Repeat([]byte{0x22}, 32)
	rec := testutil.Record{
		Consensus: base,
		Status:    22,
		Contract:  9,
		Logs:      []testutil.Log{{Contract: 9, Topics: [][]byte{topic}}},
	}.Encode()
	pairs := []testutil.Pair{{Transaction: testutil.SignedEnvelope(testutil.CryptoTransfer(1001, base-1)), Record: rec}}
	file := readV2(t, base, hash(0x01), pairs)

	needle := bloom.New()
	needle.Insert(topic)
	assert.True(t, file.CouldContain(needle.Bytes()))
	assert.True(t, file.CouldContain(nil))

	other := bloom.New()
	other.Insert([]byte("a topic nobody emitted"))
	assert.False(t, file.CouldContain(other.Bytes()))

	empty := readV2(t, base, hash(0x01), testutil.Pairs(1, base, nil))
	assert.False(t, empty.CouldContain(needle.Bytes()))
	assert.True(t, empty.CouldContain(nil))
}
