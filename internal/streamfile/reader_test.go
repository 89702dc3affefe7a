package streamfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/recorditem"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/testutil"
)

const base = int64(1_700_000_000_000_000_000)

func newReader() *Reader {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReader(recorditem.NewBuilder(recorditem.Options{Network: "testnet", Logger: log}))
}

func recordName(ts int64) string {
	return RecordFileName(time.Unix(0, ts))
}

func hash(b byte) []byte {
	return bytes.Repeat([]byte{b}, 48)
}

func TestReadRecordFileV2(t *testing.T) {
	pairs := testutil.Pairs(3, base, map[int]int{1: 0})
	data := testutil.RecordFileV2(30, hash(0xaa), pairs)

	file, err := newReader().Read(recordName(base), data)
	require.NoError(t, err)

	assert.Equal(t, FormatRecord, file.Format)
	assert.Equal(t, 2, file.Version)
	assert.Equal(t, "30.0.0", file.HapiVersion.String())
	assert.Equal(t, hash(0xaa), file.PreviousHash)
	assert.Equal(t, DigestSHA384.Sum(data), file.Hash)
	assert.Equal(t, file.Hash, file.ChainHash())
	assert.Equal(t, 3, file.Count)
	require.Len(t, file.Items, 3)
	assert.Equal(t, base, file.ConsensusStart)
	assert.Equal(t, base+2, file.ConsensusEnd)
	assert.Equal(t, 0, file.Items[1].ParentIndex)
	assert.Equal(t, "30.0.0", file.Items[0].HapiVersion.String())
	assert.Equal(t, 3, file.Successful())
	assert.Empty(t, file.LogsBloom)
}

func TestReadRecordFileV5(t *testing.T) {
	pairs := testutil.Pairs(2, base, nil)
	data := testutil.RecordFileV5([3]int32{0, 47, 2}, hash(0x01), hash(0x02), pairs)

	file, err := newReader().Read(recordName(base)+".zst", data)
	require.NoError(t, err)

	assert.Equal(t, 5, file.Version)
	assert.Equal(t, "0.47.2", file.HapiVersion.String())
	assert.Equal(t, hash(0x01), file.PreviousHash)
	assert.Equal(t, hash(0x02), file.RunningHash)
	assert.Equal(t, hash(0x02), file.ChainHash())
	assert.Equal(t, DigestSHA384.Sum(data), file.Hash)
	assert.Equal(t, 2, file.Count)
	assert.Equal(t, base+1, file.ConsensusEnd)
}

func TestReadRecordFileV5Empty(t *testing.T) {
	data := testutil.RecordFileV5([3]int32{0, 47, 2}, hash(0x01), hash(0x02), nil)

	file, err := newReader().Read(recordName(base), data)
	require.NoError(t, err)
	assert.Zero(t, file.Count)
	assert.Empty(t, file.Items)
}

func TestReadBlockFile(t *testing.T) {
	block := testutil.Block{
		Number:         42,
		Hapi:           [3]uint64{0, 56, 0},
		FirstConsensus: base,
		PreviousHash:   hash(0x0b),
		Rounds:         []uint64{100, 101, 102},
		Pairs:          testutil.Pairs(3, base, map[int]int{1: 0, 2: 0}),
		Proof:          []byte("proof"),
	}

	file, err := newReader().Read(BlockFileName(42), block.Encode())
	require.NoError(t, err)

	assert.Equal(t, FormatBlock, file.Format)
	assert.Equal(t, uint64(42), file.Index)
	assert.Equal(t, "0.56.0", file.HapiVersion.String())
	assert.Equal(t, hash(0x0b), file.PreviousHash)
	assert.Equal(t, uint64(100), file.RoundStart)
	assert.Equal(t, uint64(102), file.RoundEnd)
	assert.Equal(t, []byte("proof"), file.BlockProof)
	assert.Equal(t, 3, file.Count)
	assert.Equal(t, base, file.ConsensusStart)
	assert.Equal(t, base+2, file.ConsensusEnd)
	assert.Equal(t, 0, file.Items[2].ParentIndex)
}

func TestReadErrors(t *testing.T) {
	pairs := testutil.Pairs(1, base, nil)
	v2 := testutil.RecordFileV2(30, hash(0xaa), pairs)

	unsupported := binary.BigEndian.AppendUint32(nil, 3)
	badMarker := append(bytes.Clone(v2), 0x07)
	badDigest := testutil.RecordFileV5([3]int32{0, 47, 0}, hash(1), hash(2), nil)
	binary.BigEndian.PutUint32(badDigest[20+8+4:], 0x1234)
	noEnd := testutil.RecordFileV5([3]int32{0, 47, 0}, hash(1), hash(2), pairs)
	noEnd = noEnd[:len(noEnd)-(8+4+4+4+48)]
	badItem := testutil.RecordFileV2(30, hash(0xaa), []testutil.Pair{{Transaction: pairs[0].Transaction, Record: []byte{0xff}}})
	wrongBlock := testutil.Block{Number: 41, Pairs: pairs}.Encode()
	orphan := testutil.NewEncoder().
		Bytes(1, testutil.NewEncoder().Bytes(1, testutil.NewEncoder().Varint(3, 42).Build()).Build()).
		Bytes(1, testutil.NewEncoder().Bytes(5, pairs[0].Record).Build()).
		Build()

	tests := []struct {
		name string
		file string
		data []byte
		want error
	}{
		{"unknown name", "ledger.xdr", v2, ErrUnknownFileName},
		{"empty record file", recordName(base), nil, ErrCorruptFile},
		{"unsupported version", recordName(base), unsupported, ErrUnsupportedVersion},
		{"truncated v2 header", recordName(base), v2[:20], ErrCorruptFile},
		{"truncated v2 item", recordName(base), v2[:len(v2)-3], ErrCorruptFile},
		{"bad v2 marker", recordName(base), badMarker, ErrCorruptFile},
		{"unsupported digest", recordName(base), badDigest, ErrUnsupportedVersion},
		{"missing end hash", recordName(base), noEnd, ErrCorruptFile},
		{"bad item", recordName(base), badItem, recorditem.ErrBadRecordBytes},
		{"block number mismatch", BlockFileName(42), wrongBlock, ErrCorruptFile},
		{"block without header", BlockFileName(42), []byte{}, ErrCorruptFile},
		{"result without transaction", BlockFileName(42), orphan, ErrCorruptFile},
		{"garbage block", BlockFileName(42), []byte{0xff}, ErrCorruptFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newReader().Read(tt.file, tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadItemFailureCarriesIndex(t *testing.T) {
	pairs := testutil.Pairs(3, base, nil)
	pairs[2].Transaction = []byte{0xff}
	data := testutil.RecordFileV2(30, hash(0xaa), pairs)

	_, err := newReader().Read(recordName(base), data)
	var itemErr *recorditem.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 2, itemErr.Index)
	assert.ErrorIs(t, err, recorditem.ErrBadTransactionBytes)
}
