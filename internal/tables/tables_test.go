package tables

import (
	"bytes"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/errata"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/recorditem"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/transaction"
)

func sampleFile() *streamfile.StreamFile {
	return &streamfile.StreamFile{
		Name:   streamfile.BlockFileName(42),
		Format: streamfile.FormatBlock,
		Index:  42,
		Items: []*recorditem.RecordItem{
			{
				Index:              0,
				HapiVersion:        semver.MustParse("0.50.0"),
				TransactionBytes:   []byte{0x0a},
				RecordBytes:        []byte{0x0b},
				Body:               &transaction.DecodedBody{Memo: "parent", NodeAccount: transaction.EntityID{Num: 3}, TransactionID: transaction.TransactionID{ValidStart: 90}},
				Record:             &transaction.ExecutionRecord{Receipt: transaction.Receipt{Status: transaction.StatusSuccess}, Fee: 10, ContractResult: &transaction.ContractResult{GasUsed: 500}},
				TransactionType:    transaction.TypeContractCall,
				ConsensusTimestamp: 100,
				Payer:              transaction.EntityID{Num: 1001},
				Successful:         true,
				TransactionHash:    []byte{0xab},
				ParentIndex:        recorditem.NoParent,
			},
			{
				Index:              1,
				TransactionType:    transaction.TypeCryptoCreateAccount,
				EntityOperation:    transaction.OperationCreate,
				ConsensusTimestamp: 101,
				IsChild:            true,
				ParentTimestamp:    100,
				ParentIndex:        0,
				Erratum:            &errata.Correction{Kind: errata.KindStatusOverride, Label: "fix-1"},
			},
		},
	}
}

func TestExtractTransactions(t *testing.T) {
	ingested := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := NewExtractor(ParquetConfig{Network: "testnet"}).ExtractTransactions(sampleFile(), ingested)
	require.Len(t, rows, 2)

	parent := rows[0]
	assert.Equal(t, "testnet", parent.Network)
	assert.Equal(t, int64(42), parent.FileIndex)
	assert.Equal(t, "CONTRACTCALL", parent.TypeName)
	assert.Equal(t, "0.0.1001", parent.Payer)
	assert.Equal(t, "0.0.3", parent.NodeAccount)
	assert.Equal(t, "ab", parent.TransactionHash)
	assert.Equal(t, int64(500), parent.GasUsed)
	assert.Equal(t, "0.50.0", parent.HapiVersion)
	assert.Equal(t, int32(-1), parent.ParentIndex)

	child := rows[1]
	assert.True(t, child.IsChild)
	assert.Equal(t, int32(0), child.ParentIndex)
	assert.Equal(t, "CREATE", child.EntityOperation)
	assert.Equal(t, "fix-1", child.Erratum)
}

func TestWriteReadTransactions(t *testing.T) {
	ingested := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := NewExtractor(ParquetConfig{Network: "testnet"}).ExtractTransactions(sampleFile(), ingested)

	for _, compression := range []string{"zstd", "snappy", "none"} {
		t.Run(compression, func(t *testing.T) {
			data, err := WriteTransactions(rows, ParquetConfig{Compression: compression})
			require.NoError(t, err)
			got, err := ReadTransactions(data, Checksum(data))
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, rows[0].ConsensusTimestamp, got[0].ConsensusTimestamp)
			assert.Equal(t, rows[1].Erratum, got[1].Erratum)
			assert.Equal(t, rows[0].TransactionBytes, got[0].TransactionBytes)
			assert.True(t, ingested.Equal(got[0].IngestedAt))
		})
	}
}

func TestReadTransactionsChecksumMismatch(t *testing.T) {
	rows := NewExtractor(ParquetConfig{Network: "testnet"}).ExtractTransactions(sampleFile(), time.Now())
	data, err := WriteTransactions(rows, ParquetConfig{})
	require.NoError(t, err)
	sum := Checksum(data)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, sum)

	damaged := bytes.Clone(data)
	damaged[len(damaged)/2] ^= 0xff
	_, err = ReadTransactions(damaged, sum)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	got, err := ReadTransactions(data, "")
	require.NoError(t, err)
	assert.Len(t, got, len(rows))
}

func TestWriteTransactionsUnknownCompression(t *testing.T) {
	_, err := WriteTransactions(nil, ParquetConfig{Compression: "lzma"})
	assert.Error(t, err)
}
