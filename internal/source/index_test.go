package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

func TestFileIndexOrdersAndFilters(t *testing.T) {
	idx := NewFileIndex(streamfile.FormatRecord)

	assert.True(t, idx.AddFile("stream/2024-01-02T03_04_10.000000000Z.rcd", 10))
	assert.True(t, idx.AddFile("stream/2024-01-02T03_04_05.000000000Z.rcd.zst", 10))
	assert.False(t, idx.AddFile("stream/2024-01-02T03_04_05.000000000Z.rcd", 10), "duplicate of the compressed name")
	assert.False(t, idx.AddFile("stream/000000000000000000000000000000000042.blk", 10), "block file in a record index")
	assert.False(t, idx.AddFile("stream/2024-01-02T03_04_05.000000000Z.rcd_sig", 10))
	assert.False(t, idx.AddFile("stream/README.md", 10))

	files := idx.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "2024-01-02T03_04_05.000000000Z.rcd.zst", files[0].Name.Name)
	assert.Equal(t, "2024-01-02T03_04_10.000000000Z.rcd", files[1].Name.Name)

	f, ok := idx.GetFile("2024-01-02T03_04_05.000000000Z.rcd")
	require.True(t, ok)
	assert.Equal(t, "stream/2024-01-02T03_04_05.000000000Z.rcd.zst", f.Key)
}

func TestFileIndexDigestSidecars(t *testing.T) {
	idx := NewFileIndex(streamfile.FormatRecord)

	assert.False(t, idx.AddFile("stream/2024-01-02T03_04_05.000000000Z.rcd.sha384", 64))
	assert.True(t, idx.AddFile("stream/2024-01-02T03_04_05.000000000Z.rcd.zst", 10))
	assert.True(t, idx.AddFile("stream/2024-01-02T03_04_10.000000000Z.rcd", 10))
	assert.False(t, idx.AddFile("stream/notes.sha384", 10))

	files := idx.Files()
	require.Len(t, files, 2)

	key, ok := idx.DigestKey(files[0].Name)
	require.True(t, ok)
	assert.Equal(t, "stream/2024-01-02T03_04_05.000000000Z.rcd.sha384", key)

	_, ok = idx.DigestKey(files[1].Name)
	assert.False(t, ok)
}

func TestFileIndexAfter(t *testing.T) {
	idx := NewFileIndex(streamfile.FormatBlock)
	for _, n := range []uint64{3, 1, 2, 5} {
		idx.AddFile(streamfile.BlockFileName(n), 0)
	}

	assert.Len(t, idx.After(nil), 4)

	last, err := streamfile.ParseFileName(streamfile.BlockFileName(2))
	require.NoError(t, err)
	after := idx.After(&last)
	require.Len(t, after, 2)
	assert.Equal(t, uint64(3), after[0].Name.BlockNumber)
	assert.Equal(t, uint64(5), after[1].Name.BlockNumber)
}

func TestFileIndexValidateContiguity(t *testing.T) {
	idx := NewFileIndex(streamfile.FormatBlock)
	for _, n := range []uint64{7, 8, 9} {
		idx.AddFile(streamfile.BlockFileName(n), 0)
	}
	require.NoError(t, idx.ValidateContiguity())

	idx.AddFile(streamfile.BlockFileName(11), 0)
	assert.ErrorIs(t, idx.ValidateContiguity(), ErrBlockGap)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    streamfile.Format
		wantErr bool
	}{
		{"", streamfile.FormatUnknown, false},
		{"record", streamfile.FormatRecord, false},
		{"block", streamfile.FormatBlock, false},
		{"ledger", streamfile.FormatUnknown, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
