package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

func TestFileManagerRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(Config{Enabled: true, Dir: t.TempDir(), Network: "testnet", Format: "record"})
	require.NoError(t, err)

	_, err = m.Load(ctx)
	require.ErrorIs(t, err, ErrNoCheckpoint)

	file := &streamfile.StreamFile{
		Name:         "2024-01-02T03_04_05.000000000Z.rcd",
		Format:       streamfile.FormatRecord,
		Index:        12,
		Hash:         []byte{0x01, 0x02},
		RunningHash:  []byte{0xaa, 0xbb},
		ConsensusEnd: 1_704_164_645_000_000_009,
	}
	require.NoError(t, m.Save(ctx, FromStreamFile("importer-1", "testnet", file)))

	cp, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "importer-1", cp.ImporterID)
	assert.Equal(t, "aabb", cp.ChainHash, "running hash is what the next file links to")
	assert.Equal(t, uint64(12), cp.LastIndex)

	prev, err := cp.StreamFile()
	require.NoError(t, err)
	assert.Equal(t, file.Name, prev.Name)
	assert.Equal(t, file.ChainHash(), prev.ChainHash())
	assert.Equal(t, file.ConsensusEnd, prev.ConsensusEnd)
}

func TestCheckpointStreamFileErrors(t *testing.T) {
	_, err := (&Checkpoint{LastFile: "bogus", ChainHash: "00"}).StreamFile()
	assert.ErrorIs(t, err, streamfile.ErrUnknownFileName)

	_, err = (&Checkpoint{LastFile: streamfile.BlockFileName(3), ChainHash: "zz"}).StreamFile()
	assert.Error(t, err)
}

func TestNoopManager(t *testing.T) {
	m, err := NewManager(Config{})
	require.NoError(t, err)
	require.NoError(t, m.Save(context.Background(), &Checkpoint{}))
	_, err = m.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}
