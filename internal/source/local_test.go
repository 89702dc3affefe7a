package source

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func collect(t *testing.T, files <-chan RawFile, errs <-chan error) ([]RawFile, error) {
	t.Helper()
	var out []RawFile
	for f := range files {
		out = append(out, f)
	}
	return out, <-errs
}

func TestLocalSourceStream(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "2024-01-02")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	first := []byte("first file")
	second := []byte("second file")
	require.NoError(t, os.WriteFile(filepath.Join(sub, "2024-01-02T03_04_10.000000000Z.rcd.zst"), compress(t, second), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "2024-01-02T03_04_05.000000000Z.rcd"), first, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "notes.txt"), []byte("ignored"), 0o644))

	src, err := NewLocalSource(dir, streamfile.FormatUnknown)
	require.NoError(t, err)
	defer src.Close()

	streamFiles1, streamErrs1 := src.Stream(context.Background(), nil)
	files, err := collect(t, streamFiles1, streamErrs1)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, first, files[0].Data)
	assert.Equal(t, second, files[1].Data, "zstd content is decompressed")
	assert.True(t, files[1].Name.Compressed)

	streamFiles2, streamErrs2 := src.Stream(context.Background(), &files[0].Name)
	files, err = collect(t, streamFiles2, streamErrs2)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, second, files[0].Data)
}

func TestLocalSourceReadsDigestSidecar(t *testing.T) {
	dir := t.TempDir()
	data := []byte("record file")
	sum := sha512.Sum384(data)
	name := "2024-01-02T03_04_05.000000000Z.rcd"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".zst"), compress(t, data), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+DigestSuffix), []byte(hex.EncodeToString(sum[:])+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2024-01-02T03_04_10.000000000Z.rcd"), data, 0o644))

	src, err := NewLocalSource(dir, streamfile.FormatRecord)
	require.NoError(t, err)
	defer src.Close()

	streamFiles3, streamErrs3 := src.Stream(context.Background(), nil)
	files, err := collect(t, streamFiles3, streamErrs3)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, sum[:], files[0].ExpectedHash)
	assert.Nil(t, files[1].ExpectedHash)
}

func TestLocalSourceRejectsMalformedDigest(t *testing.T) {
	dir := t.TempDir()
	name := "2024-01-02T03_04_05.000000000Z.rcd"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("record file"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+DigestSuffix), []byte("not hex"), 0o644))

	src, err := NewLocalSource(dir, streamfile.FormatRecord)
	require.NoError(t, err)
	defer src.Close()

	streamFiles4, streamErrs4 := src.Stream(context.Background(), nil)
	files, err := collect(t, streamFiles4, streamErrs4)
	assert.Empty(t, files)
	assert.ErrorContains(t, err, "parse digest")
}

func TestLocalSourceEmpty(t *testing.T) {
	src, err := NewLocalSource(t.TempDir(), streamfile.FormatRecord)
	require.NoError(t, err)
	defer src.Close()

	streamFiles5, streamErrs5 := src.Stream(context.Background(), nil)
	_, err = collect(t, streamFiles5, streamErrs5)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestLocalSourceCorruptCompression(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, streamfile.BlockFileName(1)+".zst"), []byte("not zstd"), 0o644))

	src, err := NewLocalSource(dir, streamfile.FormatBlock)
	require.NoError(t, err)
	defer src.Close()

	streamFiles6, streamErrs6 := src.Stream(context.Background(), nil)
	files, err := collect(t, streamFiles6, streamErrs6)
	assert.Empty(t, files)
	assert.Error(t, err)
}

func TestNewLocalSourceRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := NewLocalSource(path, streamfile.FormatUnknown)
	assert.Error(t, err)
}
