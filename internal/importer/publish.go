package importer

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/metadata"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/storage"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/tables"
)

const producerName = "obsrvr-stream-importer"

// archive writes the transactions table of a built file and its manifest.
func (im *Importer) archive(ctx context.Context, built *BuiltFile) (*storage.PublishResult, error) {
	file := built.File
	rows := im.extractor.ExtractTransactions(file, built.BuiltAt)

	parquetCfg := tables.ParquetConfig{Network: im.cfg.Network, Compression: im.cfg.Compression}
	data, err := tables.WriteTransactions(rows, parquetCfg)
	if err != nil {
		return nil, fmt.Errorf("encode transactions: %w", err)
	}

	ref := archiveRef(im.cfg.Network, file)
	manifest := buildManifest(im.cfg.Network, built, ref, data, int64(len(rows)))

	var result *storage.PublishResult
	err = im.withRetry(ctx, "storage_publish", func(ctx context.Context) error {
		var err error
		result, err = storage.Publish(ctx, im.store, ref, data, manifest)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func archiveRef(network string, f *streamfile.StreamFile) storage.ArchiveRef {
	return storage.ArchiveRef{
		Network:  network,
		Format:   f.Format.String(),
		Table:    tables.TransactionRow{}.TableName(),
		FileName: f.Name,
	}
}

func buildManifest(network string, built *BuiltFile, ref storage.ArchiveRef, data []byte, rows int64) *storage.Manifest {
	f := built.File
	return &storage.Manifest{
		File: storage.FileInfo{
			Name:           f.Name,
			Format:         f.Format.String(),
			Index:          f.Index,
			Network:        network,
			ChainHash:      hex.EncodeToString(f.ChainHash()),
			PreviousHash:   hex.EncodeToString(f.PreviousHash),
			ConsensusStart: f.ConsensusStart,
			ConsensusEnd:   f.ConsensusEnd,
			BuildID:        built.BuildID,
		},
		Tables: map[string]storage.TableInfo{
			ref.Table: {
				File:     ref.FileName + ".parquet",
				Checksum: tables.Checksum(data),
				RowCount: rows,
				ByteSize: int64(len(data)),
			},
		},
		Producer: storage.ProducerInfo{
			Name:    producerName,
			Version: Version,
			GitSHA:  GitSHA,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func metadataRecord(network string, built *BuiltFile, storageURI string) metadata.FileRecord {
	rec := metadata.NewFileRecord(network, built.File)
	rec.StoragePath = storageURI
	rec.BuildID = built.BuildID
	rec.ProducerVersion = Version
	rec.CreatedAt = time.Now().UTC()
	return rec
}
