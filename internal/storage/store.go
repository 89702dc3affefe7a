package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"
)

// ArchiveRef describes where the table derived from one stream file lives.
type ArchiveRef struct {
	Network  string // "mainnet" | "testnet" | ...
	Format   string // "record" | "block"
	Table    string // "transactions"
	FileName string // canonical stream file name
}

// DirPath returns the directory holding every archived file of the table.
func (r ArchiveRef) DirPath(prefix string) string {
	return fmt.Sprintf("%s%s/%s/%s", prefix, r.Network, r.Table, r.Format)
}

// Path returns the storage path for the file's parquet table.
func (r ArchiveRef) Path(prefix string) string {
	return path.Join(r.DirPath(prefix), r.FileName+".parquet")
}

// ManifestPath returns the storage path for the file's manifest.
func (r ArchiveRef) ManifestPath(prefix string) string {
	return path.Join(r.DirPath(prefix), r.FileName+".manifest.json")
}

// Manifest describes one archived stream file.
type Manifest struct {
	File      FileInfo             `json:"file"`
	Tables    map[string]TableInfo `json:"tables"`
	Producer  ProducerInfo         `json:"producer"`
	CreatedAt time.Time            `json:"created_at"`
}

// FileInfo describes the stream file the tables were derived from.
type FileInfo struct {
	Name           string `json:"name"`
	Format         string `json:"format"`
	Index          uint64 `json:"index"`
	Network        string `json:"network"`
	ChainHash      string `json:"chain_hash"`
	PreviousHash   string `json:"previous_hash"`
	ConsensusStart int64  `json:"consensus_start"`
	ConsensusEnd   int64  `json:"consensus_end"`
	BuildID        string `json:"build_id,omitempty"`
}

// TableInfo describes a single table in the archive.
type TableInfo struct {
	File     string `json:"file"`
	Checksum string `json:"checksum"`
	RowCount int64  `json:"row_count"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the archive.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the manifest as JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// ArchiveStore writes parquet tables and manifests with atomic publish.
type ArchiveStore interface {
	// WriteParquetTemp writes parquet bytes to a temporary location.
	// Returns the temp key that can be passed to Finalize.
	WriteParquetTemp(ctx context.Context, ref ArchiveRef, parquetBytes []byte) (tempKey string, err error)

	// WriteManifestTemp writes a manifest to a temporary location.
	WriteManifestTemp(ctx context.Context, ref ArchiveRef, manifest *Manifest) (tempKey string, err error)

	// Finalize moves the parquet and manifest temp files, in that order, to
	// their canonical location. On failure nothing is left published.
	Finalize(ctx context.Context, ref ArchiveRef, tempKeys []string) error

	// Abort removes temporary files without publishing.
	Abort(ctx context.Context, tempKeys []string) error

	// Exists checks if the file's table has already been published.
	Exists(ctx context.Context, ref ArchiveRef) (bool, error)

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Key returns the store-relative key of the file's parquet table.
	Key(ref ArchiveRef) string

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	Close() error
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string // MD5 for S3/GCS, empty for local
	ModTime time.Time
}

// PublishResult contains the result of an atomic publish operation.
type PublishResult struct {
	ParquetKey string
	URI        string
	Checksum   string
	ByteSize   int64
}

// Publish writes the table and its manifest to temporary keys and then
// finalizes both. Temp files are removed when any step fails.
func Publish(ctx context.Context, store ArchiveStore, ref ArchiveRef, parquetBytes []byte, manifest *Manifest) (*PublishResult, error) {
	tempParquet, err := store.WriteParquetTemp(ctx, ref, parquetBytes)
	if err != nil {
		return nil, fmt.Errorf("write parquet: %w", err)
	}

	tempManifest, err := store.WriteManifestTemp(ctx, ref, manifest)
	if err != nil {
		store.Abort(ctx, []string{tempParquet})
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := store.Finalize(ctx, ref, []string{tempParquet, tempManifest}); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	key := store.Key(ref)
	result := &PublishResult{
		ParquetKey: key,
		URI:        store.URI(key),
		ByteSize:   int64(len(parquetBytes)),
	}
	if info, ok := manifest.Tables[ref.Table]; ok {
		result.Checksum = info.Checksum
	}
	return result, nil
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS or S3 (also works for B2, R2, MinIO)
	Bucket   string
	Endpoint string // custom endpoint for B2/MinIO/R2
	Region   string

	// Common
	Prefix string // path prefix within bucket or local dir
}

// NewArchiveStore creates a storage backend based on configuration.
func NewArchiveStore(cfg StorageConfig) (ArchiveStore, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for gcs backend")
		}
		return NewGCSStore(cfg.Bucket, cfg.Prefix)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for s3 backend")
		}
		return NewS3Store(cfg.Bucket, cfg.Prefix, cfg.Endpoint, cfg.Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
