package metadata

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// ErrNotFound is returned when the catalog holds no matching file.
var ErrNotFound = errors.New("stream file not cataloged")

// CatalogConfig configures the catalog backend. An empty DSN selects the
// in-memory catalog.
type CatalogConfig struct {
	PostgresDSN string
}

// FileRecord is the catalog entry of one accepted stream file.
type FileRecord struct {
	Network         string
	Name            string
	Format          string
	Index           uint64
	Version         int
	HapiVersion     string
	Hash            string // hex
	PreviousHash    string // hex
	ChainHash       string // hex
	ConsensusStart  int64
	ConsensusEnd    int64
	ItemCount       int
	SuccessfulCount int
	UnresolvedCount int
	CorrectedCount  int
	LogsBloom       []byte
	StoragePath     string
	BuildID         string
	ProducerVersion string
	CreatedAt       time.Time

	Items []ItemRecord
}

// ItemRecord is the catalog summary of one record item.
type ItemRecord struct {
	Index              int
	ConsensusTimestamp int64
	TransactionType    int32
	Payer              string
	Successful         bool
	ParentTimestamp    int64 // 0 when the item declares no parent
}

// NewFileRecord describes an accepted file for the catalog.
func NewFileRecord(network string, f *streamfile.StreamFile) FileRecord {
	rec := FileRecord{
		Network:         network,
		Name:            f.Name,
		Format:          f.Format.String(),
		Index:           f.Index,
		Version:         f.Version,
		Hash:            hex.EncodeToString(f.Hash),
		PreviousHash:    hex.EncodeToString(f.PreviousHash),
		ChainHash:       hex.EncodeToString(f.ChainHash()),
		ConsensusStart:  f.ConsensusStart,
		ConsensusEnd:    f.ConsensusEnd,
		ItemCount:       len(f.Items),
		SuccessfulCount: f.Successful(),
		UnresolvedCount: f.Unresolved,
		CorrectedCount:  f.Corrected,
		LogsBloom:       f.LogsBloom,
	}
	if f.HapiVersion != nil {
		rec.HapiVersion = f.HapiVersion.String()
	}
	rec.Items = make([]ItemRecord, len(f.Items))
	for i, item := range f.Items {
		rec.Items[i] = ItemRecord{
			Index:              item.Index,
			ConsensusTimestamp: item.ConsensusTimestamp,
			TransactionType:    item.TransactionType,
			Payer:              item.Payer.String(),
			Successful:         item.Successful,
			ParentTimestamp:    item.ParentTimestamp,
		}
	}
	return rec
}

// StreamFile rebuilds the identity of a cataloged file, enough to validate
// the file that follows it.
func (r FileRecord) StreamFile() (*streamfile.StreamFile, error) {
	name, err := streamfile.ParseFileName(r.Name)
	if err != nil {
		return nil, err
	}
	hash, err := hex.DecodeString(r.ChainHash)
	if err != nil {
		return nil, fmt.Errorf("chain hash of %s: %w", r.Name, err)
	}
	return &streamfile.StreamFile{
		Name:           name.Name,
		Format:         name.Format,
		Index:          r.Index,
		Hash:           hash,
		ConsensusStart: r.ConsensusStart,
		ConsensusEnd:   r.ConsensusEnd,
		LogsBloom:      r.LogsBloom,
	}, nil
}

// Catalog persists accepted stream files.
type Catalog interface {
	// RecordStreamFile stores an accepted file. Recording the same name twice
	// replaces the entry.
	RecordStreamFile(ctx context.Context, rec FileRecord) error

	// LastStreamFile returns the accepted file with the highest index for a
	// network and format, or ErrNotFound.
	LastStreamFile(ctx context.Context, network, format string) (*FileRecord, error)

	// Exists reports whether a file name has been accepted.
	Exists(ctx context.Context, network, name string) (bool, error)

	Close() error
}

// NewCatalog returns the PostgreSQL catalog when a DSN is configured and
// an in-memory catalog otherwise.
func NewCatalog(cfg CatalogConfig) (Catalog, error) {
	if cfg.PostgresDSN == "" {
		return NewMemoryCatalog(), nil
	}
	c, err := NewPostgresCatalog(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MemoryCatalog keeps records in process. It is safe for concurrent use.
type MemoryCatalog struct {
	mu      sync.RWMutex
	records map[string]FileRecord // network/name
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{records: make(map[string]FileRecord)}
}

func (c *MemoryCatalog) RecordStreamFile(_ context.Context, rec FileRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	c.mu.Lock()
	c.records[rec.Network+"/"+rec.Name] = rec
	c.mu.Unlock()
	return nil
}

func (c *MemoryCatalog) LastStreamFile(_ context.Context, network, format string) (*FileRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var last *FileRecord
	for _, rec := range c.records {
		if rec.Network != network || (format != "" && rec.Format != format) {
			continue
		}
		if last == nil || rec.Index > last.Index {
			r := rec
			last = &r
		}
	}
	if last == nil {
		return nil, ErrNotFound
	}
	return last, nil
}

func (c *MemoryCatalog) Exists(_ context.Context, network, name string) (bool, error) {
	c.mu.RLock()
	_, ok := c.records[network+"/"+name]
	c.mu.RUnlock()
	return ok, nil
}

// Len returns the number of records.
func (c *MemoryCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func (c *MemoryCatalog) Close() error { return nil }
