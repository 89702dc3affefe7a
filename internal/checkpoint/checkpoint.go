package checkpoint

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Checkpoint records the last stream file the importer accepted.
type Checkpoint struct {
	ImporterID   string    `json:"importer_id"`
	Network      string    `json:"network"`
	Format       string    `json:"format"`
	LastFile     string    `json:"last_file"`
	LastIndex    uint64    `json:"last_index"`
	ChainHash    string    `json:"chain_hash"` // hex
	ConsensusEnd int64     `json:"consensus_end"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FromStreamFile builds the checkpoint for an accepted file.
func FromStreamFile(importerID, network string, f *streamfile.StreamFile) *Checkpoint {
	return &Checkpoint{
		ImporterID:   importerID,
		Network:      network,
		Format:       f.Format.String(),
		LastFile:     f.Name,
		LastIndex:    f.Index,
		ChainHash:    hex.EncodeToString(f.ChainHash()),
		ConsensusEnd: f.ConsensusEnd,
		UpdatedAt:    time.Now().UTC(),
	}
}

// StreamFile rebuilds the identity of the last accepted file, enough to
// validate the file that follows it.
func (cp *Checkpoint) StreamFile() (*streamfile.StreamFile, error) {
	name, err := streamfile.ParseFileName(cp.LastFile)
	if err != nil {
		return nil, fmt.Errorf("checkpoint file name: %w", err)
	}
	hash, err := hex.DecodeString(cp.ChainHash)
	if err != nil {
		return nil, fmt.Errorf("checkpoint chain hash: %w", err)
	}
	return &streamfile.StreamFile{
		Name:         name.Name,
		Format:       name.Format,
		Index:        cp.LastIndex,
		Hash:         hash,
		ConsensusEnd: cp.ConsensusEnd,
	}, nil
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the current checkpoint.
	Load(ctx context.Context) (*Checkpoint, error)

	// Save persists the checkpoint.
	Save(ctx context.Context, cp *Checkpoint) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool
	Dir     string // Directory for checkpoint files
	Network string
	Format  string
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
	}

	format := cfg.Format
	if format == "" {
		format = "any"
	}
	filename := fmt.Sprintf("checkpoint_%s_%s.json", cfg.Network, format)
	return &fileManager{path: filepath.Join(cfg.Dir, filename)}, nil
}

// fileManager persists checkpoints to a local file.
type fileManager struct {
	path string
}

// Load reads the checkpoint from file.
func (m *fileManager) Load(ctx context.Context) (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}

	return &cp, nil
}

// Save persists the checkpoint to file.
func (m *fileManager) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write atomically
	tempPath := m.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	return nil
}

// noopManager is a no-op checkpoint manager for when checkpointing is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context) (*Checkpoint, error) {
	return nil, ErrNoCheckpoint
}

func (m *noopManager) Save(ctx context.Context, cp *Checkpoint) error {
	return nil
}
