// Package importer drives stream files from a source through decoding,
// in-order validation and persistence.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/checkpoint"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/logging"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/metadata"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/source"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/storage"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/tables"
)

// Config configures an Importer.
type Config struct {
	ImporterID     string
	Network        string
	Format         string // "record" | "block" | "" for metric and checkpoint labels
	SourceType     string
	StorageBackend string

	Workers   int
	QueueSize int
	MaxRetry  int
	BackoffMs int

	// Compression of archived parquet tables.
	Compression string
}

// Deps are the collaborators of an Importer. Store and Checkpoint are
// optional.
type Deps struct {
	Source     source.StreamSource
	Reader     *streamfile.Reader
	Validator  *streamfile.Validator
	Catalog    metadata.Catalog
	Store      storage.ArchiveStore
	Checkpoint checkpoint.Manager
}

// Importer accepts stream files in order. Only the sequencer goroutine
// touches previous.
type Importer struct {
	cfg        Config
	src        source.StreamSource
	reader     *streamfile.Reader
	validator  *streamfile.Validator
	catalog    metadata.Catalog
	store      storage.ArchiveStore
	checkpoint checkpoint.Manager
	extractor  *tables.Extractor
	log        *slog.Logger

	previous *streamfile.StreamFile
}

// New creates an importer.
func New(cfg Config, deps Deps) (*Importer, error) {
	if deps.Source == nil || deps.Reader == nil || deps.Catalog == nil {
		return nil, errors.New("importer: source, reader and catalog are required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if cfg.MaxRetry < 1 {
		cfg.MaxRetry = 3
	}
	if cfg.BackoffMs < 1 {
		cfg.BackoffMs = 1000
	}
	if deps.Validator == nil {
		deps.Validator = streamfile.NewValidator(nil)
	}
	if deps.Checkpoint == nil {
		deps.Checkpoint, _ = checkpoint.NewManager(checkpoint.Config{})
	}

	return &Importer{
		cfg:        cfg,
		src:        deps.Source,
		reader:     deps.Reader,
		validator:  deps.Validator,
		catalog:    deps.Catalog,
		store:      deps.Store,
		checkpoint: deps.Checkpoint,
		extractor:  tables.NewExtractor(tables.ParquetConfig{Network: cfg.Network, Compression: cfg.Compression}),
		log:        logging.Component("importer").With("network", cfg.Network),
	}, nil
}

// Previous returns the last accepted file, or nil.
func (im *Importer) Previous() *streamfile.StreamFile {
	return im.previous
}

// Resume loads the last accepted file from the checkpoint, falling back to
// the catalog. Without either the next file is accepted without a chain
// check.
func (im *Importer) Resume(ctx context.Context) error {
	cp, err := im.checkpoint.Load(ctx)
	switch {
	case err == nil:
		prev, err := cp.StreamFile()
		if err != nil {
			return fmt.Errorf("resume from checkpoint: %w", err)
		}
		im.previous = prev
		im.log.Info("resuming from checkpoint", "last_file", prev.Name, "last_index", prev.Index)
		return nil
	case !errors.Is(err, checkpoint.ErrNoCheckpoint):
		return fmt.Errorf("load checkpoint: %w", err)
	}

	rec, err := im.catalog.LastStreamFile(ctx, im.cfg.Network, im.cfg.Format)
	switch {
	case err == nil:
		prev, err := rec.StreamFile()
		if err != nil {
			return fmt.Errorf("resume from catalog: %w", err)
		}
		im.previous = prev
		im.log.Info("resuming from catalog", "last_file", prev.Name, "last_index", prev.Index)
		return nil
	case errors.Is(err, metadata.ErrNotFound):
		im.log.Info("no previous stream file, starting fresh")
		return nil
	default:
		return fmt.Errorf("load last stream file: %w", err)
	}
}

// Run resumes and imports every file the source holds after the last
// accepted one. It stops at the first file that fails to build or
// validate; files before it stay committed.
func (im *Importer) Run(ctx context.Context) error {
	if err := im.Resume(ctx); err != nil {
		return err
	}

	var after *streamfile.FileName
	if im.previous != nil {
		name, err := streamfile.ParseFileName(im.previous.Name)
		if err != nil {
			return err
		}
		after = &name
	}

	p := newPipeline(im)
	return p.run(ctx, after)
}
