package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/logging"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// LocalSource reads stream files from the local filesystem.
type LocalSource struct {
	basePath string
	format   streamfile.Format
	decoder  *Decoder
	log      *slog.Logger
}

// NewLocalSource creates a new local filesystem source.
func NewLocalSource(basePath string, format streamfile.Format) (*LocalSource, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid local path %s: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local path %s is not a directory", basePath)
	}

	decoder, err := NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	return &LocalSource{
		basePath: basePath,
		format:   format,
		decoder:  decoder,
		log:      logging.Component("source").With("source_type", "local", "path", basePath),
	}, nil
}

// Stream implements StreamSource.Stream for local files.
func (s *LocalSource) Stream(ctx context.Context, after *streamfile.FileName) (<-chan RawFile, <-chan error) {
	index, err := s.BuildIndex()
	if err != nil {
		return failed(fmt.Errorf("build index: %w", err))
	}
	s.log.Info("indexed stream files", "count", index.Count())
	return stream(ctx, s.log, index, after, s.decoder, s.readFile)
}

// BuildIndex walks the base path and indexes every stream file below it.
func (s *LocalSource) BuildIndex() (*FileIndex, error) {
	index := NewFileIndex(s.format)
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		index.AddFile(path, info.Size())
		return nil
	})
	if err != nil {
		return nil, err
	}
	index.Sort()
	return index, nil
}

func (s *LocalSource) readFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Close releases resources.
func (s *LocalSource) Close() error {
	if s.decoder != nil {
		s.decoder.Close()
	}
	return nil
}

func failed(err error) (<-chan RawFile, <-chan error) {
	fileCh := make(chan RawFile)
	errCh := make(chan error, 1)
	errCh <- err
	close(fileCh)
	close(errCh)
	return fileCh, errCh
}
