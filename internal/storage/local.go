package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore writes archive files to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}

	return &LocalStore{
		baseDir: baseDir,
		prefix:  prefix,
	}, nil
}

// WriteParquetTemp writes parquet bytes next to their final location.
func (s *LocalStore) WriteParquetTemp(ctx context.Context, ref ArchiveRef, data []byte) (string, error) {
	return s.writeTemp(filepath.Join(s.baseDir, ref.Path(s.prefix)), data)
}

// WriteManifestTemp writes a manifest next to its final location.
func (s *LocalStore) WriteManifestTemp(ctx context.Context, ref ArchiveRef, manifest *Manifest) (string, error) {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	return s.writeTemp(filepath.Join(s.baseDir, ref.ManifestPath(s.prefix)), data)
}

func (s *LocalStore) writeTemp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := path + ".tmp." + uuid.New().String()
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("write temp file %s: %w", tempPath, err)
	}
	return tempPath, nil
}

// Finalize renames temp files into place.
func (s *LocalStore) Finalize(ctx context.Context, ref ArchiveRef, tempKeys []string) error {
	finalPaths := []string{
		filepath.Join(s.baseDir, ref.Path(s.prefix)),
		filepath.Join(s.baseDir, ref.ManifestPath(s.prefix)),
	}

	if len(tempKeys) != len(finalPaths) {
		return fmt.Errorf("expected %d temp keys, got %d", len(finalPaths), len(tempKeys))
	}

	for i, tempPath := range tempKeys {
		if err := os.Rename(tempPath, finalPaths[i]); err != nil {
			for j := 0; j < i; j++ {
				os.Remove(finalPaths[j])
			}
			s.Abort(ctx, tempKeys[i:])
			return fmt.Errorf("rename %s to %s: %w", tempPath, finalPaths[i], err)
		}
	}
	return nil
}

// Abort removes temporary files without publishing.
func (s *LocalStore) Abort(ctx context.Context, tempKeys []string) error {
	var lastErr error
	for _, path := range tempKeys {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}

// Exists checks if the file's table has been published.
func (s *LocalStore) Exists(ctx context.Context, ref ArchiveRef) (bool, error) {
	path := filepath.Join(s.baseDir, ref.Path(s.prefix))
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Head returns metadata about a stored file.
func (s *LocalStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := os.Stat(filepath.Join(s.baseDir, key))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &ObjectInfo{
		Key:     key,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// List returns all published keys with the given prefix, skipping temp
// files.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) && !strings.Contains(key, ".tmp.") {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

// Key returns the store-relative key of the file's parquet table.
func (s *LocalStore) Key(ref ArchiveRef) string {
	return ref.Path(s.prefix)
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	absPath := filepath.Join(s.baseDir, key)
	return "file://" + absPath
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}
