package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gocloud.dev/blob"
)

// BucketStore writes archive files to an object store bucket.
type BucketStore struct {
	bucket    *blob.Bucket
	uriPrefix string // "gs://bucket" or "s3://bucket"
	prefix    string
}

// NewBucketStore wraps an open bucket. The store owns the bucket and closes
// it on Close.
func NewBucketStore(bucket *blob.Bucket, uriPrefix, prefix string) *BucketStore {
	return &BucketStore{
		bucket:    bucket,
		uriPrefix: uriPrefix,
		prefix:    prefix,
	}
}

// WriteParquetTemp writes parquet bytes to a temporary key.
func (s *BucketStore) WriteParquetTemp(ctx context.Context, ref ArchiveRef, data []byte) (string, error) {
	return s.writeTemp(ctx, ref.Path(s.prefix), data)
}

// WriteManifestTemp writes a manifest to a temporary key.
func (s *BucketStore) WriteManifestTemp(ctx context.Context, ref ArchiveRef, manifest *Manifest) (string, error) {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	return s.writeTemp(ctx, ref.ManifestPath(s.prefix), data)
}

func (s *BucketStore) writeTemp(ctx context.Context, key string, data []byte) (string, error) {
	tempKey := key + ".tmp." + uuid.New().String()

	w, err := s.bucket.NewWriter(ctx, tempKey, nil)
	if err != nil {
		return "", fmt.Errorf("create writer for %s: %w", tempKey, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("write data to %s: %w", tempKey, err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", tempKey, err)
	}

	return tempKey, nil
}

// Finalize moves temp objects to their canonical keys.
// Uses copy + delete pattern.
func (s *BucketStore) Finalize(ctx context.Context, ref ArchiveRef, tempKeys []string) error {
	finalKeys := []string{
		ref.Path(s.prefix),
		ref.ManifestPath(s.prefix),
	}

	if len(tempKeys) != len(finalKeys) {
		return fmt.Errorf("expected %d temp keys, got %d", len(finalKeys), len(tempKeys))
	}

	for i, tempKey := range tempKeys {
		finalKey := finalKeys[i]

		if err := s.bucket.Copy(ctx, finalKey, tempKey, nil); err != nil {
			// Rollback: delete any copied objects
			for j := 0; j < i; j++ {
				s.bucket.Delete(ctx, finalKeys[j])
			}
			s.Abort(ctx, tempKeys)
			return fmt.Errorf("finalize %s -> %s: %w", tempKey, finalKey, err)
		}
	}

	for _, tempKey := range tempKeys {
		s.bucket.Delete(ctx, tempKey) // ignore errors
	}

	return nil
}

// Abort removes temporary objects without publishing.
func (s *BucketStore) Abort(ctx context.Context, tempKeys []string) error {
	var lastErr error
	for _, key := range tempKeys {
		if err := s.bucket.Delete(ctx, key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Exists checks if the file's table has been published.
func (s *BucketStore) Exists(ctx context.Context, ref ArchiveRef) (bool, error) {
	return s.bucket.Exists(ctx, ref.Path(s.prefix))
}

// Head returns metadata about a stored object.
func (s *BucketStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get attributes for %s: %w", key, err)
	}

	return &ObjectInfo{
		Key:     key,
		Size:    attrs.Size,
		ETag:    attrs.ETag,
		ModTime: attrs.ModTime,
	}, nil
}

// List returns all published keys with the given prefix.
func (s *BucketStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := s.bucket.List(&blob.ListOptions{
		Prefix: prefix,
	})

	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir || strings.Contains(obj.Key, ".tmp.") {
			continue
		}
		keys = append(keys, obj.Key)
	}

	return keys, nil
}

// Key returns the bucket key of the file's parquet table.
func (s *BucketStore) Key(ref ArchiveRef) string {
	return ref.Path(s.prefix)
}

// URI returns the canonical URI for the given key.
func (s *BucketStore) URI(key string) string {
	return fmt.Sprintf("%s/%s", s.uriPrefix, key)
}

// Close releases the bucket connection.
func (s *BucketStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
