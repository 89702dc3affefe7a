package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gocloud.dev/blob"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/logging"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// BucketSource reads stream files from an object store bucket.
type BucketSource struct {
	bucket  *blob.Bucket
	prefix  string
	format  streamfile.Format
	decoder *Decoder
	log     *slog.Logger
}

// NewBucketSource wraps an open bucket. The source owns the bucket and
// closes it on Close.
func NewBucketSource(bucket *blob.Bucket, prefix string, format streamfile.Format, sourceType string) (*BucketSource, error) {
	decoder, err := NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &BucketSource{
		bucket:  bucket,
		prefix:  prefix,
		format:  format,
		decoder: decoder,
		log:     logging.Component("source").With("source_type", sourceType, "prefix", prefix),
	}, nil
}

// Stream implements StreamSource.Stream for object stores.
func (s *BucketSource) Stream(ctx context.Context, after *streamfile.FileName) (<-chan RawFile, <-chan error) {
	index, err := s.BuildIndex(ctx)
	if err != nil {
		return failed(fmt.Errorf("build index: %w", err))
	}
	s.log.Info("indexed stream files", "count", index.Count())
	return stream(ctx, s.log, index, after, s.decoder, s.readObject)
}

// BuildIndex lists every object below the prefix and indexes the stream
// files among them.
func (s *BucketSource) BuildIndex(ctx context.Context) (*FileIndex, error) {
	index := NewFileIndex(s.format)

	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		if obj.IsDir {
			continue
		}
		index.AddFile(obj.Key, obj.Size)
	}

	index.Sort()
	return index, nil
}

func (s *BucketSource) readObject(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Close releases resources.
func (s *BucketSource) Close() error {
	if s.decoder != nil {
		s.decoder.Close()
	}
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
