package source

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

var (
	// ErrInvalidSourceMode is returned for an unknown source mode.
	ErrInvalidSourceMode = errors.New("invalid source mode")

	// ErrNoFiles is returned when a source holds no stream files to read.
	ErrNoFiles = errors.New("no stream files found")
)

// RawFile is one stream file as read from a source, already decompressed.
type RawFile struct {
	Name streamfile.FileName
	Key  string // path or object key within the source
	Data []byte

	// ExpectedHash is the digest published next to the file, if any.
	ExpectedHash []byte
}

// StreamSource streams raw stream files in file order.
type StreamSource interface {
	// Stream emits every file ordered after the given name, or every file
	// when after is nil. The file channel closes when the stream ends.
	Stream(ctx context.Context, after *streamfile.FileName) (<-chan RawFile, <-chan error)
	Close() error
}

// SourceConfig configures where stream files are read from.
type SourceConfig struct {
	Mode      string // "local" | "gcs" | "s3"
	LocalPath string
	Bucket    string
	Prefix    string
	Endpoint  string // custom S3 endpoint for MinIO/R2/B2
	Region    string
	Format    string // "record" | "block" | "" for both
}

// NewStreamSource constructs a source based on the configured mode.
func NewStreamSource(cfg SourceConfig) (StreamSource, error) {
	format, err := ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case "local":
		return NewLocalSource(cfg.LocalPath, format)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for gcs source")
		}
		return NewGCSSource(cfg.Bucket, cfg.Prefix, format)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for s3 source")
		}
		return NewS3Source(cfg.Bucket, cfg.Prefix, cfg.Endpoint, cfg.Region, format)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceMode, cfg.Mode)
	}
}

// ParseFormat maps a configured format name to a streamfile.Format. The
// empty string accepts both formats.
func ParseFormat(s string) (streamfile.Format, error) {
	switch s {
	case "", "any":
		return streamfile.FormatUnknown, nil
	case "record":
		return streamfile.FormatRecord, nil
	case "block":
		return streamfile.FormatBlock, nil
	default:
		return streamfile.FormatUnknown, fmt.Errorf("unknown stream file format %q", s)
	}
}

type readFunc func(ctx context.Context, key string) ([]byte, error)

// stream emits the indexed files after the given name, decompressing each
// with dec. It is shared by every source implementation.
func stream(ctx context.Context, log *slog.Logger, index *FileIndex, after *streamfile.FileName, dec *Decoder, read readFunc) (<-chan RawFile, <-chan error) {
	fileCh := make(chan RawFile, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(fileCh)
		defer close(errCh)

		if index.Count() == 0 {
			errCh <- ErrNoFiles
			return
		}

		files := index.After(after)
		if len(files) == 0 {
			log.Info("source up to date", "indexed", index.Count())
			return
		}

		log.Info("streaming stream files",
			"count", len(files),
			"first", files[0].Name.Name,
			"last", files[len(files)-1].Name.Name,
		)

		for _, f := range files {
			select {
			case <-ctx.Done():
				return
			default:
			}

			data, err := read(ctx, f.Key)
			if err != nil {
				errCh <- fmt.Errorf("read %s: %w", f.Key, err)
				return
			}
			data, err = dec.Decode(f.Name, data)
			if err != nil {
				errCh <- fmt.Errorf("decode %s: %w", f.Key, err)
				return
			}

			raw := RawFile{Name: f.Name, Key: f.Key, Data: data}
			if key, ok := index.DigestKey(f.Name); ok {
				if raw.ExpectedHash, err = readDigest(ctx, read, key); err != nil {
					errCh <- fmt.Errorf("digest %s: %w", key, err)
					return
				}
			}

			select {
			case fileCh <- raw:
			case <-ctx.Done():
				return
			}
		}

		log.Info("stream complete", "count", len(files))
	}()

	return fileCh, errCh
}

// readDigest reads a sidecar holding a hex digest and optional whitespace.
func readDigest(ctx context.Context, read readFunc, key string) ([]byte, error) {
	data, err := read(ctx, key)
	if err != nil {
		return nil, err
	}
	digest, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse digest: %w", err)
	}
	return digest, nil
}
