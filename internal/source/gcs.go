package source

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver

	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// NewGCSSource creates a source over a Google Cloud Storage bucket.
// Uses Application Default Credentials (ADC) for authentication.
func NewGCSSource(bucketName, prefix string, format streamfile.Format) (*BucketSource, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}

	src, err := NewBucketSource(bucket, prefix, format, "gcs")
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return src, nil
}
