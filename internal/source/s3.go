package source

import (
	"context"
	"fmt"
	"net/url"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver

	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// NewS3Source creates a source over an S3-compatible bucket.
// Works with AWS S3, Backblaze B2, Cloudflare R2, and MinIO.
func NewS3Source(bucketName, prefix, endpoint, region string, format streamfile.Format) (*BucketSource, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, S3URL(bucketName, endpoint, region))
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	src, err := NewBucketSource(bucket, prefix, format, "s3")
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return src, nil
}

// S3URL builds the gocloud.dev URL for an S3-compatible bucket. A custom
// endpoint forces path-style addressing.
func S3URL(bucketName, endpoint, region string) string {
	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}
	return bucketURL
}
