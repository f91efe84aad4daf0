package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ContentType is the content type of uploaded exports.
const ContentType = "text/csv"

// Uploader uploads CSV exports to a bucket.
type Uploader struct {
	client *Client
	bucket string
}

// NewUploader creates an uploader for bucket.
func NewUploader(client *Client, bucket string) *Uploader {
	return &Uploader{client: client, bucket: bucket}
}

// Upload stores content under key. Retries are handled by the SDK client.
func (u *Uploader) Upload(ctx context.Context, key string, content []byte) error {
	_, err := u.client.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(ContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: bucket=%s, key=%s: %w", u.bucket, key, err)
	}
	return nil
}

// ObjectKey names an export taken at t, e.g.
// "exports/2024/05/01/logs-20240501T120000Z.csv".
func ObjectKey(prefix string, t time.Time) string {
	t = t.UTC()
	return path.Join(prefix, t.Format("2006/01/02"), "logs-"+t.Format("20060102T150405Z")+".csv")
}
