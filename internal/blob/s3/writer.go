package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/afrifutures/marketd/internal/domain"
)

const (
	uploadPartSize    = 8 << 20
	uploadConcurrency = 3
)

// Writer uploads archive files. Small bodies go up in one request and large
// months are split into multipart uploads by the transfer manager.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

var _ domain.BlobWriter = (*Writer)(nil)

func NewWriter(c *Client) *Writer {
	return &Writer{
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
			u.Concurrency = uploadConcurrency
		}),
		bucket: c.Bucket(),
	}
}

// Put overwrites the object at path. Rewriting a month replaces the earlier
// file rather than appending to it.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:   aws.String(w.bucket),
		Key:      aws.String(path),
		Body:     data,
		Metadata: map[string]string{"writer": "marketd"},
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := w.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}
