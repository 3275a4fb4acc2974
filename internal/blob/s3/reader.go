package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/afrifutures/marketd/internal/domain"
)

// Reader serves archived JSONL files back to operators.
type Reader struct {
	client *s3.Client
	bucket string
}

var _ domain.ArchiveReader = (*Reader)(nil)

// NewReader creates a Reader over the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{client: c.S3(), bucket: c.Bucket()}
}

// Open streams the archive file for kind and month. The caller closes the
// returned reader.
func (r *Reader) Open(ctx context.Context, kind, month string) (io.ReadCloser, error) {
	key := domain.ArchiveKey(kind, month)
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: open %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: open %s: %w", key, err)
	}
	return out.Body, nil
}

// List returns archive files of kind, newest month first. Keys outside the
// archive layout are ignored.
func (r *Reader) List(ctx context.Context, kind string) ([]domain.ArchiveObject, error) {
	prefix := "archive/"
	if kind != "" {
		prefix += kind + "/"
	}

	var objects []domain.ArchiveObject
	pages := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			k, month, ok := domain.ParseArchiveKey(key)
			if !ok {
				continue
			}
			o := domain.ArchiveObject{Key: key, Kind: k, Month: month, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				o.LastModified = *obj.LastModified
			}
			objects = append(objects, o)
		}
	}

	sortArchive(objects)
	return objects, nil
}

func sortArchive(objects []domain.ArchiveObject) {
	sort.Slice(objects, func(i, j int) bool {
		if objects[i].Month != objects[j].Month {
			return objects[i].Month > objects[j].Month
		}
		return objects[i].Kind < objects[j].Kind
	})
}

// isNotFound matches NoSuchKey, the bare 404 HeadObject returns, and plain
// 404 responses from S3-compatible providers.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}
