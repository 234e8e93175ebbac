package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
)

// Provider stores remote paths as object keys of a single bucket. A directory
// is a key prefix, optionally materialised by a zero-length "dir/" marker.
type Provider struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// New returns a Provider over bucket. Uploads go through a multipart-capable
// manager.Uploader, so bodies need not be seekable.
func New(client *s3.Client, bucket string) *Provider {
	return &Provider{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

// Name returns "s3".
func (p *Provider) Name() string { return "s3" }

// Exists reports whether path is an object or a non-empty prefix. The bucket
// root checks the bucket itself.
func (p *Provider) Exists(ctx context.Context, path string) (bool, error) {
	key := objectKey(path)
	if key == "" {
		if _, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &p.bucket}); err != nil {
			return false, fmt.Errorf("s3 head bucket %q: %w", p.bucket, mapError(err))
		}
		return true, nil
	}

	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &p.bucket, Key: &key})
	if err == nil {
		return true, nil
	}
	if err = mapError(err); !errors.Is(err, provider.ErrNotFound) {
		return false, fmt.Errorf("s3 head %q: %w", key, err)
	}

	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &p.bucket,
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("s3 list %q: %w", key, mapError(err))
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// Mkdir writes a directory marker object.
func (p *Provider) Mkdir(ctx context.Context, path string) error {
	ok, err := p.Exists(ctx, path)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("s3 mkdir %q: %w", path, provider.ErrAlreadyExists)
	}
	key := objectKey(path) + "/"
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &p.bucket,
		Key:           &key,
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return fmt.Errorf("s3 mkdir %q: %w", key, mapError(err))
	}
	return nil
}

// List yields the direct children of path: common prefixes as directories and
// objects as files.
func (p *Provider) List(ctx context.Context, path string) iter.Seq2[provider.Entry, error] {
	return func(yield func(provider.Entry, error) bool) {
		prefix := ""
		if key := objectKey(path); key != "" {
			prefix = key + "/"
		}
		pager := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
			Bucket:    &p.bucket,
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		})

		for pager.HasMorePages() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield(provider.Entry{}, fmt.Errorf("s3 list %q: %w", prefix, mapError(err)))
				return
			}
			for _, cp := range page.CommonPrefixes {
				name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
				if name == "" {
					continue
				}
				if !yield(provider.Entry{Name: name, Type: provider.TypeDir}, nil) {
					return
				}
			}
			for _, obj := range page.Contents {
				name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
				if name == "" {
					// the directory's own marker
					continue
				}
				if !yield(provider.Entry{Name: name, Type: provider.TypeFile}, nil) {
					return
				}
			}
		}
	}
}

// Remove deletes the object at path.
func (p *Provider) Remove(ctx context.Context, path string) error {
	key := objectKey(path)
	if _, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &p.bucket, Key: &key}); err != nil {
		return fmt.Errorf("s3 delete %q: %w", key, mapError(err))
	}
	return nil
}

// Upload streams r to path. Bodies larger than one part become a multipart
// upload.
func (p *Provider) Upload(ctx context.Context, r io.Reader, size int64, path string) error {
	key := objectKey(path)
	_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        &p.bucket,
		Key:           &key,
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("s3 put %q: %w", key, mapError(err))
	}
	log.Debug().Str("action", "s3_put").Str("bucket", p.bucket).Str("key", key).Int64("size", size).Msg("upload OK")
	return nil
}

// Close is a no-op; the SDK client holds no resources to release.
func (p *Provider) Close() error { return nil }

// objectKey drops a backend scheme ("app:/", "disk:/") and surrounding slashes.
func objectKey(path string) string {
	if i := strings.Index(path, ":/"); i >= 0 {
		path = path[i+2:]
	}
	return strings.Trim(path, "/")
}

func mapError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "Forbidden":
			return fmt.Errorf("%w: %w", provider.ErrUnauthorized, err)
		case "QuotaExceeded":
			return fmt.Errorf("%w: %w", provider.ErrQuotaExceeded, err)
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", provider.ErrUnauthorized, err)
		}
	}
	return err
}
