package s3

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/config"
	"github.com/Chapsvision-dev/yadisk-backup-sync/internal/provider"
)

// newClient builds an S3 client. Static keys win over the default AWS chain;
// a custom endpoint (MinIO, Yandex Object Storage) switches to path-style URLs.
//
// timeout bounds connection setup and the wait for response headers only.
// Body transfer is bounded by the caller's context, and every request is
// attempted exactly once.
func newClient(ctx context.Context, c config.S3Config, timeout time.Duration) (*s3.Client, string, error) {
	httpClient := awshttp.NewBuildableClient().
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = timeout
		}).
		WithTransportOptions(func(t *http.Transport) {
			t.Proxy = http.ProxyFromEnvironment
			t.MaxIdleConns = 16
			t.IdleConnTimeout = 90 * time.Second
			t.TLSHandshakeTimeout = timeout
			t.ResponseHeaderTimeout = timeout
			t.ExpectContinueTimeout = 1 * time.Second
		})

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
		awsconfig.WithHTTPClient(httpClient),
		awsconfig.WithRetryMaxAttempts(1),
	}
	auth := "default_chain"
	if c.AccessKey != "" && c.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
		auth = "static"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// S3-compatible stores do not all accept the SDK's default CRC32 checksums.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, auth, nil
}
func init() {
	provider.Register("s3", func(cfg config.Config, _ string) (provider.Provider, error) {
		client, auth, err := newClient(context.Background(), cfg.S3, cfg.HTTPTimeout)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		log.Debug().Str("action", "s3_client").Str("bucket", cfg.S3.Bucket).Str("region", cfg.S3.Region).
			Str("endpoint", cfg.S3.Endpoint).Str("auth", auth).Msg("s3 client ready")
		return New(client, cfg.S3.Bucket), nil
	})
}
