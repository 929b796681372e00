// Package upload talks to S3-compatible object storage: it publishes
// exports and lists log objects for batch imports.
package upload

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethpandaops/wptview/pkg/config"
)

// Uploader writes objects to remote storage.
type Uploader interface {
	// Preflight verifies that the bucket of target is reachable and
	// writable by writing a small test object.
	Preflight(ctx context.Context, target string) error

	// Upload writes body to the s3://bucket/key target.
	Upload(ctx context.Context, target string, body io.Reader) error
}

// NewS3Client builds an S3 client from the given configuration.
func NewS3Client(cfg *config.S3Config) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}

// ParseS3URL splits an s3://bucket/key URL. The key may be empty.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing %q: %w", raw, err)
	}

	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("%q is not an s3:// URL", raw)
	}

	if u.Host == "" {
		return "", "", fmt.Errorf("%q has no bucket", raw)
	}

	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// IsS3Prefix reports whether raw names an s3 "directory" rather than an
// object, i.e. its key is empty or ends with a slash.
func IsS3Prefix(raw string) bool {
	_, key, err := ParseS3URL(raw)
	if err != nil {
		return false
	}

	return key == "" || strings.HasSuffix(key, "/")
}
