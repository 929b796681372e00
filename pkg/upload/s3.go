package upload

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/sirupsen/logrus"
)

const writeTestKey = ".wptview-write-test"

// s3Uploader implements Uploader for S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	client *s3.Client
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates a new S3 uploader from the given configuration.
func NewS3Uploader(
	log logrus.FieldLogger,
	cfg *config.S3Config,
) (Uploader, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("s3 is disabled (set fetch.s3.enabled)")
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		client: NewS3Client(cfg),
	}, nil
}

// Preflight verifies S3 connectivity by writing a small test object.
func (u *s3Uploader) Preflight(ctx context.Context, target string) error {
	bucket, _, err := ParseS3URL(target)
	if err != nil {
		return err
	}

	content := fmt.Sprintf("wptview write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(writeTestKey),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", bucket, err)
	}

	return nil
}

// Upload writes body to the target object.
func (u *s3Uploader) Upload(ctx context.Context, target string, body io.Reader) error {
	bucket, key, err := ParseS3URL(target)
	if err != nil {
		return err
	}

	if key == "" || strings.HasSuffix(key, "/") {
		return fmt.Errorf("%q does not name an object", target)
	}

	u.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": bucket,
	}).Debug("Uploading object")

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(detectContentType(key)),
	})
	if err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	u.log.WithField("target", target).Info("Upload completed")

	return nil
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(key string) string {
	ext := path.Ext(key)
	if ext == "" {
		return "application/octet-stream"
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}
