package upload

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/sirupsen/logrus"
)

// S3Reader lists objects in S3-compatible storage.
type S3Reader struct {
	log    logrus.FieldLogger
	client *s3.Client
}

// NewS3Reader creates a new S3Reader from the given configuration.
func NewS3Reader(
	log logrus.FieldLogger,
	cfg *config.S3Config,
) *S3Reader {
	return &S3Reader{
		log:    log.WithField("component", "s3-reader"),
		client: NewS3Client(cfg),
	}
}

// ExpandPrefix returns the s3:// URL of every object under the prefix
// URL, recursively, in key order. Keys ending with a slash are skipped.
func (r *S3Reader) ExpandPrefix(ctx context.Context, prefixURL string) ([]string, error) {
	bucket, prefix, err := ParseS3URL(prefixURL)
	if err != nil {
		return nil, err
	}

	var urls []string

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing objects under %q: %w", prefixURL, err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}

			urls = append(urls, "s3://"+bucket+"/"+*obj.Key)
		}
	}

	r.log.WithFields(logrus.Fields{
		"prefix":  prefixURL,
		"objects": len(urls),
	}).Debug("Listed objects")

	return urls, nil
}
