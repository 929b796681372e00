package logparser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/docker/go-units"
	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/ethpandaops/wptview/pkg/upload"
	"github.com/sirupsen/logrus"
)

// Reader loads and crunches logs from local files and remote URLs.
type Reader interface {
	// Read crunches a local log file.
	Read(ctx context.Context, path string) ([]Record, error)
	// ReadURL crunches a log fetched from an http(s):// or s3:// URL.
	// The call blocks until the remote end answers or fails.
	ReadURL(ctx context.Context, rawURL string) ([]Record, error)
}

// Compile-time interface check.
var _ Reader = (*reader)(nil)

type reader struct {
	log       logrus.FieldLogger
	http      *http.Client
	s3        *s3.Client
	userAgent string
}

// NewReader creates a new Reader.
func NewReader(log logrus.FieldLogger, cfg *config.FetchConfig) (Reader, error) {
	timeout, err := cfg.ParseTimeout()
	if err != nil {
		return nil, err
	}

	r := &reader{
		log:       log.WithField("component", "logparser"),
		http:      &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
	}

	if cfg.S3.Enabled {
		r.s3 = upload.NewS3Client(&cfg.S3)
	}

	return r, nil
}

// Read crunches a local log file.
func (r *reader) Read(ctx context.Context, path string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}

	r.log.WithFields(logrus.Fields{
		"path": path,
		"size": units.HumanSize(float64(len(data))),
	}).Debug("Read log file")

	return CrunchBytes(data)
}

// ReadURL crunches a remote log.
func (r *reader) ReadURL(ctx context.Context, rawURL string) ([]Record, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Message: "invalid URL", Err: err}
	}

	var data []byte

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		data, err = r.fetchHTTP(ctx, rawURL)
	case "s3":
		data, err = r.fetchS3(ctx, rawURL, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, &FetchError{
			URL:     rawURL,
			Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
		}
	}

	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"url":  rawURL,
		"size": units.HumanSize(float64(len(data))),
	}).Debug("Fetched log")

	return CrunchBytes(data)
}

func (r *reader) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Message: "building request", Err: err}
	}

	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	start := time.Now()

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			URL:     rawURL,
			Status:  resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
		}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, &FetchError{
			URL:     rawURL,
			Status:  resp.StatusCode,
			Message: "reading response body",
			Err:     err,
		}
	}

	r.log.WithFields(logrus.Fields{
		"url":      rawURL,
		"duration": time.Since(start).String(),
	}).Debug("HTTP fetch complete")

	return buf.Bytes(), nil
}

func (r *reader) fetchS3(
	ctx context.Context, rawURL, bucket, key string,
) ([]byte, error) {
	if r.s3 == nil {
		return nil, &FetchError{URL: rawURL, Message: "s3 sources are disabled"}
	}

	if bucket == "" || key == "" {
		return nil, &FetchError{URL: rawURL, Message: "expected s3://bucket/key"}
	}

	out, err := r.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		fe := &FetchError{URL: rawURL, Message: err.Error(), Err: err}

		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			fe.Status = respErr.HTTPStatusCode()
		}

		if isS3NotFound(err) {
			fe.Status = http.StatusNotFound
			fe.Message = "object not found"
		}

		return nil, fe
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Message: "reading object body", Err: err}
	}

	return data, nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	return strings.Contains(err.Error(), "NoSuchKey")
}
