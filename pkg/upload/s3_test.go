package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu   sync.Mutex
	puts map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.puts[r.URL.Path] = string(body)
		f.mu.Unlock()

		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if r.URL.Query().Get("list-type") != "2" || r.URL.Path != "/logs" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
			`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">` +
			`<Name>logs</Name><Prefix>runs/</Prefix><KeyCount>3</KeyCount>` +
			`<MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>` +
			`<Contents><Key>runs/</Key></Contents>` +
			`<Contents><Key>runs/a.log</Key></Contents>` +
			`<Contents><Key>runs/b/c.log</Key></Contents>` +
			`</ListBucketResult>`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func setupFakeS3(t *testing.T) (*fakeS3, *config.S3Config) {
	t.Helper()

	fake := &fakeS3{puts: make(map[string]string, 2)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return fake, &config.S3Config{
		Enabled:         true,
		EndpointURL:     srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		ForcePathStyle:  true,
	}
}

func TestS3Uploader_Upload(t *testing.T) {
	fake, cfg := setupFakeS3(t)

	u, err := NewS3Uploader(logrus.New(), cfg)
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, u.Preflight(ctx, "s3://exports/nightly.json"))
	require.NoError(t, u.Upload(ctx, "s3://exports/nightly.json", strings.NewReader(`{"runs":["a"]}`)))

	fake.mu.Lock()
	defer fake.mu.Unlock()

	assert.Contains(t, fake.puts, "/exports/"+writeTestKey)
	assert.Contains(t, fake.puts["/exports/nightly.json"], `{"runs":["a"]}`)

	assert.Error(t, u.Upload(ctx, "s3://exports/dir/", strings.NewReader("x")))
	assert.Error(t, u.Upload(ctx, "https://exports/a.json", strings.NewReader("x")))
}

func TestNewS3Uploader_Disabled(t *testing.T) {
	_, err := NewS3Uploader(logrus.New(), &config.S3Config{})
	assert.Error(t, err)
}

func TestS3Reader_ExpandPrefix(t *testing.T) {
	_, cfg := setupFakeS3(t)

	r := NewS3Reader(logrus.New(), cfg)

	urls, err := r.ExpandPrefix(context.Background(), "s3://logs/runs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"s3://logs/runs/a.log", "s3://logs/runs/b/c.log"}, urls)
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		bucket  string
		key     string
		prefix  bool
		wantErr bool
	}{
		{name: "object", raw: "s3://logs/runs/a.log", bucket: "logs", key: "runs/a.log"},
		{name: "prefix", raw: "s3://logs/runs/", bucket: "logs", key: "runs/", prefix: true},
		{name: "bucket only", raw: "s3://logs", bucket: "logs", prefix: true},
		{name: "wrong scheme", raw: "https://logs/a.log", wantErr: true},
		{name: "no bucket", raw: "s3:///a.log", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseS3URL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, IsS3Prefix(tt.raw))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.prefix, IsS3Prefix(tt.raw))
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		wantPrefix string
	}{
		{name: "json file", key: "exports/run.json", wantPrefix: "application/json"},
		{name: "no extension", key: "exports/run", wantPrefix: "application/octet-stream"},
		{name: "txt file", key: "exports/notes.txt", wantPrefix: "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, detectContentType(tt.key), tt.wantPrefix)
		})
	}
}
