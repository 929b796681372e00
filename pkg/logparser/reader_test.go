package logparser

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethpandaops/wptview/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"action":"test_start","test":"/a.html"}
{"action":"test_status","test":"/a.html","subtest":"sub1","status":"PASS","expected":"PASS"}
{"action":"log","level":"info","message":"noise"}
`

func newTestReader(t *testing.T, cfg *config.FetchConfig) Reader {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	if cfg == nil {
		cfg = &config.FetchConfig{}
	}

	r, err := NewReader(log, cfg)
	require.NoError(t, err)

	return r
}

func TestReader_Read(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wptreport.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))

	records, err := newTestReader(t, nil).Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "sub1", records[1].Subtest)
}

func TestReader_ReadMissingFile(t *testing.T) {
	_, err := newTestReader(t, nil).Read(
		context.Background(), "/nonexistent/wptreport.log",
	)
	require.Error(t, err)

	var readErr *FileReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, "/nonexistent/wptreport.log", readErr.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReader_ReadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/ok.log":
				assert.Equal(t, "wptview-test", r.Header.Get("User-Agent"))
				_, _ = w.Write([]byte(sampleLog))
			case "/broken.log":
				_, _ = w.Write([]byte("{not json\n"))
			default:
				http.NotFound(w, r)
			}
		},
	))
	defer srv.Close()

	r := newTestReader(t, &config.FetchConfig{UserAgent: "wptview-test"})

	t.Run("success", func(t *testing.T) {
		records, err := r.ReadURL(context.Background(), srv.URL+"/ok.log")
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("non-200 status", func(t *testing.T) {
		_, err := r.ReadURL(context.Background(), srv.URL+"/missing.log")
		require.Error(t, err)

		var fetchErr *FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, http.StatusNotFound, fetchErr.Status)
		assert.Equal(t, srv.URL+"/missing.log", fetchErr.URL)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := r.ReadURL(context.Background(), srv.URL+"/broken.log")
		require.Error(t, err)

		var malformed *MalformedLogError
		assert.True(t, errors.As(err, &malformed))
	})

	t.Run("network failure", func(t *testing.T) {
		_, err := r.ReadURL(context.Background(), "http://127.0.0.1:1/none.log")
		require.Error(t, err)

		var fetchErr *FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Zero(t, fetchErr.Status)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := r.ReadURL(context.Background(), "ftp://example.com/a.log")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported scheme")
	})

	t.Run("s3 disabled", func(t *testing.T) {
		_, err := r.ReadURL(context.Background(), "s3://bucket/a.log")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "s3 sources are disabled")
	})
}

func TestReader_ReadURL_S3(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet &&
				strings.HasPrefix(r.URL.Path, "/logs/runs/") &&
				strings.HasSuffix(r.URL.Path, "wptreport.log") {
				_, _ = w.Write([]byte(sampleLog))

				return
			}

			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(
				`<?xml version="1.0" encoding="UTF-8"?>` +
					`<Error><Code>NoSuchKey</Code>` +
					`<Message>The specified key does not exist.</Message></Error>`,
			))
		},
	))
	defer srv.Close()

	r := newTestReader(t, &config.FetchConfig{
		S3: config.S3Config{
			Enabled:         true,
			EndpointURL:     srv.URL,
			Region:          "us-east-1",
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			ForcePathStyle:  true,
		},
	})

	records, err := r.ReadURL(
		context.Background(), "s3://logs/runs/1/wptreport.log",
	)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = r.ReadURL(context.Background(), "s3://logs/missing.log")
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)

	_, err = r.ReadURL(context.Background(), "s3://logs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected s3://bucket/key")
}
