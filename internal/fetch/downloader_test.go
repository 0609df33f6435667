package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/tabular"
)

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/data.csv":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write([]byte("a,b\n1,2\n"))
		case "/missing.csv":
			http.NotFound(w, r)
		case "/error":
			w.WriteHeader(http.StatusInternalServerError)
		case "/big":
			_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
		case "/big-chunked":
			flusher := w.(http.Flusher)
			for i := 0; i < 8; i++ {
				_, _ = w.Write(bytes.Repeat([]byte("x"), 8))
				flusher.Flush()
			}
		}
	}))
	defer server.Close()

	d := New(Config{MaxBytes: 32}, server.Client())

	t.Run("success", func(t *testing.T) {
		res, err := d.Fetch(context.Background(), server.URL+"/data.csv")
		require.NoError(t, err)
		assert.Equal(t, "a,b\n1,2\n", string(res.Data))
		assert.Equal(t, int64(8), res.Size)
		assert.Equal(t, "text/csv", res.ContentType)
	})

	tests := []struct {
		name        string
		path        string
		wantMessage string
	}{
		{"not found", "/missing.csv", "404"},
		{"server error", "/error", "500"},
		{"too large by content length", "/big", "too large"},
		{"too large while streaming", "/big-chunked", "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Fetch(context.Background(), server.URL+tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrDownload)
			assert.Contains(t, err.Error(), tt.wantMessage)
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	d := New(Config{Timeout: 50 * time.Millisecond}, server.Client())
	_, err := d.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrDownload)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "DL002", apperror.MapError(err).Code)
}

func TestFetchCallerCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	d := New(Config{Timeout: time.Minute}, server.Client())
	_, err := d.Fetch(ctx, server.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEqual(t, apperror.DownloadError, apperror.KindOf(err), "caller cancellation is not a download failure")
}

func TestFetchInvalidURL(t *testing.T) {
	d := New(Config{}, nil)
	for _, raw := range []string{"ftp://example.com/a.csv", "not a url", "/relative.csv", "http://"} {
		_, err := d.Fetch(context.Background(), raw)
		assert.ErrorIs(t, err, apperror.ErrInvalidRequest, raw)
	}
}

func TestFetchRedactsQueryString(t *testing.T) {
	d := New(Config{Timeout: time.Second}, nil)
	_, err := d.Fetch(context.Background(), "http://127.0.0.1:1/file.csv?X-Amz-Signature=secret")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestCheckContent(t *testing.T) {
	html := []byte("<!DOCTYPE html><html><head><title>Sign in</title></head><body></body></html>")

	err := CheckContent(html, tabular.FormatXLSX)
	assert.ErrorIs(t, err, apperror.ErrDownload)

	assert.NoError(t, CheckContent([]byte("a,b\n1,2\n"), tabular.FormatCSV))
	assert.NoError(t, CheckContent(nil, tabular.FormatCSV))
}

func TestCountingReader(t *testing.T) {
	r := NewCountingReader(strings.NewReader("hello world"))
	buf := make([]byte, 5)
	_, _ = r.Read(buf)
	assert.Equal(t, int64(5), r.BytesRead)

	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, int64(11), r.BytesRead)
}
