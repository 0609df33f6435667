// Package fetch downloads source files over HTTP(S).
//
// Downloads are bounded by size and time. Non-2xx responses, transport
// failures, oversize bodies and timeouts are all reported as DownloadError.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/logging"
)

const (
	// DefaultMaxBytes caps a single download.
	DefaultMaxBytes int64 = 500 << 20

	// DefaultTimeout bounds a whole download, headers and body.
	DefaultTimeout = 10 * time.Minute

	DefaultUserAgent = "filecleaner/1.0"
)

// Config controls download limits.
type Config struct {
	MaxBytes  int64
	Timeout   time.Duration
	UserAgent string
}

// Result is a completed download.
type Result struct {
	Data        []byte
	ContentType string
	Size        int64
	Elapsed     time.Duration
}

// Downloader fetches URLs into memory.
type Downloader struct {
	client    *http.Client
	maxBytes  int64
	timeout   time.Duration
	userAgent string
}

// New creates a Downloader. A nil client uses a default client; zero config
// values use the package defaults.
func New(cfg Config, client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Downloader{
		client:    client,
		maxBytes:  cfg.MaxBytes,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
	}
}

// MaxBytes returns the download size limit.
func (d *Downloader) MaxBytes() int64 {
	return d.maxBytes
}

// Fetch downloads rawURL. If the caller's context is cancelled the context
// error is returned as is; every other failure is a classified error.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperror.New(apperror.InvalidRequest, "download", "file_url must be an absolute http(s) URL")
	}

	start := time.Now()
	dlCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperror.Wrap(apperror.DownloadError, "download", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, d.classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperror.New(apperror.DownloadError, "download", "unexpected status %s", resp.Status)
	}
	if resp.ContentLength > d.maxBytes {
		return nil, d.tooLarge()
	}

	counter := NewCountingReader(io.LimitReader(resp.Body, d.maxBytes+1))
	data, err := io.ReadAll(counter)
	if err != nil {
		return nil, d.classify(ctx, err)
	}
	if counter.BytesRead > d.maxBytes {
		return nil, d.tooLarge()
	}

	res := &Result{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        counter.BytesRead,
		Elapsed:     time.Since(start),
	}
	logging.FromContext(ctx).Debug("download complete",
		"host", u.Host,
		"status", resp.StatusCode,
		"content_type", res.ContentType,
		logging.Size("size", res.Size),
		logging.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (d *Downloader) tooLarge() error {
	return apperror.New(apperror.DownloadError, "download",
		"file too large: exceeds %s", humanize.IBytes(uint64(d.maxBytes)))
}

// classify maps a transport error. Cancellation by the caller stays
// unclassified so the caller can tell it apart from a download timeout.
func (d *Downloader) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Wrap(apperror.DownloadError, "download",
			fmt.Errorf("timed out after %s: %w", d.timeout, context.DeadlineExceeded))
	}
	return apperror.Wrap(apperror.DownloadError, "download", redactURL(err))
}

// redactURL drops the query string from url.Error messages, which may carry
// signed-URL credentials.
func redactURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	if i := strings.IndexByte(ue.URL, '?'); i >= 0 {
		return &url.Error{Op: ue.Op, URL: ue.URL[:i], Err: ue.Err}
	}
	return err
}
