package core

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/JonMunkholm/filecleaner/internal/artifact"
	"github.com/JonMunkholm/filecleaner/internal/fetch"
	"github.com/JonMunkholm/filecleaner/internal/history"
	"github.com/JonMunkholm/filecleaner/internal/metrics"
	"github.com/JonMunkholm/filecleaner/internal/tabular"
	"github.com/JonMunkholm/filecleaner/internal/transform"
)

// Options configures a Service. Nil fields get working defaults.
type Options struct {
	Downloader *fetch.Downloader
	Loader     *tabular.Loader
	Pipeline   *transform.Pipeline
	Limiter    *JobLimiter
	Metrics    metrics.Recorder
	History    *history.Store

	// PublicURL is the externally visible base URL used to build download
	// links, e.g. "https://cleaner.example.com". Empty yields relative links.
	PublicURL string
}

// Service runs cleaning jobs against an artifact store.
type Service struct {
	store      *artifact.Store
	downloader *fetch.Downloader
	loader     *tabular.Loader
	pipeline   *transform.Pipeline
	limiter    *JobLimiter
	metrics    metrics.Recorder
	history    *history.Store
	publicURL  string

	sweeping atomic.Bool
	sweepWG  sync.WaitGroup
}

// NewService creates a Service over store.
func NewService(store *artifact.Store, opts Options) *Service {
	s := &Service{
		store:      store,
		downloader: opts.Downloader,
		loader:     opts.Loader,
		pipeline:   opts.Pipeline,
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		history:    opts.History,
		publicURL:  strings.TrimRight(opts.PublicURL, "/"),
	}
	if s.downloader == nil {
		s.downloader = fetch.New(fetch.Config{}, nil)
	}
	if s.loader == nil {
		s.loader = tabular.NewLoader()
	}
	if s.pipeline == nil {
		s.pipeline = transform.Default(transform.DefaultSuffix)
	}
	if s.limiter == nil {
		s.limiter = NewJobLimiter(DefaultMaxConcurrentJobs, DefaultMaxWaitTime)
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.history == nil {
		s.history = history.New(nil)
	}
	return s
}

// Store returns the artifact store.
func (s *Service) Store() *artifact.Store {
	return s.store
}

// History returns the job history store, which may be disabled.
func (s *Service) History() *history.Store {
	return s.history
}

// Pipeline returns the transform pipeline.
func (s *Service) Pipeline() *transform.Pipeline {
	return s.pipeline
}

// DownloadURL returns the link under which an output can be fetched.
func (s *Service) DownloadURL(fileID string) string {
	return s.publicURL + "/download/" + fileID
}

// JobLimiterStatus returns the current job limiter state.
func (s *Service) JobLimiterStatus() JobLimiterStatus {
	return s.limiter.Status()
}

// WaitForJobs blocks until running jobs and any in-flight sweep finish, or
// ctx is cancelled.
func (s *Service) WaitForJobs(ctx context.Context) error {
	if err := s.limiter.WaitForDrain(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		s.sweepWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
