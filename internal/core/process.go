package core

// process.go runs a cleaning job as a fixed sequence of phases:
//
//	downloading -> validating -> staging -> loading -> transforming ->
//	persisting -> cleaning_up -> done
//
// The first failing phase ends the job. Whatever happens after staging, the
// staged input is deleted before the job returns. Downloaded bytes are only
// referenced until staging completes and the dataset only until the output
// is written.

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/artifact"
	"github.com/JonMunkholm/filecleaner/internal/fetch"
	"github.com/JonMunkholm/filecleaner/internal/history"
	"github.com/JonMunkholm/filecleaner/internal/logging"
	"github.com/JonMunkholm/filecleaner/internal/tabular"
	"github.com/JonMunkholm/filecleaner/internal/transform"
)

// historyTimeout bounds the history insert made after a job ends.
const historyTimeout = 5 * time.Second

// job carries the state of one running job.
type job struct {
	id      string
	kind    JobKind
	req     Request
	format  tabular.Format
	start   time.Time
	log     *slog.Logger
	timings Timings

	phase       Phase
	failedPhase Phase
	cleaned     bool

	engine      string
	inputBytes  int64
	outputBytes int64
	fileID      string
	report      *transform.Report
}

// Process downloads req.FileURL, cleans it and stores the result.
func (s *Service) Process(ctx context.Context, req Request) (result *JobResult, err error) {
	ctx, j := s.newJob(ctx, JobProcess, req)
	defer func() { s.finish(ctx, j, err) }()

	if err = j.validate(); err != nil {
		return nil, err
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	j.log.Info("job started", "format", j.format)

	staged, err := s.fetchAndStage(ctx, j)
	if err != nil {
		return nil, err
	}
	defer s.cleanup(ctx, j, staged)

	ds, info, err := s.load(ctx, j, staged)
	if err != nil {
		return nil, err
	}

	var report transform.Report
	err = s.runPhase(j, PhaseTransforming, &j.timings.Transform, func() (err error) {
		ds, report, err = s.pipeline.Apply(ctx, ds)
		return err
	})
	if err != nil {
		return nil, err
	}
	j.report = &report
	s.metrics.RecordRowsRemoved("duplicate", report.DuplicatesRemoved)
	s.metrics.RecordRowsRemoved("empty", report.EmptyRowsRemoved)

	var out artifact.OutputArtifact
	err = s.runPhase(j, PhasePersisting, &j.timings.Persist, func() (err error) {
		out, err = s.store.Persist(ctx, ds)
		return err
	})
	if err != nil {
		return nil, err
	}
	j.fileID = out.ID
	j.outputBytes = out.Size
	s.metrics.RecordBytes("written", out.Size)

	s.cleanup(ctx, j, staged)
	j.timings.Total = time.Since(j.start)

	return &JobResult{
		JobID:             j.id,
		FileID:            out.ID,
		DownloadURL:       s.DownloadURL(out.ID),
		Filename:          j.req.Filename,
		ProcessedFilename: artifact.OutputPrefix + out.ID + artifact.OutputExt,
		Format:            j.format,
		Engine:            info.Engine,
		Encoding:          info.Encoding,
		Report:            report,
		InputBytes:        j.inputBytes,
		OutputBytes:       out.Size,
		ExpiresIn:         s.store.Retention(),
		Timings:           j.timings,
	}, nil
}

// Preview downloads req.FileURL and returns its first n rows without
// cleaning. n <= 0 uses DefaultPreviewRows. Nothing is kept in the store.
func (s *Service) Preview(ctx context.Context, req Request, n int) (result *PreviewResult, err error) {
	if n <= 0 {
		n = DefaultPreviewRows
	}

	ctx, j := s.newJob(ctx, JobPreview, req)
	defer func() { s.finish(ctx, j, err) }()

	if err = j.validate(); err != nil {
		return nil, err
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	j.log.Info("preview started", "format", j.format, "rows", n)

	staged, err := s.fetchAndStage(ctx, j)
	if err != nil {
		return nil, err
	}
	defer s.cleanup(ctx, j, staged)

	ds, info, err := s.load(ctx, j, staged)
	if err != nil {
		return nil, err
	}

	head := ds.Head(n)
	rows := make([][]any, head.NumRows())
	for i := range rows {
		cells := head.Row(i)
		row := make([]any, len(cells))
		for c, cell := range cells {
			row[c] = cell.Value()
		}
		rows[i] = row
	}

	s.cleanup(ctx, j, staged)
	j.timings.Total = time.Since(j.start)

	return &PreviewResult{
		JobID:        j.id,
		Filename:     j.req.Filename,
		Format:       j.format,
		Engine:       info.Engine,
		Encoding:     info.Encoding,
		TotalRows:    ds.NumRows(),
		TotalColumns: ds.NumCols(),
		Columns:      ds.ColumnNames(),
		Rows:         rows,
	}, nil
}

func (s *Service) newJob(ctx context.Context, kind JobKind, req Request) (context.Context, *job) {
	req.FileURL = strings.TrimSpace(req.FileURL)
	req.Filename = strings.TrimSpace(req.Filename)
	if req.Filename == "" {
		req.Filename = DefaultFilename
	}

	j := &job{
		id:    uuid.NewString(),
		kind:  kind,
		req:   req,
		start: time.Now(),
	}
	ctx = logging.WithJobID(ctx, j.id)
	j.log = logging.WithFields(ctx, "kind", kind, "filename", req.Filename)
	if ip := ClientIPFromContext(ctx); ip != "" {
		j.log = j.log.With("client_ip", ip)
	}
	if ua := UserAgentFromContext(ctx); ua != "" {
		j.log = j.log.With("user_agent", ua)
	}
	return ctx, j
}

// validate checks the request before any work is done.
func (j *job) validate() error {
	if j.req.FileURL == "" {
		j.failedPhase = PhaseValidating
		return apperror.New(apperror.InvalidRequest, "validate", "file_url is required")
	}
	format, err := tabular.ParseFormat(j.req.Filename)
	if err != nil {
		j.failedPhase = PhaseValidating
		return err
	}
	j.format = format
	return nil
}

// acquire takes a job slot. The returned func gives it back.
func (s *Service) acquire(ctx context.Context) (func(), error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	s.metrics.IncActiveJobs()
	return func() {
		s.metrics.DecActiveJobs()
		s.limiter.Release()
	}, nil
}

// fetchAndStage runs the downloading, validating and staging phases.
func (s *Service) fetchAndStage(ctx context.Context, j *job) (artifact.StagedInput, error) {
	var dl *fetch.Result
	err := s.runPhase(j, PhaseDownloading, &j.timings.Download, func() (err error) {
		dl, err = s.downloader.Fetch(ctx, j.req.FileURL)
		return err
	})
	if err != nil {
		return artifact.StagedInput{}, err
	}
	j.inputBytes = dl.Size
	s.metrics.RecordBytes("downloaded", dl.Size)

	err = s.runPhase(j, PhaseValidating, &j.timings.Validate, func() error {
		return fetch.CheckContent(dl.Data, j.format)
	})
	if err != nil {
		return artifact.StagedInput{}, err
	}

	var staged artifact.StagedInput
	err = s.runPhase(j, PhaseStaging, &j.timings.Stage, func() (err error) {
		staged, err = s.store.Stage(ctx, bytes.NewReader(dl.Data), j.req.Filename)
		return err
	})
	return staged, err
}

func (s *Service) load(ctx context.Context, j *job, staged artifact.StagedInput) (*tabular.Dataset, tabular.LoadInfo, error) {
	var (
		ds   *tabular.Dataset
		info tabular.LoadInfo
	)
	err := s.runPhase(j, PhaseLoading, &j.timings.Load, func() (err error) {
		ds, info, err = s.loader.Load(ctx, staged.Path, j.format)
		return err
	})
	if err != nil {
		return nil, info, err
	}
	j.engine = info.Engine
	j.log.Debug("file loaded",
		"engine", info.Engine,
		"encoding", info.Encoding,
		"rows", ds.NumRows(),
		"columns", ds.NumCols())
	return ds, info, nil
}

// cleanup deletes the staged input. It runs once per job and never fails.
func (s *Service) cleanup(ctx context.Context, j *job, staged artifact.StagedInput) {
	if j.cleaned {
		return
	}
	j.cleaned = true
	_ = s.runPhase(j, PhaseCleaningUp, &j.timings.Cleanup, func() error {
		s.store.Delete(context.WithoutCancel(ctx), staged.Path)
		return nil
	})
}

// runPhase times fn as phase and records the outcome.
func (s *Service) runPhase(j *job, phase Phase, elapsed *time.Duration, fn func() error) error {
	j.phase = phase
	start := time.Now()
	err := fn()
	d := time.Since(start)
	*elapsed = d

	s.metrics.RecordPhase(string(phase), err == nil, d)
	if err != nil {
		j.failedPhase = phase
		return err
	}
	j.log.Debug("phase complete", "phase", phase, logging.Duration("elapsed", d))
	return nil
}

// finish logs the job outcome and records it in metrics and history.
func (s *Service) finish(ctx context.Context, j *job, err error) {
	total := time.Since(j.start)
	outcome := outcomeOf(err)
	s.metrics.RecordJob(string(j.kind), string(j.format), outcome, total)

	if err != nil {
		j.phase = PhaseFailed
		log := j.log.With(
			"phase", j.failedPhase,
			"outcome", outcome,
			"error", err,
			logging.Duration("elapsed", total))
		if apperror.IsClientError(apperror.KindOf(err)) || outcome == "cancelled" {
			log.Warn("job failed")
		} else {
			log.Error("job failed")
		}
	} else {
		j.phase = PhaseDone
		attrs := []any{
			"outcome", outcome,
			logging.Size("input", j.inputBytes),
			logging.Size("output", j.outputBytes),
			logging.Duration("elapsed", total),
		}
		if j.report != nil {
			attrs = append(attrs,
				"rows_before", j.report.RowsBefore,
				"rows_after", j.report.RowsAfter,
				"duplicates_removed", j.report.DuplicatesRemoved,
				"empty_rows_removed", j.report.EmptyRowsRemoved)
		}
		j.log.Info("job complete", attrs...)
	}

	s.recordHistory(ctx, j, outcome, err, total)
}

func (s *Service) recordHistory(ctx context.Context, j *job, outcome string, jobErr error, total time.Duration) {
	if !s.history.Enabled() {
		return
	}

	entry := history.Entry{
		JobID:       j.id,
		Kind:        string(j.kind),
		SourceURL:   redactSource(j.req.FileURL),
		Filename:    j.req.Filename,
		Format:      string(j.format),
		Outcome:     outcome,
		FileID:      j.fileID,
		InputBytes:  j.inputBytes,
		OutputBytes: j.outputBytes,
		DurationMS:  total.Milliseconds(),
	}
	if jobErr != nil {
		entry.ErrorCode = apperror.MapError(jobErr).Code
	}
	if j.report != nil {
		entry.RowsBefore = j.report.RowsBefore
		entry.RowsAfter = j.report.RowsAfter
		entry.DuplicatesRemoved = j.report.DuplicatesRemoved
		entry.EmptyRowsRemoved = j.report.EmptyRowsRemoved
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := s.history.Record(hctx, entry); err != nil {
		j.log.Warn("failed to record job history", "error", err)
	}
}

// outcomeOf labels a job result for metrics and history.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return string(apperror.KindOf(err))
	}
}

// redactSource drops credentials, query and fragment from a source URL.
func redactSource(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
