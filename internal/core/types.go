package core

import (
	"time"

	"github.com/JonMunkholm/filecleaner/internal/tabular"
	"github.com/JonMunkholm/filecleaner/internal/transform"
)

// DefaultFilename is used when a request names no file.
const DefaultFilename = "file.xlsx"

// DefaultPreviewRows is the number of rows Preview returns when n <= 0.
const DefaultPreviewRows = 20

// JobKind distinguishes full cleaning jobs from previews.
type JobKind string

const (
	JobProcess JobKind = "process"
	JobPreview JobKind = "preview"
)

// Phase is one stage of a job. Jobs move through the phases in order and
// stop at the first failure.
type Phase string

const (
	PhaseDownloading  Phase = "downloading"
	PhaseValidating   Phase = "validating"
	PhaseStaging      Phase = "staging"
	PhaseLoading      Phase = "loading"
	PhaseTransforming Phase = "transforming"
	PhasePersisting   Phase = "persisting"
	PhaseCleaningUp   Phase = "cleaning_up"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Request asks for a file to be downloaded and cleaned.
type Request struct {
	FileURL  string
	Filename string
}

// Timings records how long each phase of a job took.
type Timings struct {
	Download  time.Duration
	Validate  time.Duration
	Stage     time.Duration
	Load      time.Duration
	Transform time.Duration
	Persist   time.Duration
	Cleanup   time.Duration
	Total     time.Duration
}

// JobResult describes a finished cleaning job.
type JobResult struct {
	JobID             string
	FileID            string
	DownloadURL       string
	Filename          string
	ProcessedFilename string
	Format            tabular.Format
	Engine            string
	Encoding          string
	Report            transform.Report
	InputBytes        int64
	OutputBytes       int64
	ExpiresIn         time.Duration
	Timings           Timings
}

// PreviewResult holds the first rows of a loaded file, before cleaning.
type PreviewResult struct {
	JobID        string
	Filename     string
	Format       tabular.Format
	Engine       string
	Encoding     string
	TotalRows    int
	TotalColumns int
	Columns      []string
	Rows         [][]any
}
