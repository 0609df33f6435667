package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/filecleaner/internal/artifact"
	"github.com/JonMunkholm/filecleaner/internal/transform"
)

// jobSummary is what process and clean print.
type jobSummary struct {
	FileID            string  `json:"file_id" yaml:"file_id"`
	Path              string  `json:"path" yaml:"path"`
	CopiedTo          string  `json:"copied_to,omitempty" yaml:"copied_to,omitempty"`
	DownloadURL       string  `json:"download_url,omitempty" yaml:"download_url,omitempty"`
	Source            string  `json:"source" yaml:"source"`
	Format            string  `json:"format" yaml:"format"`
	Engine            string  `json:"engine" yaml:"engine"`
	Encoding          string  `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	RowsBefore        int     `json:"rows_before" yaml:"rows_before"`
	RowsAfter         int     `json:"rows_after" yaml:"rows_after"`
	Columns           int     `json:"columns" yaml:"columns"`
	DuplicatesRemoved int     `json:"duplicates_removed" yaml:"duplicates_removed"`
	EmptyRowsRemoved  int     `json:"empty_rows_removed" yaml:"empty_rows_removed"`
	InputSize         string  `json:"input_size" yaml:"input_size"`
	OutputSize        string  `json:"output_size" yaml:"output_size"`
	ElapsedSeconds    float64 `json:"elapsed_seconds" yaml:"elapsed_seconds"`
}

func newJobSummary(source string, report transform.Report, in, out int64, elapsed time.Duration) jobSummary {
	return jobSummary{
		Source:            source,
		RowsBefore:        report.RowsBefore,
		RowsAfter:         report.RowsAfter,
		Columns:           report.ColumnsAfter,
		DuplicatesRemoved: report.DuplicatesRemoved,
		EmptyRowsRemoved:  report.EmptyRowsRemoved,
		InputSize:         humanize.Bytes(uint64(max(in, 0))),
		OutputSize:        humanize.Bytes(uint64(max(out, 0))),
		ElapsedSeconds:    elapsed.Round(time.Millisecond).Seconds(),
	}
}

// sweepSummary is what sweep prints.
type sweepSummary struct {
	MaxAge          string `json:"max_age" yaml:"max_age"`
	Scanned         int    `json:"scanned" yaml:"scanned"`
	OutputsDeleted  int    `json:"outputs_deleted" yaml:"outputs_deleted"`
	InputsDeleted   int    `json:"inputs_deleted" yaml:"inputs_deleted"`
	PartialsDeleted int    `json:"partials_deleted" yaml:"partials_deleted"`
	Freed           string `json:"freed" yaml:"freed"`
	Errors          int    `json:"errors" yaml:"errors"`
}

func newSweepSummary(maxAge time.Duration, r artifact.SweepResult) sweepSummary {
	return sweepSummary{
		MaxAge:          maxAge.String(),
		Scanned:         r.Scanned,
		OutputsDeleted:  r.OutputsDeleted,
		InputsDeleted:   r.InputsDeleted,
		PartialsDeleted: r.PartialsDeleted,
		Freed:           humanize.Bytes(uint64(max(r.BytesFreed, 0))),
		Errors:          r.Errors,
	}
}

// usageFile is one row of the usage listing.
type usageFile struct {
	Name     string `json:"name" yaml:"name"`
	Kind     string `json:"kind" yaml:"kind"`
	Size     string `json:"size" yaml:"size"`
	Modified string `json:"modified" yaml:"modified"`
	Expired  bool   `json:"expired" yaml:"expired"`
}

// usageSummary is what usage prints.
type usageSummary struct {
	Dir        string      `json:"dir" yaml:"dir"`
	FilesCount int         `json:"files_count" yaml:"files_count"`
	TotalSize  string      `json:"total_size" yaml:"total_size"`
	Files      []usageFile `json:"files" yaml:"files"`
}

func newUsageSummary(dir string, retention time.Duration, u artifact.Usage) usageSummary {
	files := make([]usageFile, len(u.Files))
	for i, f := range u.Files {
		files[i] = usageFile{
			Name:     f.Name,
			Kind:     string(f.Kind),
			Size:     humanize.Bytes(uint64(max(f.Size, 0))),
			Modified: humanize.Time(f.ModTime),
			Expired:  f.Age > retention,
		}
	}
	return usageSummary{
		Dir:        dir,
		FilesCount: u.FileCount,
		TotalSize:  humanize.Bytes(uint64(max(u.TotalBytes, 0))),
		Files:      files,
	}
}

// printResult writes v as json or yaml.
func printResult(w io.Writer, format string, v any) error {
	switch format = strings.ToLower(format); format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
