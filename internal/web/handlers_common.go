// Package web provides HTTP handlers for the file cleaning API.
// This file contains response types and helpers shared across handlers.
package web

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/filecleaner/internal/artifact"
	"github.com/JonMunkholm/filecleaner/internal/core"
)

// supportedFormats is reported by the info and health endpoints.
var supportedFormats = []string{"CSV", "Excel (.xlsx, .xls, .xlsb)"}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// round rounds f to the given number of decimal places.
func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

// seconds renders d in seconds with millisecond precision.
func seconds(d time.Duration) float64 {
	return round(d.Seconds(), 3)
}

// megabytes renders n bytes in MiB with two decimals.
func megabytes(n int64) float64 {
	return round(float64(n)/(1024*1024), 2)
}

// humanHours renders a retention window the way clients expect ("24 hours").
func humanHours(d time.Duration) string {
	h := d.Hours()
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%g hours", round(h, 1))
}

// TimingsResponse holds per-phase durations in seconds.
type TimingsResponse struct {
	DownloadSeconds  float64 `json:"download_seconds"`
	ValidateSeconds  float64 `json:"validate_seconds"`
	StageSeconds     float64 `json:"stage_seconds"`
	LoadSeconds      float64 `json:"load_seconds"`
	TransformSeconds float64 `json:"clean_seconds"`
	PersistSeconds   float64 `json:"save_seconds"`
	CleanupSeconds   float64 `json:"cleanup_seconds"`
	TotalSeconds     float64 `json:"total_seconds"`
}

// StatisticsResponse describes what cleaning changed.
type StatisticsResponse struct {
	RowsBefore        int             `json:"rows_before"`
	RowsAfter         int             `json:"rows_after"`
	ColumnsBefore     int             `json:"columns_before"`
	ColumnsAfter      int             `json:"columns_after"`
	DuplicatesRemoved int             `json:"duplicates_removed"`
	EmptyRowsRemoved  int             `json:"empty_rows_removed"`
	ElapsedSeconds    float64         `json:"elapsed_seconds"`
	InputSizeBytes    int64           `json:"input_size_bytes"`
	OutputSizeBytes   int64           `json:"output_size_bytes"`
	InputSizeMB       float64         `json:"input_size_mb"`
	OutputSizeMB      float64         `json:"output_size_mb"`
	Timings           TimingsResponse `json:"timings"`
}

// ProcessResponse is returned by a successful cleaning job.
type ProcessResponse struct {
	Success           bool               `json:"success"`
	JobID             string             `json:"job_id"`
	FileID            string             `json:"file_id"`
	DownloadURL       string             `json:"download_url"`
	OriginalFilename  string             `json:"original_filename"`
	ProcessedFilename string             `json:"processed_filename"`
	InputFormat       string             `json:"input_format"`
	EngineUsed        string             `json:"engine_used"`
	Encoding          string             `json:"encoding,omitempty"`
	ExpiresIn         string             `json:"expires_in"`
	Statistics        StatisticsResponse `json:"statistics"`
}

// toProcessResponse converts a JobResult to its JSON form.
func toProcessResponse(res *core.JobResult) ProcessResponse {
	t := res.Timings
	return ProcessResponse{
		Success:           true,
		JobID:             res.JobID,
		FileID:            res.FileID,
		DownloadURL:       res.DownloadURL,
		OriginalFilename:  res.Filename,
		ProcessedFilename: res.ProcessedFilename,
		InputFormat:       string(res.Format),
		EngineUsed:        res.Engine,
		Encoding:          res.Encoding,
		ExpiresIn:         humanHours(res.ExpiresIn),
		Statistics: StatisticsResponse{
			RowsBefore:        res.Report.RowsBefore,
			RowsAfter:         res.Report.RowsAfter,
			ColumnsBefore:     res.Report.ColumnsBefore,
			ColumnsAfter:      res.Report.ColumnsAfter,
			DuplicatesRemoved: res.Report.DuplicatesRemoved,
			EmptyRowsRemoved:  res.Report.EmptyRowsRemoved,
			ElapsedSeconds:    seconds(t.Total),
			InputSizeBytes:    res.InputBytes,
			OutputSizeBytes:   res.OutputBytes,
			InputSizeMB:       megabytes(res.InputBytes),
			OutputSizeMB:      megabytes(res.OutputBytes),
			Timings: TimingsResponse{
				DownloadSeconds:  seconds(t.Download),
				ValidateSeconds:  seconds(t.Validate),
				StageSeconds:     seconds(t.Stage),
				LoadSeconds:      seconds(t.Load),
				TransformSeconds: seconds(t.Transform),
				PersistSeconds:   seconds(t.Persist),
				CleanupSeconds:   seconds(t.Cleanup),
				TotalSeconds:     seconds(t.Total),
			},
		},
	}
}

// PreviewResponse is returned by a successful preview.
type PreviewResponse struct {
	Success      bool     `json:"success"`
	Filename     string   `json:"filename"`
	FileType     string   `json:"file_type"`
	TotalRows    int      `json:"total_rows"`
	TotalColumns int      `json:"total_columns"`
	PreviewRows  int      `json:"preview_rows"`
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	EngineUsed   string   `json:"engine_used"`
	Encoding     string   `json:"encoding,omitempty"`
}

// toPreviewResponse converts a PreviewResult to its JSON form.
func toPreviewResponse(res *core.PreviewResult) PreviewResponse {
	rows := res.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return PreviewResponse{
		Success:      true,
		Filename:     res.Filename,
		FileType:     res.Format.Label(),
		TotalRows:    res.TotalRows,
		TotalColumns: res.TotalColumns,
		PreviewRows:  len(rows),
		Columns:      res.Columns,
		Rows:         rows,
		EngineUsed:   res.Engine,
		Encoding:     res.Encoding,
	}
}

// StoredFileResponse describes one file in the storage directory.
type StoredFileResponse struct {
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	SizeMB   float64 `json:"size_mb"`
	AgeHours float64 `json:"age_hours"`
}

// StorageInfoResponse summarizes the storage directory.
type StorageInfoResponse struct {
	FilesCount  int                  `json:"files_count"`
	TotalSizeMB float64              `json:"total_size_mb"`
	Files       []StoredFileResponse `json:"files"`
}

// toStorageInfoResponse converts store usage to its JSON form.
func toStorageInfoResponse(u artifact.Usage) StorageInfoResponse {
	files := make([]StoredFileResponse, len(u.Files))
	for i, f := range u.Files {
		files[i] = StoredFileResponse{
			Name:     f.Name,
			Kind:     string(f.Kind),
			SizeMB:   megabytes(f.Size),
			AgeHours: round(f.Age.Hours(), 1),
		}
	}
	return StorageInfoResponse{
		FilesCount:  u.FileCount,
		TotalSizeMB: megabytes(u.TotalBytes),
		Files:       files,
	}
}

// countOutputs returns the number of downloadable cleaned files.
func countOutputs(u artifact.Usage) int {
	n := 0
	for _, f := range u.Files {
		if f.Kind == artifact.KindOutput {
			n++
		}
	}
	return n
}
