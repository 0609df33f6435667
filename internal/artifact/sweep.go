package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/JonMunkholm/filecleaner/internal/logging"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Scanned         int   `json:"scanned"`
	OutputsDeleted  int   `json:"outputs_deleted"`
	InputsDeleted   int   `json:"inputs_deleted"`
	PartialsDeleted int   `json:"partials_deleted"`
	BytesFreed      int64 `json:"bytes_freed"`
	Errors          int   `json:"errors"`
}

// Deleted returns the total number of files removed.
func (r SweepResult) Deleted() int {
	return r.OutputsDeleted + r.InputsDeleted + r.PartialsDeleted
}

// Sweep deletes every managed file whose modification time is more than
// maxAge in the past. Ages are read when each file is visited. Failures on
// single files are logged and counted; only an unreadable directory fails
// the sweep.
func (s *Store) Sweep(ctx context.Context, maxAge time.Duration) (SweepResult, error) {
	var res SweepResult
	log := logging.FromContext(ctx)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return res, fmt.Errorf("read storage dir: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if e.IsDir() {
			continue
		}
		kind, ok := KindOf(e.Name())
		if !ok {
			continue
		}
		res.Scanned++

		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				res.Errors++
				log.Warn("sweep: stat failed", "file", e.Name(), "error", err)
			}
			continue
		}
		age := s.now().Sub(info.ModTime())
		if age <= maxAge {
			continue
		}

		if err := os.Remove(filepath.Join(s.root, e.Name())); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				res.Errors++
				log.Warn("sweep: delete failed", "file", e.Name(), "error", err)
			}
			continue
		}
		res.BytesFreed += info.Size()
		switch kind {
		case KindOutput:
			res.OutputsDeleted++
		case KindInput:
			res.InputsDeleted++
		case KindPartial:
			res.PartialsDeleted++
		}
		log.Debug("sweep: deleted expired file", "file", e.Name(), "age", age.Round(time.Minute).String())
	}

	return res, nil
}

// FileUsage describes one managed file.
type FileUsage struct {
	Name    string        `json:"name"`
	Kind    Kind          `json:"kind"`
	Size    int64         `json:"size_bytes"`
	Age     time.Duration `json:"-"`
	ModTime time.Time     `json:"modified_at"`
}

// Usage summarizes the store's contents.
type Usage struct {
	FileCount  int         `json:"files_count"`
	TotalBytes int64       `json:"total_size_bytes"`
	Files      []FileUsage `json:"files"`
}

// Usage lists managed files, newest first.
func (s *Store) Usage() (Usage, error) {
	var u Usage

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return u, fmt.Errorf("read storage dir: %w", err)
	}

	now := s.now()
	for _, e := range entries {
		kind, ok := KindOf(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		u.Files = append(u.Files, FileUsage{
			Name:    e.Name(),
			Kind:    kind,
			Size:    info.Size(),
			Age:     now.Sub(info.ModTime()),
			ModTime: info.ModTime(),
		})
		u.TotalBytes += info.Size()
	}
	u.FileCount = len(u.Files)
	sort.Slice(u.Files, func(i, j int) bool {
		return u.Files[i].ModTime.After(u.Files[j].ModTime)
	})
	return u, nil
}
