// Package artifact manages the on-disk files of the cleaning service.
//
// All files live flat in one directory:
//
//	temp_input_{id}_{name}   staged download, deleted at the end of each job
//	partial_{id}.xlsx        output being written, renamed when complete
//	cleaned_{id}.xlsx        finished output, served until it expires
//
// File age is taken from the modification time only. There is no index, so
// a restart loses nothing and the sweeper can run against any directory.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/logging"
)

const (
	OutputPrefix  = "cleaned_"
	InputPrefix   = "temp_input_"
	PartialPrefix = "partial_"
	OutputExt     = ".xlsx"

	// SheetName is the worksheet name of every output workbook.
	SheetName = "Cleaned Data"

	// DefaultRetention is how long outputs are kept.
	DefaultRetention = 24 * time.Hour

	maxSafeNameLen = 100
)

// Kind classifies a managed file by its name prefix.
type Kind string

const (
	KindOutput  Kind = "output"
	KindInput   Kind = "input"
	KindPartial Kind = "partial"
)

// KindOf returns the kind of a managed file name, or false for other files.
func KindOf(name string) (Kind, bool) {
	switch {
	case strings.HasPrefix(name, OutputPrefix) && strings.HasSuffix(name, OutputExt):
		return KindOutput, true
	case strings.HasPrefix(name, InputPrefix):
		return KindInput, true
	case strings.HasPrefix(name, PartialPrefix):
		return KindPartial, true
	}
	return "", false
}

// StagedInput is a downloaded source file written to the store.
type StagedInput struct {
	ID           string
	OriginalName string
	Path         string
	Size         int64
}

// OutputArtifact is a finished cleaned workbook.
type OutputArtifact struct {
	ID        string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Store is a flat directory of staged inputs and cleaned outputs.
type Store struct {
	root      string
	retention time.Duration
	now       func() time.Time
}

// NewStore creates the root directory if needed and verifies it is writable.
// A retention of zero means DefaultRetention.
func NewStore(root string, retention time.Duration) (*Store, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", root, err)
	}

	testFile := filepath.Join(root, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return nil, fmt.Errorf("storage dir %s is not writable: %w", root, err)
	}
	_ = os.Remove(testFile)

	return &Store{root: root, retention: retention, now: time.Now}, nil
}

// Root returns the storage directory.
func (s *Store) Root() string {
	return s.root
}

// Retention returns how long outputs are served.
func (s *Store) Retention() time.Duration {
	return s.retention
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName reduces a user supplied filename to a single path element made of
// portable characters. The extension is kept.
func SafeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if len(name) > maxSafeNameLen {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:maxSafeNameLen-len(ext)] + ext
	}
	if name == "" {
		name = "file"
	}
	return name
}

// Stage writes r to temp_input_{id}_{name}. The caller owns the staged file
// and must delete it.
func (s *Store) Stage(ctx context.Context, r io.Reader, originalName string) (StagedInput, error) {
	id := uuid.NewString()
	path := filepath.Join(s.root, InputPrefix+id+"_"+SafeName(originalName))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return StagedInput{}, apperror.Wrap(apperror.StorageWriteError, "stage", err)
	}

	n, err := io.Copy(f, contextReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		if ctx.Err() != nil {
			return StagedInput{}, ctx.Err()
		}
		return StagedInput{}, apperror.Wrap(apperror.StorageWriteError, "stage", err)
	}

	logging.FromContext(ctx).Debug("input staged", "path", path, logging.Size("size", n))
	return StagedInput{ID: id, OriginalName: originalName, Path: path, Size: n}, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// OutputPath returns the path of the output with the given id. The id must be
// a UUID; any other string is reported as NotFound.
func (s *Store) OutputPath(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", apperror.New(apperror.NotFound, "lookup", "invalid file id %q", id)
	}
	return filepath.Join(s.root, OutputPrefix+parsed.String()+OutputExt), nil
}

// Open returns the output with the given id for streaming. Missing and
// expired outputs are NotFound. The caller closes the file.
func (s *Store) Open(id string) (*os.File, fs.FileInfo, error) {
	path, err := s.OutputPath(id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, apperror.New(apperror.NotFound, "lookup", "file %s not found", id)
		}
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat output: %w", err)
	}
	if s.now().Sub(info.ModTime()) > s.retention {
		f.Close()
		return nil, nil, apperror.New(apperror.NotFound, "lookup", "file %s expired", id)
	}
	return f, info, nil
}

// Read returns the full contents of the output with the given id.
func (s *Store) Read(id string) ([]byte, error) {
	f, _, err := s.Open(id)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Delete removes a file inside the store. Failures are logged, never returned.
func (s *Store) Delete(ctx context.Context, path string) {
	log := logging.FromContext(ctx)
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(s.root) {
		log.Warn("refusing to delete file outside storage dir", "path", path)
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("failed to delete file", "path", path, "error", err)
		return
	}
	log.Debug("file deleted", "path", path)
}
