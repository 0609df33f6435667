// Package apperror defines the error taxonomy shared by the cleaning pipeline.
//
// Every failure that can reach a caller carries a [Kind]. The kind decides the
// HTTP status, the support code, and whether the caller should fix the input,
// retry, or report a bug:
//
//   - Input problems: [InvalidRequest], [UnsupportedFormat], [DownloadError]
//   - Content problems: [UnreadableFile]
//   - Server problems: [ProcessingError], [StorageWriteError], [SerializationError]
//   - Lookup/backpressure: [NotFound], [Busy]
//
// Errors are created with [New] or [Wrap] and inspected with [KindOf] or
// errors.Is against the Err* sentinels.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for callers.
type Kind string

const (
	InvalidRequest     Kind = "invalid_request"
	UnsupportedFormat  Kind = "unsupported_format"
	DownloadError      Kind = "download_error"
	UnreadableFile     Kind = "unreadable_file"
	ProcessingError    Kind = "processing_error"
	StorageWriteError  Kind = "storage_write_error"
	SerializationError Kind = "serialization_error"
	NotFound           Kind = "not_found"
	Busy               Kind = "busy"
)

// Sentinels for errors.Is comparisons. An *Error matches the sentinel of its kind.
var (
	ErrInvalidRequest    = &Error{Kind: InvalidRequest}
	ErrUnsupportedFormat = &Error{Kind: UnsupportedFormat}
	ErrDownload          = &Error{Kind: DownloadError}
	ErrUnreadableFile    = &Error{Kind: UnreadableFile}
	ErrProcessing        = &Error{Kind: ProcessingError}
	ErrStorageWrite      = &Error{Kind: StorageWriteError}
	ErrSerialization     = &Error{Kind: SerializationError}
	ErrNotFound          = &Error{Kind: NotFound}
	ErrBusy              = &Error{Kind: Busy}
)

// Error is a classified failure. Op names the operation that failed and Msg is
// a short human-readable description; Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var s string
	switch {
	case e.Op != "" && e.Msg != "":
		s = e.Op + ": " + e.Msg
	case e.Op != "":
		s = e.Op
	case e.Msg != "":
		s = e.Msg
	default:
		s = string(e.Kind)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel (or any *Error) of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// New creates a classified error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. It returns nil if err is nil. When err is already
// classified the new kind shadows it, since KindOf reports the outermost kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or ProcessingError for unclassified errors. It returns "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ProcessingError
}

// HTTPStatus maps a kind to the status code returned to HTTP callers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidRequest, UnsupportedFormat, DownloadError:
		return http.StatusBadRequest
	case UnreadableFile:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	case Busy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf returns the HTTP status for err. Downloads that hit their deadline
// and unclassified deadline errors, such as an expired request context,
// report 504.
func StatusOf(err error) int {
	var e *Error
	classified := errors.As(err, &e)
	if errors.Is(err, context.DeadlineExceeded) && (!classified || e.Kind == DownloadError) {
		return http.StatusGatewayTimeout
	}
	return HTTPStatus(KindOf(err))
}

// IsClientError reports whether the failure was caused by the caller's input.
func IsClientError(kind Kind) bool {
	return HTTPStatus(kind) < http.StatusInternalServerError
}
