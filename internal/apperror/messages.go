package apperror

// messages.go maps errors to user-facing messages with support codes.
//
// Codes are grouped by who has to act:
//
//	REQ001-REQ099   request problems (bad JSON, missing fields, extension)
//	DL001-DL099     download problems (unreachable, status, size, timeout)
//	FILE001-FILE099 content problems (could not parse with any strategy)
//	SRV001-SRV099   internal problems (transform defect, disk, serialization)
//	ART001-ART099   artifact lookups
//	JOB001-JOB099   backpressure
//	ERR000          fallback; check the logs for the technical error
//
// Classified errors are looked up by kind first. Unclassified errors fall
// through to a case-insensitive substring table, first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[Kind]UserMessage{
	InvalidRequest: {
		Message: "The request is missing required fields or is malformed",
		Action:  "Send a JSON body with file_url and filename",
		Code:    "REQ001",
	},
	UnsupportedFormat: {
		Message: "Invalid file type. Must be one of: .csv, .xlsx, .xls, .xlsb",
		Action:  "Convert the file to CSV or Excel and try again",
		Code:    "REQ002",
	},
	DownloadError: {
		Message: "Failed to download file from URL",
		Action:  "Check that the URL is publicly reachable and try again",
		Code:    "DL001",
	},
	UnreadableFile: {
		Message: "The file could not be parsed",
		Action:  "Check that the file is a valid CSV or Excel workbook",
		Code:    "FILE001",
	},
	ProcessingError: {
		Message: "An internal error occurred while cleaning the file",
		Action:  "Please report this error with its code",
		Code:    "SRV001",
	},
	StorageWriteError: {
		Message: "The server could not store the file",
		Action:  "Please try again later",
		Code:    "SRV002",
	},
	SerializationError: {
		Message: "The cleaned data could not be written as a spreadsheet",
		Action:  "Check for extremely long cell values (over 32,767 characters)",
		Code:    "SRV003",
	},
	NotFound: {
		Message: "File not found or expired. Files are kept for 24 hours.",
		Action:  "Process the file again to get a new download link",
		Code:    "ART001",
	},
	Busy: {
		Message: "The server is busy processing other files",
		Action:  "Please wait a moment and try again",
		Code:    "JOB001",
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// Order matters: specific patterns before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check that the source responds quickly",
			Code:    "DL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ003",
		},
	},
	{
		pattern: "too large",
		msg: UserMessage{
			Message: "File exceeds the maximum download size",
			Action:  "Split the file into smaller chunks",
			Code:    "DL003",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Timeouts and oversize downloads keep the download code family but get a
// more specific code than the generic DL001.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	var e *Error
	if errors.As(err, &e) {
		if e.Kind == DownloadError {
			for _, ep := range errorPatterns {
				if strings.HasPrefix(ep.msg.Code, "DL") && strings.Contains(errStr, ep.pattern) {
					return ep.msg
				}
			}
		}
		if msg, ok := kindMessages[e.Kind]; ok {
			return msg
		}
	}

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
