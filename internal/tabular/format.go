package tabular

import (
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
)

// Format is the declared container format of a source file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatXLSB Format = "xlsb"
)

// SupportedExtensions lists the accepted file extensions in display order.
var SupportedExtensions = []string{".csv", ".xlsx", ".xls", ".xlsb"}

// ParseFormat derives the format from a filename's extension (case-insensitive).
func ParseFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".xlsb":
		return FormatXLSB, nil
	}
	return "", apperror.New(apperror.UnsupportedFormat, "validate",
		"invalid file type %q. Must be one of: %s", filename, strings.Join(SupportedExtensions, ", "))
}

// Label returns the coarse input type reported to callers ("CSV" or "Excel").
func (f Format) Label() string {
	if f == FormatCSV {
		return "CSV"
	}
	return "Excel"
}
