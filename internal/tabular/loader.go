// Package tabular loads CSV and Excel files into an in-memory Dataset.
//
// CSV files are decoded by trying a list of candidate encodings (the
// detector's guess first, then fixed fallbacks) until one parses. Excel files
// are read from their first sheet, skipping leading blank rows to find the
// header. Supported containers are .csv, .xlsx, .xls and .xlsb.
package tabular

import (
	"context"
	"errors"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/logging"
)

// LoadInfo describes how a file was read.
type LoadInfo struct {
	Format   Format `json:"format"`
	Engine   string `json:"engine"`
	Encoding string `json:"encoding,omitempty"`
}

// Loader reads staged files into datasets. The zero value is ready to use.
type Loader struct{}

// NewLoader returns a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

var excelEngines = map[Format]struct {
	name string
	read func(context.Context, string) ([][]Cell, error)
}{
	FormatXLSX: {"excelize", readXLSX},
	FormatXLS:  {"xls", readXLS},
	FormatXLSB: {"biff12", readXLSB},
}

// Load reads the file at path as the given format.
//
// Errors are classified: content that cannot be parsed is UnreadableFile, an
// unknown format is UnsupportedFormat. Cancellation is returned unwrapped.
func (l *Loader) Load(ctx context.Context, path string, format Format) (*Dataset, LoadInfo, error) {
	if format == FormatCSV {
		ds, info, err := loadCSV(ctx, path)
		info.Format = format
		return ds, info, err
	}

	engine, ok := excelEngines[format]
	if !ok {
		return nil, LoadInfo{}, apperror.New(apperror.UnsupportedFormat, "load", "unsupported format %q", format)
	}
	info := LoadInfo{Format: format, Engine: engine.name}

	rows, err := engine.read(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, info, ctx.Err()
		}
		return nil, info, apperror.Wrap(apperror.UnreadableFile, "load "+string(format), err)
	}

	ds, err := sheetToDataset(ctx, rows)
	if err != nil {
		if errors.Is(err, errEmptySheet) {
			return nil, info, apperror.Wrap(apperror.UnreadableFile, "load "+string(format), err)
		}
		return nil, info, err
	}

	logging.FromContext(ctx).Debug("excel sheet loaded",
		"engine", engine.name, "rows", ds.NumRows(), "columns", ds.NumCols())
	return ds, info, nil
}
