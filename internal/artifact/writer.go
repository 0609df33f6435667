package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/logging"
	"github.com/JonMunkholm/filecleaner/internal/tabular"
)

const rowCheckInterval = 1000

// Persist writes ds as a single-sheet workbook. Rows are streamed into
// partial_{id}.xlsx, which is renamed to cleaned_{id}.xlsx only once the
// workbook is complete, so a served output is never half written.
//
// Content Excel cannot hold (too many rows, cells over 32767 characters) is a
// SerializationError; disk failures are StorageWriteError.
func (s *Store) Persist(ctx context.Context, ds *tabular.Dataset) (OutputArtifact, error) {
	if ds.NumRows()+1 > excelize.TotalRows {
		return OutputArtifact{}, apperror.New(apperror.SerializationError, "persist",
			"%d rows exceed the sheet limit of %d", ds.NumRows(), excelize.TotalRows-1)
	}
	if ds.NumCols() > excelize.MaxColumns {
		return OutputArtifact{}, apperror.New(apperror.SerializationError, "persist",
			"%d columns exceed the sheet limit of %d", ds.NumCols(), excelize.MaxColumns)
	}

	id := uuid.NewString()
	partial := filepath.Join(s.root, PartialPrefix+id+OutputExt)
	final := filepath.Join(s.root, OutputPrefix+id+OutputExt)

	if err := writeWorkbook(ctx, ds, partial); err != nil {
		_ = os.Remove(partial)
		return OutputArtifact{}, err
	}
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return OutputArtifact{}, apperror.Wrap(apperror.StorageWriteError, "persist", err)
	}

	info, err := os.Stat(final)
	if err != nil {
		return OutputArtifact{}, apperror.Wrap(apperror.StorageWriteError, "persist", err)
	}

	logging.FromContext(ctx).Debug("output persisted", "file_id", id, logging.Size("size", info.Size()))
	return OutputArtifact{ID: id, Path: final, Size: info.Size(), CreatedAt: info.ModTime()}, nil
}

func writeWorkbook(ctx context.Context, ds *tabular.Dataset, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return apperror.Wrap(apperror.SerializationError, "persist", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return apperror.Wrap(apperror.SerializationError, "persist", err)
	}

	values := make([]any, ds.NumCols())
	for i, name := range ds.ColumnNames() {
		if err := checkCellLength(name, 0, i); err != nil {
			return err
		}
		values[i] = name
	}
	if err := sw.SetRow("A1", values); err != nil {
		return apperror.Wrap(apperror.SerializationError, "persist header", err)
	}

	for r := 0; r < ds.NumRows(); r++ {
		if r%rowCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for c := range ds.Columns {
			cell := ds.Columns[c].Cells[r]
			if cell.Kind == tabular.Text {
				if err := checkCellLength(cell.Str, r+1, c); err != nil {
					return err
				}
			}
			values[c] = cell.Value()
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return apperror.Wrap(apperror.SerializationError, "persist", err)
		}
		if err := sw.SetRow(axis, values); err != nil {
			return apperror.Wrap(apperror.SerializationError, fmt.Sprintf("persist row %d", r+1), err)
		}
	}

	if err := sw.Flush(); err != nil {
		return apperror.Wrap(apperror.SerializationError, "persist", err)
	}
	if err := f.SaveAs(path); err != nil {
		return apperror.Wrap(apperror.StorageWriteError, "persist", err)
	}
	return nil
}

func checkCellLength(s string, row, col int) error {
	if len(s) <= excelize.TotalCellChars || utf8.RuneCountInString(s) <= excelize.TotalCellChars {
		return nil
	}
	name, _ := excelize.CoordinatesToCellName(col+1, row+1)
	return apperror.New(apperror.SerializationError, "persist",
		"cell %s has more than %d characters", name, excelize.TotalCellChars)
}
