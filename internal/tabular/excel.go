package tabular

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// HeaderScanLimit bounds how many leading blank rows are skipped while looking
// for a sheet's header.
const HeaderScanLimit = 100

var errEmptySheet = errors.New("sheet has no header row")

// sheetToDataset builds a dataset from raw sheet rows. Leading blank rows (up
// to HeaderScanLimit) are skipped and the first non-blank row becomes the
// header. Blank rows after the header are kept. The column count is the widest
// row; missing header cells are named "Unnamed: i".
func sheetToDataset(ctx context.Context, rows [][]Cell) (*Dataset, error) {
	start := -1
	for i := 0; i < len(rows) && i < HeaderScanLimit; i++ {
		if !blankRow(rows[i]) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, errEmptySheet
	}

	width := 0
	for _, r := range rows[start:] {
		width = max(width, len(r))
	}

	raw := make([]string, width)
	for i, c := range rows[start] {
		raw[i] = c.String()
	}
	ds := NewDataset(headerNames(raw))

	row := make([]Cell, width)
	for n, r := range rows[start+1:] {
		if n%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		clear(row)
		copy(row, r)
		if err := ds.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func blankRow(r []Cell) bool {
	for _, c := range r {
		switch c.Kind {
		case Null:
		case Text:
			if strings.TrimSpace(c.Str) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// readXLSX reads the first sheet of an Office Open XML workbook. Cell values
// are taken as displayed text.
func readXLSX(ctx context.Context, path string) ([][]Cell, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]Cell
	for rows.Next() {
		if len(out)%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		out = append(out, textCells(cols))
	}
	if err := rows.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// readXLS reads the first sheet of a legacy BIFF8 workbook.
func readXLS(ctx context.Context, path string) (out [][]Cell, err error) {
	// The BIFF8 parser panics on some truncated files.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("corrupt xls workbook: %v", r)
		}
	}()

	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	wb, err := xls.OpenReader(fh, "utf-8")
	if err != nil {
		return nil, err
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("workbook has no sheets")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := sheet.Row(i)
		if row == nil {
			out = append(out, nil)
			continue
		}
		cols := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cols[j] = row.Col(j)
		}
		out = append(out, textCells(cols))
	}
	return out, nil
}

func textCells(values []string) []Cell {
	cells := make([]Cell, len(values))
	for i, v := range values {
		cells[i] = TextCell(v)
	}
	return cells
}
