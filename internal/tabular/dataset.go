package tabular

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CellKind is the dynamic type of a cell value.
type CellKind uint8

const (
	Null CellKind = iota
	Text
	Number
	Bool
)

// Cell is a single nullable value. Only the field matching Kind is meaningful.
type Cell struct {
	Kind CellKind
	Str  string
	Num  float64
	B    bool
}

// TextCell returns a Text cell, or a Null cell for the empty string.
func TextCell(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{Kind: Text, Str: s}
}

// NumberCell returns a Number cell.
func NumberCell(f float64) Cell {
	return Cell{Kind: Number, Num: f}
}

// BoolCell returns a Bool cell.
func BoolCell(b bool) Cell {
	return Cell{Kind: Bool, B: b}
}

// IsNull reports whether the cell holds no value.
func (c Cell) IsNull() bool {
	return c.Kind == Null
}

// String renders the cell the way it appears in a spreadsheet.
func (c Cell) String() string {
	switch c.Kind {
	case Text:
		return c.Str
	case Number:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case Bool:
		if c.B {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

// Value returns the cell as a plain Go value (nil, string, float64 or bool),
// suitable for JSON encoding and spreadsheet writers.
func (c Cell) Value() any {
	switch c.Kind {
	case Text:
		return c.Str
	case Number:
		return c.Num
	case Bool:
		return c.B
	default:
		return nil
	}
}

// Column is a named, ordered sequence of cells.
type Column struct {
	Name  string
	Cells []Cell
}

// Dataset is an in-memory table stored column by column.
// All columns always have the same length.
type Dataset struct {
	Columns []Column
}

// NewDataset creates an empty dataset with the given column names.
func NewDataset(names []string) *Dataset {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n}
	}
	return &Dataset{Columns: cols}
}

// NumCols returns the number of columns.
func (d *Dataset) NumCols() int {
	return len(d.Columns)
}

// NumRows returns the number of rows.
func (d *Dataset) NumRows() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Cells)
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// AppendRow appends one row. The row must have exactly NumCols cells.
func (d *Dataset) AppendRow(row []Cell) error {
	if len(row) != len(d.Columns) {
		return fmt.Errorf("row has %d cells, dataset has %d columns", len(row), len(d.Columns))
	}
	for i := range d.Columns {
		d.Columns[i].Cells = append(d.Columns[i].Cells, row[i])
	}
	return nil
}

// Row returns a copy of row i.
func (d *Dataset) Row(i int) []Cell {
	row := make([]Cell, len(d.Columns))
	for j := range d.Columns {
		row[j] = d.Columns[j].Cells[i]
	}
	return row
}

// Filter keeps the rows for which keep returns true, preserving their
// relative order, and returns the number of rows removed.
func (d *Dataset) Filter(keep func(i int) bool) int {
	n := d.NumRows()
	mask := make([]bool, n)
	kept := 0
	for i := 0; i < n; i++ {
		mask[i] = keep(i)
		if mask[i] {
			kept++
		}
	}
	if kept == n {
		return 0
	}
	for c := range d.Columns {
		cells := d.Columns[c].Cells
		w := 0
		for i := 0; i < n; i++ {
			if mask[i] {
				cells[w] = cells[i]
				w++
			}
		}
		clear(cells[w:])
		d.Columns[c].Cells = cells[:w]
	}
	return n - kept
}

// RowKey returns a byte-exact encoding of row i. Two rows have the same key
// if and only if every cell has the same kind and value. If text is not nil,
// text cells are compared by text(value).
func (d *Dataset) RowKey(i int, text func(string) string) string {
	var b strings.Builder
	var buf [8]byte
	for c := range d.Columns {
		cell := d.Columns[c].Cells[i]
		b.WriteByte(byte(cell.Kind))
		switch cell.Kind {
		case Text:
			s := cell.Str
			if text != nil {
				s = text(s)
			}
			binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
			b.Write(buf[:])
			b.WriteString(s)
		case Number:
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(cell.Num))
			b.Write(buf[:])
		case Bool:
			if cell.B {
				b.WriteByte(1)
			} else {
				b.WriteByte(0)
			}
		}
	}
	return b.String()
}

// Head returns a new dataset holding at most the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n > d.NumRows() {
		n = d.NumRows()
	}
	out := &Dataset{Columns: make([]Column, len(d.Columns))}
	for i, c := range d.Columns {
		out.Columns[i] = Column{Name: c.Name, Cells: append([]Cell(nil), c.Cells[:n]...)}
	}
	return out
}

// Validate checks that all columns have equal length.
func (d *Dataset) Validate() error {
	n := d.NumRows()
	for _, c := range d.Columns {
		if len(c.Cells) != n {
			return fmt.Errorf("column %q has %d cells, want %d", c.Name, len(c.Cells), n)
		}
	}
	return nil
}
