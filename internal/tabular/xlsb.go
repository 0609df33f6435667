package tabular

// xlsb.go reads the first worksheet of an Excel binary workbook (BIFF12).
//
// An .xlsb file is a zip container whose parts are streams of records. Each
// record starts with a type and a size, both 7-bit variable-length integers
// (type: 1-2 bytes, size: 1-4 bytes), followed by size bytes of payload.
// Only the records needed to recover cell values are interpreted.

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	recRowHdr     = 0
	recCellBlank  = 1
	recCellRK     = 2
	recCellError  = 3
	recCellBool   = 4
	recCellReal   = 5
	recCellSt     = 6
	recCellIsst   = 7
	recFmlaString = 8
	recFmlaNum    = 9
	recFmlaBool   = 10
	recFmlaError  = 11
	recSSTItem    = 19
	recBundleSh   = 156

	maxXLSBColumns = 16384
	maxXLSBRows    = 1 << 20
	maxRecordSize  = 1 << 26
)

var xlsbErrorText = map[byte]string{
	0x00: "#NULL!",
	0x07: "#DIV/0!",
	0x0F: "#VALUE!",
	0x17: "#REF!",
	0x1D: "#NAME?",
	0x24: "#NUM!",
	0x2A: "#N/A",
	0x2B: "#GETTING_DATA",
}

// cellPayloadSize is the minimum value size of fixed-width cell records.
var cellPayloadSize = map[int]int{
	recCellRK:    4,
	recCellError: 1,
	recCellBool:  1,
	recCellReal:  8,
	recCellIsst:  4,
	recFmlaNum:   8,
	recFmlaBool:  1,
	recFmlaError: 1,
}

// recordReader iterates over BIFF12 records.
type recordReader struct {
	r   *bufio.Reader
	buf []byte
}

func newRecordReader(r io.Reader) *recordReader {
	return &recordReader{r: bufio.NewReader(r)}
}

// next returns the next record. The payload is only valid until the next call.
func (rr *recordReader) next() (typ int, payload []byte, err error) {
	b, err := rr.r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	typ = int(b & 0x7F)
	if b&0x80 != 0 {
		b2, err := rr.r.ReadByte()
		if err != nil {
			return 0, nil, io.ErrUnexpectedEOF
		}
		typ |= int(b2&0x7F) << 7
	}

	size := 0
	for i := 0; i < 4; i++ {
		b, err := rr.r.ReadByte()
		if err != nil {
			return 0, nil, io.ErrUnexpectedEOF
		}
		size |= int(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			break
		}
	}
	if size > maxRecordSize {
		return 0, nil, fmt.Errorf("record %d: size %d too large", typ, size)
	}

	if cap(rr.buf) < size {
		rr.buf = make([]byte, size)
	}
	payload = rr.buf[:size]
	if _, err := io.ReadFull(rr.r, payload); err != nil {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return typ, payload, nil
}

// readWideString decodes an XLWideString (uint32 char count, UTF-16LE chars)
// and returns the string and the bytes consumed.
func readWideString(p []byte) (string, int, error) {
	if len(p) < 4 {
		return "", 0, io.ErrUnexpectedEOF
	}
	n := binary.LittleEndian.Uint32(p)
	if n == math.MaxUint32 {
		return "", 4, nil
	}
	end := 4 + int(n)*2
	if int(n) > len(p) || end > len(p) {
		return "", 0, io.ErrUnexpectedEOF
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(p[4+2*i:])
	}
	return string(utf16.Decode(units)), end, nil
}

// decodeRK decodes the compressed RkNumber representation.
func decodeRK(v uint32) float64 {
	var f float64
	if v&0x02 != 0 {
		f = float64(int32(v) >> 2)
	} else {
		f = math.Float64frombits(uint64(v&^0x03) << 32)
	}
	if v&0x01 != 0 {
		f /= 100
	}
	return f
}

// readSharedStrings loads the shared string table, if the workbook has one.
func readSharedStrings(zr *zip.Reader) ([]string, error) {
	f := findZipFile(zr, "xl/sharedStrings.bin")
	if f == nil {
		return nil, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var sst []string
	rr := newRecordReader(rc)
	for {
		typ, p, err := rr.next()
		if err == io.EOF {
			return sst, nil
		}
		if err != nil {
			return nil, fmt.Errorf("shared strings: %w", err)
		}
		if typ != recSSTItem {
			continue
		}
		// RichStr: one flags byte, then the plain text.
		if len(p) < 1 {
			return nil, fmt.Errorf("shared strings: %w", io.ErrUnexpectedEOF)
		}
		s, _, err := readWideString(p[1:])
		if err != nil {
			return nil, fmt.Errorf("shared strings: %w", err)
		}
		sst = append(sst, s)
	}
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// firstSheetPath returns the zip path of the workbook's first sheet. It follows
// the workbook's sheet list when present and otherwise picks the lowest
// numbered worksheet part.
func firstSheetPath(zr *zip.Reader) (string, error) {
	if p, ok := sheetPathFromWorkbook(zr); ok {
		return p, nil
	}

	var sheets []string
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/") && strings.HasSuffix(f.Name, ".bin") {
			sheets = append(sheets, f.Name)
		}
	}
	if len(sheets) == 0 {
		return "", errors.New("workbook has no worksheets")
	}
	sort.Slice(sheets, func(i, j int) bool {
		return sheetNumber(sheets[i]) < sheetNumber(sheets[j])
	})
	return sheets[0], nil
}

func sheetNumber(name string) int {
	base := strings.TrimSuffix(path.Base(name), ".bin")
	n, err := strconv.Atoi(strings.TrimPrefix(base, "sheet"))
	if err != nil {
		return math.MaxInt
	}
	return n
}

func sheetPathFromWorkbook(zr *zip.Reader) (string, bool) {
	wb := findZipFile(zr, "xl/workbook.bin")
	rels := findZipFile(zr, "xl/_rels/workbook.bin.rels")
	if wb == nil || rels == nil {
		return "", false
	}

	rc, err := wb.Open()
	if err != nil {
		return "", false
	}
	defer rc.Close()

	var relID string
	rr := newRecordReader(rc)
	for relID == "" {
		typ, p, err := rr.next()
		if err != nil {
			return "", false
		}
		if typ != recBundleSh || len(p) < 8 {
			continue
		}
		// BrtBundleSh: hsState, iTabID, then the relationship id.
		id, _, err := readWideString(p[8:])
		if err != nil || id == "" {
			return "", false
		}
		relID = id
	}

	rrc, err := rels.Open()
	if err != nil {
		return "", false
	}
	defer rrc.Close()

	var doc relationships
	if err := xml.NewDecoder(rrc).Decode(&doc); err != nil {
		return "", false
	}
	for _, rel := range doc.Items {
		if rel.ID != relID {
			continue
		}
		target := rel.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("xl", target)
		}
		if findZipFile(zr, target) != nil {
			return target, true
		}
	}
	return "", false
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// readXLSB reads the first sheet of a binary workbook into rows of cells.
// Gaps between rows and columns are filled with nulls.
func readXLSB(ctx context.Context, filePath string) ([][]Cell, error) {
	zf, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer zf.Close()

	sst, err := readSharedStrings(&zf.Reader)
	if err != nil {
		return nil, err
	}
	sheetPath, err := firstSheetPath(&zf.Reader)
	if err != nil {
		return nil, err
	}
	rc, err := findZipFile(&zf.Reader, sheetPath).Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		rows    [][]Cell
		current = -1
		records int
	)
	rr := newRecordReader(rc)
	for {
		records++
		if records%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		typ, p, err := rr.next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sheetPath, err)
		}

		if typ == recRowHdr {
			if len(p) < 4 {
				return nil, fmt.Errorf("%s: short row header", sheetPath)
			}
			r := int(binary.LittleEndian.Uint32(p))
			if r >= maxXLSBRows {
				return nil, fmt.Errorf("%s: row %d out of range", sheetPath, r)
			}
			for len(rows) <= r {
				rows = append(rows, nil)
			}
			current = r
			continue
		}
		if typ < recCellBlank || typ > recFmlaError || current < 0 {
			continue
		}

		// Every cell record starts with a column index and a style word.
		if len(p) < 8 {
			return nil, fmt.Errorf("%s: short cell record", sheetPath)
		}
		col := int(binary.LittleEndian.Uint32(p))
		if col >= maxXLSBColumns {
			return nil, fmt.Errorf("%s: column %d out of range", sheetPath, col)
		}
		cell, err := decodeCell(typ, p[8:], sst)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d col %d: %w", sheetPath, current, col, err)
		}
		row := rows[current]
		for len(row) <= col {
			row = append(row, Cell{})
		}
		row[col] = cell
		rows[current] = row
	}
}

func decodeCell(typ int, p []byte, sst []string) (Cell, error) {
	if n, ok := cellPayloadSize[typ]; ok && len(p) < n {
		return Cell{}, io.ErrUnexpectedEOF
	}

	switch typ {
	case recCellBlank:
		return Cell{}, nil
	case recCellRK:
		return NumberCell(decodeRK(binary.LittleEndian.Uint32(p))), nil
	case recCellReal, recFmlaNum:
		return NumberCell(math.Float64frombits(binary.LittleEndian.Uint64(p))), nil
	case recCellBool, recFmlaBool:
		return BoolCell(p[0] != 0), nil
	case recCellError, recFmlaError:
		if s, ok := xlsbErrorText[p[0]]; ok {
			return TextCell(s), nil
		}
		return TextCell("#ERR" + strconv.Itoa(int(p[0]))), nil
	case recCellSt, recFmlaString:
		s, _, err := readWideString(p)
		if err != nil {
			return Cell{}, err
		}
		return TextCell(s), nil
	case recCellIsst:
		idx := int(binary.LittleEndian.Uint32(p))
		if idx >= len(sst) {
			return Cell{}, fmt.Errorf("shared string %d out of range", idx)
		}
		return TextCell(sst[idx]), nil
	}
	return Cell{}, nil
}
