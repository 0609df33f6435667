package tabular

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"unicode/utf16"
)

// biffWriter builds BIFF12 record streams for tests.
type biffWriter struct {
	bytes.Buffer
}

func (w *biffWriter) record(typ int, payload []byte) {
	if typ < 0x80 {
		w.WriteByte(byte(typ))
	} else {
		w.WriteByte(byte(typ&0x7F) | 0x80)
		w.WriteByte(byte(typ >> 7))
	}
	size := len(payload)
	for {
		b := byte(size & 0x7F)
		size >>= 7
		if size > 0 {
			w.WriteByte(b | 0x80)
			continue
		}
		w.WriteByte(b)
		break
	}
	w.Write(payload)
}

func u32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func wide(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := u32(uint32(len(units)))
	for _, u := range units {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return out
}

func cellHead(col uint32) []byte {
	return append(u32(col), 0, 0, 0, 0)
}

func buildXLSB(t *testing.T, parts map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	path := filepath.Join(t.TempDir(), "book.xlsb")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func sampleSheet() []byte {
	var sheet biffWriter
	sheet.record(0x0181, nil) // BrtBeginSheetData-style record with a two-byte type

	sheet.record(recRowHdr, append(u32(0), make([]byte, 8)...))
	sheet.record(recCellIsst, append(cellHead(0), u32(0)...))
	sheet.record(recCellSt, append(cellHead(1), wide("score")...))
	sheet.record(recCellSt, append(cellHead(2), wide("ok")...))

	sheet.record(recRowHdr, u32(1))
	sheet.record(recCellIsst, append(cellHead(0), u32(1)...))
	sheet.record(recCellRK, append(cellHead(1), u32(42<<2|0x02)...))
	sheet.record(recCellBool, append(cellHead(2), 1))

	// Row 2 is absent and becomes a blank row.
	sheet.record(recRowHdr, u32(3))
	sheet.record(recCellReal, append(cellHead(1), binary.LittleEndian.AppendUint64(nil, math.Float64bits(1.5))...))
	sheet.record(recCellError, append(cellHead(2), 0x07))
	return sheet.Bytes()
}

func sampleSST() []byte {
	var sst biffWriter
	sst.record(159, u32(2)) // BrtBeginSst
	sst.record(recSSTItem, append([]byte{0}, wide("name")...))
	sst.record(recSSTItem, append([]byte{0}, wide("zoë")...))
	return sst.Bytes()
}

func TestLoadXLSB(t *testing.T) {
	path := buildXLSB(t, map[string][]byte{
		"xl/worksheets/sheet1.bin": sampleSheet(),
		"xl/worksheets/sheet2.bin": nil,
		"xl/sharedStrings.bin":     sampleSST(),
	})

	ds, info, err := NewLoader().Load(context.Background(), path, FormatXLSB)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if info.Engine != "biff12" {
		t.Errorf("engine = %q, want biff12", info.Engine)
	}
	if got, want := ds.ColumnNames(), []string{"name", "score", "ok"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	if ds.NumRows() != 3 {
		t.Fatalf("rows = %d, want 3", ds.NumRows())
	}

	row := ds.Row(0)
	if row[0] != TextCell("zoë") || row[1] != NumberCell(42) || row[2] != BoolCell(true) {
		t.Errorf("row 0 = %+v", row)
	}
	for _, c := range ds.Row(1) {
		if !c.IsNull() {
			t.Errorf("gap row should be null, got %+v", ds.Row(1))
		}
	}
	row = ds.Row(2)
	if !row[0].IsNull() || row[1] != NumberCell(1.5) || row[2] != TextCell("#DIV/0!") {
		t.Errorf("row 2 = %+v", row)
	}
}

func TestXLSBFollowsWorkbookSheetOrder(t *testing.T) {
	var wb biffWriter
	// BrtBundleSh: hsState, iTabID, strRelID, strName
	payload := append(u32(0), u32(2)...)
	payload = append(payload, wide("rId7")...)
	payload = append(payload, wide("Data")...)
	wb.record(recBundleSh, payload)

	var other biffWriter
	other.record(recRowHdr, u32(0))
	other.record(recCellSt, append(cellHead(0), wide("wrong")...))

	rels := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId7" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet2.bin"/>
</Relationships>`)

	path := buildXLSB(t, map[string][]byte{
		"xl/workbook.bin":            wb.Bytes(),
		"xl/_rels/workbook.bin.rels": rels,
		"xl/worksheets/sheet1.bin":   other.Bytes(),
		"xl/worksheets/sheet2.bin":   sampleSheet(),
		"xl/sharedStrings.bin":       sampleSST(),
	})

	ds, _, err := NewLoader().Load(context.Background(), path, FormatXLSB)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := ds.ColumnNames()[0]; got != "name" {
		t.Errorf("first column = %q, want sheet2's header", got)
	}
}

func rkInt(n int32) uint32 {
	return uint32(n<<2) | 0x02
}

func TestDecodeRK(t *testing.T) {
	tests := []struct {
		name string
		v    uint32
		want float64
	}{
		{"integer", 42<<2 | 0x02, 42},
		{"negative integer", rkInt(-5), -5},
		{"integer x100", 1234<<2 | 0x03, 12.34},
		{"float", uint32(math.Float64bits(2.5) >> 32), 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeRK(tt.v); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("decodeRK(%#x) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestRecordReaderTruncated(t *testing.T) {
	rr := newRecordReader(bytes.NewReader([]byte{recCellSt, 0x10, 'a'}))
	if _, _, err := rr.next(); err == nil {
		t.Error("next() expected error for truncated payload")
	}
}
