package tabular

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
)

// ============================================================================
// Helpers
// ============================================================================

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func cellStrings(ds *Dataset, row int) []string {
	out := make([]string, ds.NumCols())
	for i, c := range ds.Row(row) {
		if c.IsNull() {
			out[i] = "<null>"
		} else {
			out[i] = c.String()
		}
	}
	return out
}

// ============================================================================
// CSV
// ============================================================================

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "people.csv", []byte("name,city,notes\nalice,paris,\nbob,\"new york, ny\",x\n,,\n"))

	ds, info, err := NewLoader().Load(context.Background(), path, FormatCSV)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if info.Engine != "csv" || info.Encoding == "" {
		t.Errorf("LoadInfo = %+v, want csv engine with an encoding", info)
	}
	if got, want := ds.ColumnNames(), []string{"name", "city", "notes"}; !reflect.DeepEqual(got, want) {
		t.Errorf("columns = %v, want %v", got, want)
	}
	if ds.NumRows() != 3 {
		t.Fatalf("rows = %d, want 3", ds.NumRows())
	}
	if got, want := cellStrings(ds, 0), []string{"alice", "paris", "<null>"}; !reflect.DeepEqual(got, want) {
		t.Errorf("row 0 = %v, want %v", got, want)
	}
	if got, want := cellStrings(ds, 1), []string{"bob", "new york, ny", "x"}; !reflect.DeepEqual(got, want) {
		t.Errorf("row 1 = %v, want %v", got, want)
	}
	if got, want := cellStrings(ds, 2), []string{"<null>", "<null>", "<null>"}; !reflect.DeepEqual(got, want) {
		t.Errorf("row 2 = %v, want %v", got, want)
	}
}

func TestParseCSVFileMalformedRecords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantRows int
		wantSkip int
		wantErr  bool
	}{
		{
			name:     "extra fields skipped",
			input:    "a,b\n1,2\n1,2,3\n4,5\n",
			wantRows: 2,
			wantSkip: 1,
		},
		{
			name:     "short rows padded",
			input:    "a,b,c\n1\n2,3\n",
			wantRows: 2,
		},
		{
			name:     "bare quote kept",
			input:    "a,b\n1,x\"y\n2,3\n",
			wantRows: 2,
		},
		{
			name:     "quote inside quoted field kept",
			input:    "a,b\n1,\"x\"y\"\n2,3\n",
			wantRows: 2,
		},
		{
			name:     "quoted field spans lines",
			input:    "a,b\n1,\"two\nlines\"\n2,3\n",
			wantRows: 2,
		},
		{
			name:     "escaped quotes",
			input:    "a,b\n1,\"say \"\"hi\"\"\"\r\n2,3\r\n",
			wantRows: 2,
		},
		{
			name:     "blank lines ignored",
			input:    "a,b\n\n1,2\n\n\n3,4\n",
			wantRows: 2,
		},
		{
			name:    "unterminated quote at end of input",
			input:   "a,b\n1,\"never closed\n2,3\n",
			wantErr: true,
		},
		{
			name:    "empty file",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "in.csv", []byte(tt.input))
			ds, stats, err := parseCSVFile(context.Background(), path, "utf-8")
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseCSVFile() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCSVFile() error = %v", err)
			}
			if ds.NumRows() != tt.wantRows {
				t.Errorf("rows = %d, want %d", ds.NumRows(), tt.wantRows)
			}
			if stats.skipped != tt.wantSkip {
				t.Errorf("skipped = %d, want %d", stats.skipped, tt.wantSkip)
			}
			if err := ds.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestLoadCSVKeepsBareQuotes(t *testing.T) {
	path := writeFile(t, "sizes.csv", []byte("item,size\nmonitor,27\" screen\nkeyboard,full\n"))

	ds, _, err := NewLoader().Load(context.Background(), path, FormatCSV)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ds.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", ds.NumRows())
	}
	if got, want := cellStrings(ds, 0), []string{"monitor", "27\" screen"}; !reflect.DeepEqual(got, want) {
		t.Errorf("row 0 = %q, want %q", got, want)
	}
}

func TestQuoteTracker(t *testing.T) {
	tests := []struct {
		input    string
		wantOpen bool
	}{
		{"a,b\n1,2\n", false},
		{"a,\"b\"\n", false},
		{"a,27\" x\n", false},
		{"a,\"x\"\"y\"\n", false},
		{"a,\"x\"y\n", true},
		{"a,\"open\n1,2\n", true},
		{"\"closed at eof\"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q := &quoteTracker{r: strings.NewReader(tt.input)}
			if _, err := io.ReadAll(q); err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if got := q.open(); got != tt.wantOpen {
				t.Errorf("open() = %v, want %v", got, tt.wantOpen)
			}
		})
	}
}

func TestParseCSVFileEncodings(t *testing.T) {
	path := writeFile(t, "latin.csv", []byte("name\ncaf\xe9\n"))

	ds, _, err := parseCSVFile(context.Background(), path, "latin-1")
	if err != nil {
		t.Fatalf("parseCSVFile(latin-1) error = %v", err)
	}
	if got := ds.Row(0)[0].Str; got != "café" {
		t.Errorf("latin-1 value = %q, want %q", got, "café")
	}

	ds, _, err = parseCSVFile(context.Background(), path, "utf-8")
	if err != nil {
		t.Fatalf("parseCSVFile(utf-8) error = %v", err)
	}
	if got := ds.Row(0)[0].Str; got != "caf\uFFFD" {
		t.Errorf("utf-8 value = %q, want replacement character", got)
	}
}

func TestLoadCSVWithBOM(t *testing.T) {
	path := writeFile(t, "bom.csv", []byte("\xef\xbb\xbfid,value\n1,a\n"))

	ds, _, err := NewLoader().Load(context.Background(), path, FormatCSV)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := ds.ColumnNames()[0]; got != "id" {
		t.Errorf("first column = %q, want %q", got, "id")
	}
}

func TestLoadCSVUnreadable(t *testing.T) {
	path := writeFile(t, "empty.csv", nil)

	_, _, err := NewLoader().Load(context.Background(), path, FormatCSV)
	if err == nil {
		t.Fatal("Load() expected error for empty file")
	}
	if !errors.Is(err, apperror.ErrUnreadableFile) {
		t.Errorf("Load() error = %v, want UnreadableFile", err)
	}
}

func TestLoadCSVCancelled(t *testing.T) {
	path := writeFile(t, "in.csv", []byte("a\n1\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewLoader().Load(ctx, path, FormatCSV)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestHeaderNames(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want []string
	}{
		{"unique", []string{"a", "b"}, []string{"a", "b"}},
		{"duplicates", []string{"a", "a", "a"}, []string{"a", "a.1", "a.2"}},
		{"blank", []string{"a", "", " "}, []string{"a", "Unnamed: 1", "Unnamed: 2"}},
		{"suffix collision", []string{"a", "a.1", "a"}, []string{"a", "a.1", "a.2"}},
		{"bom on first", []string{"\ufeffid", "x"}, []string{"id", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := headerNames(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("headerNames(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// ============================================================================
// Excel
// ============================================================================

func TestLoadXLSXSkipsLeadingBlankRows(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"region", "units"},
		{"north", 10},
		{nil, nil},
		{"south", 7},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+4) // header on row 4
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}

	ds, info, err := NewLoader().Load(context.Background(), path, FormatXLSX)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if info.Engine != "excelize" {
		t.Errorf("engine = %q, want excelize", info.Engine)
	}
	if got, want := ds.ColumnNames(), []string{"region", "units"}; !reflect.DeepEqual(got, want) {
		t.Errorf("columns = %v, want %v", got, want)
	}
	if ds.NumRows() != 3 {
		t.Fatalf("rows = %d, want 3 (blank row inside data is kept)", ds.NumRows())
	}
	if got, want := cellStrings(ds, 0), []string{"north", "10"}; !reflect.DeepEqual(got, want) {
		t.Errorf("row 0 = %v, want %v", got, want)
	}
	if got, want := cellStrings(ds, 2), []string{"south", "7"}; !reflect.DeepEqual(got, want) {
		t.Errorf("row 2 = %v, want %v", got, want)
	}
}

func TestLoadCorruptExcel(t *testing.T) {
	for _, format := range []Format{FormatXLSX, FormatXLS, FormatXLSB} {
		t.Run(string(format), func(t *testing.T) {
			path := writeFile(t, "broken."+string(format), []byte("<html>not a workbook</html>"))
			_, _, err := NewLoader().Load(context.Background(), path, format)
			if !errors.Is(err, apperror.ErrUnreadableFile) {
				t.Errorf("Load() error = %v, want UnreadableFile", err)
			}
		})
	}
}

func TestReadXLSErrors(t *testing.T) {
	if _, err := readXLS(context.Background(), filepath.Join(t.TempDir(), "missing.xls")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("readXLS(missing) error = %v, want not exist", err)
	}

	path := writeFile(t, "broken.xls", []byte("not an ole2 container"))
	if _, err := readXLS(context.Background(), path); err == nil {
		t.Error("readXLS() expected error for a non-BIFF file")
	}
}

func TestSheetToDataset(t *testing.T) {
	blank := []Cell{{}, TextCell("  ")}
	rows := [][]Cell{
		blank,
		nil,
		{TextCell("a"), TextCell("a")},
		{TextCell("1"), TextCell("2"), TextCell("3")},
	}

	ds, err := sheetToDataset(context.Background(), rows)
	if err != nil {
		t.Fatalf("sheetToDataset() error = %v", err)
	}
	if got, want := ds.ColumnNames(), []string{"a", "a.1", "Unnamed: 2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("columns = %v, want %v", got, want)
	}

	if _, err := sheetToDataset(context.Background(), [][]Cell{blank}); !errors.Is(err, errEmptySheet) {
		t.Errorf("all-blank sheet error = %v, want errEmptySheet", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{"data.csv", FormatCSV, false},
		{"DATA.CSV", FormatCSV, false},
		{"book.xlsx", FormatXLSX, false},
		{"old.XLS", FormatXLS, false},
		{"bin.xlsb", FormatXLSB, false},
		{"notes.txt", "", true},
		{"noext", "", true},
		{"archive.csv.zip", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := ParseFormat(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperror.ErrUnsupportedFormat) {
				t.Errorf("ParseFormat(%q) error kind = %v, want UnsupportedFormat", tt.filename, apperror.KindOf(err))
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
