package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/JonMunkholm/filecleaner/internal/apperror"
	"github.com/JonMunkholm/filecleaner/internal/logging"
)

// ContextCheckInterval is how many records are parsed between cancellation checks.
const ContextCheckInterval = 1000

var (
	errNoColumns         = errors.New("no columns to parse from file")
	errUnterminatedQuote = errors.New("quoted field left open at end of input")
)

// csvStats describes one successful parse attempt.
type csvStats struct {
	skipped int // records dropped as malformed
}

// loadCSV tries each candidate encoding in turn and keeps the first that parses.
func loadCSV(ctx context.Context, path string) (*Dataset, LoadInfo, error) {
	log := logging.FromContext(ctx)

	sample, err := readSample(path)
	if err != nil {
		return nil, LoadInfo{}, apperror.Wrap(apperror.UnreadableFile, "load csv", err)
	}

	detected := "none"
	if d, ok := DetectEncoding(sample); ok {
		detected = fmt.Sprintf("%s (%d%%)", d.Charset, d.Confidence)
	}

	var lastErr error
	for _, name := range ResolveEncodings(sample) {
		if err := ctx.Err(); err != nil {
			return nil, LoadInfo{}, err
		}
		ds, stats, err := parseCSVFile(ctx, path, name)
		if err == nil {
			if stats.skipped > 0 {
				log.Warn("skipped malformed csv records", "encoding", name, "skipped", stats.skipped)
			}
			log.Debug("csv decoded", "encoding", name, "detected", detected, "rows", ds.NumRows(), "columns", ds.NumCols())
			return ds, LoadInfo{Engine: "csv", Encoding: name}, nil
		}
		if ctx.Err() != nil {
			return nil, LoadInfo{}, ctx.Err()
		}
		log.Debug("csv encoding attempt failed", "encoding", name, "error", err)
		lastErr = err
	}

	return nil, LoadInfo{}, apperror.New(apperror.UnreadableFile, "load csv",
		"could not read CSV with any encoding (detected: %s): %v", detected, lastErr)
}

// parseCSVFile parses path as CSV text in the named encoding.
//
// The first record is the header. Records with more fields than the header
// are skipped, shorter ones are padded with nulls, and empty fields become
// nulls. Bare quotes are kept as literal text; a quoted field left open at
// end of input fails the attempt.
func parseCSVFile(ctx context.Context, path, encName string) (*Dataset, csvStats, error) {
	var stats csvStats

	f, err := os.Open(path)
	if err != nil {
		return nil, stats, err
	}
	defer f.Close()

	r, err := decodingReader(f, encName)
	if err != nil {
		return nil, stats, err
	}

	quotes := &quoteTracker{r: r}
	cr := csv.NewReader(quotes)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, stats, errNoColumns
	}
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	names := headerNames(header)
	ds := NewDataset(names)
	width := len(names)
	row := make([]Cell, width)

	for n := 0; ; n++ {
		if n%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}

		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, stats, err
			}
			stats.skipped++
			continue
		}

		if len(rec) > width {
			stats.skipped++
			continue
		}
		for i := range row {
			if i < len(rec) {
				row[i] = TextCell(rec[i])
			} else {
				row[i] = Cell{}
			}
		}
		if err := ds.AppendRow(row); err != nil {
			return nil, stats, err
		}
	}
	if quotes.open() {
		return nil, stats, errUnterminatedQuote
	}
	return ds, stats, nil
}

type quoteState uint8

const (
	fieldStart quoteState = iota
	inUnquoted
	inQuoted
	quoteInQuoted
)

// quoteTracker follows CSV quoting as lazily parsed text passes through, so
// a quoted field still open at end of input can be told apart from bare
// quotes, which are kept as text.
type quoteTracker struct {
	r     io.Reader
	state quoteState
}

func (q *quoteTracker) Read(p []byte) (int, error) {
	n, err := q.r.Read(p)
	for _, b := range p[:n] {
		q.step(b)
	}
	return n, err
}

func (q *quoteTracker) step(b byte) {
	switch q.state {
	case fieldStart:
		switch b {
		case '"':
			q.state = inQuoted
		case ',', '\n':
		default:
			q.state = inUnquoted
		}
	case inUnquoted:
		if b == ',' || b == '\n' {
			q.state = fieldStart
		}
	case inQuoted:
		if b == '"' {
			q.state = quoteInQuoted
		}
	case quoteInQuoted:
		switch b {
		case ',', '\n':
			q.state = fieldStart
		case '\r':
			q.state = inUnquoted
		default:
			// A doubled quote, or a lone quote kept as text.
			q.state = inQuoted
		}
	}
}

// open reports whether input ended inside a quoted field.
func (q *quoteTracker) open() bool {
	return q.state == inQuoted
}

// headerNames turns a raw header record into unique column names. Blank names
// become "Unnamed: i" and repeats get a ".n" suffix.
func headerNames(raw []string) []string {
	names := make([]string, len(raw))
	seen := make(map[string]struct{}, len(raw))
	suffix := make(map[string]int)
	for i, name := range raw {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if strings.TrimSpace(name) == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if _, dup := seen[name]; dup {
			base := name
			for {
				suffix[base]++
				name = base + "." + strconv.Itoa(suffix[base])
				if _, taken := seen[name]; !taken {
					break
				}
			}
		}
		seen[name] = struct{}{}
		names[i] = name
	}
	return names
}
