package tabular

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

const (
	// SampleSize is how much of a file the detector looks at.
	SampleSize = 100 * 1024

	// MinDetectConfidence is the detector confidence (0-100) a guess must
	// reach to be tried before the fixed fallbacks.
	MinDetectConfidence = 30
)

// FallbackEncodings are tried, in order, after the detector's guess.
var FallbackEncodings = []string{"utf-8", "latin-1", "iso-8859-1", "cp1252", "windows-1252", "utf-16"}

// Detection is the detector's best guess for a sample.
type Detection struct {
	Charset    string
	Confidence int
}

// DetectEncoding runs the charset detector over the first SampleSize bytes.
// ok is false when the sample is empty or nothing could be guessed.
func DetectEncoding(sample []byte) (d Detection, ok bool) {
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}
	if len(sample) == 0 {
		return Detection{}, false
	}
	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil || res.Charset == "" {
		return Detection{}, false
	}
	return Detection{Charset: strings.ToLower(res.Charset), Confidence: res.Confidence}, true
}

// ResolveEncodings returns the ordered, de-duplicated list of encodings to try
// for sample. The list is never empty.
func ResolveEncodings(sample []byte) []string {
	d, ok := DetectEncoding(sample)
	return candidateEncodings(d, ok)
}

// candidateEncodings puts a confident detection ahead of the fallbacks.
func candidateEncodings(d Detection, detected bool) []string {
	candidates := make([]string, 0, len(FallbackEncodings)+1)
	if detected && d.Confidence >= MinDetectConfidence {
		candidates = append(candidates, d.Charset)
	}
	candidates = append(candidates, FallbackEncodings...)

	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// readSample reads up to SampleSize bytes from the start of path.
func readSample(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, SampleSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:n], nil
}

// lookupEncoding resolves a candidate name to a decoder. A nil encoding with a
// nil error means UTF-8, which is handled by the streaming sanitizer.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "utf-8", "utf8", "ascii", "us-ascii":
		return nil, nil
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1", "l1":
		return charmap.ISO8859_1, nil
	case "cp1252", "windows-1252":
		return charmap.Windows1252, nil
	case "utf-16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	}

	for _, alias := range []string{name, strings.ReplaceAll(name, "-", "")} {
		enc, err := ianaindex.IANA.Encoding(alias)
		if err == nil && enc != nil {
			return enc, nil
		}
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}
