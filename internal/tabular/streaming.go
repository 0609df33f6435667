package tabular

// streaming.go provides the readers that sit between a staged file and the
// CSV parser. Files are never loaded whole for decoding:
//
//   - NewBOMSkippingReader: drops a leading UTF-8 BOM (0xEF 0xBB 0xBF)
//   - UTF8Sanitizer: replaces invalid UTF-8 with U+FFFD as it streams
//   - decodingReader: picks the right chain for a candidate encoding name

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NewBOMSkippingReader returns a reader that skips the UTF-8 BOM if present.
func NewBOMSkippingReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer wraps an io.Reader and replaces each invalid UTF-8 byte with
// the replacement character. Multi-byte sequences split across reads are
// carried over to the next read.
type UTF8Sanitizer struct {
	reader  io.Reader
	buf     []byte
	pending []byte // incomplete trailing sequence from the last chunk
	out     []byte // sanitized bytes not yet returned
	err     error
}

// NewUTF8Sanitizer creates a streaming sanitizer.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{
		reader: r,
		buf:    make([]byte, 32*1024),
	}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 && s.err == nil {
		s.fill()
	}
	if len(s.out) == 0 {
		return 0, s.err
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *UTF8Sanitizer) fill() {
	n, err := s.reader.Read(s.buf)
	chunk := s.buf[:n]
	if len(s.pending) > 0 {
		chunk = append(s.pending, chunk...)
		s.pending = nil
	}
	atEOF := err != nil

	// Fast path: ASCII needs no work.
	if isAllASCII(chunk) {
		s.out = append(s.out[:0], chunk...)
		s.err = err
		return
	}

	out := s.out[:0]
	for i := 0; i < len(chunk); {
		if chunk[i] < utf8.RuneSelf {
			out = append(out, chunk[i])
			i++
			continue
		}
		if !atEOF && !utf8.FullRune(chunk[i:]) {
			s.pending = append([]byte(nil), chunk[i:]...)
			break
		}
		r, size := utf8.DecodeRune(chunk[i:])
		if r == utf8.RuneError && size == 1 {
			out = utf8.AppendRune(out, utf8.RuneError)
		} else {
			out = append(out, chunk[i:i+size]...)
		}
		i += size
	}
	s.out = out
	s.err = err
}

func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// decodingReader wraps r so that it yields UTF-8 text decoded from the named
// encoding, substituting U+FFFD for undecodable input.
func decodingReader(r io.Reader, name string) (io.Reader, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return NewUTF8Sanitizer(NewBOMSkippingReader(r)), nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
