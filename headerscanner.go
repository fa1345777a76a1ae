package httpcore

import (
	"bytes"

	"github.com/pkg/errors"
)

var errNeedMore = errors.New("need more data: cannot find trailing crlf")

// headerScanner iterates over the key/value lines of a header block that
// ends with an empty line. key and value are sub-slices of the scanned
// block and stay valid only until the block's backing buffer is reused.
type headerScanner struct {
	b []byte
	r int

	key   []byte
	value []byte

	initialized bool
	err         error
}

func (s *headerScanner) next() bool {
	if !s.initialized {
		if bytes.HasPrefix(s.b, strCRLF) {
			s.r = 2
			return false
		}

		i := bytes.Index(s.b, strCRLFCRLF)
		if i < 0 {
			s.err = errNeedMore
			return false
		}
		s.b = s.b[:i+4]
		if s.b[0] == ' ' || s.b[0] == '\t' {
			s.err = errors.New("invalid headers: cannot start with space or tab")
			return false
		}
		s.initialized = true
	}

	kv, err := s.readContinuedLine()
	if len(kv) == 0 {
		s.err = err
		return false
	}

	// Key ends at the first colon.
	k, v, ok := bytes.Cut(kv, strColon)
	if !ok || !isValidHeaderKey(k) {
		s.err = errors.Errorf("malformed header line: %q", kv)
		return false
	}

	s.key = k
	s.value = bytes.TrimLeft(v, " \t")
	s.err = err
	return s.err == nil
}

// readLine returns the next line without its trailing CRLF or LF.
func (s *headerScanner) readLine() []byte {
	i := bytes.IndexByte(s.b[s.r:], '\n')
	if i < 0 {
		return nil
	}
	line := s.b[s.r : s.r+i]
	s.r += i + 1
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// readContinuedLine reads one logical header line, folding obs-fold
// continuation lines that start with a space or tab.
func (s *headerScanner) readContinuedLine() ([]byte, error) {
	line := s.readLine()
	if len(line) == 0 {
		return nil, nil
	}
	if bytes.IndexByte(line, ':') < 0 {
		return nil, errors.Errorf("malformed header: missing colon in %q", line)
	}

	if !s.continues() {
		return trimHeaderBytes(line), nil
	}

	folded := append([]byte(nil), trimHeaderBytes(line)...)
	for s.skipSpace() {
		folded = append(folded, ' ')
		folded = append(folded, trimHeaderBytes(s.readLine())...)
	}
	return folded, nil
}

func (s *headerScanner) continues() bool {
	if s.r >= len(s.b) {
		return false
	}
	c := s.b[s.r]
	return c == ' ' || c == '\t'
}

func (s *headerScanner) skipSpace() bool {
	skipped := false
	for s.r < len(s.b) {
		c := s.b[s.r]
		if c != ' ' && c != '\t' {
			break
		}
		s.r++
		skipped = true
	}
	return skipped
}

func isValidHeaderKey(k []byte) bool {
	if len(k) == 0 {
		return false
	}
	for _, c := range k {
		if !validHeaderFieldByte(c) {
			return false
		}
	}
	return true
}

// validHeaderFieldByte reports whether c may appear in a header field
// name, per the token definition of RFC 7230.
func validHeaderFieldByte(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// trimHeaderBytes returns b with leading and trailing spaces and tabs
// removed.
func trimHeaderBytes(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	n := len(b)
	for n > i && (b[n-1] == ' ' || b[n-1] == '\t') {
		n--
	}
	return b[i:n]
}
