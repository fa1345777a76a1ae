package httpcore

import (
	"bufio"
	"io"
	"time"
	"unsafe"

	"github.com/pkg/errors"
)

// b2s converts a byte slice to a string without memory allocation.
func b2s(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// s2b converts a string to a byte slice without memory allocation.
func s2b(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// AppendUint appends n to dst and returns the extended buffer.
func AppendUint(dst []byte, n int64) []byte {
	if n < 0 {
		panic("BUG: int must be positive")
	}

	var b [20]byte
	i := len(b)
	for {
		i--
		b[i] = '0' + byte(n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return append(dst, b[i:]...)
}

var (
	errEmptyInt       = errors.New("empty integer")
	errUnexpectedChar = errors.New("unexpected char found")
	errTooLongInt     = errors.New("too long int")
	errEmptyHexNum    = errors.New("empty hex number")
	errTooLargeHexNum = errors.New("too large hex number")
)

const maxIntChars = 18

// ParseUint parses buf as a positive decimal integer.
func ParseUint(buf []byte) (int64, error) {
	v, n, err := parseUintBuf(buf)
	if n != len(buf) {
		return -1, errUnexpectedChar
	}
	return v, err
}

func parseUintBuf(b []byte) (int64, int, error) {
	n := len(b)
	if n == 0 {
		return -1, 0, errEmptyInt
	}
	var v int64
	for i := 0; i < n; i++ {
		c := b[i]
		k := c - '0'
		if k > 9 {
			if i == 0 {
				return -1, i, errUnexpectedChar
			}
			return v, i, nil
		}
		if i >= maxIntChars {
			return -1, i, errTooLongInt
		}
		v = 10*v + int64(k)
	}
	return v, n, nil
}

const maxHexIntChars = 15

// readHexInt reads a positive hex integer from r, leaving the first
// non-hex byte unread.
func readHexInt(r *bufio.Reader) (int, error) {
	n := 0
	i := 0
	for {
		c, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && i > 0 {
				return n, nil
			}
			return -1, err
		}
		k := hexDigit(c)
		if k < 0 {
			if i == 0 {
				return -1, errEmptyHexNum
			}
			if err := r.UnreadByte(); err != nil {
				return -1, err
			}
			return n, nil
		}
		if i >= maxHexIntChars {
			return -1, errTooLargeHexNum
		}
		n = (n << 4) | k
		i++
	}
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// caseInsensitiveCompare reports whether a and b are equal ignoring ASCII
// case.
func caseInsensitiveCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if a[i]|0x20 != b[i]|0x20 {
			return false
		}
	}
	return true
}

// AppendHTTPDate appends date formatted per RFC 1123, always in GMT.
func AppendHTTPDate(dst []byte, date time.Time) []byte {
	return date.In(time.UTC).AppendFormat(dst, "Mon, 02 Jan 2006 15:04:05 GMT")
}
