package httpcore

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// ErrSmallReadBuffer is returned when the request headers do not fit into
// the connection's read buffer. Increase ReadBufferSize to accept them.
var ErrSmallReadBuffer = errors.New("small read buffer: increase ReadBufferSize")

type headerKV struct {
	key   []byte
	value []byte
}

// RequestHeader holds the parsed request line and headers of a single
// HTTP/1.1 request. Only the fields the body machinery and the serving
// loop act on are interpreted; everything else is retained verbatim and
// reachable through Peek.
//
// RequestHeader instances must not be used from concurrent goroutines.
type RequestHeader struct {
	method     []byte
	requestURI []byte
	proto      []byte
	host       []byte

	contentLength   int64
	connectionClose bool
	protoHTTP11     bool
	expect100       bool

	kvs []headerKV
}

// Reset clears the header for reuse.
func (h *RequestHeader) Reset() {
	h.method = h.method[:0]
	h.requestURI = h.requestURI[:0]
	h.proto = h.proto[:0]
	h.host = h.host[:0]
	h.contentLength = lengthIdentity
	h.connectionClose = false
	h.protoHTTP11 = false
	h.expect100 = false
	h.kvs = h.kvs[:0]
}

// Method returns the request method.
func (h *RequestHeader) Method() []byte {
	if len(h.method) == 0 {
		return strGet
	}
	return h.method
}

// IsGet returns true if the request method is GET.
func (h *RequestHeader) IsGet() bool {
	return bytes.Equal(h.Method(), strGet)
}

// IsPost returns true if the request method is POST.
func (h *RequestHeader) IsPost() bool {
	return bytes.Equal(h.Method(), strPost)
}

// IsHead returns true if the request method is HEAD.
func (h *RequestHeader) IsHead() bool {
	return bytes.Equal(h.Method(), strHead)
}

// RequestURI returns the request URI.
func (h *RequestHeader) RequestURI() []byte {
	return h.requestURI
}

// Protocol returns the protocol of the request line.
func (h *RequestHeader) Protocol() []byte {
	return h.proto
}

// Host returns the Host header value.
func (h *RequestHeader) Host() []byte {
	return h.host
}

// ContentLength returns the advertised body length: the Content-Length
// value, -1 for chunked transfer encoding, or -2 when the request carries
// neither.
func (h *RequestHeader) ContentLength() int64 {
	return h.contentLength
}

// Expects100Continue returns true if the request carries
// `Expect: 100-continue`.
func (h *RequestHeader) Expects100Continue() bool {
	return h.expect100
}

// ConnectionClose returns true if the connection cannot be reused after
// this request: an explicit `Connection: close`, or HTTP/1.0 without
// `Connection: keep-alive`.
func (h *RequestHeader) ConnectionClose() bool {
	if h.connectionClose {
		return true
	}
	if h.protoHTTP11 || len(h.proto) == 0 {
		return false
	}
	return !caseInsensitiveCompare(h.Peek(b2s(strConnection)), strKeepAlive)
}

// SetConnectionClose forces the connection to be closed after this
// request.
func (h *RequestHeader) SetConnectionClose() {
	h.connectionClose = true
}

// Peek returns the value of the given header key, or nil if absent. The
// returned slice is valid until the next Read or Reset.
func (h *RequestHeader) Peek(key string) []byte {
	for i := range h.kvs {
		if caseInsensitiveCompare(h.kvs[i].key, s2b(key)) {
			return h.kvs[i].value
		}
	}
	return nil
}

// Len returns the number of headers.
func (h *RequestHeader) Len() int {
	return len(h.kvs)
}

// VisitAll calls f for each header in parse order.
func (h *RequestHeader) VisitAll(f func(key, value []byte)) {
	for i := range h.kvs {
		f(h.kvs[i].key, h.kvs[i].value)
	}
}

// Read reads and parses the next request header block from r.
//
// io.EOF is returned if r closed before any header byte arrived, which is
// how a keep-alive peer walks away between requests.
func (h *RequestHeader) Read(r *bufio.Reader) error {
	n := 1
	for {
		err := h.tryRead(r, n)
		if err == nil {
			return nil
		}
		if err != errNeedMore {
			h.Reset()
			return err
		}
		n = r.Buffered() + 1
	}
}

func (h *RequestHeader) tryRead(r *bufio.Reader, n int) error {
	h.Reset()
	b, err := r.Peek(n)
	if len(b) == 0 {
		if err == io.EOF {
			return io.EOF
		}
		if err == nil {
			panic("BUG: bufio.Reader returned (0, nil)")
		}
		return errors.Wrap(err, "error when reading request headers")
	}
	b = peekBuffered(r, b)
	headersLen, err := h.parse(b)
	if err == errNeedMore {
		if len(b) >= r.Size() {
			return ErrSmallReadBuffer
		}
		return errNeedMore
	}
	if err != nil {
		return err
	}
	if _, err := r.Discard(headersLen); err != nil {
		panic("BUG: bufio.Reader failed to discard parsed bytes")
	}
	return nil
}

// peekBuffered widens b to everything currently buffered in r so a header
// block split across reads is parsed in one piece.
func peekBuffered(r *bufio.Reader, b []byte) []byte {
	if r.Buffered() > len(b) {
		if wb, err := r.Peek(r.Buffered()); err == nil {
			return wb
		}
	}
	return b
}

// parse parses the request line and headers in buf, returning the number
// of bytes consumed.
func (h *RequestHeader) parse(buf []byte) (int, error) {
	m, err := h.parseFirstLine(buf)
	if err != nil {
		return 0, err
	}
	n, err := h.parseHeaders(buf[m:])
	if err != nil {
		return 0, err
	}
	return m + n, nil
}

func (h *RequestHeader) parseFirstLine(buf []byte) (int, error) {
	bNext := buf
	var b []byte
	var err error
	for len(b) == 0 {
		if b, bNext, err = nextLine(bNext); err != nil {
			return 0, err
		}
	}

	// Method.
	i := bytes.IndexByte(b, ' ')
	if i <= 0 {
		return 0, errors.Errorf("cannot find http request method in %q", b)
	}
	h.method = append(h.method[:0], b[:i]...)
	b = b[i+1:]

	// RequestURI and protocol.
	i = bytes.LastIndexByte(b, ' ')
	if i <= 0 {
		return 0, errors.Errorf("cannot find http request uri in %q", b)
	}
	h.requestURI = append(h.requestURI[:0], b[:i]...)
	h.proto = append(h.proto[:0], b[i+1:]...)
	h.protoHTTP11 = bytes.Equal(h.proto, strHTTP11)

	return len(buf) - len(bNext), nil
}

func (h *RequestHeader) parseHeaders(buf []byte) (int, error) {
	s := headerScanner{b: buf}
	for s.next() {
		h.onHeader(s.key, s.value)
	}
	if s.err != nil {
		return 0, s.err
	}
	return s.r, nil
}

// onHeader records one parsed header, interpreting the handful the body
// machinery depends on.
func (h *RequestHeader) onHeader(key, value []byte) {
	switch {
	case caseInsensitiveCompare(key, strHost):
		h.host = append(h.host[:0], value...)
	case caseInsensitiveCompare(key, strContentLength):
		// Chunked transfer encoding wins over Content-Length.
		if h.contentLength != lengthChunked {
			if v, err := ParseUint(value); err == nil {
				h.contentLength = v
			}
		}
	case caseInsensitiveCompare(key, strTransferEncoding):
		if caseInsensitiveCompare(value, strChunked) {
			h.contentLength = lengthChunked
		}
	case caseInsensitiveCompare(key, strConnection):
		if caseInsensitiveCompare(value, strClose) {
			h.connectionClose = true
		} else if caseInsensitiveCompare(value, strKeepAlive) {
			h.connectionClose = false
		}
	case caseInsensitiveCompare(key, strExpect):
		h.expect100 = caseInsensitiveCompare(value, str100Continue)
	}
	h.appendKV(key, value)
}

// appendKV retains the header verbatim, reusing entry storage across
// requests.
func (h *RequestHeader) appendKV(key, value []byte) {
	n := len(h.kvs)
	if cap(h.kvs) > n {
		h.kvs = h.kvs[:n+1]
	} else {
		h.kvs = append(h.kvs, headerKV{})
	}
	kv := &h.kvs[n]
	kv.key = append(kv.key[:0], key...)
	kv.value = append(kv.value[:0], value...)
}

// nextLine splits b at the first LF, returning the line without its CRLF
// and the rest.
func nextLine(b []byte) ([]byte, []byte, error) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return nil, nil, errNeedMore
	}
	line := b[:i]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, b[i+1:], nil
}
