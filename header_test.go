package httpcore

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func parseRequestHeader(t *testing.T, s string) *RequestHeader {
	t.Helper()
	h := &RequestHeader{}
	br := bufio.NewReader(bytes.NewBufferString(s))
	require.NoError(t, h.Read(br))
	return h
}

func TestRequestHeaderParseBasic(t *testing.T) {
	h := parseRequestHeader(t, "GET /foo/bar?baz HTTP/1.1\r\nHost: example.com\r\nUser-Agent: test\r\n\r\n")
	require.Equal(t, "GET", string(h.Method()))
	require.Equal(t, "/foo/bar?baz", string(h.RequestURI()))
	require.Equal(t, "HTTP/1.1", string(h.Protocol()))
	require.Equal(t, "example.com", string(h.Host()))
	require.EqualValues(t, lengthIdentity, h.ContentLength())
	require.False(t, h.ConnectionClose())
	require.False(t, h.Expects100Continue())
	require.Equal(t, "test", string(h.Peek("user-agent")))
	require.Nil(t, h.Peek("x-missing"))
	require.Equal(t, 2, h.Len())
}

func TestRequestHeaderParseContentLength(t *testing.T) {
	h := parseRequestHeader(t, "POST /up HTTP/1.1\r\nHost: a\r\nContent-Length: 1234\r\n\r\n")
	require.True(t, h.IsPost())
	require.EqualValues(t, 1234, h.ContentLength())
}

func TestRequestHeaderParseChunked(t *testing.T) {
	h := parseRequestHeader(t, "POST /up HTTP/1.1\r\nTransfer-Encoding: chunked\r\nContent-Length: 10\r\n\r\n")
	require.EqualValues(t, lengthChunked, h.ContentLength())

	// Chunked wins regardless of header order.
	h = parseRequestHeader(t, "POST /up HTTP/1.1\r\nContent-Length: 10\r\nTransfer-Encoding: chunked\r\n\r\n")
	require.EqualValues(t, lengthChunked, h.ContentLength())
}

func TestRequestHeaderParseExpectContinue(t *testing.T) {
	h := parseRequestHeader(t, "POST /up HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 5\r\n\r\n")
	require.True(t, h.Expects100Continue())

	h = parseRequestHeader(t, "POST /up HTTP/1.1\r\nExpect: 100-Continue\r\nContent-Length: 5\r\n\r\n")
	require.True(t, h.Expects100Continue())

	h = parseRequestHeader(t, "POST /up HTTP/1.1\r\nExpect: something-else\r\nContent-Length: 5\r\n\r\n")
	require.False(t, h.Expects100Continue())
}

func TestRequestHeaderConnectionClose(t *testing.T) {
	h := parseRequestHeader(t, "GET / HTTP/1.1\r\nConnection: close\r\n\r\n")
	require.True(t, h.ConnectionClose())

	h = parseRequestHeader(t, "GET / HTTP/1.1\r\n\r\n")
	require.False(t, h.ConnectionClose())

	// HTTP/1.0 closes by default...
	h = parseRequestHeader(t, "GET / HTTP/1.0\r\n\r\n")
	require.True(t, h.ConnectionClose())

	// ...unless keep-alive is requested.
	h = parseRequestHeader(t, "GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	require.False(t, h.ConnectionClose())
}

func TestRequestHeaderReadSplitAcrossReads(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte("POST /up HT"))
		pw.Write([]byte("TP/1.1\r\nContent-Le"))
		pw.Write([]byte("ngth: 7\r\nHost: example.com\r\n\r\nrest"))
	}()
	h := &RequestHeader{}
	br := bufio.NewReader(pr)
	require.NoError(t, h.Read(br))
	require.EqualValues(t, 7, h.ContentLength())
	require.Equal(t, "example.com", string(h.Host()))

	// The body bytes stay in the reader.
	rest := make([]byte, 4)
	_, err := io.ReadFull(br, rest)
	require.NoError(t, err)
	require.Equal(t, "rest", string(rest))
	pw.Close()
}

func TestRequestHeaderReadEOF(t *testing.T) {
	h := &RequestHeader{}
	br := bufio.NewReader(bytes.NewBuffer(nil))
	require.Equal(t, io.EOF, h.Read(br))
}

func TestRequestHeaderTooBigForBuffer(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 200)
	raw := append([]byte("GET / HTTP/1.1\r\nX-Big: "), big...)
	raw = append(raw, "\r\n\r\n"...)
	h := &RequestHeader{}
	br := bufio.NewReaderSize(bytes.NewBuffer(raw), 64)
	require.Equal(t, ErrSmallReadBuffer, h.Read(br))
}

func TestRequestHeaderMalformed(t *testing.T) {
	for _, s := range []string{
		"GET\r\n\r\n",
		"GET /\r\n\r\n",
		"GET / HTTP/1.1\r\nNoColonHere\r\n\r\n",
		"GET / HTTP/1.1\r\nBad Key: v\r\n\r\n",
	} {
		h := &RequestHeader{}
		br := bufio.NewReader(bytes.NewBufferString(s))
		require.Error(t, h.Read(br), "input %q", s)
	}
}

func TestRequestHeaderReset(t *testing.T) {
	h := parseRequestHeader(t, "POST /up HTTP/1.1\r\nContent-Length: 5\r\nExpect: 100-continue\r\n\r\n")
	h.Reset()
	require.EqualValues(t, lengthIdentity, h.ContentLength())
	require.False(t, h.Expects100Continue())
	require.Equal(t, 0, h.Len())
}

func TestRequestHeaderVisitAll(t *testing.T) {
	h := parseRequestHeader(t, "GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\n\r\n")
	var keys []string
	h.VisitAll(func(key, value []byte) {
		keys = append(keys, string(key)+"="+string(value))
	})
	require.Equal(t, []string{"A=1", "B=2"}, keys)
}
