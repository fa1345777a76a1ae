package httpcore

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func newFramer(body string, contentLength int64) *bodyFramer {
	f := &bodyFramer{}
	f.init(bufio.NewReader(bytes.NewBufferString(body)), contentLength)
	return f
}

// collect drains the framer, returning concatenated payload bytes.
func collectFramer(t *testing.T, f *bodyFramer) []byte {
	t.Helper()
	var out []byte
	for {
		c, last, err := f.next()
		require.NoError(t, err)
		out = c.AppendTo(out)
		c.Release()
		if last {
			return out
		}
	}
}

func TestFramerFixedLength(t *testing.T) {
	f := newFramer("hello world", 11)
	out := collectFramer(t, f)
	require.Equal(t, "hello world", string(out))

	_, _, err := f.next()
	require.Equal(t, io.EOF, err)
}

func TestFramerFixedLengthSplitsLargeBodies(t *testing.T) {
	body := bytes.Repeat([]byte("x"), maxBodyChunkSize+100)
	f := newFramer(string(body), int64(len(body)))

	c, last, err := f.next()
	require.NoError(t, err)
	require.False(t, last)
	require.Equal(t, maxBodyChunkSize, c.ReadableBytes())
	c.Release()

	c, last, err = f.next()
	require.NoError(t, err)
	require.True(t, last)
	require.Equal(t, 100, c.ReadableBytes())
	c.Release()
}

func TestFramerZeroContentLength(t *testing.T) {
	f := newFramer("", 0)
	c, last, err := f.next()
	require.NoError(t, err)
	require.True(t, last)
	require.Equal(t, 0, c.ReadableBytes())
	c.Release()
}

func TestFramerNoBody(t *testing.T) {
	f := newFramer("leftover", lengthIdentity)
	c, last, err := f.next()
	require.NoError(t, err)
	require.True(t, last)
	require.Equal(t, 0, c.ReadableBytes())
	c.Release()
}

func TestFramerChunked(t *testing.T) {
	f := newFramer("3\r\nfoo\r\n8\r\nbarbazqu\r\n0\r\n\r\n", lengthChunked)
	out := collectFramer(t, f)
	require.Equal(t, "foobarbazqu", string(out))
}

func TestFramerChunkedWithExtension(t *testing.T) {
	f := newFramer("3;name=value\r\nfoo\r\n0\r\n\r\n", lengthChunked)
	out := collectFramer(t, f)
	require.Equal(t, "foo", string(out))
}

func TestFramerChunkedUppercaseHex(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 0x1A)
	var raw bytes.Buffer
	raw.WriteString("1A\r\n")
	raw.Write(payload)
	raw.WriteString("\r\n0\r\n\r\n")
	f := newFramer(raw.String(), lengthChunked)
	out := collectFramer(t, f)
	require.Equal(t, payload, out)
}

func TestFramerBrokenChunkMissingCRLF(t *testing.T) {
	f := newFramer("3\r\nfooXX0\r\n\r\n", lengthChunked)
	c, last, err := f.next()
	require.Nil(t, c)
	require.False(t, last)
	require.Error(t, err)
	require.True(t, isBrokenChunk(err))
}

func TestFramerBrokenChunkBadSize(t *testing.T) {
	f := newFramer("zz\r\nfoo\r\n", lengthChunked)
	_, _, err := f.next()
	require.Error(t, err)
	require.True(t, isBrokenChunk(err))
}

func TestFramerFixedLengthTruncatedBody(t *testing.T) {
	f := newFramer("abc", 10)
	c, _, err := f.next()
	require.Nil(t, c)
	require.Error(t, err)
}

func TestParseChunkSize(t *testing.T) {
	r := bufio.NewReader(bytes.NewBufferString("ff\r\n"))
	n, err := parseChunkSize(r)
	require.NoError(t, err)
	require.Equal(t, 0xff, n)

	r = bufio.NewReader(bytes.NewBufferString("0\r\n"))
	n, err = parseChunkSize(r)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	r = bufio.NewReader(bytes.NewBufferString("5\rX"))
	_, err = parseChunkSize(r)
	require.Error(t, err)
}

func TestReadHexInt(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int
	}{
		{"0", 0},
		{"f", 15},
		{"00ff", 255},
		{"1234", 0x1234},
		{"deadBEEF;", 0xdeadbeef},
	} {
		r := bufio.NewReader(bytes.NewBufferString(tc.in))
		n, err := readHexInt(r)
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, n, "input %q", tc.in)
	}

	r := bufio.NewReader(bytes.NewBufferString("q"))
	_, err := readHexInt(r)
	require.Error(t, err)
}

func TestParseUint(t *testing.T) {
	n, err := ParseUint([]byte("1234"))
	require.NoError(t, err)
	require.EqualValues(t, 1234, n)

	_, err = ParseUint([]byte(""))
	require.Error(t, err)
	_, err = ParseUint([]byte("12a"))
	require.Error(t, err)
	_, err = ParseUint([]byte("-5"))
	require.Error(t, err)
}

func TestAppendUint(t *testing.T) {
	require.Equal(t, "0", string(AppendUint(nil, 0)))
	require.Equal(t, "12345", string(AppendUint(nil, 12345)))
	require.Equal(t, "x9", string(AppendUint([]byte("x"), 9)))
}
