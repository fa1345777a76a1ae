package httpcore

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// Advertised body length sentinels, matching RequestHeader.ContentLength.
const (
	lengthChunked  = -1
	lengthIdentity = -2
)

// maxBodyChunkSize caps how many body bytes a single chunk carries off the
// wire.
const maxBodyChunkSize = 8192

// bodyFramer turns the raw body bytes behind a request header into a
// sequence of chunks with a terminal marker, for the three framings
// HTTP/1.1 allows: fixed Content-Length, chunked transfer encoding, and
// no body at all.
type bodyFramer struct {
	br *bufio.Reader

	contentLength int64
	remaining     int64
	chunkLeft     int
	finished      bool
}

func (f *bodyFramer) init(br *bufio.Reader, contentLength int64) {
	f.br = br
	f.contentLength = contentLength
	f.remaining = contentLength
	f.chunkLeft = 0
	f.finished = false
}

// next reads one chunk off the wire. The returned chunk carries a single
// reference owned by the caller; last is true on the terminal chunk, which
// may carry zero bytes.
func (f *bodyFramer) next() (*ChunkBuffer, bool, error) {
	if f.finished {
		return nil, false, io.EOF
	}
	switch {
	case f.contentLength > 0:
		return f.nextFixed()
	case f.contentLength == lengthChunked:
		return f.nextChunked()
	default:
		// Content-Length: 0, or neither Content-Length nor chunked: the
		// request has no body.
		f.finished = true
		return AcquireChunk(), true, nil
	}
}

func (f *bodyFramer) nextFixed() (*ChunkBuffer, bool, error) {
	n := f.remaining
	if n > maxBodyChunkSize {
		n = maxBodyChunkSize
	}
	c := AcquireChunk()
	if _, err := io.ReadFull(f.br, c.grow(int(n))); err != nil {
		c.Release()
		f.finished = true
		return nil, false, err
	}
	f.remaining -= n
	last := f.remaining == 0
	f.finished = last
	return c, last, nil
}

func (f *bodyFramer) nextChunked() (*ChunkBuffer, bool, error) {
	if f.chunkLeft == 0 {
		size, err := parseChunkSize(f.br)
		if err != nil {
			f.finished = true
			return nil, false, err
		}
		if size == 0 {
			if err := readCrLf(f.br); err != nil {
				f.finished = true
				return nil, false, err
			}
			f.finished = true
			return AcquireChunk(), true, nil
		}
		f.chunkLeft = size
	}
	n := f.chunkLeft
	if n > maxBodyChunkSize {
		n = maxBodyChunkSize
	}
	c := AcquireChunk()
	if _, err := io.ReadFull(f.br, c.grow(n)); err != nil {
		c.Release()
		f.finished = true
		return nil, false, err
	}
	f.chunkLeft -= n
	if f.chunkLeft == 0 {
		if err := readCrLf(f.br); err != nil {
			c.Release()
			f.finished = true
			return nil, false, err
		}
	}
	return c, false, nil
}

// parseChunkSize reads a chunk-size line, skipping any chunk extension
// between the size and the terminating CRLF.
func parseChunkSize(r *bufio.Reader) (int, error) {
	n, err := readHexInt(r)
	if err != nil {
		return -1, ErrBrokenChunk{errors.Wrap(err, "cannot read chunk size")}
	}
	for {
		c, err := r.ReadByte()
		if err != nil {
			return -1, ErrBrokenChunk{errors.Wrap(err, "cannot read '\\r' after chunk size")}
		}
		if c == '\r' {
			break
		}
	}
	c, err := r.ReadByte()
	if err != nil {
		return -1, ErrBrokenChunk{errors.Wrap(err, "cannot read '\\n' after chunk size")}
	}
	if c != '\n' {
		return -1, ErrBrokenChunk{errors.Errorf("expected '\\n' after chunk size, got %q", c)}
	}
	return n, nil
}

// readCrLf consumes the CRLF terminating a chunk's data.
func readCrLf(r *bufio.Reader) error {
	for _, exp := range strCRLF {
		c, err := r.ReadByte()
		if err != nil {
			return ErrBrokenChunk{errors.Wrap(err, "cannot read crlf at the end of chunk")}
		}
		if c != exp {
			return ErrBrokenChunk{errors.Errorf("expected %q at the end of chunk, got %q", exp, c)}
		}
	}
	return nil
}
