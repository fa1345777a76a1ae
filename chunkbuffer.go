package httpcore

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

var (
	chunkBufferPool sync.Pool
	chunkBytePool   bytebufferpool.Pool
)

// liveChunkHandles counts acquired but not yet finally released chunk
// handles. Tests use it to verify that every handle created while serving a
// request is released on every code path.
var liveChunkHandles int64

func liveChunks() int64 {
	return atomic.LoadInt64(&liveChunkHandles)
}

// ChunkBuffer is a reference-counted handle over body bytes backed by
// pooled memory. A handle is created with one reference; Release drops a
// reference and returns the underlying memory to the pool when the last
// one is dropped.
//
// A ChunkBuffer is either a leaf holding a contiguous byte range, or a
// composite logically concatenating child chunks without copying them.
// The composite owns its children and releases them together with itself.
type ChunkBuffer struct {
	buf   *bytebufferpool.ByteBuffer
	parts []*ChunkBuffer
	n     int
	refs  int32

	// seq distinguishes successive uses of a pooled handle, so a deferred
	// release hook can tell whether the handle it captured is still the
	// one it was registered for.
	seq uint64
}

// AcquireChunk returns an empty chunk with a single reference.
func AcquireChunk() *ChunkBuffer {
	v := chunkBufferPool.Get()
	var c *ChunkBuffer
	if v == nil {
		c = &ChunkBuffer{}
	} else {
		c = v.(*ChunkBuffer)
	}
	c.refs = 1
	c.n = 0
	c.seq++
	atomic.AddInt64(&liveChunkHandles, 1)
	return c
}

// NewChunk returns a chunk holding a copy of p.
func NewChunk(p []byte) *ChunkBuffer {
	c := AcquireChunk()
	if len(p) > 0 {
		copy(c.grow(len(p)), p)
	}
	return c
}

// composeChunks builds a composite over parts, taking ownership of every
// handle in it.
func composeChunks(parts []*ChunkBuffer) *ChunkBuffer {
	c := AcquireChunk()
	n := 0
	for _, p := range parts {
		n += p.ReadableBytes()
	}
	c.parts = append(c.parts[:0], parts...)
	c.n = n
	return c
}

// grow extends the chunk to n readable bytes and returns the writable
// slice over them. Only valid on a leaf chunk.
func (c *ChunkBuffer) grow(n int) []byte {
	if c.buf == nil {
		c.buf = chunkBytePool.Get()
	}
	if cap(c.buf.B) < n {
		c.buf.B = make([]byte, roundUpForSliceCap(n))
	}
	c.buf.B = c.buf.B[:n]
	c.n = n
	return c.buf.B
}

// ReadableBytes returns the number of body bytes the chunk holds.
// Releasing the handle does not change the returned value until the handle
// is reused, so callers may read the length either before or after the
// release that balances their reference.
func (c *ChunkBuffer) ReadableBytes() int {
	return c.n
}

// Refs returns the current reference count.
func (c *ChunkBuffer) Refs() int32 {
	return atomic.LoadInt32(&c.refs)
}

// Retain adds a reference and returns c.
func (c *ChunkBuffer) Retain() *ChunkBuffer {
	if atomic.AddInt32(&c.refs, 1) <= 1 {
		panic("BUG: ChunkBuffer.Retain on a released chunk")
	}
	return c
}

// Release drops one reference. When the last reference is dropped the
// underlying memory returns to the pool and, for a composite, all child
// chunks are released.
func (c *ChunkBuffer) Release() {
	refs := atomic.AddInt32(&c.refs, -1)
	if refs > 0 {
		return
	}
	if refs < 0 {
		panic("BUG: ChunkBuffer.Release without a matching reference")
	}
	for _, p := range c.parts {
		p.Release()
	}
	c.parts = c.parts[:0]
	if c.buf != nil {
		chunkBytePool.Put(c.buf)
		c.buf = nil
	}
	atomic.AddInt64(&liveChunkHandles, -1)
	chunkBufferPool.Put(c)
}

// Bytes returns the chunk contents as a contiguous slice. For a composite
// the children are flattened into the chunk's own storage on first call.
// The slice is valid until the handle is released.
func (c *ChunkBuffer) Bytes() []byte {
	if len(c.parts) == 0 {
		if c.buf == nil {
			return nil
		}
		return c.buf.B[:c.n]
	}
	if c.buf == nil {
		c.buf = chunkBytePool.Get()
	}
	if len(c.buf.B) != c.n {
		if cap(c.buf.B) < c.n {
			c.buf.B = make([]byte, 0, roundUpForSliceCap(c.n))
		}
		c.buf.B = c.buf.B[:0]
		for _, p := range c.parts {
			c.buf.B = append(c.buf.B, p.Bytes()...)
		}
	}
	return c.buf.B
}

// AppendTo appends the chunk contents to dst without flattening.
func (c *ChunkBuffer) AppendTo(dst []byte) []byte {
	if len(c.parts) == 0 {
		if c.buf != nil {
			dst = append(dst, c.buf.B[:c.n]...)
		}
		return dst
	}
	for _, p := range c.parts {
		dst = p.AppendTo(dst)
	}
	return dst
}

// WriteTo writes the chunk contents to w without flattening.
func (c *ChunkBuffer) WriteTo(w io.Writer) (int64, error) {
	if len(c.parts) == 0 {
		if c.buf == nil {
			return 0, nil
		}
		n, err := w.Write(c.buf.B[:c.n])
		return int64(n), err
	}
	var total int64
	for _, p := range c.parts {
		n, err := p.WriteTo(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// chunkList is the ordered list of chunks a request body holds before a
// reader consumes them.
type chunkList struct {
	items []*ChunkBuffer
}

func (l *chunkList) append(c *ChunkBuffer) {
	l.items = append(l.items, c)
}

func (l *chunkList) len() int {
	return len(l.items)
}

// popFirst removes and returns the first chunk. The caller takes over its
// reference.
func (l *chunkList) popFirst() *ChunkBuffer {
	c := l.items[0]
	n := copy(l.items, l.items[1:])
	l.items[n] = nil
	l.items = l.items[:n]
	return c
}

// detach hands all held chunks to the caller and empties the list.
func (l *chunkList) detach() []*ChunkBuffer {
	items := l.items
	l.items = nil
	return items
}

// releaseAll releases every held chunk and empties the list.
func (l *chunkList) releaseAll() {
	for i, c := range l.items {
		c.Release()
		l.items[i] = nil
	}
	l.items = l.items[:0]
}
