package httpcore

import (
	"sync"
)

// BodyState is the lifecycle state of a RequestBody.
type BodyState int32

const (
	// StateUnread means no reader has been attached yet.
	StateUnread BodyState = iota

	// StateReading means a reader is attached and chunks are being consumed.
	StateReading

	// StateRead means the body was fully consumed.
	StateRead

	// StateDiscarded means the body was thrown away after a cancellation or
	// a failed read.
	StateDiscarded

	// StateTooLarge means the body breached the configured ceiling.
	StateTooLarge
)

func (s BodyState) String() string {
	switch s {
	case StateUnread:
		return "unread"
	case StateReading:
		return "reading"
	case StateRead:
		return "read"
	case StateDiscarded:
		return "discarded"
	case StateTooLarge:
		return "too-large"
	}
	return "unknown"
}

// terminal reports whether chunks arriving in this state are dropped on the
// floor.
func (s BodyState) terminal() bool {
	return s == StateRead || s == StateDiscarded || s == StateTooLarge
}

// bodyListener receives body events while a reader is attached. At most one
// listener is installed at a time; the three implementations back the
// one-shot reader, the streaming reader and the drainer.
type bodyListener interface {
	// onContent consumes one chunk, taking over its reference.
	onContent(c *ChunkBuffer, last bool)

	// onEarlyClose is called when the connection closed before the terminal
	// chunk arrived.
	onEarlyClose(err error)

	// onFailure is called for internal failures, such as a failed
	// 100-continue write, after the body has been discarded.
	onFailure(err error)
}

// ExecContext is the per-request execution context a body is bound to.
// Hooks registered with OnComplete run after the request handler returns;
// the one-shot reader uses one to release a composed buffer the handler
// forgot to release, and the streaming reader uses one to cancel a stream
// the handler abandoned.
type ExecContext interface {
	OnComplete(fn func())
}

// RequestBody accumulates the inbound body of a single HTTP/1.1 request
// and exposes it to the application exactly once, either fully buffered
// (Read), as a back-pressured stream (ReadStream), or discarded (Drain).
//
// The transport pushes chunks in with Add and reports closure with
// CloseInbound. All methods must be called from the connection's serving
// goroutine; RequestBody performs no locking of its own.
type RequestBody struct {
	ch   Channel
	hdr  *RequestHeader
	exec ExecContext

	advertisedLength int64
	maxContentLength int64
	receivedLength   int64

	received     chunkList
	receivedLast bool
	earlyClose   bool
	closeErr     error

	continueSent bool

	state    BodyState
	listener bodyListener
}

var requestBodyPool sync.Pool

// AcquireRequestBody returns a body for a single request over ch, framed
// according to h. Release it with ReleaseRequestBody when the exchange
// completes.
func AcquireRequestBody(ch Channel, h *RequestHeader, maxContentLength int64) *RequestBody {
	v := requestBodyPool.Get()
	var b *RequestBody
	if v == nil {
		b = &RequestBody{}
	} else {
		b = v.(*RequestBody)
	}
	b.ch = ch
	b.hdr = h
	b.advertisedLength = h.ContentLength()
	b.maxContentLength = maxContentLength
	return b
}

// ReleaseRequestBody releases every chunk the body still holds and returns
// it to the pool.
func ReleaseRequestBody(b *RequestBody) {
	b.received.releaseAll()
	b.ch = nil
	b.hdr = nil
	b.exec = nil
	b.advertisedLength = 0
	b.maxContentLength = 0
	b.receivedLength = 0
	b.receivedLast = false
	b.earlyClose = false
	b.closeErr = nil
	b.continueSent = false
	b.state = StateUnread
	b.listener = nil
	requestBodyPool.Put(b)
}

// BindExec binds the body to the request's execution context. Must be set
// before a reader is attached for deferred buffer release to take effect.
func (b *RequestBody) BindExec(e ExecContext) {
	b.exec = e
}

// State returns the current lifecycle state.
func (b *RequestBody) State() BodyState {
	return b.state
}

// ContentLength returns the advertised body length: the Content-Length
// header value, -1 for chunked transfer encoding, -2 when the request
// carries neither.
func (b *RequestBody) ContentLength() int64 {
	return b.advertisedLength
}

// ReceivedLength returns the number of readable body bytes held or already
// handed to a consumer.
func (b *RequestBody) ReceivedLength() int64 {
	return b.receivedLength
}

// MaxContentLength returns the body size ceiling. Values <= 0 mean
// unlimited.
func (b *RequestBody) MaxContentLength() int64 {
	return b.maxContentLength
}

// SetMaxContentLength overrides the body size ceiling for this request.
// Values <= 0 mean unlimited.
func (b *RequestBody) SetMaxContentLength(n int64) {
	b.maxContentLength = n
}

func (b *RequestBody) exceeds(n int64) bool {
	return b.maxContentLength > 0 && n > 0 && n > b.maxContentLength
}

func (b *RequestBody) expectsContinue() bool {
	return b.hdr != nil && b.hdr.Expects100Continue()
}

// Add ingests one chunk from the transport, taking over its reference.
// Chunks arriving in a terminal state are released immediately.
func (b *RequestBody) Add(c *ChunkBuffer, last bool) {
	if b.state.terminal() {
		c.Release()
		return
	}
	if last {
		b.receivedLast = true
	}
	if b.listener != nil {
		b.listener.onContent(c, last)
		return
	}
	if c.ReadableBytes() > 0 {
		b.receivedLength += int64(c.ReadableBytes())
		b.received.append(c)
	} else {
		c.Release()
	}
}

// CloseInbound tells the body that the connection closed. If the terminal
// chunk already arrived this is a no-op. For a close-delimited body the
// closure is the terminal marker; otherwise the active reader fails with
// ErrConnectionClosed, or the closure is remembered for the next reader.
func (b *RequestBody) CloseInbound(reason error) {
	if b.receivedLast || b.state.terminal() {
		return
	}
	if b.advertisedLength == lengthIdentity {
		b.Add(AcquireChunk(), true)
		return
	}
	err := reason
	switch {
	case err == nil || errIsEOF(err):
		err = connClosedError(nil)
	case isBrokenChunk(err):
		// Protocol errors surface verbatim so callers can tell a
		// malformed body from a dropped connection.
	default:
		err = connClosedError(err)
	}
	if l := b.listener; l != nil {
		l.onEarlyClose(err)
		return
	}
	b.earlyClose = true
	b.closeErr = err
}

// discard releases every held chunk and marks the body discarded. Callers
// on the too-large path overwrite the state with StateTooLarge afterwards.
func (b *RequestBody) discard() {
	b.received.releaseAll()
	b.state = StateDiscarded
}

// composeReceived hands the held chunks to the caller as a single buffer:
// the empty chunk when nothing was held, the sole held chunk unchanged, or
// a composite over all of them.
func (b *RequestBody) composeReceived() *ChunkBuffer {
	switch b.received.len() {
	case 0:
		return AcquireChunk()
	case 1:
		return b.received.popFirst()
	default:
		return composeChunks(b.received.detach())
	}
}

// deliverComposed completes a one-shot read with buf. If an execution
// context is bound, a completion hook releases the buffer after the
// handler returns unless the handler already did.
func (b *RequestBody) deliverComposed(done func(*ChunkBuffer, error), buf *ChunkBuffer) {
	exec := b.exec
	seq := buf.seq
	done(buf, nil)
	if exec != nil {
		exec.OnComplete(func() {
			if buf.seq == seq && buf.Refs() > 0 {
				buf.Release()
			}
		})
	}
}

// pumpFailed routes an internal failure, such as a failed continue-preface
// write, to the active listener after discarding the body.
func (b *RequestBody) pumpFailed(err error) {
	l := b.listener
	b.listener = nil
	b.discard()
	if l != nil {
		l.onFailure(err)
	}
}
