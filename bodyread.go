package httpcore

// TooLargeHandler is the caller-supplied action the one-shot reader runs
// when the body breaches the ceiling, typically to emit a 413 response.
// Pass nil to have Read fail with *TooLargeError instead. A non-nil error
// return propagates to the read callback unchanged.
type TooLargeHandler func(observed int64) error

// Read buffers the whole body and delivers it as a single composed buffer
// through done, preserving chunk arrival order byte for byte.
//
// done is invoked exactly once, from this call when a fast path applies or
// from a later Add/CloseInbound otherwise. On success the buffer is owned
// by the caller; if the body is bound to an execution context the buffer
// is additionally released after the handler returns unless the caller
// already released it. When the body exceeds the ceiling and onTooLarge is
// non-nil, the handler runs first and done is then invoked with a nil
// buffer and the handler's error, if any.
//
// A body may be read at most once; any further Read fails with
// ErrBodyAlreadyRead.
func (b *RequestBody) Read(onTooLarge TooLargeHandler, done func(*ChunkBuffer, error)) {
	if b.state != StateUnread {
		done(nil, ErrBodyAlreadyRead)
		return
	}
	b.state = StateReading
	if b.exceeds(b.advertisedLength) {
		b.failTooLarge(b.advertisedLength, onTooLarge, done)
		return
	}
	if b.exceeds(b.receivedLength) {
		b.failTooLarge(b.receivedLength, onTooLarge, done)
		return
	}
	if b.receivedLast {
		b.state = StateRead
		b.deliverComposed(done, b.composeReceived())
		return
	}
	if b.earlyClose {
		// The body can never complete; drop what arrived and fail. The
		// state intentionally stays at reading so a later Drain reports
		// the connection as drained rather than discarded.
		err := b.closeErr
		b.received.releaseAll()
		done(nil, err)
		return
	}
	b.listener = &oneShotListener{b: b, onTooLarge: onTooLarge, done: done}
	b.kickPump()
}

// failTooLarge runs the too-large path of the one-shot reader: discard
// everything, pin the state, then either fail with *TooLargeError or give
// the caller's handler its chance to respond.
func (b *RequestBody) failTooLarge(observed int64, onTooLarge TooLargeHandler, done func(*ChunkBuffer, error)) {
	ceiling := b.maxContentLength
	b.discard()
	b.state = StateTooLarge
	if onTooLarge == nil {
		done(nil, &TooLargeError{Ceiling: ceiling, Observed: observed})
		return
	}
	done(nil, onTooLarge(observed))
}

// oneShotListener accumulates chunks for Read until the terminal marker,
// the ceiling, or an early close ends the operation.
type oneShotListener struct {
	b          *RequestBody
	onTooLarge TooLargeHandler
	done       func(*ChunkBuffer, error)
}

func (l *oneShotListener) onContent(c *ChunkBuffer, last bool) {
	b := l.b
	if c.ReadableBytes() > 0 {
		b.receivedLength += int64(c.ReadableBytes())
		b.received.append(c)
	} else {
		c.Release()
	}
	if b.exceeds(b.receivedLength) {
		b.listener = nil
		b.failTooLarge(b.receivedLength, l.onTooLarge, l.done)
		return
	}
	if last {
		b.listener = nil
		b.state = StateRead
		b.deliverComposed(l.done, b.composeReceived())
		return
	}
	b.ch.Read()
}

func (l *oneShotListener) onEarlyClose(err error) {
	b := l.b
	b.listener = nil
	b.discard()
	l.done(nil, err)
}

func (l *oneShotListener) onFailure(err error) {
	l.done(nil, err)
}
