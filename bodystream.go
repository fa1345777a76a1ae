package httpcore

// Sink receives the chunks a BodyStream publishes. Signals are dispatched
// on the connection's serving goroutine, never concurrently. Exactly one
// of OnComplete or OnError terminates the stream, unless the stream is
// cancelled, in which case neither is signalled.
type Sink interface {
	// OnChunk consumes one body chunk, taking over its reference. A
	// non-nil error cancels the stream and discards the rest of the body.
	OnChunk(c *ChunkBuffer) error

	// OnComplete signals that the terminal chunk was delivered.
	OnComplete()

	// OnError terminates the stream with ErrBodyAlreadyRead,
	// ErrConnectionClosed, *TooLargeError, an ErrBrokenChunk for malformed
	// chunk framing, or the error of a failed continue-preface write.
	OnError(err error)
}

// BodyStream publishes a request body to a Sink with explicit demand. It
// never emits more items than the subscriber requested, keeps at most one
// channel read outstanding, and buffers at most one chunk ahead of
// demand.
//
// The zero demand stream is inert: nothing is read from the transport
// until the first Request call.
type BodyStream struct {
	b         *RequestBody
	sink      Sink
	requested int64
	installed bool
	reading   bool
	done      bool
}

// ReadStream attaches sink to the body and returns the stream the caller
// signals demand on. Attach errors, ErrBodyAlreadyRead and *TooLargeError,
// are delivered through sink.OnError before ReadStream returns.
func (b *RequestBody) ReadStream(sink Sink) *BodyStream {
	s := &BodyStream{b: b, sink: sink}
	if b.state != StateUnread {
		s.done = true
		sink.OnError(ErrBodyAlreadyRead)
		return s
	}
	b.state = StateReading
	if b.exceeds(b.advertisedLength) {
		s.failTooLarge(b.advertisedLength)
		return s
	}
	if b.exceeds(b.receivedLength) {
		s.failTooLarge(b.receivedLength)
		return s
	}
	if b.exec != nil {
		b.exec.OnComplete(func() {
			// A stream the handler abandoned mid-flight is cancelled so
			// its buffered chunks are released.
			s.Cancel()
		})
	}
	return s
}

// Request raises the subscriber's demand by n chunks, emits whatever the
// body already buffered, and pumps the transport as needed.
func (s *BodyStream) Request(n int) {
	if s.done || n <= 0 {
		return
	}
	s.requested += int64(n)
	b := s.b

	s.emitBuffered()
	if s.done {
		return
	}

	if !s.installed {
		s.installed = true
		b.listener = s
		if b.earlyClose {
			s.onEarlyClose(b.closeErr)
			return
		}
		s.reading = true
		b.kickPump()
		return
	}
	if s.requested > 0 && !s.reading {
		s.reading = true
		b.ch.Read()
	}
}

// emitBuffered flushes held chunks against outstanding demand, then
// completes the stream if the terminal marker arrived and nothing is left
// to deliver.
func (s *BodyStream) emitBuffered() {
	b := s.b
	if b.received.len() > 0 && s.requested > 0 {
		buf := b.composeReceived()
		if buf.ReadableBytes() > 0 {
			s.requested--
			if err := s.sink.OnChunk(buf); err != nil {
				s.Cancel()
				return
			}
			if s.done {
				return
			}
		} else {
			buf.Release()
		}
	}
	if b.receivedLast && b.received.len() == 0 {
		if b.listener == s {
			b.listener = nil
		}
		s.done = true
		b.state = StateRead
		s.sink.OnComplete()
	}
}

// Cancel tears the stream down, discarding the rest of the body. Chunks
// already emitted stay with the subscriber. Cancelling a terminated stream
// is a no-op.
func (s *BodyStream) Cancel() {
	if s.done {
		return
	}
	s.done = true
	b := s.b
	if b.listener == s {
		b.listener = nil
	}
	b.discard()
}

func (s *BodyStream) failTooLarge(observed int64) {
	b := s.b
	ceiling := b.maxContentLength
	b.discard()
	b.state = StateTooLarge
	s.done = true
	s.sink.OnError(&TooLargeError{Ceiling: ceiling, Observed: observed})
}

// onContent implements bodyListener: account, enforce the ceiling, emit
// downstream when demand allows, and decide whether to read ahead. A
// chunk arriving without demand, from the one read the pump keeps ahead,
// is parked on the body until the next Request.
func (s *BodyStream) onContent(c *ChunkBuffer, last bool) {
	b := s.b
	s.reading = false
	if c.ReadableBytes() > 0 {
		b.receivedLength += int64(c.ReadableBytes())
		if b.exceeds(b.receivedLength) {
			observed := b.receivedLength
			b.listener = nil
			c.Release()
			s.failTooLarge(observed)
			return
		}
		if s.requested > 0 {
			s.requested--
			if err := s.sink.OnChunk(c); err != nil {
				s.Cancel()
				return
			}
			if s.done {
				// The subscriber cancelled from inside OnChunk.
				return
			}
		} else {
			b.received.append(c)
		}
	} else {
		c.Release()
	}
	if last {
		// Complete only once everything buffered has been delivered;
		// otherwise the completion fires from a later Request.
		s.emitBuffered()
		return
	}
	if s.requested > 0 && !s.reading {
		s.reading = true
		b.ch.Read()
	}
}

func (s *BodyStream) onEarlyClose(err error) {
	b := s.b
	b.listener = nil
	b.discard()
	s.done = true
	s.sink.OnError(err)
}

func (s *BodyStream) onFailure(err error) {
	s.done = true
	s.sink.OnError(err)
}
