package httpcore

// DrainOutcome reports what Drain did with the unread remainder of a body
// and whether the connection can serve another request.
type DrainOutcome int

const (
	// Drained means the remaining body fit and was consumed; the
	// connection is reusable.
	Drained DrainOutcome = iota

	// DrainTooLarge means the remainder would breach the ceiling; the
	// connection must be closed.
	DrainTooLarge

	// DrainDiscarded means a prior error already forced a discard; the
	// connection must be closed.
	DrainDiscarded
)

func (o DrainOutcome) String() string {
	switch o {
	case Drained:
		return "drained"
	case DrainTooLarge:
		return "too-large"
	case DrainDiscarded:
		return "discarded"
	}
	return "unknown"
}

// Drain discards any unread body so the connection can be reused or closed
// cleanly, reporting the outcome through done exactly once. Draining an
// `Expect: 100-continue` request whose preface was never written fires an
// ExpectationFailed signal on the channel instead of inviting the body,
// and never writes the continue preface itself. Transport failures while
// draining are not propagated; they collapse into Drained since the
// connection is gone anyway.
//
// Drain is idempotent: called again in a terminal state it reports the
// outcome that state implies and releases nothing further.
func (b *RequestBody) Drain(done func(DrainOutcome)) {
	b.received.releaseAll()
	switch b.state {
	case StateRead:
		done(Drained)
		return
	case StateTooLarge:
		done(DrainTooLarge)
		return
	case StateDiscarded:
		done(DrainDiscarded)
		return
	}
	b.state = StateReading
	if b.receivedLast || b.expectsContinue() {
		if b.expectsContinue() && !b.continueSent {
			// The client is still waiting for the go-ahead; refuse the
			// body instead of consuming it. It was never sent, so the
			// connection stays reusable.
			b.ch.FireExpectationFailed()
		}
		b.state = StateRead
		done(Drained)
		return
	}
	if b.exceeds(b.advertisedLength) {
		b.discard()
		b.state = StateTooLarge
		done(DrainTooLarge)
		return
	}
	if b.exceeds(b.receivedLength) {
		b.discard()
		b.state = StateTooLarge
		done(DrainTooLarge)
		return
	}
	b.listener = &drainListener{b: b, done: done}
	if b.earlyClose {
		b.listener.onEarlyClose(b.closeErr)
		return
	}
	// No continue preface here: read whatever the client already sent.
	b.ch.Read()
}

// drainListener consumes and releases chunks until the terminal marker,
// still holding the body to the ceiling while it does.
type drainListener struct {
	b    *RequestBody
	done func(DrainOutcome)
}

func (l *drainListener) onContent(c *ChunkBuffer, last bool) {
	b := l.b
	// Read the length before releasing the handle.
	n := c.ReadableBytes()
	c.Release()
	b.receivedLength += int64(n)
	if b.exceeds(b.receivedLength) {
		b.listener = nil
		b.discard()
		b.state = StateTooLarge
		l.done(DrainTooLarge)
		return
	}
	if last {
		b.listener = nil
		b.state = StateRead
		l.done(Drained)
		return
	}
	b.ch.Read()
}

func (l *drainListener) onEarlyClose(error) {
	b := l.b
	b.listener = nil
	b.received.releaseAll()
	b.state = StateRead
	l.done(Drained)
}

func (l *drainListener) onFailure(error) {
	// The drainer never propagates transport errors; its only job is to
	// decide whether the connection is reusable.
	l.b.state = StateRead
	l.done(Drained)
}
