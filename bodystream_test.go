package httpcore

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// recordingSink collects stream signals and optionally re-requests demand
// from inside OnChunk.
type recordingSink struct {
	chunks    [][]byte
	completed bool
	err       error

	chunkErr  error
	stream    *BodyStream
	rerequest bool
}

func (s *recordingSink) OnChunk(c *ChunkBuffer) error {
	s.chunks = append(s.chunks, append([]byte(nil), c.Bytes()...))
	c.Release()
	if s.chunkErr != nil {
		return s.chunkErr
	}
	if s.rerequest {
		s.stream.Request(1)
	}
	return nil
}

func (s *recordingSink) OnComplete() {
	s.completed = true
}

func (s *recordingSink) OnError(err error) {
	s.err = err
}

func TestStreamSingleTerminalChunk(t *testing.T) {
	// max=100, advertised=30, one 30-byte terminal chunk.
	base := liveChunks()
	b, ch := newTestBody(30, 100, false)
	sink := &recordingSink{}
	stream := b.ReadStream(sink)
	require.Equal(t, StateReading, b.State())
	require.Equal(t, 0, ch.readCount())

	stream.Request(1)
	require.Equal(t, 1, ch.readCount())

	b.Add(NewChunk(make([]byte, 30)), true)
	require.Len(t, sink.chunks, 1)
	require.Len(t, sink.chunks[0], 30)
	require.True(t, sink.completed)
	require.NoError(t, sink.err)
	require.Equal(t, StateRead, b.State())
	require.Equal(t, base, liveChunks())
	ReleaseRequestBody(b)
}

func TestStreamRespectsDemand(t *testing.T) {
	b, ch := newTestBody(lengthChunked, 0, false)
	sink := &recordingSink{}
	stream := b.ReadStream(sink)
	stream.Request(1)
	require.Equal(t, 1, ch.readCount())

	b.Add(bodyChunk("one"), false)
	require.Len(t, sink.chunks, 1)
	// Demand is exhausted: no read-ahead.
	require.Equal(t, 1, ch.readCount())

	stream.Request(1)
	require.Equal(t, 2, ch.readCount())
	b.Add(bodyChunk("two"), false)
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, sink.chunks)

	stream.Request(1)
	b.Add(AcquireChunk(), true)
	require.True(t, sink.completed)
	require.Equal(t, StateRead, b.State())
	ReleaseRequestBody(b)
}

func TestStreamRerequestFromOnChunkKeepsOneOutstandingRead(t *testing.T) {
	b, ch := newTestBody(lengthChunked, 0, false)
	sink := &recordingSink{rerequest: true}
	stream := b.ReadStream(sink)
	sink.stream = stream
	stream.Request(1)
	require.Equal(t, 1, ch.readCount())

	b.Add(bodyChunk("one"), false)
	// The re-request from inside OnChunk causes exactly one more read.
	require.Equal(t, 2, ch.readCount())
	b.Add(bodyChunk("two"), false)
	require.Equal(t, 3, ch.readCount())
	b.Add(AcquireChunk(), true)
	require.True(t, sink.completed)
	require.Equal(t, 3, ch.readCount())
	ReleaseRequestBody(b)
}

func TestStreamFlushesBufferedChunksOnFirstRequest(t *testing.T) {
	base := liveChunks()
	b, ch := newTestBody(lengthChunked, 0, false)
	b.Add(bodyChunk("buf"), false)
	b.Add(bodyChunk("fered"), false)

	sink := &recordingSink{}
	stream := b.ReadStream(sink)
	require.Empty(t, sink.chunks)

	stream.Request(1)
	require.Equal(t, [][]byte{[]byte("buffered")}, sink.chunks)
	require.False(t, sink.completed)
	// The composed item consumed the demand, but the pump still runs to
	// stay one chunk ahead.
	require.Equal(t, 1, ch.readCount())

	stream.Request(1)
	b.Add(AcquireChunk(), true)
	require.True(t, sink.completed)
	require.Equal(t, base, liveChunks())
	ReleaseRequestBody(b)
}

func TestStreamCompletesWithoutListenerWhenBodyBuffered(t *testing.T) {
	base := liveChunks()
	b, ch := newTestBody(4, 0, false)
	b.Add(bodyChunk("body"), true)

	sink := &recordingSink{}
	stream := b.ReadStream(sink)
	stream.Request(1)

	require.Equal(t, [][]byte{[]byte("body")}, sink.chunks)
	require.True(t, sink.completed)
	require.Equal(t, StateRead, b.State())
	require.Equal(t, 0, ch.readCount())
	require.Equal(t, base, liveChunks())
	ReleaseRequestBody(b)
}

func TestStreamSecondReaderFails(t *testing.T) {
	b, _ := newTestBody(4, 0, false)
	b.Add(bodyChunk("body"), true)
	b.Read(nil, func(buf *ChunkBuffer, err error) {
		require.NoError(t, err)
		buf.Release()
	})

	sink := &recordingSink{}
	b.ReadStream(sink)
	require.Equal(t, ErrBodyAlreadyRead, sink.err)
	ReleaseRequestBody(b)
}

func TestStreamTooLargeOnSubscribe(t *testing.T) {
	b, _ := newTestBody(200, 100, false)
	sink := &recordingSink{}
	b.ReadStream(sink)

	var tle *TooLargeError
	require.ErrorAs(t, sink.err, &tle)
	require.EqualValues(t, 200, tle.Observed)
	require.Equal(t, StateTooLarge, b.State())
	ReleaseRequestBody(b)
}

func TestStreamTooLargeMidStream(t *testing.T) {
	base := liveChunks()
	b, _ := newTestBody(lengthChunked, 100, false)
	sink := &recordingSink{}
	stream := b.ReadStream(sink)
	stream.Request(2)

	b.Add(NewChunk(make([]byte, 60)), false)
	require.NoError(t, sink.err)
	b.Add(NewChunk(make([]byte, 60)), false)

	var tle *TooLargeError
	require.ErrorAs(t, sink.err, &tle)
	require.EqualValues(t, 120, tle.Observed)
	require.Equal(t, StateTooLarge, b.State())
	require.Equal(t, base, liveChunks())
	ReleaseRequestBody(b)
}

func TestStreamCancelDiscards(t *testing.T) {
	base := liveChunks()
	b, _ := newTestBody(lengthChunked, 0, false)
	sink := &recordingSink{}
	stream := b.ReadStream(sink)
	stream.Request(1)

	b.Add(bodyChunk("one"), false)
	stream.Cancel()
	require.Equal(t, StateDiscarded, b.State())

	// In-flight chunks arriving after cancellation are released.
	b.Add(bodyChunk("late"), false)
	require.Equal(t, base, liveChunks())
	require.False(t, sink.completed)
	require.NoError(t, sink.err)
	ReleaseRequestBody(b)
}

func TestStreamOnChunkErrorCancels(t *testing.T) {
	b, _ := newTestBody(lengthChunked, 0, false)
	sink := &recordingSink{chunkErr: errors.New("stop")}
	stream := b.ReadStream(sink)
	stream.Request(5)

	b.Add(bodyChunk("one"), false)
	require.Equal(t, StateDiscarded, b.State())
	require.False(t, sink.completed)
	ReleaseRequestBody(b)
}

func TestStreamEarlyClose(t *testing.T) {
	b, _ := newTestBody(30, 0, false)
	sink := &recordingSink{}
	stream := b.ReadStream(sink)
	stream.Request(1)

	b.CloseInbound(nil)
	require.True(t, IsConnectionClosed(sink.err))
	require.Equal(t, StateDiscarded, b.State())
	ReleaseRequestBody(b)
}

func TestStreamEarlyCloseBeforeFirstRequest(t *testing.T) {
	b, _ := newTestBody(30, 0, false)
	b.CloseInbound(nil)

	sink := &recordingSink{}
	stream := b.ReadStream(sink)
	require.NoError(t, sink.err)
	stream.Request(1)
	require.True(t, IsConnectionClosed(sink.err))
	ReleaseRequestBody(b)
}

func TestStreamContinuePreface(t *testing.T) {
	b, ch := newTestBody(30, 100, true)
	sink := &recordingSink{}
	stream := b.ReadStream(sink)
	stream.Request(1)

	require.Equal(t, []string{"write:25", "read"}, ch.events)
	b.Add(NewChunk(make([]byte, 30)), true)
	require.True(t, sink.completed)
	require.Equal(t, 1, ch.writeCount())
	ReleaseRequestBody(b)
}

func TestStreamAbandonedIsCancelledByExecHook(t *testing.T) {
	base := liveChunks()
	exec := &testExec{}
	b, _ := newTestBody(lengthChunked, 0, false)
	b.BindExec(exec)

	sink := &recordingSink{}
	stream := b.ReadStream(sink)
	stream.Request(1)
	b.Add(bodyChunk("one"), false)

	// The handler returns without finishing the stream.
	exec.runHooks()
	require.Equal(t, StateDiscarded, b.State())
	require.Equal(t, base, liveChunks())
	ReleaseRequestBody(b)
}
