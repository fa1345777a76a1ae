package httpcore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkBufferRetainRelease(t *testing.T) {
	base := liveChunks()
	c := NewChunk([]byte("payload"))
	require.Equal(t, 7, c.ReadableBytes())
	require.EqualValues(t, 1, c.Refs())

	c.Retain()
	require.EqualValues(t, 2, c.Refs())
	c.Release()
	require.Equal(t, base+1, liveChunks())
	c.Release()
	require.Equal(t, base, liveChunks())
}

func TestChunkBufferReleaseWithoutReferencePanics(t *testing.T) {
	c := NewChunk([]byte("x"))
	c.Release()
	require.Panics(t, func() {
		c.Release()
	})
}

func TestChunkBufferCompose(t *testing.T) {
	base := liveChunks()
	parts := []*ChunkBuffer{
		NewChunk([]byte("one")),
		NewChunk([]byte("two")),
		NewChunk([]byte("three")),
	}
	c := composeChunks(parts)
	require.Equal(t, 11, c.ReadableBytes())
	require.Equal(t, "onetwothree", string(c.Bytes()))

	var buf bytes.Buffer
	n, err := c.WriteTo(&buf)
	require.NoError(t, err)
	require.EqualValues(t, 11, n)
	require.Equal(t, "onetwothree", buf.String())

	require.Equal(t, []byte("onetwothree"), c.AppendTo(nil))

	// Releasing the composite releases every part.
	c.Release()
	require.Equal(t, base, liveChunks())
}

func TestChunkBufferEmpty(t *testing.T) {
	c := AcquireChunk()
	require.Equal(t, 0, c.ReadableBytes())
	require.Empty(t, c.Bytes())
	c.Release()
}

func TestChunkListPopFirstAndDetach(t *testing.T) {
	base := liveChunks()
	var l chunkList
	l.append(NewChunk([]byte("a")))
	l.append(NewChunk([]byte("b")))
	l.append(NewChunk([]byte("c")))
	require.Equal(t, 3, l.len())

	first := l.popFirst()
	require.Equal(t, "a", string(first.Bytes()))
	require.Equal(t, 2, l.len())
	first.Release()

	rest := l.detach()
	require.Equal(t, 0, l.len())
	require.Len(t, rest, 2)
	for _, c := range rest {
		c.Release()
	}
	require.Equal(t, base, liveChunks())
}

func TestChunkListReleaseAll(t *testing.T) {
	base := liveChunks()
	var l chunkList
	l.append(NewChunk([]byte("a")))
	l.append(NewChunk([]byte("b")))
	l.releaseAll()
	require.Equal(t, 0, l.len())
	require.Equal(t, base, liveChunks())
}
