package httpcore

import (
	"bufio"
)

// Channel is the transport a RequestBody pulls chunks from and writes the
// continue preface to. Implementations deliver at most one chunk per Read
// call, in wire order, by invoking RequestBody.Add, and report closure via
// RequestBody.CloseInbound.
type Channel interface {
	// Read requests one more chunk from the transport.
	Read()

	// Write writes p to the peer and invokes done with the write result.
	Write(p []byte, done func(error))

	// FireExpectationFailed signals the serving layer that the request's
	// `Expect: 100-continue` will not be honored, so it can respond with
	// 417 and refuse the body.
	FireExpectationFailed()
}

// connChannel adapts a blocking net.Conn, wrapped in bufio, to the Channel
// contract. Read calls are collapsed into a flat pump loop so a listener
// that immediately requests the next chunk does not recurse.
type connChannel struct {
	body   *RequestBody
	framer bodyFramer
	bw     *bufio.Writer

	expectationFailed bool

	pending int
	pumping bool
	closed  bool
}

func (c *connChannel) init(body *RequestBody, br *bufio.Reader, bw *bufio.Writer) {
	c.body = body
	c.framer.init(br, body.ContentLength())
	c.bw = bw
	c.expectationFailed = false
	c.pending = 0
	c.pumping = false
	c.closed = false
}

func (c *connChannel) Read() {
	c.pending++
	if c.pumping || c.closed {
		return
	}
	c.pumping = true
	for c.pending > 0 && !c.closed {
		c.pending--
		chunk, last, err := c.framer.next()
		if err != nil {
			c.closed = true
			c.body.CloseInbound(err)
			break
		}
		c.body.Add(chunk, last)
		if last {
			break
		}
	}
	c.pumping = false
}

func (c *connChannel) Write(p []byte, done func(error)) {
	_, err := c.bw.Write(p)
	if err == nil {
		err = c.bw.Flush()
	}
	done(err)
}

func (c *connChannel) FireExpectationFailed() {
	c.expectationFailed = true
}
