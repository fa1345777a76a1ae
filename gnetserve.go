package httpcore

import (
	"bufio"
	"bytes"

	"github.com/google/uuid"
	"github.com/panjf2000/gnet"
)

// EventServer serves HTTP/1.1 requests on a gnet event loop instead of a
// goroutine per connection. All body callbacks for a connection run on
// its event-loop goroutine, so handlers must not block: they attach a
// reader to ctx.Body() and finish their work in its callbacks.
//
// The event transport frames fixed Content-Length bodies and bodiless
// requests; requests with chunked transfer encoding are rejected with 501
// and should be pointed at the blocking Server, which frames all three.
type EventServer struct {
	gnet.EventServer

	Config

	// Handler for processing incoming requests.
	Handler RequestHandler

	// Server name for sending in response headers.
	Name string

	// Logger used by the event loop.
	//
	// A logrus-backed logger is used by default.
	Logger Logger

	serverName []byte
}

// ListenAndServe serves HTTP requests on addr, e.g. "tcp://:8080".
func (es *EventServer) ListenAndServe(addr string) error {
	if len(es.serverName) == 0 {
		es.serverName = []byte(es.Name)
		if len(es.serverName) == 0 {
			es.serverName = defaultServerName
		}
	}
	return gnet.Serve(es, addr, gnet.WithReusePort(true))
}

func (es *EventServer) logger() Logger {
	if es.Logger != nil {
		return es.Logger
	}
	return defaultLogger
}

// OnInitComplete logs where the event loop is listening.
func (es *EventServer) OnInitComplete(srv gnet.Server) gnet.Action {
	es.logger().Printf("event server listening on %s", srv.Addr)
	return gnet.None
}

// OnOpened attaches the per-connection parser state.
func (es *EventServer) OnOpened(c gnet.Conn) ([]byte, gnet.Action) {
	ec := &eventConn{es: es, gc: c}
	ec.chn.ec = ec
	c.SetContext(ec)
	return nil, gnet.None
}

// OnClosed surfaces the closure to whatever body is in flight.
func (es *EventServer) OnClosed(c gnet.Conn, err error) gnet.Action {
	ec, ok := c.Context().(*eventConn)
	if !ok {
		return gnet.None
	}
	if ec.body != nil {
		ec.body.CloseInbound(err)
		ec.finishRequest()
	}
	c.SetContext(nil)
	return gnet.None
}

// React feeds inbound bytes through the header parser and the body
// accumulator, and flushes whatever response material the callbacks
// produced.
func (es *EventServer) React(frame []byte, c gnet.Conn) ([]byte, gnet.Action) {
	ec, ok := c.Context().(*eventConn)
	if !ok {
		return nil, gnet.Close
	}
	ec.in = append(ec.in, frame...)
	ec.process()

	out := ec.takeOutput()
	if ec.closeAfter && ec.responded {
		return out, gnet.Close
	}
	return out, gnet.None
}

// eventConn is the per-connection state of the event transport: buffered
// input, the request in flight, and buffered response output.
type eventConn struct {
	es *EventServer
	gc gnet.Conn

	in  []byte
	out bytes.Buffer

	hdrDone   bool
	remaining int64
	bodyDone  bool

	ctx  *RequestCtx
	body *RequestBody
	chn  gnetChannel

	responded  bool
	closeAfter bool
}

func (ec *eventConn) takeOutput() []byte {
	if ec.out.Len() == 0 {
		return nil
	}
	out := append([]byte(nil), ec.out.Bytes()...)
	ec.out.Reset()
	return out
}

func (ec *eventConn) process() {
	for {
		if ec.closeAfter {
			return
		}
		if !ec.hdrDone {
			if !ec.readHeader() {
				return
			}
		}
		ec.chn.pump()
		ec.maybeSettle()
		if !ec.responded {
			// The body, or its drain, is still waiting for traffic.
			return
		}
		if ec.closeAfter {
			return
		}
		ec.resetRequest()
	}
}

// readHeader parses one header block out of ec.in and starts the request.
// Returns false when more bytes are needed.
func (ec *eventConn) readHeader() bool {
	i := bytes.Index(ec.in, strCRLFCRLF)
	if i < 0 {
		return false
	}
	es := ec.es

	ctx := &RequestCtx{}
	ctx.Header.Reset()
	n, err := ctx.Header.parse(ec.in[:i+4])
	if err != nil {
		ec.respondError(StatusBadRequest)
		ec.closeAfter = true
		ec.responded = true
		return false
	}
	ec.in = ec.in[n:]
	ec.hdrDone = true

	if ctx.Header.ContentLength() == lengthChunked {
		ec.respondError(StatusNotImplemented)
		ec.closeAfter = true
		ec.responded = true
		return false
	}

	ctx.id = uuid.New()
	ctx.time = coarseTimeNow()
	ctx.completed = false
	ec.ctx = ctx
	ec.remaining = ctx.Header.ContentLength()
	if ec.remaining < 0 {
		ec.remaining = 0
	}
	ec.bodyDone = false
	ec.responded = false
	ec.chn.pendingReads = 0
	ec.chn.expectationFailed = false

	body := AcquireRequestBody(&ec.chn, &ctx.Header, es.maxRequestBodySize())
	body.BindExec(ctx)
	ctx.body = body
	ec.body = body

	es.Handler(ctx)
	ec.maybeSettle()
	return true
}

// maybeSettle drains the body and renders the response once no reader is
// consuming it anymore. While a reader's listener is installed the
// exchange is still in flight; the settle is retried after every pump.
func (ec *eventConn) maybeSettle() {
	if ec.responded || ec.body == nil {
		return
	}
	if ec.body.listener != nil {
		return
	}
	ec.body.Drain(func(outcome DrainOutcome) {
		ec.respond(outcome)
	})
}

// respondError renders a canned error response for protocol failures.
func (ec *eventConn) respondError(code int) {
	name := ec.es.serverName
	if len(name) == 0 {
		name = defaultServerName
	}
	var resp Response
	resp.SetStatusCode(code)
	resp.SetBodyString(StatusMessage(code))
	resp.SetConnectionClose()
	bw := bufio.NewWriter(&ec.out)
	if err := resp.Write(bw, name); err == nil {
		bw.Flush() //nolint:errcheck
	}
}

// respond renders the response once the body settled.
func (ec *eventConn) respond(outcome DrainOutcome) {
	ctx := ec.ctx
	ctx.runCompletionHooks()
	reusable := outcome == Drained
	switch outcome {
	case DrainTooLarge:
		if !ctx.Response.touched() {
			ctx.Error(StatusMessage(StatusRequestEntityTooLarge), StatusRequestEntityTooLarge)
		}
	}
	if ec.chn.expectationFailed && !ctx.Response.touched() {
		ctx.Error(StatusMessage(StatusExpectationFailed), StatusExpectationFailed)
	}

	if !reusable || ctx.Header.ConnectionClose() || ctx.Response.ConnectionClose() {
		ctx.Response.SetConnectionClose()
		ec.closeAfter = true
	}

	bw := bufio.NewWriter(&ec.out)
	if err := ctx.Response.Write(bw, ec.es.serverName); err == nil {
		bw.Flush() //nolint:errcheck
	}
	ec.responded = true
}

// finishRequest releases the request state after a closure mid-request.
func (ec *eventConn) finishRequest() {
	if ec.body != nil {
		ReleaseRequestBody(ec.body)
		ec.body = nil
	}
	ec.ctx = nil
	ec.hdrDone = false
}

// resetRequest prepares the connection for the next pipelined request.
func (ec *eventConn) resetRequest() {
	ec.finishRequest()
	ec.responded = false
}

// gnetChannel adapts the event loop to the Channel contract: reads are
// demand signals satisfied from the connection's buffered input, writes
// land in the connection's output buffer flushed at the end of the event.
type gnetChannel struct {
	ec                *eventConn
	pendingReads      int
	pumping           bool
	expectationFailed bool
}

func (ch *gnetChannel) Read() {
	ch.pendingReads++
	ch.ec.pumpSoon()
}

func (ch *gnetChannel) Write(p []byte, done func(error)) {
	ch.ec.out.Write(p) //nolint:errcheck
	done(nil)
}

func (ch *gnetChannel) FireExpectationFailed() {
	ch.expectationFailed = true
}

// pumpSoon runs the pump unless it is already running further up the
// stack.
func (ec *eventConn) pumpSoon() {
	if !ec.chn.pumping {
		ec.chn.pump()
	}
}

// pump satisfies outstanding read demand from the buffered input, one
// chunk per demand unit, in arrival order.
func (ch *gnetChannel) pump() {
	ec := ch.ec
	if ch.pumping {
		return
	}
	ch.pumping = true
	for ch.pendingReads > 0 && ec.body != nil && !ec.bodyDone {
		if ec.remaining == 0 {
			ch.pendingReads--
			ec.bodyDone = true
			ec.body.Add(AcquireChunk(), true)
			break
		}
		if len(ec.in) == 0 {
			break
		}
		n := ec.remaining
		if n > int64(len(ec.in)) {
			n = int64(len(ec.in))
		}
		if n > maxBodyChunkSize {
			n = maxBodyChunkSize
		}
		ch.pendingReads--
		chunk := NewChunk(ec.in[:n])
		ec.in = ec.in[n:]
		ec.remaining -= n
		last := ec.remaining == 0
		if last {
			ec.bodyDone = true
		}
		ec.body.Add(chunk, last)
		if last {
			break
		}
	}
	ch.pumping = false
}
