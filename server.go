package httpcore

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/valyala/tcplisten"
	"golang.org/x/sync/errgroup"
)

// RequestHandler must process incoming requests. It reads the request
// through ctx.Header and ctx.Body and shapes the response through
// ctx.Response. The body may be consumed at most once; whatever the
// handler leaves unread is drained by the server after the handler
// returns.
type RequestHandler func(ctx *RequestCtx)

// Server serves HTTP/1.1 requests over blocking connections, one
// goroutine per connection. The body of every request is owned by a
// RequestBody the server settles after the handler returns, so a
// connection is reused only when its previous body was fully consumed.
//
// It is forbidden copying Server instances. Create new Server instances
// instead.
type Server struct {
	Config

	// Handler for processing incoming requests.
	Handler RequestHandler

	// Server name for sending in response headers.
	//
	// Default server name is used if left blank.
	Name string

	// The maximum number of concurrent connections the server may serve.
	//
	// DefaultConcurrency is used if not set.
	Concurrency int

	// Logger used by the serving loop and by RequestCtx.Logger().
	//
	// A logrus-backed logger is used by default.
	Logger Logger

	// Trace hooks, all optional.
	Trace ServerTrace

	concurrency  uint32
	openConns    int32
	shuttingDown int32
	serverName   atomic.Value

	lnMtx     sync.Mutex
	listeners []net.Listener

	idleConns idleConnList

	ctxPool    sync.Pool
	readerPool sync.Pool
	writerPool sync.Pool
}

// ServeConn serves HTTP requests from the given connection using the
// given handler, with default Server settings.
//
// ServeConn closes c before returning.
func ServeConn(c net.Conn, handler RequestHandler) error {
	s := &Server{Handler: handler}
	return s.ServeConn(c)
}

// Serve serves incoming connections from the given listener using the
// given handler, with default Server settings.
func Serve(ln net.Listener, handler RequestHandler) error {
	s := &Server{Handler: handler}
	return s.Serve(ln)
}

// ListenAndServe serves HTTP requests from the given TCP addr using the
// given handler, with default Server settings.
func ListenAndServe(addr string, handler RequestHandler) error {
	s := &Server{Handler: handler}
	return s.ListenAndServe(addr)
}

// Default maximum number of concurrent connections the Server may serve.
const DefaultConcurrency = 256 * 1024

// ListenAndServe serves HTTP requests from the given TCP addr.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// ListenAndServeReuseport serves HTTP requests from the given TCP4 addr
// on a SO_REUSEPORT listener, so multiple server processes can share the
// port.
func (s *Server) ListenAndServeReuseport(addr string) error {
	cfg := tcplisten.Config{
		ReusePort:   true,
		DeferAccept: true,
		FastOpen:    true,
	}
	ln, err := cfg.NewListener("tcp4", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves incoming connections from the given listener.
//
// Serve blocks until the given listener returns a permanent error.
func (s *Server) Serve(ln net.Listener) error {
	s.trackListener(ln)
	defer s.untrackListener(ln)

	wp := &workerPool{
		WorkerFunc:      s.serveConnAndClose,
		MaxWorkersCount: s.getConcurrency(),
		Logger:          s.logger(),
	}
	wp.Start()
	defer wp.Stop()

	var lastOverflowErrorTime time.Time
	for {
		c, err := acceptConn(s, ln)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if s.Trace.GotConn != nil {
			s.Trace.GotConn(c)
		}
		if !wp.Serve(c) {
			c.Close()
			if time.Since(lastOverflowErrorTime) > time.Minute {
				s.logger().Printf("The incoming connection cannot be served, because %d concurrent connections are served. "+
					"Try increasing Server.Concurrency", s.getConcurrency())
				lastOverflowErrorTime = time.Now()
			}
		}
	}
}

func acceptConn(s *Server, ln net.Listener) (net.Conn, error) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.logger().Printf("Temporary error when accepting new connections: %s", netErr)
				time.Sleep(time.Second)
				continue
			}
			if err != io.EOF && !strings.Contains(err.Error(), "use of closed network connection") {
				s.logger().Printf("Permanent error when accepting new connections: %s", err)
				return nil, err
			}
			return nil, io.EOF
		}
		if c == nil {
			panic("BUG: net.Listener returned (nil, nil)")
		}
		return c, nil
	}
}

// ServeConn serves HTTP requests from the given connection.
//
// ServeConn returns nil if all requests from c were successfully served.
// ServeConn closes c before returning.
func (s *Server) ServeConn(c net.Conn) error {
	n := atomic.AddUint32(&s.concurrency, 1)
	if n > uint32(s.getConcurrency()) {
		atomic.AddUint32(&s.concurrency, ^uint32(0))
		c.Close()
		return ErrConcurrencyLimit
	}

	err := s.serveConnAndClose(c)

	atomic.AddUint32(&s.concurrency, ^uint32(0))
	return err
}

// ErrConcurrencyLimit is returned from ServeConn when the number of
// concurrently served connections exceeds Server.Concurrency.
var ErrConcurrencyLimit = errors.New("cannot serve the connection because Server.Concurrency concurrent connections are served")

func (s *Server) serveConnAndClose(c net.Conn) error {
	atomic.AddInt32(&s.openConns, 1)
	err := s.serveConn(c)
	err1 := c.Close()
	if s.Trace.ClosedConn != nil {
		s.Trace.ClosedConn(c)
	}
	atomic.AddInt32(&s.openConns, -1)
	if err == nil {
		err = err1
	}
	return err
}

func (s *Server) serveConn(c net.Conn) error {
	br := s.acquireReader(c)
	bw := s.acquireWriter(c)
	defer s.releaseReader(br)
	defer s.releaseWriter(bw)

	idleItem := idleConnItem{c: c}

	var err error
	requestNum := 0
	for {
		requestNum++

		if requestNum > 1 {
			// Park the connection while waiting for the next request so
			// Shutdown can close it.
			s.idleConns.insertBack(&idleItem)
		}
		if s.ReadTimeout > 0 {
			if err = c.SetReadDeadline(coarseTimeNow().Add(s.ReadTimeout)); err != nil {
				break
			}
		}

		ctx := s.acquireCtx(c)
		err = ctx.Header.Read(br)
		if requestNum > 1 {
			s.idleConns.remove(&idleItem)
		}
		if err != nil {
			s.releaseCtx(ctx)
			if err == io.EOF {
				err = nil
			}
			break
		}

		ctx.time = coarseTimeNow()
		ctx.id = uuid.New()

		body := AcquireRequestBody(&ctx.ch, &ctx.Header, s.maxRequestBodySize())
		body.BindExec(ctx)
		ctx.body = body
		ctx.ch.init(body, br, bw)

		if s.Trace.GotRequest != nil {
			s.Trace.GotRequest(ctx)
		}

		s.Handler(ctx)
		ctx.runCompletionHooks()

		// Settle the body: whatever the handler left unread decides
		// whether this connection can serve another request.
		reusable := true
		body.Drain(func(outcome DrainOutcome) {
			if s.Trace.BodySettled != nil {
				s.Trace.BodySettled(ctx, outcome)
			}
			switch outcome {
			case DrainTooLarge:
				reusable = false
				if !ctx.Response.touched() {
					ctx.Error(StatusMessage(StatusRequestEntityTooLarge), StatusRequestEntityTooLarge)
				}
			case DrainDiscarded:
				reusable = false
			}
		})
		if ctx.ch.expectationFailed && !ctx.Response.touched() {
			// The drainer refused a pending 100-continue body.
			ctx.Error(StatusMessage(StatusExpectationFailed), StatusExpectationFailed)
		}
		if body.State() == StateTooLarge && !ctx.Response.touched() {
			ctx.Error(StatusMessage(StatusRequestEntityTooLarge), StatusRequestEntityTooLarge)
		}

		connectionClose := !reusable ||
			ctx.ch.closed ||
			s.DisableKeepalive ||
			ctx.Header.ConnectionClose() ||
			ctx.Response.ConnectionClose() ||
			atomic.LoadInt32(&s.shuttingDown) != 0
		if connectionClose {
			ctx.Response.SetConnectionClose()
		}

		if s.WriteTimeout > 0 {
			if err = c.SetWriteDeadline(coarseTimeNow().Add(s.WriteTimeout)); err != nil {
				s.releaseBodyAndCtx(ctx)
				break
			}
		}
		err = ctx.Response.Write(bw, s.getServerName())
		if err == nil {
			err = bw.Flush()
		}
		if s.Trace.WroteResponse != nil {
			s.Trace.WroteResponse(ctx, err)
		}
		s.releaseBodyAndCtx(ctx)
		if err != nil || connectionClose {
			break
		}

		if s.Trace.IdledConn != nil {
			s.Trace.IdledConn(c)
		}
	}
	s.idleConns.remove(&idleItem)
	return err
}

func (s *Server) releaseBodyAndCtx(ctx *RequestCtx) {
	if ctx.body != nil {
		ReleaseRequestBody(ctx.body)
		ctx.body = nil
	}
	s.releaseCtx(ctx)
}

// Shutdown gracefully shuts the server down: it stops accepting new
// connections, closes connections parked between requests, and waits for
// in-flight requests to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&s.shuttingDown, 1)

	g, gctx := errgroup.WithContext(ctx)

	s.lnMtx.Lock()
	for _, ln := range s.listeners {
		ln := ln
		g.Go(ln.Close)
	}
	s.lnMtx.Unlock()

	g.Go(func() error {
		for {
			s.idleConns.closeAll()
			if atomic.LoadInt32(&s.openConns) == 0 {
				return nil
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
		}
	})

	return g.Wait()
}

func (s *Server) trackListener(ln net.Listener) {
	s.lnMtx.Lock()
	s.listeners = append(s.listeners, ln)
	s.lnMtx.Unlock()
}

func (s *Server) untrackListener(ln net.Listener) {
	s.lnMtx.Lock()
	for i, v := range s.listeners {
		if v == ln {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
	s.lnMtx.Unlock()
}

func (s *Server) getConcurrency() int {
	n := s.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	return n
}

func (s *Server) logger() Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return defaultLogger
}

func (s *Server) acquireCtx(c net.Conn) *RequestCtx {
	v := s.ctxPool.Get()
	var ctx *RequestCtx
	if v == nil {
		ctx = &RequestCtx{}
	} else {
		ctx = v.(*RequestCtx)
	}
	ctx.s = s
	ctx.c = c
	return ctx
}

func (s *Server) releaseCtx(ctx *RequestCtx) {
	ctx.reset()
	s.ctxPool.Put(ctx)
}

func (s *Server) acquireReader(c net.Conn) *bufio.Reader {
	v := s.readerPool.Get()
	if v == nil {
		return bufio.NewReaderSize(c, s.readBufferSize())
	}
	r := v.(*bufio.Reader)
	r.Reset(c)
	return r
}

func (s *Server) releaseReader(r *bufio.Reader) {
	r.Reset(nil)
	s.readerPool.Put(r)
}

func (s *Server) acquireWriter(c net.Conn) *bufio.Writer {
	v := s.writerPool.Get()
	if v == nil {
		return bufio.NewWriterSize(c, s.writeBufferSize())
	}
	w := v.(*bufio.Writer)
	w.Reset(c)
	return w
}

func (s *Server) releaseWriter(w *bufio.Writer) {
	w.Reset(nil)
	s.writerPool.Put(w)
}

func (s *Server) getServerName() []byte {
	v := s.serverName.Load()
	var serverName []byte
	if v == nil {
		serverName = []byte(s.Name)
		if len(serverName) == 0 {
			serverName = defaultServerName
		}
		s.serverName.Store(serverName)
	} else {
		serverName = v.([]byte)
	}
	return serverName
}
