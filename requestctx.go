package httpcore

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestCtx is the per-request execution context handed to a
// RequestHandler. It carries the parsed header, the request body, the
// outgoing response, and the completion hooks that run after the handler
// returns.
//
// It is forbidden copying RequestCtx instances. Handlers must not hold
// references to a ctx or its members after returning.
type RequestCtx struct {
	// Header is the parsed request header.
	Header RequestHeader

	// Response is the outgoing response.
	Response Response

	body *RequestBody
	ch   connChannel

	id   uuid.UUID
	time time.Time

	s *Server
	c net.Conn

	logger     ctxLogger
	userValues userData
	hooks      []func()
	completed  bool
}

// ID returns the unique id assigned to this request, for cross-request
// correlation in logs.
func (ctx *RequestCtx) ID() uuid.UUID {
	return ctx.id
}

// Time returns the request processing start time.
func (ctx *RequestCtx) Time() time.Time {
	return ctx.time
}

// Body returns the request body. The body may be read, streamed or
// drained at most once.
func (ctx *RequestCtx) Body() *RequestBody {
	return ctx.body
}

// OnComplete registers fn to run after the request handler returns. Hooks
// run in registration order. The body machinery registers hooks here to
// release buffers the handler left behind.
func (ctx *RequestCtx) OnComplete(fn func()) {
	if ctx.completed {
		// The handler already returned; run the hook in place.
		fn()
		return
	}
	ctx.hooks = append(ctx.hooks, fn)
}

func (ctx *RequestCtx) runCompletionHooks() {
	ctx.completed = true
	for i, fn := range ctx.hooks {
		ctx.hooks[i] = nil
		fn()
	}
	ctx.hooks = ctx.hooks[:0]
}

// SetUserValue stores an arbitrary value under key for the lifetime of the
// request. Values implementing io.Closer are closed when the request
// completes.
func (ctx *RequestCtx) SetUserValue(key string, value interface{}) {
	ctx.userValues.Set(key, value)
}

// UserValue returns the value stored under key, or nil.
func (ctx *RequestCtx) UserValue(key string) interface{} {
	return ctx.userValues.Get(key)
}

var zeroTCPAddr = &net.TCPAddr{
	IP: net.IPv4zero,
}

// RemoteAddr returns the client address.
//
// Always returns non-nil result.
func (ctx *RequestCtx) RemoteAddr() net.Addr {
	if ctx.c == nil {
		return zeroTCPAddr
	}
	addr := ctx.c.RemoteAddr()
	if addr == nil {
		return zeroTCPAddr
	}
	return addr
}

// LocalAddr returns the server address.
//
// Always returns non-nil result.
func (ctx *RequestCtx) LocalAddr() net.Addr {
	if ctx.c == nil {
		return zeroTCPAddr
	}
	addr := ctx.c.LocalAddr()
	if addr == nil {
		return zeroTCPAddr
	}
	return addr
}

// Error sets the response status code and body to the given values.
func (ctx *RequestCtx) Error(msg string, statusCode int) {
	resp := &ctx.Response
	resp.Reset()
	resp.SetStatusCode(statusCode)
	resp.SetContentTypeBytes(defaultContentType)
	resp.SetBodyString(msg)
}

// Success sets the response Content-Type and body to the given values.
//
// It is safe modifying body after the call returns.
func (ctx *RequestCtx) Success(contentType string, body []byte) {
	ctx.Response.SetContentType(contentType)
	ctx.Response.SetBody(body)
}

// SetConnectionClose closes the connection after the response is written.
func (ctx *RequestCtx) SetConnectionClose() {
	ctx.Response.SetConnectionClose()
}

// Logger returns a logger that prefixes every message with
// request-specific information: request id, addresses, method and uri.
//
// It is safe re-using the returned logger for logging multiple messages.
func (ctx *RequestCtx) Logger() Logger {
	if ctx.logger.ctx == nil {
		ctx.logger.ctx = ctx
	}
	if ctx.logger.logger == nil {
		ctx.logger.logger = ctx.s.logger()
	}
	return &ctx.logger
}

var ctxLoggerLock sync.Mutex

type ctxLogger struct {
	ctx    *RequestCtx
	logger Logger
}

func (cl *ctxLogger) Printf(format string, args ...interface{}) {
	ctxLoggerLock.Lock()
	msg := fmt.Sprintf(format, args...)
	ctx := cl.ctx
	cl.logger.Printf("%.3f %s - %s<->%s - %s %s - %s",
		time.Since(ctx.time).Seconds(), ctx.id, ctx.LocalAddr(), ctx.RemoteAddr(),
		ctx.Header.Method(), ctx.Header.RequestURI(), msg)
	ctxLoggerLock.Unlock()
}

func (ctx *RequestCtx) reset() {
	ctx.Header.Reset()
	ctx.Response.Reset()
	ctx.body = nil
	ctx.id = uuid.UUID{}
	ctx.s = nil
	ctx.c = nil
	ctx.logger.ctx = nil
	ctx.logger.logger = nil
	ctx.userValues.Reset()
	ctx.hooks = ctx.hooks[:0]
	ctx.completed = false
}
