/*
Package httpcore provides the HTTP/1.1 request-body machinery for a
connection-oriented web server.

The central type is RequestBody. It sits between the transport layer, which
pushes parsed body chunks into it, and the application handler, which may
consume the body exactly once:

  - RequestBody.Read buffers the whole body and delivers it as a single
    composed ChunkBuffer.
  - RequestBody.ReadStream delivers the body chunk by chunk with explicit
    back-pressure.
  - RequestBody.Drain discards any unread remainder and reports whether the
    connection may be reused for the next request.

Body bytes live in reference-counted ChunkBuffer handles backed by pooled
memory; every code path releases each handle exactly once. A configurable
size ceiling is enforced before and while the body arrives, and
`Expect: 100-continue` requests are answered with the continue preface
before the first body read a reader causes.

The package also carries the surrounding server plumbing needed to drive
RequestBody over real connections: a trimmed request-header parser, a
blocking per-connection serving loop (Server), and an event-loop transport
built on gnet (EventServer).
*/
package httpcore
