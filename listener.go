package httpcore

import (
	"net"
	"time"
)

// TimeoutListener wraps a net.Listener so every accepted connection gets
// per-operation read and write deadlines. Useful in front of Serve when
// the server-wide timeouts must apply to raw connection I/O as well.
type TimeoutListener struct {
	// The original listener.
	Listener net.Listener

	// Maximum wait time for each Read on accepted connections.
	//
	// Read timeout is disabled by default.
	ReadTimeout time.Duration

	// Maximum wait time for each Write on accepted connections.
	//
	// Write timeout is disabled by default.
	WriteTimeout time.Duration
}

func (ln *TimeoutListener) Accept() (net.Conn, error) {
	c, err := ln.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &timeoutConn{
		Conn:         c,
		readTimeout:  ln.ReadTimeout,
		writeTimeout: ln.WriteTimeout,
	}, nil
}

func (ln *TimeoutListener) Addr() net.Addr {
	return ln.Listener.Addr()
}

func (ln *TimeoutListener) Close() error {
	return ln.Listener.Close()
}

type timeoutConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *timeoutConn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *timeoutConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
