package httpcore

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrBodyAlreadyRead is returned when a second reader is attached to a
	// request body. The body may be read, streamed or drained at most once.
	ErrBodyAlreadyRead = errors.New("request body was already read")

	// ErrConnectionClosed is returned when the connection closed before the
	// terminal body chunk arrived. Use errors.Cause to recover it from
	// wrapped transport errors.
	ErrConnectionClosed = errors.New("connection closed before the request body was complete")
)

// TooLargeError is returned when a request body exceeds the configured
// ceiling. Observed is the length that tripped the check: the advertised
// Content-Length when the request is rejected up front, or the number of
// bytes received so far otherwise.
type TooLargeError struct {
	Ceiling  int64
	Observed int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("request body too large: %d bytes exceeds the limit of %d bytes", e.Observed, e.Ceiling)
}

// ErrBrokenChunk is returned when chunked transfer encoding on the wire is
// malformed.
type ErrBrokenChunk struct {
	error
}

// IsTooLarge reports whether err, or any error in its cause chain, is a
// *TooLargeError.
func IsTooLarge(err error) bool {
	_, ok := errors.Cause(err).(*TooLargeError)
	return ok
}

// IsConnectionClosed reports whether err, or any error in its cause chain,
// is ErrConnectionClosed.
func IsConnectionClosed(err error) bool {
	return errors.Cause(err) == ErrConnectionClosed
}

func isBrokenChunk(err error) bool {
	_, ok := errors.Cause(err).(ErrBrokenChunk)
	return ok
}

func errIsEOF(err error) bool {
	return errors.Cause(err) == io.EOF
}

// connClosedError attaches the transport-level closure reason, if any, to
// ErrConnectionClosed so that errors.Cause still matches the sentinel.
func connClosedError(reason error) error {
	if reason == nil {
		return ErrConnectionClosed
	}
	return errors.Wrapf(ErrConnectionClosed, "%s", reason)
}
