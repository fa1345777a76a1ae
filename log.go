package httpcore

import (
	"github.com/sirupsen/logrus"
)

// Logger is used for logging formatted messages.
type Logger interface {
	// Printf must have the same semantics as log.Printf.
	Printf(format string, args ...interface{})
}

// NewLogrusLogger wraps l into the Logger interface.
func NewLogrusLogger(l *logrus.Logger) Logger {
	return &logrusLogger{l: l}
}

type logrusLogger struct {
	l *logrus.Logger
}

func (ll *logrusLogger) Printf(format string, args ...interface{}) {
	ll.l.Infof(format, args...)
}

var defaultLogger = NewLogrusLogger(logrus.StandardLogger())
