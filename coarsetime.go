package httpcore

import (
	"sync/atomic"
	"time"
)

// coarseTimeNow returns the current time with one-second granularity,
// avoiding a syscall on the per-request hot path.
func coarseTimeNow() time.Time {
	tp := coarseTime.Load().(*time.Time)
	return *tp
}

func init() {
	t := time.Now().Truncate(time.Second)
	coarseTime.Store(&t)
	go func() {
		for {
			time.Sleep(time.Second)
			t := time.Now().Truncate(time.Second)
			coarseTime.Store(&t)
		}
	}()
}

var coarseTime atomic.Value
